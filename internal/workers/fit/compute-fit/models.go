// internal/workers/fit/compute-fit/models.go
package computefit

import "admissions-workers/internal/models"

type Input struct {
	UserEmail      string `json:"userEmail"`
	UniversityID   string `json:"universityId"`
	UniversityName string `json:"universityName"`
	IntendedMajor  string `json:"intendedMajor,omitempty"`
	// OperationID references the progress record created when the college was
	// toggled in. Empty or already-terminal IDs get a fresh operation.
	OperationID string `json:"operationId,omitempty"`
}

const (
	StatusComplete        = "complete"
	StatusCreditsRequired = "credits_required"
)

type Output struct {
	OperationID string            `json:"operationId"`
	Status      string            `json:"status"`
	Record      *models.FitRecord `json:"fitRecord,omitempty"`
}
