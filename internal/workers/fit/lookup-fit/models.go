// internal/workers/fit/lookup-fit/models.go
package lookupfit

import "admissions-workers/internal/models"

type Input struct {
	UserEmail    string                        `json:"userEmail"`
	UniversityID string                        `json:"universityId"`
	CatalogItem  *models.UniversityCatalogItem `json:"catalogItem,omitempty"`
}

type Output struct {
	Found    bool              `json:"found"`
	Degraded bool              `json:"degraded,omitempty"`
	Record   *models.FitRecord `json:"fitRecord,omitempty"`
}
