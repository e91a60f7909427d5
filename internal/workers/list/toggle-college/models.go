// internal/workers/list/toggle-college/models.go
package togglecollege

const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

type Input struct {
	UserEmail     string `json:"userEmail"`
	UniversityID  string `json:"universityId"`
	Name          string `json:"name,omitempty"`
	IntendedMajor string `json:"intendedMajor,omitempty"`
	Action        string `json:"action"`
}

type Output struct {
	Action       string `json:"action"`
	UniversityID string `json:"universityId"`
	ListSize     int    `json:"listSize"`
	// Add fields
	OperationID   string `json:"operationId,omitempty"`
	Permanent     bool   `json:"permanent,omitempty"`
	AlreadyInList bool   `json:"alreadyInList,omitempty"`
	// Remove fields
	Removed bool `json:"removed,omitempty"`
}
