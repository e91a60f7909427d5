// internal/workers/list/bulk-remove-colleges/models.go
package bulkremovecolleges

type Input struct {
	UserEmail     string   `json:"userEmail"`
	UniversityIDs []string `json:"universityIds"`
}

type ItemResult struct {
	UniversityID string `json:"universityId"`
	OK           bool   `json:"ok"`
	ErrorCode    string `json:"errorCode,omitempty"`
}

type Output struct {
	Requested int          `json:"requested"`
	Removed   int          `json:"removed"`
	Failed    int          `json:"failed"`
	ListSize  int          `json:"listSize"`
	Results   []ItemResult `json:"results"`
}
