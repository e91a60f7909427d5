// internal/workers/catalog/filter-sort-catalog/models.go
package filtersortcatalog

import "admissions-workers/internal/models"

type Input struct {
	UserEmail  string                         `json:"userEmail"`
	Items      []models.UniversityCatalogItem `json:"items"`
	Filters    Filters                        `json:"filters"`
	SortKey    string                         `json:"sortKey,omitempty"`
	Page       int                            `json:"page"`
	PageSize   int                            `json:"pageSize,omitempty"`
	StateToken string                         `json:"stateToken,omitempty"`
}

type Filters struct {
	Query             string   `json:"query,omitempty"`
	Type              string   `json:"type,omitempty"`
	State             string   `json:"state,omitempty"`
	MaxAcceptanceRate *float64 `json:"maxAcceptanceRate,omitempty"`
	FitCategory       string   `json:"fitCategory,omitempty"`
}

// DisplayItem is a catalog item annotated with the fit that filtering and
// display resolved for it, when any exists.
type DisplayItem struct {
	models.UniversityCatalogItem
	FitCategory string `json:"fitCategory,omitempty"`
	FitSource   string `json:"fitSource,omitempty"`
	FitDegraded bool   `json:"fitDegraded,omitempty"`
}

type Output struct {
	Items      []DisplayItem `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
	StateToken string        `json:"stateToken"`
	PageReset  bool          `json:"pageReset,omitempty"`
}
