// internal/models/catalog.go
package models

// UniversityCatalogItem is read-only reference data. Rank, acceptance rate
// and tuition are pointers because the catalog legitimately lacks them for
// some schools; nil means N/A, not zero.
type UniversityCatalogItem struct {
	UniversityID    string       `json:"universityId"`
	Name            string       `json:"name"`
	Type            string       `json:"type,omitempty"`
	State           string       `json:"state,omitempty"`
	City            string       `json:"city,omitempty"`
	USNewsRank      *int         `json:"usNewsRank,omitempty"`
	AcceptanceRate  *float64     `json:"acceptanceRate,omitempty"`
	Tuition         *int         `json:"tuition,omitempty"`
	UndergradSize   *int         `json:"undergradSize,omitempty"`
	SoftFitCategory *FitCategory `json:"softFitCategory,omitempty"`
	InfographicURL  string       `json:"infographicUrl,omitempty"`
}
