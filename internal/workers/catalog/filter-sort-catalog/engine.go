// internal/workers/catalog/filter-sort-catalog/engine.go
package filtersortcatalog

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"admissions-workers/internal/models"
)

var validSortKeys = map[string]bool{
	"rank": true, "acceptance_rate": true, "tuition": true, "name": true,
}

// applyFilters evaluates every predicate against one item. Predicates are
// conjunctive: an item survives only if it passes all active filters.
//
// The fit-category predicate resolves against the cached fit index first,
// then the catalog's soft category; when a specific category is requested
// and the item has neither, the item is excluded entirely.
func applyFilters(items []models.UniversityCatalogItem, filters Filters, fitIndex map[string]models.FitRecord) []DisplayItem {
	result := make([]DisplayItem, 0, len(items))

	query := strings.ToLower(strings.TrimSpace(filters.Query))
	wantCategory := strings.TrimSpace(filters.FitCategory)

	for _, item := range items {
		if query != "" && !strings.Contains(strings.ToLower(item.Name), query) {
			continue
		}
		if filters.Type != "" && item.Type != filters.Type {
			continue
		}
		if filters.State != "" && item.State != filters.State {
			continue
		}
		// Unknown acceptance rates pass the ceiling.
		if filters.MaxAcceptanceRate != nil && item.AcceptanceRate != nil &&
			*item.AcceptanceRate > *filters.MaxAcceptanceRate {
			continue
		}

		display := DisplayItem{UniversityCatalogItem: item}
		if record, ok := fitIndex[item.UniversityID]; ok {
			display.FitCategory = string(record.FitCategory)
			display.FitSource = string(record.Source)
		} else if item.SoftFitCategory != nil {
			display.FitCategory = string(*item.SoftFitCategory)
			display.FitSource = string(models.SourcePrecomputed)
			display.FitDegraded = true
		}

		if wantCategory != "" {
			if display.FitCategory == "" {
				continue
			}
			category, _ := models.ParseFitCategory(wantCategory)
			if display.FitCategory != string(category) {
				continue
			}
		}

		result = append(result, display)
	}

	return result
}

// sortItems orders the filtered set. Numeric keys sort ascending with N/A
// treated as +Inf so unknowns land last; ties and unknowns keep their
// original relative order. Name sorts lexicographically, case-folded.
func sortItems(items []DisplayItem, sortKey string) {
	switch sortKey {
	case "rank":
		sort.SliceStable(items, func(i, j int) bool {
			return numericKey(intPtrValue(items[i].USNewsRank)) < numericKey(intPtrValue(items[j].USNewsRank))
		})
	case "acceptance_rate":
		sort.SliceStable(items, func(i, j int) bool {
			return numericKey(floatPtrValue(items[i].AcceptanceRate)) < numericKey(floatPtrValue(items[j].AcceptanceRate))
		})
	case "tuition":
		sort.SliceStable(items, func(i, j int) bool {
			return numericKey(intPtrValue(items[i].Tuition)) < numericKey(intPtrValue(items[j].Tuition))
		})
	case "name":
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
		})
	}
}

func numericKey(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}

func intPtrValue(p *int) *float64 {
	if p == nil {
		return nil
	}
	f := float64(*p)
	return &f
}

func floatPtrValue(p *float64) *float64 {
	return p
}

// paginate slices one page out of the sorted set. A page beyond the end
// yields an empty slice, not an error.
func paginate(items []DisplayItem, page, pageSize int) []DisplayItem {
	start := page * pageSize
	if start >= len(items) {
		return []DisplayItem{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// stateToken fingerprints the filter and sort state. Any change produces a
// different token, and a token mismatch resets pagination to page zero.
func stateToken(filters Filters, sortKey string) string {
	h := fnv.New64a()

	fmt.Fprintf(h, "q=%s|t=%s|s=%s|c=%s|k=%s",
		strings.ToLower(strings.TrimSpace(filters.Query)),
		filters.Type, filters.State, filters.FitCategory, sortKey)
	if filters.MaxAcceptanceRate != nil {
		fmt.Fprintf(h, "|r=%g", *filters.MaxAcceptanceRate)
	}

	return fmt.Sprintf("%016x", h.Sum64())
}
