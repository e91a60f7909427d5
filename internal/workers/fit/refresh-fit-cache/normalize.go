// internal/workers/fit/refresh-fit-cache/normalize.go
package refreshfitcache

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"admissions-workers/internal/models"
)

// normalizeEntry converts one precomputed entry into a fit record. Only a
// missing university_id discards the entry; any other defect degrades the
// affected field alone. ComputedAt stays zero so the store stamps it.
func normalizeEntry(entry map[string]interface{}) (models.FitRecord, bool) {
	universityID := strings.TrimSpace(stringValue(entry["university_id"]))
	if universityID == "" {
		return models.FitRecord{}, false
	}

	category, _ := models.ParseFitCategory(stringValue(entry["fit_category"]))

	percentage := 50
	if v, ok := entry["match_percentage"]; ok {
		percentage = intValue(v, 50)
	} else if v, ok := entry["match_score"]; ok {
		percentage = intValue(v, 50)
	}

	return models.FitRecord{
		UniversityID:        universityID,
		FitCategory:         category,
		MatchPercentage:     models.ClampPercentage(percentage),
		Factors:             decodeFactors(entry["factors"]),
		Recommendations:     decodeStringList(entry["recommendations"]),
		Explanation:         stringValue(entry["explanation"]),
		GapAnalysis:         decodeStringList(entry["gap_analysis"]),
		EssayAngles:         decodeStringList(entry["essay_angles"]),
		ApplicationTimeline: decodeStringMap(entry["application_timeline"]),
		ScholarshipMatches:  decodeStringList(entry["scholarship_matches"]),
		Source:              models.SourcePrecomputed,
	}, true
}

// decodeJSON re-decodes a value that may arrive as a JSON-encoded string.
// Non-string values pass through untouched; undecodable strings become nil.
func decodeJSON(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil
	}
	return decoded
}

func decodeStringList(v interface{}) []string {
	out := make([]string, 0)
	items, ok := decodeJSON(v).([]interface{})
	if !ok {
		return out
	}
	for _, item := range items {
		if s := strings.TrimSpace(stringValue(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func decodeStringMap(v interface{}) map[string]string {
	obj, ok := decodeJSON(v).(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, val := range obj {
		out[k] = stringValue(val)
	}
	return out
}

func decodeFactors(v interface{}) []models.FitFactor {
	factors := make([]models.FitFactor, 0)
	items, ok := decodeJSON(v).([]interface{})
	if !ok {
		return factors
	}

	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		factor := models.FitFactor{
			Name:   stringValue(entry["name"]),
			Score:  intValue(entry["score"], 0),
			Max:    intValue(entry["max"], 0),
			Detail: stringValue(entry["detail"]),
		}
		if factor.Name == "" {
			continue
		}
		factors = append(factors, factor)
	}

	return factors
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func intValue(v interface{}, def int) int {
	switch t := v.(type) {
	case float64:
		return int(math.Round(t))
	case string:
		cleaned := strings.TrimSuffix(strings.TrimSpace(t), "%")
		if value, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return int(math.Round(value))
		}
	case json.Number:
		if value, err := t.Float64(); err == nil {
			return int(math.Round(value))
		}
	}
	return def
}
