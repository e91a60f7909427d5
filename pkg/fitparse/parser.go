// Package fitparse normalizes heterogeneous agent responses into fit records.
//
// Agent output arrives in two shapes: a JSON object embedded somewhere in the
// text (often inside a markdown fence), or labeled prose. Extraction runs an
// explicit ordered rule list per field, so the fallback priority is visible
// in one place instead of buried in control flow. Every input, including the
// empty string, resolves to a valid record.
package fitparse

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"admissions-workers/internal/models"
)

// Category marker rules, tried in order before the keyword scan.
var categoryMarkerRules = []*regexp.Regexp{
	// fit_category: "reach"  /  fit category = safety
	regexp.MustCompile(`(?i)fit[_\s]category["']?\s*[:=]\s*["'*\s]*(super[\s_-]?reach|safety|target|reach)`),
	// **FIT_CATEGORY:** REACH
	regexp.MustCompile(`(?i)\*\*\s*fit[_\s]category\s*:?\s*\*\*\s*:?\s*(super[\s_-]?reach|safety|target|reach)`),
}

// Keyword fallback, fixed priority. "super reach" in prose resolves to REACH
// here; only an explicit marker can produce SUPER_REACH.
var categoryKeywords = []struct {
	keyword  string
	category models.FitCategory
}{
	{"safety", models.FitSafety},
	{"target", models.FitTarget},
	{"reach", models.FitReach},
}

// Percentage rules, tried in order.
var percentageRules = []*regexp.Regexp{
	// match_percentage: 72
	regexp.MustCompile(`(?i)match[_\s]percentage["']?\s*[:=]\s*([0-9]+(?:\.[0-9]+)?)`),
	// **MATCH_PERCENTAGE:** 72
	regexp.MustCompile(`(?i)\*\*\s*match[_\s]percentage\s*:?\s*\*\*\s*:?\s*([0-9]+(?:\.[0-9]+)?)`),
	// "about 85% match"
	regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*%\s*match`),
}

// Fixed factor labels with their maximum scores. Only labels actually found
// in the text produce factors.
var factorRules = []struct {
	label string
	max   int
}{
	{"GPA", 40},
	{"Test", 25},
	{"Acceptance", 25},
	{"Course Rigor", 20},
	{"Major Fit", 15},
	{"Activities", 15},
	{"Early Action", 10},
}

var (
	recommendationHeading = regexp.MustCompile(`(?i)^\s*(?:\*\*)?\s*(?:recommendations?|next steps|suggestions?)\b`)
	bulletPrefix          = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
)

// Normalize converts an agent response of any shape into a fit record. It
// accepts raw text, byte slices, or already-decoded objects and never fails;
// unrecognizable input yields the default TARGET/50 record.
func Normalize(universityID string, input interface{}) models.FitRecord {
	switch v := input.(type) {
	case nil:
		return ParseText(universityID, "")
	case string:
		return ParseText(universityID, v)
	case []byte:
		return ParseText(universityID, string(v))
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ParseText(universityID, fmt.Sprintf("%v", v))
		}
		return ParseText(universityID, string(encoded))
	}
}

// ParseText runs the structured path first and falls back to the heuristic
// path. The raw input is retained on the record either way.
func ParseText(universityID, text string) models.FitRecord {
	if record, ok := parseStructured(universityID, text); ok {
		return record
	}
	return parseHeuristic(universityID, text)
}

// parseStructured extracts and decodes an embedded JSON object. It succeeds
// only when the payload is parseable, reports success, and names a fit
// category; anything else defers to the heuristic path.
func parseStructured(universityID, text string) (models.FitRecord, bool) {
	candidate, ok := extractJSONObject(text)
	if !ok {
		return models.FitRecord{}, false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return models.FitRecord{}, false
	}

	if !truthy(payload["success"]) {
		return models.FitRecord{}, false
	}

	rawCategory, present := payload["fit_category"]
	if !present {
		return models.FitRecord{}, false
	}

	category, _ := models.ParseFitCategory(coerceString(rawCategory))

	percentage := 50
	if v, ok := payload["match_percentage"]; ok {
		percentage = coercePercentage(v, 50)
	} else if v, ok := payload["match_score"]; ok {
		percentage = coercePercentage(v, 50)
	}

	return models.FitRecord{
		UniversityID:    universityID,
		FitCategory:     category,
		MatchPercentage: models.ClampPercentage(percentage),
		Factors:         coerceFactors(payload["factors"]),
		Recommendations: coerceStringSlice(payload["recommendations"]),
		Explanation:     coerceString(payload["explanation"]),
		Source:          models.SourceParsedStructured,
		Raw:             text,
	}, true
}

// parseHeuristic scans labeled prose with the ordered rule lists. It always
// produces a record.
func parseHeuristic(universityID, text string) models.FitRecord {
	return models.FitRecord{
		UniversityID:    universityID,
		FitCategory:     extractCategory(text),
		MatchPercentage: extractPercentage(text),
		Factors:         extractFactors(text),
		Recommendations: extractRecommendations(text),
		Source:          models.SourceParsedHeuristic,
		Raw:             text,
	}
}

func extractCategory(text string) models.FitCategory {
	for _, rule := range categoryMarkerRules {
		if m := rule.FindStringSubmatch(text); m != nil {
			if category, ok := models.ParseFitCategory(m[1]); ok {
				return category
			}
		}
	}

	lower := strings.ToLower(text)
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.category
		}
	}

	return models.FitTarget
}

func extractPercentage(text string) int {
	for _, rule := range percentageRules {
		if m := rule.FindStringSubmatch(text); m != nil {
			if value, err := strconv.ParseFloat(m[1], 64); err == nil {
				return models.ClampPercentage(int(math.Round(value)))
			}
		}
	}
	return 50
}

func extractFactors(text string) []models.FitFactor {
	factors := make([]models.FitFactor, 0, len(factorRules))

	for _, rule := range factorRules {
		pattern := strings.ReplaceAll(regexp.QuoteMeta(rule.label), ` `, `[\s_-]+`)
		re := regexp.MustCompile(`(?i)` + pattern + `[^0-9\n]{0,40}([0-9]+(?:\.[0-9]+)?)(?:\s*/\s*([0-9]+))?`)

		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		score := 0
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			score = int(math.Round(value))
		}

		max := rule.max
		if m[2] != "" {
			if explicit, err := strconv.Atoi(m[2]); err == nil && explicit > 0 {
				max = explicit
			}
		}

		if score < 0 {
			score = 0
		}
		if score > max {
			score = max
		}

		factors = append(factors, models.FitFactor{
			Name:   rule.label,
			Score:  score,
			Max:    max,
			Detail: strings.TrimSpace(m[0]),
		})
	}

	return factors
}

func extractRecommendations(text string) []string {
	recs := make([]string, 0)
	seen := make(map[string]bool)

	collecting := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if recommendationHeading.MatchString(trimmed) {
			collecting = true
			continue
		}
		if !collecting {
			continue
		}
		if trimmed == "" {
			collecting = false
			continue
		}
		// A new heading ends the section.
		if strings.HasSuffix(trimmed, ":") && !bulletPrefix.MatchString(trimmed) {
			collecting = false
			continue
		}

		item := bulletPrefix.ReplaceAllString(trimmed, "")
		item = strings.TrimSpace(strings.Trim(item, "*"))
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		recs = append(recs, item)
	}

	return recs
}

// extractJSONObject finds a JSON object substring containing the
// fit_category key. Fenced ```json blocks are preferred; otherwise a
// balanced-brace scan over the whole text.
func extractJSONObject(text string) (string, bool) {
	if start := strings.Index(text, "```json"); start >= 0 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.Contains(candidate, "fit_category") {
				return candidate, true
			}
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchingBrace(text, i)
		if end < 0 {
			continue
		}
		candidate := text[i : end+1]
		if strings.Contains(candidate, "fit_category") {
			return candidate, true
		}
		// Skip past this object so nested braces are not rescanned.
		i = end
	}

	return "", false
}

// matchingBrace returns the index of the brace closing the object opened at
// start, tracking string literals and escapes. Returns -1 if unbalanced.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

// truthy reports whether a decoded JSON value counts as success.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "yes" || s == "1"
	case float64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}
	return false
}

func coerceString(v interface{}) string {
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

func coercePercentage(v interface{}, def int) int {
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

func coerceStringSlice(v interface{}) []string {
	out := make([]string, 0)
	items, ok := v.([]interface{})
	if !ok {
		return out
	}
	for _, item := range items {
		if s := strings.TrimSpace(coerceString(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func coerceFactors(v interface{}) []models.FitFactor {
	factors := make([]models.FitFactor, 0)
	items, ok := v.([]interface{})
	if !ok {
		return factors
	}

	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		factor := models.FitFactor{
			Name:   coerceString(entry["name"]),
			Score:  coercePercentage(entry["score"], 0),
			Max:    coercePercentage(entry["max"], 0),
			Detail: coerceString(entry["detail"]),
		}
		if factor.Name == "" {
			continue
		}
		factors = append(factors, factor)
	}

	return factors
}
