// internal/models/fit.go
package models

import (
	"strings"
	"time"
)

type FitCategory string

const (
	FitSafety     FitCategory = "SAFETY"
	FitTarget     FitCategory = "TARGET"
	FitReach      FitCategory = "REACH"
	FitSuperReach FitCategory = "SUPER_REACH"
)

type FitSource string

const (
	SourcePrecomputed      FitSource = "precomputed"
	SourceParsedStructured FitSource = "parsed-structured"
	SourceParsedHeuristic  FitSource = "parsed-heuristic"
)

// ParseFitCategory normalizes free-form category text. Unknown values map to
// TARGET with ok=false so callers can fall back without special-casing.
func ParseFitCategory(raw string) (FitCategory, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	switch FitCategory(normalized) {
	case FitSafety, FitTarget, FitReach, FitSuperReach:
		return FitCategory(normalized), true
	}
	return FitTarget, false
}

// ClampPercentage bounds a match percentage to [0,100].
func ClampPercentage(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

type FitFactor struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Max    int    `json:"max"`
	Detail string `json:"detail,omitempty"`
}

// FitRecord is immutable once produced. A refresh or recompute replaces the
// record wholesale; nothing mutates one in place.
type FitRecord struct {
	UniversityID        string            `json:"universityId"`
	FitCategory         FitCategory       `json:"fitCategory"`
	MatchPercentage     int               `json:"matchPercentage"`
	Factors             []FitFactor       `json:"factors"`
	Recommendations     []string          `json:"recommendations"`
	Explanation         string            `json:"explanation,omitempty"`
	GapAnalysis         []string          `json:"gapAnalysis,omitempty"`
	EssayAngles         []string          `json:"essayAngles,omitempty"`
	ApplicationTimeline map[string]string `json:"applicationTimeline,omitempty"`
	ScholarshipMatches  []string          `json:"scholarshipMatches,omitempty"`
	Source              FitSource         `json:"source"`
	Raw                 string            `json:"raw,omitempty"`
	ComputedAt          time.Time         `json:"computedAt"`
}
