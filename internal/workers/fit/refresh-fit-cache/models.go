// internal/workers/fit/refresh-fit-cache/models.go
package refreshfitcache

type Input struct {
	UserEmail string `json:"userEmail"`
}

type Output struct {
	FitCount     int    `json:"fitCount"`
	SkippedCount int    `json:"skippedCount"`
	Recomputed   bool   `json:"recomputed"`
	Reason       string `json:"reason,omitempty"`
}

type stalenessStatus struct {
	NeedsRecomputation bool   `json:"needs_recomputation"`
	Reason             string `json:"reason"`
}

// precomputedEnvelope keeps entries untyped: several sub-fields arrive either
// already decoded or as JSON-encoded strings, so each entry is normalized
// field by field.
type precomputedEnvelope struct {
	Success bool                     `json:"success"`
	Fits    []map[string]interface{} `json:"fits"`
}
