// internal/models/progress.go
package models

import "time"

// ComputeStage tracks a single fit computation through its pipeline. The
// happy path visits FIT, REFRESHING, SAVING and COMPLETE in order; no stage
// is skipped. ERROR is reachable from any in-progress stage.
// CREDITS_REQUIRED is a distinct terminal outcome, not an error: the college
// stays in the list and the user is routed to a credits purchase instead of
// a retry.
type ComputeStage string

const (
	StageFit             ComputeStage = "FIT"
	StageRefreshing      ComputeStage = "REFRESHING"
	StageSaving          ComputeStage = "SAVING"
	StageComplete        ComputeStage = "COMPLETE"
	StageError           ComputeStage = "ERROR"
	StageCreditsRequired ComputeStage = "CREDITS_REQUIRED"
)

var stageTransitions = map[ComputeStage][]ComputeStage{
	StageFit:        {StageRefreshing, StageError, StageCreditsRequired},
	StageRefreshing: {StageSaving, StageError, StageCreditsRequired},
	StageSaving:     {StageComplete, StageError},
}

var stagePercent = map[ComputeStage]int{
	StageFit:             0,
	StageRefreshing:      25,
	StageSaving:          75,
	StageComplete:        100,
	StageError:           0,
	StageCreditsRequired: 0,
}

func (s ComputeStage) IsTerminal() bool {
	return s == StageComplete || s == StageError || s == StageCreditsRequired
}

// CanTransition reports whether moving from s to next is a legal step.
func (s ComputeStage) CanTransition(next ComputeStage) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Percent returns the progress floor for a stage. ERROR and CREDITS_REQUIRED
// keep the percent of the stage they aborted from, so callers should prefer
// the operation's stored percent for terminal failures.
func (s ComputeStage) Percent() int {
	return stagePercent[s]
}

// ComputeOperation is one in-flight fit computation. Operations are never
// serialized against each other; two concurrent toggles on the same
// university produce two operations with distinct IDs.
type ComputeOperation struct {
	ID           string       `json:"id"`
	UserEmail    string       `json:"userEmail"`
	UniversityID string       `json:"universityId"`
	Stage        ComputeStage `json:"stage"`
	Percent      int          `json:"percent"`
	ErrorCode    string       `json:"errorCode,omitempty"`
	ErrorDetail  string       `json:"errorDetail,omitempty"`
	StartedAt    time.Time    `json:"startedAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}
