package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStage_HappyPath(t *testing.T) {
	path := []ComputeStage{StageFit, StageRefreshing, StageSaving, StageComplete}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransition(path[i+1]),
			"expected %s -> %s to be legal", path[i], path[i+1])
	}
}

func TestComputeStage_NoSkipping(t *testing.T) {
	tests := []struct {
		name string
		from ComputeStage
		to   ComputeStage
	}{
		{"fit cannot jump to saving", StageFit, StageSaving},
		{"fit cannot jump to complete", StageFit, StageComplete},
		{"refreshing cannot jump to complete", StageRefreshing, StageComplete},
		{"saving cannot go back to fit", StageSaving, StageFit},
		{"saving cannot report credits required", StageSaving, StageCreditsRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.from.CanTransition(tt.to))
		})
	}
}

func TestComputeStage_ErrorReachableFromInProgress(t *testing.T) {
	for _, from := range []ComputeStage{StageFit, StageRefreshing, StageSaving} {
		assert.True(t, from.CanTransition(StageError), "ERROR must be reachable from %s", from)
	}
}

func TestComputeStage_TerminalStagesHaveNoExits(t *testing.T) {
	all := []ComputeStage{StageFit, StageRefreshing, StageSaving, StageComplete, StageError, StageCreditsRequired}
	for _, terminal := range []ComputeStage{StageComplete, StageError, StageCreditsRequired} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range all {
			assert.False(t, terminal.CanTransition(next),
				"terminal stage %s must not transition to %s", terminal, next)
		}
	}
}

func TestComputeStage_PercentBands(t *testing.T) {
	assert.Equal(t, 0, StageFit.Percent())
	assert.Equal(t, 25, StageRefreshing.Percent())
	assert.Equal(t, 75, StageSaving.Percent())
	assert.Equal(t, 100, StageComplete.Percent())
}

func TestParseFitCategory(t *testing.T) {
	tests := []struct {
		in       string
		expected FitCategory
		ok       bool
	}{
		{"safety", FitSafety, true},
		{"SAFETY", FitSafety, true},
		{" Target ", FitTarget, true},
		{"reach", FitReach, true},
		{"super reach", FitSuperReach, true},
		{"super-reach", FitSuperReach, true},
		{"SUPER_REACH", FitSuperReach, true},
		{"likely", FitTarget, false},
		{"", FitTarget, false},
	}

	for _, tt := range tests {
		got, ok := ParseFitCategory(tt.in)
		assert.Equal(t, tt.expected, got, "input %q", tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
	}
}

func TestClampPercentage(t *testing.T) {
	assert.Equal(t, 0, ClampPercentage(-5))
	assert.Equal(t, 0, ClampPercentage(0))
	assert.Equal(t, 72, ClampPercentage(72))
	assert.Equal(t, 100, ClampPercentage(100))
	assert.Equal(t, 100, ClampPercentage(250))
}
