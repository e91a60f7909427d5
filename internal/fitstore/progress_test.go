package fitstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions-workers/internal/models"
)

func TestProgress_HappyPath(t *testing.T) {
	_, client := setupTestRedis(t)
	progress := NewProgress(client, time.Hour)
	ctx := context.Background()

	op, err := progress.StartOperation(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)
	assert.NotEmpty(t, op.ID)
	assert.Equal(t, models.StageFit, op.Stage)
	assert.Equal(t, 0, op.Percent)

	op, err = progress.Advance(ctx, op.ID, models.StageRefreshing)
	require.NoError(t, err)
	assert.Equal(t, 25, op.Percent)

	op, err = progress.Advance(ctx, op.ID, models.StageSaving)
	require.NoError(t, err)
	assert.Equal(t, 75, op.Percent)

	op, err = progress.Advance(ctx, op.ID, models.StageComplete)
	require.NoError(t, err)
	assert.Equal(t, 100, op.Percent)
	assert.True(t, op.Stage.IsTerminal())
}

func TestProgress_StageSkippingRejected(t *testing.T) {
	_, client := setupTestRedis(t)
	progress := NewProgress(client, time.Hour)
	ctx := context.Background()

	op, err := progress.StartOperation(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)

	_, err = progress.Advance(ctx, op.ID, models.StageSaving)
	assert.Error(t, err)

	_, err = progress.Advance(ctx, op.ID, models.StageComplete)
	assert.Error(t, err)

	// The stored operation is untouched after rejected transitions.
	stored, err := progress.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageFit, stored.Stage)
}

func TestProgress_FailKeepsReachedPercent(t *testing.T) {
	_, client := setupTestRedis(t)
	progress := NewProgress(client, time.Hour)
	ctx := context.Background()

	op, err := progress.StartOperation(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)
	_, err = progress.Advance(ctx, op.ID, models.StageRefreshing)
	require.NoError(t, err)

	failed, err := progress.Fail(ctx, op.ID, "FIT_COMPUTE_FAILED", "agent unreachable")
	require.NoError(t, err)
	assert.Equal(t, models.StageError, failed.Stage)
	assert.Equal(t, 25, failed.Percent, "percent freezes at the stage the operation reached")
	assert.Equal(t, "FIT_COMPUTE_FAILED", failed.ErrorCode)
}

func TestProgress_CreditsRequiredDistinctFromError(t *testing.T) {
	_, client := setupTestRedis(t)
	progress := NewProgress(client, time.Hour)
	ctx := context.Background()

	op, err := progress.StartOperation(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)

	aborted, err := progress.CreditsRequired(ctx, op.ID, "0 credits remaining")
	require.NoError(t, err)
	assert.Equal(t, models.StageCreditsRequired, aborted.Stage)
	assert.NotEqual(t, models.StageError, aborted.Stage)
	assert.Equal(t, "INSUFFICIENT_CREDITS", aborted.ErrorCode)
	assert.True(t, aborted.Stage.IsTerminal())
}

func TestProgress_TerminalStagesHaveNoExits(t *testing.T) {
	_, client := setupTestRedis(t)
	progress := NewProgress(client, time.Hour)
	ctx := context.Background()

	op, err := progress.StartOperation(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)
	_, err = progress.Advance(ctx, op.ID, models.StageRefreshing)
	require.NoError(t, err)
	_, err = progress.Advance(ctx, op.ID, models.StageSaving)
	require.NoError(t, err)
	_, err = progress.Advance(ctx, op.ID, models.StageComplete)
	require.NoError(t, err)

	_, err = progress.Fail(ctx, op.ID, "FIT_COMPUTE_FAILED", "too late")
	assert.Error(t, err)

	_, err = progress.Advance(ctx, op.ID, models.StageRefreshing)
	assert.Error(t, err)
}

func TestProgress_SavingCannotAbortToCredits(t *testing.T) {
	_, client := setupTestRedis(t)
	progress := NewProgress(client, time.Hour)
	ctx := context.Background()

	op, err := progress.StartOperation(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)
	_, err = progress.Advance(ctx, op.ID, models.StageRefreshing)
	require.NoError(t, err)
	_, err = progress.Advance(ctx, op.ID, models.StageSaving)
	require.NoError(t, err)

	// The credits check happens before saving begins; by SAVING the credit
	// was already spent.
	_, err = progress.CreditsRequired(ctx, op.ID, "late check")
	assert.Error(t, err)
}

func TestProgress_ConcurrentTogglesKeepDistinctOperations(t *testing.T) {
	_, client := setupTestRedis(t)
	progress := NewProgress(client, time.Hour)
	ctx := context.Background()

	first, err := progress.StartOperation(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)
	second, err := progress.StartOperation(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	// Latest tracks the newest operation while the first stays retrievable.
	latest, err := progress.Latest(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	stored, err := progress.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first.ID, stored.ID)
}

func TestProgress_UnknownOperation(t *testing.T) {
	_, client := setupTestRedis(t)
	progress := NewProgress(client, time.Hour)
	ctx := context.Background()

	got, err := progress.Get(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = progress.Advance(ctx, "does-not-exist", models.StageRefreshing)
	assert.Error(t, err)
}
