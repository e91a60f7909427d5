// internal/workers/list/bulk-remove-colleges/handler_test.go
package bulkremovecolleges

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/validation"
	"admissions-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type testEnv struct {
	handler *Handler
	mock    sqlmock.Sqlmock
	redis   *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	handler := NewHandler(&Config{Timeout: 10 * time.Second}, db, client, logger.NewTestLogger(t))

	return &testEnv{handler: handler, mock: mock, redis: mr}
}

func (e *testEnv) expectTier(tier string, credits int) {
	e.mock.ExpectQuery("SELECT tier, credits_remaining FROM user_tiers").
		WithArgs("student@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"tier", "credits_remaining"}).
			AddRow(tier, credits))
}

func (e *testEnv) expectDelete(universityID string, affected int64) {
	e.mock.ExpectExec("DELETE FROM user_college_lists").
		WithArgs("student@example.com", universityID).
		WillReturnResult(sqlmock.NewResult(0, affected))
}

func (e *testEnv) expectDeleteError(universityID string) {
	e.mock.ExpectExec("DELETE FROM user_college_lists").
		WithArgs("student@example.com", universityID).
		WillReturnError(fmt.Errorf("connection reset"))
}

func (e *testEnv) expectCount(n int) {
	e.mock.ExpectQuery("SELECT COUNT").
		WithArgs("student@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

func bulkInput(ids ...string) *Input {
	return &Input{
		UserEmail:     "student@example.com",
		UniversityIDs: ids,
	}
}

func assertStandardError(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	stdErr, ok := err.(*errors.StandardError)
	require.True(t, ok, "expected StandardError, got %T", err)
	assert.Equal(t, code, stdErr.Code)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_AllRemoved(t *testing.T) {
	env := newTestEnv(t)

	env.expectTier("monthly", 5)
	env.expectDelete("stanford-university", 1)
	env.expectDelete("mit", 1)
	env.expectCount(4)

	output, err := env.handler.Execute(context.Background(), bulkInput("stanford-university", "mit"))

	require.NoError(t, err)
	assert.Equal(t, 2, output.Requested)
	assert.Equal(t, 2, output.Removed)
	assert.Equal(t, 0, output.Failed)
	assert.Equal(t, 4, output.ListSize)
	require.Len(t, output.Results, 2)
	for _, r := range output.Results {
		assert.True(t, r.OK)
		assert.Empty(t, r.ErrorCode)
	}
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_MixedOutcomes(t *testing.T) {
	env := newTestEnv(t)

	env.expectTier("season_pass", 10)
	env.expectDelete("stanford-university", 1)
	env.expectDelete("not-on-list", 0)
	env.expectDeleteError("mit")
	env.expectCount(2)

	output, err := env.handler.Execute(context.Background(),
		bulkInput("stanford-university", "not-on-list", "mit"))

	// Partial success still completes the job; per-item outcomes carry the
	// failures.
	require.NoError(t, err)
	assert.Equal(t, 3, output.Requested)
	assert.Equal(t, 1, output.Removed)
	assert.Equal(t, 2, output.Failed)

	byID := map[string]ItemResult{}
	for _, r := range output.Results {
		byID[r.UniversityID] = r
	}
	assert.True(t, byID["stanford-university"].OK)
	assert.Equal(t, "NOT_IN_LIST", byID["not-on-list"].ErrorCode)
	assert.Equal(t, "QUERY_EXECUTION_FAILED", byID["mit"].ErrorCode)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_DuplicateIDsCollapsed(t *testing.T) {
	env := newTestEnv(t)

	env.expectTier("monthly", 5)
	env.expectDelete("stanford-university", 1)
	env.expectCount(1)

	output, err := env.handler.Execute(context.Background(),
		bulkInput("stanford-university", "stanford-university", "stanford-university"))

	require.NoError(t, err)
	assert.Equal(t, 1, output.Requested)
	assert.Equal(t, 1, output.Removed)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

// ==========================
// Gate Tests
// ==========================

func TestHandler_Execute_FreeTierDenied(t *testing.T) {
	env := newTestEnv(t)

	env.expectTier("free", 0)

	output, err := env.handler.Execute(context.Background(), bulkInput("stanford-university"))

	// The denial comes before any delete touches the list
	assertStandardError(t, err, errors.ErrCodeTierViolation)
	assert.Nil(t, output)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_UnknownUserResolvesToFree(t *testing.T) {
	env := newTestEnv(t)

	env.mock.ExpectQuery("SELECT tier, credits_remaining FROM user_tiers").
		WithArgs("student@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"tier", "credits_remaining"}))

	output, err := env.handler.Execute(context.Background(), bulkInput("stanford-university"))

	assertStandardError(t, err, errors.ErrCodeTierViolation)
	assert.Nil(t, output)
}

func TestHandler_Execute_UsesCachedTier(t *testing.T) {
	env := newTestEnv(t)

	cached, _ := json.Marshal(models.TierState{Tier: "monthly", CreditsRemaining: 5})
	env.redis.Set("tier:student@example.com", string(cached))

	// No tier query expected; only the delete and the count
	env.expectDelete("stanford-university", 1)
	env.expectCount(0)

	_, err := env.handler.Execute(context.Background(), bulkInput("stanford-university"))

	require.NoError(t, err)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

// ==========================
// Edge Case Tests
// ==========================

func TestHandler_Execute_AllFailedIsBatchFailure(t *testing.T) {
	env := newTestEnv(t)

	env.expectTier("monthly", 5)
	env.expectDelete("ghost-one", 0)
	env.expectDelete("ghost-two", 0)

	output, err := env.handler.Execute(context.Background(), bulkInput("ghost-one", "ghost-two"))

	assertStandardError(t, err, errors.ErrCodePartialBatchFailure)
	assert.Nil(t, output)
	assert.NoError(t, env.mock.ExpectationsWereMet())
}

func TestHandler_Execute_EmptyBatchRejected(t *testing.T) {
	env := newTestEnv(t)

	output, err := env.handler.Execute(context.Background(), bulkInput())

	assertStandardError(t, err, errors.ErrCodeValidationFailed)
	assert.Nil(t, output)
}

// ==========================
// Validation Tests
// ==========================

func TestGetInputSchema_Validation(t *testing.T) {
	tests := []struct {
		name      string
		variables map[string]interface{}
		wantValid bool
	}{
		{
			name: "valid request",
			variables: map[string]interface{}{
				"userEmail":     "student@example.com",
				"universityIds": []interface{}{"stanford-university", "mit"},
			},
			wantValid: true,
		},
		{
			name: "missing universityIds",
			variables: map[string]interface{}{
				"userEmail": "student@example.com",
			},
			wantValid: false,
		},
		{
			name: "extra process variables allowed",
			variables: map[string]interface{}{
				"userEmail":        "student@example.com",
				"universityIds":    []interface{}{"mit"},
				"processStartedAt": "2026-03-01T10:00:00Z",
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validation.ValidateInput(tt.variables, GetInputSchema())
			assert.Equal(t, tt.wantValid, result.Valid, "errors: %v", result.GetErrorMessages())
		})
	}
}
