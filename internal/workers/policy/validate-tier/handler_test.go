// internal/workers/policy/validate-tier/handler_test.go
package validatetier

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}

func createTestHandler(t *testing.T, db *sql.DB, redisClient *redis.Client) *Handler {
	testLog := logger.NewTestLogger(t)
	return NewHandler(createTestConfig(), db, redisClient, testLog)
}

func expectTierRow(mock sqlmock.Sqlmock, userEmail, tier string, credits int) {
	rows := sqlmock.NewRows([]string{"tier", "credits_remaining"}).AddRow(tier, credits)
	mock.ExpectQuery(`SELECT tier, credits_remaining FROM user_tiers`).
		WithArgs(userEmail).
		WillReturnRows(rows)
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_DecisionMatrix(t *testing.T) {
	tests := []struct {
		name           string
		input          *Input
		tier           string
		credits        int
		validateOutput func(t *testing.T, output *Output)
	}{
		{
			name:    "free tier add below cap",
			input:   &Input{UserEmail: "student@example.com", Action: "add_college", ListSize: 2},
			tier:    "free",
			credits: 0,
			validateOutput: func(t *testing.T, output *Output) {
				assert.True(t, output.Allowed)
				assert.Equal(t, "free", output.Tier)
				assert.Equal(t, models.FreeListMax, output.ListMax)
			},
		},
		{
			name:    "free tier add at cap denied",
			input:   &Input{UserEmail: "student@example.com", Action: "add_college", ListSize: 3},
			tier:    "free",
			credits: 5,
			validateOutput: func(t *testing.T, output *Output) {
				assert.False(t, output.Allowed)
				assert.Equal(t, "TIER_VIOLATION", output.Reason)
			},
		},
		{
			name:    "free tier remove always denied",
			input:   &Input{UserEmail: "student@example.com", Action: "remove_college", ListSize: 1},
			tier:    "free",
			credits: 10,
			validateOutput: func(t *testing.T, output *Output) {
				assert.False(t, output.Allowed)
				assert.Equal(t, "TIER_VIOLATION", output.Reason)
			},
		},
		{
			name:    "paid tier add above free cap",
			input:   &Input{UserEmail: "student@example.com", Action: "add_college", ListSize: 12},
			tier:    "monthly",
			credits: 0,
			validateOutput: func(t *testing.T, output *Output) {
				assert.True(t, output.Allowed)
				assert.Equal(t, models.UnlimitedListMax, output.ListMax)
			},
		},
		{
			name:    "paid tier remove allowed",
			input:   &Input{UserEmail: "student@example.com", Action: "remove_college", ListSize: 5},
			tier:    "season_pass",
			credits: 0,
			validateOutput: func(t *testing.T, output *Output) {
				assert.True(t, output.Allowed)
				assert.Empty(t, output.Reason)
			},
		},
		{
			name:    "compute fit without credits denied with distinct reason",
			input:   &Input{UserEmail: "student@example.com", Action: "compute_fit"},
			tier:    "monthly",
			credits: 0,
			validateOutput: func(t *testing.T, output *Output) {
				assert.False(t, output.Allowed)
				assert.Equal(t, "INSUFFICIENT_CREDITS", output.Reason)
			},
		},
		{
			name:    "compute fit with credits allowed",
			input:   &Input{UserEmail: "student@example.com", Action: "compute_fit"},
			tier:    "monthly",
			credits: 3,
			validateOutput: func(t *testing.T, output *Output) {
				assert.True(t, output.Allowed)
				assert.Equal(t, 3, output.CreditsRemaining)
			},
		},
		{
			name:    "bulk refresh without credits denied",
			input:   &Input{UserEmail: "student@example.com", Action: "bulk_refresh", ListSize: 8},
			tier:    "season_pass",
			credits: 0,
			validateOutput: func(t *testing.T, output *Output) {
				assert.False(t, output.Allowed)
				assert.Equal(t, "INSUFFICIENT_CREDITS", output.Reason)
			},
		},
		{
			name:    "bulk refresh with credits allowed",
			input:   &Input{UserEmail: "student@example.com", Action: "bulk_refresh", ListSize: 8},
			tier:    "monthly",
			credits: 1,
			validateOutput: func(t *testing.T, output *Output) {
				assert.True(t, output.Allowed)
				assert.Equal(t, 1, output.CreditsRemaining)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			redisClient, redisMock := redismock.NewClientMock()

			cacheKey := "tier:" + tt.input.UserEmail
			redisMock.ExpectGet(cacheKey).RedisNil()
			expectTierRow(mock, tt.input.UserEmail, tt.tier, tt.credits)

			state := models.TierState{
				Tier:             models.Tier(tt.tier),
				CreditsRemaining: tt.credits,
				ListMax:          models.ListMaxFor(models.Tier(tt.tier)),
			}
			data, _ := json.Marshal(state)
			redisMock.ExpectSet(cacheKey, data, tierCacheTTL).SetVal("OK")

			handler := createTestHandler(t, db, redisClient)
			output, err := handler.Execute(context.Background(), tt.input)

			require.NoError(t, err)
			require.NotNil(t, output)
			tt.validateOutput(t, output)

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Execute_CacheHit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()

	state := models.TierState{Tier: models.TierMonthly, CreditsRemaining: 7, ListMax: models.UnlimitedListMax}
	data, _ := json.Marshal(state)
	redisMock.ExpectGet("tier:cached@example.com").SetVal(string(data))

	handler := createTestHandler(t, db, redisClient)
	output, err := handler.Execute(context.Background(), &Input{
		UserEmail: "cached@example.com",
		Action:    "compute_fit",
	})

	require.NoError(t, err)
	assert.True(t, output.Allowed)
	assert.Equal(t, 7, output.CreditsRemaining)

	// The cache satisfied the lookup; postgres must not have been touched.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_UnknownUserIsFreeTier(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	redisMock.ExpectGet("tier:nobody@example.com").RedisNil()

	mock.ExpectQuery(`SELECT tier, credits_remaining FROM user_tiers`).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	handler := createTestHandler(t, db, redisClient)
	output, err := handler.Execute(context.Background(), &Input{
		UserEmail: "nobody@example.com",
		Action:    "remove_college",
	})

	require.NoError(t, err)
	assert.False(t, output.Allowed)
	assert.Equal(t, "TIER_VIOLATION", output.Reason)
	assert.Equal(t, "free", output.Tier)
	assert.Equal(t, 0, output.CreditsRemaining)
}

// ==========================
// Edge Case Tests
// ==========================

func TestHandler_Execute_EdgeCases(t *testing.T) {
	t.Run("missing user email", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		handler := createTestHandler(t, db, redisClient)

		_, err = handler.Execute(context.Background(), &Input{Action: "add_college"})
		assert.ErrorIs(t, err, ErrUnknownAction)
	})

	t.Run("unknown action", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		redisClient, _ := redismock.NewClientMock()
		handler := createTestHandler(t, db, redisClient)

		_, err = handler.Execute(context.Background(), &Input{
			UserEmail: "student@example.com",
			Action:    "delete_account",
		})
		assert.ErrorIs(t, err, ErrUnknownAction)
	})

	t.Run("database failure is retryable", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		redisMock.ExpectGet("tier:student@example.com").RedisNil()
		mock.ExpectQuery(`SELECT tier, credits_remaining FROM user_tiers`).
			WithArgs("student@example.com").
			WillReturnError(sql.ErrConnDone)

		handler := createTestHandler(t, db, redisClient)
		_, err = handler.Execute(context.Background(), &Input{
			UserEmail: "student@example.com",
			Action:    "add_college",
		})
		assert.ErrorIs(t, err, ErrTierCheckFailed)
	})

	t.Run("corrupted cache entry falls through to database", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		redisMock.ExpectGet("tier:student@example.com").SetVal("{not json")
		expectTierRow(mock, "student@example.com", "monthly", 2)
		redisMock.Regexp().ExpectSet("tier:student@example.com", `.*`, tierCacheTTL).SetVal("OK")

		handler := createTestHandler(t, db, redisClient)
		output, err := handler.Execute(context.Background(), &Input{
			UserEmail: "student@example.com",
			Action:    "compute_fit",
		})

		require.NoError(t, err)
		assert.True(t, output.Allowed)
		assert.Equal(t, "monthly", output.Tier)
	})
}

// ==========================
// Benchmarks
// ==========================

func BenchmarkHandler_Execute_CacheHit(b *testing.B) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	state := models.TierState{Tier: models.TierMonthly, CreditsRemaining: 100, ListMax: models.UnlimitedListMax}
	data, _ := json.Marshal(state)

	handler := NewHandler(createTestConfig(), db, redisClient, logger.NewNoOpLogger())
	input := &Input{UserEmail: "bench@example.com", Action: "compute_fit"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		redisMock.ExpectGet("tier:bench@example.com").SetVal(string(data))
		_, _ = handler.Execute(context.Background(), input)
	}
}
