// internal/workers/fit/lookup-fit/handler_test.go
package lookupfit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions-workers/internal/fitstore"
	"admissions-workers/internal/models"
)

// ==========================
// Test Logger Implementation
// ==========================

// TestLogger implements the Logger interface for testing
type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{
		t:      t,
		fields: make(map[string]interface{}),
	}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return l
}

// ==========================
// Test Helper Functions
// ==========================

func newTestHandler(t *testing.T) (*Handler, *fitstore.Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := fitstore.New(client, 30*time.Minute)
	handler := NewHandler(LoadConfig(), store, NewTestLogger(t))
	return handler, store, mr
}

func softCategory(c models.FitCategory) *models.FitCategory {
	return &c
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_CacheHit(t *testing.T) {
	handler, store, _ := newTestHandler(t)

	err := store.SaveRecord(context.Background(), "student@example.com", models.FitRecord{
		UniversityID:    "stanford-university",
		FitCategory:     models.FitReach,
		MatchPercentage: 72,
		Recommendations: []string{"Take more APs"},
		Source:          models.SourceParsedStructured,
	})
	require.NoError(t, err)

	output, err := handler.Execute(context.Background(), &Input{
		UserEmail:    "student@example.com",
		UniversityID: "stanford-university",
	})

	require.NoError(t, err)
	assert.True(t, output.Found)
	assert.False(t, output.Degraded)
	require.NotNil(t, output.Record)
	assert.Equal(t, models.FitReach, output.Record.FitCategory)
	assert.Equal(t, 72, output.Record.MatchPercentage)
	assert.Equal(t, models.SourceParsedStructured, output.Record.Source)
}

func TestHandler_Execute_SoftCategoryFallback(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		UserEmail:    "student@example.com",
		UniversityID: "stanford-university",
		CatalogItem: &models.UniversityCatalogItem{
			UniversityID:    "stanford-university",
			Name:            "Stanford University",
			SoftFitCategory: softCategory(models.FitReach),
		},
	})

	require.NoError(t, err)
	assert.True(t, output.Found)
	assert.True(t, output.Degraded)
	require.NotNil(t, output.Record)
	assert.Equal(t, models.FitReach, output.Record.FitCategory)
	assert.Equal(t, 50, output.Record.MatchPercentage)
	assert.Empty(t, output.Record.Factors)
	assert.Empty(t, output.Record.Recommendations)
	assert.Equal(t, models.SourcePrecomputed, output.Record.Source)
}

func TestHandler_Execute_MissWithoutFallback(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
	}{
		{
			name: "no catalog item",
			input: &Input{
				UserEmail:    "student@example.com",
				UniversityID: "stanford-university",
			},
		},
		{
			name: "catalog item without soft category",
			input: &Input{
				UserEmail:    "student@example.com",
				UniversityID: "stanford-university",
				CatalogItem: &models.UniversityCatalogItem{
					UniversityID: "stanford-university",
					Name:         "Stanford University",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _, _ := newTestHandler(t)

			output, err := handler.Execute(context.Background(), tt.input)

			require.NoError(t, err)
			assert.False(t, output.Found)
			assert.False(t, output.Degraded)
			assert.Nil(t, output.Record)
		})
	}
}

func TestHandler_Execute_CachedRecordWinsOverSoftCategory(t *testing.T) {
	handler, store, _ := newTestHandler(t)

	err := store.SaveRecord(context.Background(), "student@example.com", models.FitRecord{
		UniversityID:    "stanford-university",
		FitCategory:     models.FitSafety,
		MatchPercentage: 88,
	})
	require.NoError(t, err)

	output, err := handler.Execute(context.Background(), &Input{
		UserEmail:    "student@example.com",
		UniversityID: "stanford-university",
		CatalogItem: &models.UniversityCatalogItem{
			SoftFitCategory: softCategory(models.FitReach),
		},
	})

	require.NoError(t, err)
	assert.True(t, output.Found)
	assert.False(t, output.Degraded)
	assert.Equal(t, models.FitSafety, output.Record.FitCategory)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_MissingFields(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	tests := []struct {
		name  string
		input *Input
	}{
		{"missing email", &Input{UniversityID: "stanford-university"}},
		{"missing university", &Input{UserEmail: "student@example.com"}},
		{"both missing", &Input{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := handler.Execute(context.Background(), tt.input)

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingFields))
			assert.Nil(t, output)
		})
	}
}

func TestHandler_Execute_StoreUnavailable(t *testing.T) {
	handler, _, mr := newTestHandler(t)
	mr.Close()

	output, err := handler.Execute(context.Background(), &Input{
		UserEmail:    "student@example.com",
		UniversityID: "stanford-university",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCacheLookupFailed))
	assert.Nil(t, output)
}

// ==========================
// Benchmarks
// ==========================

func BenchmarkHandler_Execute_Hit(b *testing.B) {
	mr := miniredis.RunT(b)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := fitstore.New(client, 30*time.Minute)
	store.SaveRecord(context.Background(), "student@example.com", models.FitRecord{
		UniversityID: "stanford-university",
		FitCategory:  models.FitReach,
	})

	handler := NewHandler(LoadConfig(), store, &noopLogger{})
	input := &Input{UserEmail: "student@example.com", UniversityID: "stanford-university"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.Execute(context.Background(), input)
	}
}

type noopLogger struct{}

func (l *noopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *noopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *noopLogger) Error(msg string, fields map[string]interface{}) {}
func (l *noopLogger) With(fields map[string]interface{}) Logger       { return l }
