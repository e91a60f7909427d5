// internal/workers/fit/parse-fit-response/handler_test.go
package parsefitresponse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

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
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	newLogger := &TestLogger{
		t:      l.t,
		fields: make(map[string]interface{}),
	}
	for k, v := range l.fields {
		newLogger.fields[k] = v
	}
	for k, v := range fields {
		newLogger.fields[k] = v
	}
	return newLogger
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	allFields := make(map[string]interface{})
	for k, v := range l.fields {
		allFields[k] = v
	}
	for k, v := range fields {
		allFields[k] = v
	}
	return allFields
}

// BenchmarkLogger is a minimal logger for benchmarks
type BenchmarkLogger struct{}

func (b *BenchmarkLogger) Info(msg string, fields map[string]interface{})  {}
func (b *BenchmarkLogger) Warn(msg string, fields map[string]interface{})  {}
func (b *BenchmarkLogger) Error(msg string, fields map[string]interface{}) {}
func (b *BenchmarkLogger) With(fields map[string]interface{}) Logger       { return b }

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_StructuredResponse(t *testing.T) {
	handler := NewHandler(LoadConfig(), NewTestLogger(t))

	input := &Input{
		UserEmail:    "student@example.com",
		UniversityID: "stanford-university",
		AgentResponse: `Here is the analysis:
` + "```json" + `
{"success": true, "fit_category": "reach", "match_percentage": 72,
 "recommendations": ["Take more APs"]}
` + "```",
	}

	output, err := handler.Execute(context.Background(), input)

	assert.NoError(t, err)
	assert.NotNil(t, output)
	assert.Equal(t, models.FitReach, output.Record.FitCategory)
	assert.Equal(t, 72, output.Record.MatchPercentage)
	assert.Equal(t, []string{"Take more APs"}, output.Record.Recommendations)
	assert.Equal(t, models.SourceParsedStructured, output.Source)
	assert.Equal(t, "stanford-university", output.Record.UniversityID)
}

func TestHandler_Execute_ProseResponse(t *testing.T) {
	handler := NewHandler(LoadConfig(), NewTestLogger(t))

	input := &Input{
		UniversityID: "ohio-state",
		AgentResponse: "Ohio State is a safety school for you, roughly an " +
			"85% match given your GPA and test scores.",
	}

	output, err := handler.Execute(context.Background(), input)

	assert.NoError(t, err)
	assert.Equal(t, models.FitSafety, output.Record.FitCategory)
	assert.Equal(t, 85, output.Record.MatchPercentage)
	assert.Equal(t, models.SourceParsedHeuristic, output.Source)
}

func TestHandler_Execute_UnrecognizableResponseDefaults(t *testing.T) {
	handler := NewHandler(LoadConfig(), NewTestLogger(t))

	tests := []struct {
		name     string
		response interface{}
	}{
		{"empty string", ""},
		{"nil response", nil},
		{"small talk", "I could not analyze this school, sorry!"},
		{"truncated json", `{"success": true, "fit_cat`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := handler.Execute(context.Background(), &Input{
				UniversityID:  "rice-university",
				AgentResponse: tt.response,
			})

			assert.NoError(t, err)
			assert.Equal(t, models.FitTarget, output.Record.FitCategory)
			assert.Equal(t, 50, output.Record.MatchPercentage)
			assert.NotNil(t, output.Record.Factors)
			assert.NotNil(t, output.Record.Recommendations)
		})
	}
}

func TestHandler_Execute_ObjectResponse(t *testing.T) {
	handler := NewHandler(LoadConfig(), NewTestLogger(t))

	// Agent responses that arrive pre-decoded (BPMN variable, not a string)
	input := &Input{
		UniversityID: "mit",
		AgentResponse: map[string]interface{}{
			"success":          true,
			"fit_category":     "super reach",
			"match_percentage": float64(38),
		},
	}

	output, err := handler.Execute(context.Background(), input)

	assert.NoError(t, err)
	assert.Equal(t, models.FitSuperReach, output.Record.FitCategory)
	assert.Equal(t, 38, output.Record.MatchPercentage)
	assert.Equal(t, models.SourceParsedStructured, output.Source)
}

func TestHandler_Execute_RawAlwaysRetained(t *testing.T) {
	handler := NewHandler(LoadConfig(), NewTestLogger(t))

	raw := "Target school. MATCH_PERCENTAGE: 64"
	output, err := handler.Execute(context.Background(), &Input{
		UniversityID:  "purdue",
		AgentResponse: raw,
	})

	assert.NoError(t, err)
	assert.Equal(t, raw, output.Record.Raw)
}

func TestHandler_Execute_MissingUniversityID(t *testing.T) {
	handler := NewHandler(LoadConfig(), NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{
		AgentResponse: "safety school, 90% match",
	})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingUniversityID))
	assert.Nil(t, output)
}

func TestHandler_Execute_Deterministic(t *testing.T) {
	handler := NewHandler(LoadConfig(), NewTestLogger(t))

	input := &Input{
		UniversityID:  "duke",
		AgentResponse: "Duke is a reach, about a 61% match. GPA Match: 30/40",
	}

	first, err := handler.Execute(context.Background(), input)
	assert.NoError(t, err)
	second, err := handler.Execute(context.Background(), input)
	assert.NoError(t, err)

	assert.Equal(t, first.Record, second.Record)
}

// ==========================
// Benchmark Tests
// ==========================

func BenchmarkHandler_Execute(b *testing.B) {
	handler := NewHandler(LoadConfig(), &BenchmarkLogger{})

	input := &Input{
		UniversityID: "stanford-university",
		AgentResponse: `{"success": true, "fit_category": "reach",
			"match_percentage": 72}`,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.Execute(context.Background(), input)
	}
}
