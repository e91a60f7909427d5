// internal/workers/fit/parse-fit-response/handler.go
package parsefitresponse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"admissions-workers/internal/common/metrics"
	"admissions-workers/pkg/fitparse"
)

const (
	TaskType = "parse-fit-response"
)

var (
	ErrMissingUniversityID = errors.New("VALIDATION_FAILED")
)

// Logger interface for dependency injection
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config *Config
	logger Logger
}

func NewHandler(config *Config, log Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, fmt.Errorf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err, 0)
		return
	}

	h.completeJob(client, job, output)
}

// execute never rejects agent text. The parser is total: malformed, empty or
// truncated responses all resolve to a valid record, worst case TARGET at 50%.
func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input.UniversityID == "" {
		return nil, fmt.Errorf("%w: universityId is required", ErrMissingUniversityID)
	}

	record := fitparse.Normalize(input.UniversityID, input.AgentResponse)
	metrics.FitResponsesParsed.WithLabelValues(string(record.Source)).Inc()

	h.logger.Info("agent response parsed", map[string]interface{}{
		"universityId":    record.UniversityID,
		"fitCategory":     record.FitCategory,
		"matchPercentage": record.MatchPercentage,
		"source":          record.Source,
	})

	return &Output{Record: record, Source: record.Source}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error, retries int32) {
	errorCode := "PARSE_ERROR"
	if errors.Is(err, ErrMissingUniversityID) {
		errorCode = "VALIDATION_FAILED"
	}

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": err.Error(),
		"retries":      retries,
	})

	_, sendErr := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(err.Error()).
		Send(context.Background())
	if sendErr != nil {
		h.logger.Error("failed to send fail job command", map[string]interface{}{
			"error": sendErr.Error(),
		})
	}
}

// Execute method for direct usage
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
