// internal/workers/fit/lookup-fit/handler.go
package lookupfit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/fitstore"
	"admissions-workers/internal/models"
)

const TaskType = "lookup-fit"

var (
	ErrMissingFields     = errors.New("VALIDATION_FAILED")
	ErrCacheLookupFailed = errors.New("FIT_LOOKUP_FAILED")
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
	fits   *fitstore.Store
	logger Logger
}

func NewHandler(config *Config, fits *fitstore.Store, log Logger) *Handler {
	return &Handler{
		config: config,
		fits:   fits,
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
		retries := int32(0)
		if errors.Is(err, ErrCacheLookupFailed) {
			retries = 3
		}
		h.failJob(client, job, err, retries)
		return
	}

	h.completeJob(client, job, output)
}

// execute resolves a single fit. Lookup is strictly read-only: a miss never
// calls an upstream endpoint and never triggers recomputation. The catalog's
// soft category, when present, stands in for a missing record as a degraded
// answer.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserEmail == "" || input.UniversityID == "" {
		return nil, fmt.Errorf("%w: userEmail and universityId are required", ErrMissingFields)
	}

	record, err := h.fits.GetRecord(ctx, input.UserEmail, input.UniversityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheLookupFailed, err)
	}

	if record != nil {
		metrics.FitCacheLookups.WithLabelValues("hit").Inc()
		return &Output{Found: true, Record: record}, nil
	}

	if input.CatalogItem != nil && input.CatalogItem.SoftFitCategory != nil {
		metrics.FitCacheLookups.WithLabelValues("degraded").Inc()
		h.logger.Info("fit cache miss, using soft category", map[string]interface{}{
			"userEmail":    input.UserEmail,
			"universityId": input.UniversityID,
			"softCategory": string(*input.CatalogItem.SoftFitCategory),
		})

		degraded := models.FitRecord{
			UniversityID:    input.UniversityID,
			FitCategory:     *input.CatalogItem.SoftFitCategory,
			MatchPercentage: 50,
			Factors:         []models.FitFactor{},
			Recommendations: []string{},
			Source:          models.SourcePrecomputed,
		}
		return &Output{Found: true, Degraded: true, Record: &degraded}, nil
	}

	metrics.FitCacheLookups.WithLabelValues("miss").Inc()
	return &Output{Found: false}, nil
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
	switch {
	case errors.Is(err, ErrMissingFields):
		errorCode = "VALIDATION_FAILED"
	case errors.Is(err, ErrCacheLookupFailed):
		errorCode = "FIT_LOOKUP_FAILED"
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
