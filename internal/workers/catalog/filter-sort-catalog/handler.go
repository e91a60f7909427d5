// internal/workers/catalog/filter-sort-catalog/handler.go
package filtersortcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/fitstore"
	"admissions-workers/internal/models"
)

const TaskType = "filter-sort-catalog"

var (
	ErrInvalidSortKey   = errors.New("INVALID_FILTER_FORMAT")
	ErrFitIndexLoad     = errors.New("FIT_LOOKUP_FAILED")
	ErrMissingUserEmail = errors.New("VALIDATION_FAILED")
)

type Handler struct {
	config *Config
	fits   *fitstore.Store
	logger logger.Logger
}

func NewHandler(config *Config, fits *fitstore.Store, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		fits:   fits,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		errorCode := "UNKNOWN_ERROR"
		retries := int32(0)
		switch {
		case errors.Is(err, ErrInvalidSortKey):
			errorCode = "INVALID_FILTER_FORMAT"
		case errors.Is(err, ErrMissingUserEmail):
			errorCode = "VALIDATION_FAILED"
		case errors.Is(err, ErrFitIndexLoad):
			errorCode = "FIT_LOOKUP_FAILED"
			retries = 3
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

// execute loads the user's fit index once, then runs the pure
// filter/sort/paginate pipeline over the supplied catalog slice.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserEmail == "" {
		return nil, fmt.Errorf("%w: userEmail is required", ErrMissingUserEmail)
	}
	if input.SortKey != "" && !validSortKeys[input.SortKey] {
		return nil, fmt.Errorf("%w: invalid sortKey %q", ErrInvalidSortKey, input.SortKey)
	}

	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = h.config.PageSize
	}
	if pageSize > 100 {
		pageSize = 100
	}

	records, err := h.fits.ListRecords(ctx, input.UserEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFitIndexLoad, err)
	}
	fitIndex := make(map[string]models.FitRecord, len(records))
	for _, r := range records {
		fitIndex[r.UniversityID] = r
	}

	filtered := applyFilters(input.Items, input.Filters, fitIndex)
	sortItems(filtered, input.SortKey)

	token := stateToken(input.Filters, input.SortKey)
	page := input.Page
	pageReset := false
	if page < 0 {
		page = 0
	}
	// A filter or sort change invalidates the caller's page position.
	if input.StateToken != "" && input.StateToken != token {
		page = 0
		pageReset = true
	}

	totalPages := (len(filtered) + pageSize - 1) / pageSize
	items := paginate(filtered, page, pageSize)

	h.logger.Info("catalog filtered", map[string]interface{}{
		"userEmail": input.UserEmail,
		"inCount":   len(input.Items),
		"outCount":  len(filtered),
		"page":      page,
		"pageReset": pageReset,
	})

	return &Output{
		Items:      items,
		Total:      len(filtered),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		StateToken: token,
		PageReset:  pageReset,
	}, nil
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

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, retries int32) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
		"retries":      retries,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
