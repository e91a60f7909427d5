// internal/workers/list/bulk-remove-colleges/handler.go
package bulkremovecolleges

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"

	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/common/validation"
	"admissions-workers/internal/models"
	"admissions-workers/pkg/tiergate"
)

const (
	TaskType = "bulk-remove-colleges"

	tierCacheTTL = 5 * time.Minute

	// Per-item outcome codes share the single error taxonomy with the
	// single-item paths.
	itemCodeNotInList = "NOT_IN_LIST"
)

type Handler struct {
	config     *Config
	db         *sql.DB
	redis      *redis.Client
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, db *sql.DB, redisClient *redis.Client, log logger.Logger) *Handler {
	workerLog := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		db:         db,
		redis:      redisClient,
		logger:     workerLog,
		errHandler: errors.NewErrorHandler(workerLog),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, extractErrorCode(err)).Inc()
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, extractErrorCode(err)).Inc()
		h.errHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("parse job variables: %v", err))
	}

	result := validation.ValidateInput(variables, GetInputSchema())
	if !result.Valid {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("validation errors: %v", result.GetErrorMessages()))
	}

	input := &Input{
		UserEmail: variables["userEmail"].(string),
	}
	if rawIDs, ok := variables["universityIds"].([]interface{}); ok {
		for _, raw := range rawIDs {
			if id, ok := raw.(string); ok && id != "" {
				input.UniversityIDs = append(input.UniversityIDs, id)
			}
		}
	}

	return input, nil
}

// execute removes a batch of colleges with per-item outcomes. The batch is
// not atomic: each item succeeds or fails on its own, and the job succeeds
// as long as at least one removal went through. The whole batch failing is
// the one condition reported as an error.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.UniversityIDs) == 0 {
		return nil, errors.NewValidationFailedError("universityIds must contain at least one id")
	}

	state, err := h.loadTierState(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}

	// One gate decision covers the batch: removal permission is a property
	// of the tier, not of any individual college.
	decision := tiergate.Decide(state.Tier, 0, state.CreditsRemaining, tiergate.ActionBulkRemove)
	metrics.TierDecisions.WithLabelValues(string(tiergate.ActionBulkRemove), decisionOutcome(decision)).Inc()
	if !decision.Allowed {
		return nil, errors.NewTierViolationError(decision.Detail)
	}

	seen := make(map[string]bool)
	results := make([]ItemResult, 0, len(input.UniversityIDs))
	removed := 0

	for _, universityID := range input.UniversityIDs {
		if seen[universityID] {
			continue
		}
		seen[universityID] = true

		ok, errCode := h.removeOne(ctx, input.UserEmail, universityID)
		if ok {
			removed++
		}
		results = append(results, ItemResult{
			UniversityID: universityID,
			OK:           ok,
			ErrorCode:    errCode,
		})
	}

	failed := len(results) - removed
	if removed == 0 {
		return nil, errors.NewPartialBatchFailureError(len(results), failed)
	}

	listSize, err := h.countEntries(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}

	h.logger.Info("bulk removal finished", map[string]interface{}{
		"userEmail": input.UserEmail,
		"requested": len(results),
		"removed":   removed,
		"failed":    failed,
		"listSize":  listSize,
	})

	return &Output{
		Requested: len(results),
		Removed:   removed,
		Failed:    failed,
		ListSize:  listSize,
		Results:   results,
	}, nil
}

func (h *Handler) removeOne(ctx context.Context, userEmail, universityID string) (bool, string) {
	query := `DELETE FROM user_college_lists WHERE user_email = $1 AND university_id = $2`
	res, err := h.db.ExecContext(ctx, query, userEmail, universityID)
	if err != nil {
		h.logger.Warn("item removal failed", map[string]interface{}{
			"universityId": universityID,
			"error":        err.Error(),
		})
		return false, string(errors.ErrCodeQueryExecutionFailed)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, string(errors.ErrCodeQueryExecutionFailed)
	}
	if affected == 0 {
		return false, itemCodeNotInList
	}
	return true, ""
}

func (h *Handler) loadTierState(ctx context.Context, userEmail string) (models.TierState, error) {
	cacheKey := "tier:" + userEmail
	if val, err := h.redis.Get(ctx, cacheKey).Result(); err == nil {
		var state models.TierState
		if err := json.Unmarshal([]byte(val), &state); err == nil {
			return state, nil
		}
	}

	var state models.TierState
	query := `SELECT tier, credits_remaining FROM user_tiers WHERE user_email = $1`
	err := h.db.QueryRowContext(ctx, query, userEmail).Scan(&state.Tier, &state.CreditsRemaining)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.DefaultTierState(), nil
		}
		return models.TierState{}, errors.NewTierCheckFailedError(err)
	}
	state.ListMax = models.ListMaxFor(state.Tier)

	data, _ := json.Marshal(state)
	h.redis.Set(ctx, cacheKey, data, tierCacheTTL)

	return state, nil
}

func (h *Handler) countEntries(ctx context.Context, userEmail string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM user_college_lists WHERE user_email = $1`
	if err := h.db.QueryRowContext(ctx, query, userEmail).Scan(&count); err != nil {
		return 0, errors.NewQueryExecutionFailedError("count_college_list", err)
	}
	return count, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	_, err = cmd.Send(ctx)
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func extractErrorCode(err error) string {
	if stdErr, ok := err.(*errors.StandardError); ok {
		return string(stdErr.Code)
	}
	return "UNKNOWN_ERROR"
}

func decisionOutcome(d tiergate.Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return string(d.Reason)
}

// Execute method for direct usage
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
