// internal/workers/list/toggle-college/handler.go
package togglecollege

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
	"admissions-workers/internal/fitstore"
	"admissions-workers/internal/models"
	"admissions-workers/pkg/tiergate"
)

const (
	TaskType = "toggle-college"

	tierCacheTTL = 5 * time.Minute
)

type Handler struct {
	config     *Config
	db         *sql.DB
	redis      *redis.Client
	progress   *fitstore.ProgressStore
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, db *sql.DB, redisClient *redis.Client, progress *fitstore.ProgressStore, log logger.Logger) *Handler {
	workerLog := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		db:         db,
		redis:      redisClient,
		progress:   progress,
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
		UserEmail:    variables["userEmail"].(string),
		UniversityID: variables["universityId"].(string),
		Action:       variables["action"].(string),
	}

	if !validation.ValidateUniversityID(input.UniversityID) {
		return nil, errors.NewValidationFailedError(fmt.Sprintf("malformed universityId %q", input.UniversityID))
	}

	if name, ok := variables["name"].(string); ok {
		input.Name = name
	}
	if major, ok := variables["intendedMajor"].(string); ok {
		input.IntendedMajor = major
	}

	return input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	switch input.Action {
	case ActionAdd:
		return h.addCollege(ctx, input)
	case ActionRemove:
		return h.removeCollege(ctx, input)
	}
	return nil, errors.NewValidationFailedError(fmt.Sprintf("unknown action %q", input.Action))
}

// addCollege gates on the current list size, inserts durably, then opens the
// progress operation the downstream fit computation reports into. The insert
// is never rolled back by anything that happens after it, including a failed
// or credits-blocked fit.
func (h *Handler) addCollege(ctx context.Context, input *Input) (*Output, error) {
	state, err := h.loadTierState(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}

	listSize, err := h.countEntries(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}

	decision := tiergate.Decide(state.Tier, listSize, state.CreditsRemaining, tiergate.ActionAddCollege)
	metrics.TierDecisions.WithLabelValues(string(tiergate.ActionAddCollege), decisionOutcome(decision)).Inc()
	if !decision.Allowed {
		return nil, errors.NewTierViolationError(decision.Detail)
	}

	// Free-tier entries are permanent: the list slot stays spent even though
	// removal is denied for the tier.
	permanent := !state.Tier.IsPaid()

	inserted, err := h.insertEntry(ctx, input, permanent)
	if err != nil {
		return nil, err
	}

	if !inserted {
		h.logger.Info("college already in list", map[string]interface{}{
			"userEmail":    input.UserEmail,
			"universityId": input.UniversityID,
		})
		return &Output{
			Action:        ActionAdd,
			UniversityID:  input.UniversityID,
			ListSize:      listSize,
			AlreadyInList: true,
			Permanent:     permanent,
		}, nil
	}

	op, err := h.progress.StartOperation(ctx, input.UserEmail, input.UniversityID)
	if err != nil {
		// The entry is already durable and stays; only the operation record
		// is missing, so the retry re-runs against an existing entry.
		return nil, errors.NewFitComputeFailedError(input.UniversityID, err)
	}

	h.logger.Info("college added", map[string]interface{}{
		"userEmail":    input.UserEmail,
		"universityId": input.UniversityID,
		"listSize":     listSize + 1,
		"operationId":  op.ID,
		"permanent":    permanent,
	})

	return &Output{
		Action:       ActionAdd,
		UniversityID: input.UniversityID,
		ListSize:     listSize + 1,
		OperationID:  op.ID,
		Permanent:    permanent,
	}, nil
}

// removeCollege rejects free-tier removal before touching the list: earned
// slots are permanent on the free tier, and the denial needs no lookup
// beyond the tier itself.
func (h *Handler) removeCollege(ctx context.Context, input *Input) (*Output, error) {
	state, err := h.loadTierState(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}

	decision := tiergate.Decide(state.Tier, 0, state.CreditsRemaining, tiergate.ActionRemoveCollege)
	metrics.TierDecisions.WithLabelValues(string(tiergate.ActionRemoveCollege), decisionOutcome(decision)).Inc()
	if !decision.Allowed {
		return nil, errors.NewTierViolationError(decision.Detail)
	}

	removed, err := h.deleteEntry(ctx, input.UserEmail, input.UniversityID)
	if err != nil {
		return nil, err
	}

	listSize, err := h.countEntries(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}

	if !removed {
		h.logger.Info("college was not in list", map[string]interface{}{
			"userEmail":    input.UserEmail,
			"universityId": input.UniversityID,
		})
	}

	return &Output{
		Action:       ActionRemove,
		UniversityID: input.UniversityID,
		ListSize:     listSize,
		Removed:      removed,
	}, nil
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

func (h *Handler) insertEntry(ctx context.Context, input *Input, permanent bool) (bool, error) {
	query := `
		INSERT INTO user_college_lists (user_email, university_id, name, intended_major, permanent, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_email, university_id) DO NOTHING`

	res, err := h.db.ExecContext(ctx, query,
		input.UserEmail, input.UniversityID, input.Name, input.IntendedMajor,
		permanent, time.Now().UTC(),
	)
	if err != nil {
		return false, errors.NewDatabaseInsertFailedError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseInsertFailedError(err)
	}
	return affected > 0, nil
}

func (h *Handler) deleteEntry(ctx context.Context, userEmail, universityID string) (bool, error) {
	query := `DELETE FROM user_college_lists WHERE user_email = $1 AND university_id = $2`
	res, err := h.db.ExecContext(ctx, query, userEmail, universityID)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("delete_college", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("delete_college", err)
	}
	return affected > 0, nil
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
