// internal/workers/fit/compute-fit/handler.go
package computefit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"

	httpclient "admissions-workers/internal/common/http"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/fitstore"
	"admissions-workers/internal/models"
	"admissions-workers/pkg/fitparse"
	"admissions-workers/pkg/tiergate"
)

const (
	TaskType = "compute-fit"

	tierCacheTTL = 5 * time.Minute
)

var (
	ErrTierCheckFailed      = errors.New("TIER_CHECK_FAILED")
	ErrAgentCallFailed      = errors.New("NETWORK_FAILURE")
	ErrAgentTimeout         = errors.New("AGENT_TIMEOUT")
	ErrFitPersistFailed     = errors.New("DATABASE_INSERT_FAILED")
	ErrProgressUpdateFailed = errors.New("FIT_COMPUTE_FAILED")
)

// Logger interface for dependency injection
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config   *Config
	db       *sql.DB
	redis    *redis.Client
	fits     *fitstore.Store
	progress *fitstore.ProgressStore
	client   *httpclient.Client
	logger   Logger
}

func NewHandler(config *Config, db *sql.DB, redisClient *redis.Client, fits *fitstore.Store, progress *fitstore.ProgressStore, log Logger) *Handler {
	agentTimeout := config.AgentTimeout
	if agentTimeout == 0 {
		agentTimeout = config.Timeout
	}
	return &Handler{
		config:   config,
		db:       db,
		redis:    redisClient,
		fits:     fits,
		progress: progress,
		client:   httpclient.NewClient(agentTimeout),
		logger:   log.With(map[string]interface{}{"taskType": TaskType}),
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
		switch {
		case errors.Is(err, ErrAgentTimeout):
			retries = 1
		case errors.Is(err, ErrAgentCallFailed),
			errors.Is(err, ErrTierCheckFailed),
			errors.Is(err, ErrFitPersistFailed),
			errors.Is(err, ErrProgressUpdateFailed):
			retries = 3
		}
		h.failJob(client, job, err, retries)
		return
	}

	h.completeJob(client, job, output)
}

// execute drives one fit computation through its stages. A credits shortfall
// is a normal outcome, not a failure: the operation terminates at
// CREDITS_REQUIRED, the job completes, and the college stays in the list.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserEmail == "" || input.UniversityID == "" {
		return nil, fmt.Errorf("%w: userEmail and universityId are required", ErrProgressUpdateFailed)
	}

	op, err := h.ensureOperation(ctx, input)
	if err != nil {
		return nil, err
	}

	// Stage FIT: tier gate plus credit debit.
	state, err := h.loadTierState(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}

	decision := tiergate.Decide(state.Tier, 0, state.CreditsRemaining, tiergate.ActionComputeFit)
	metrics.TierDecisions.WithLabelValues(string(tiergate.ActionComputeFit), decisionOutcome(decision)).Inc()
	if !decision.Allowed {
		return h.creditsRequired(ctx, op, decision.Detail)
	}

	debited, err := h.debitCredit(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}
	if !debited {
		// The balance moved between the gate check and the debit. Same
		// outcome as the gate denial.
		return h.creditsRequired(ctx, op, "credit balance exhausted before debit")
	}

	// Stage REFRESHING: ask the agent and normalize whatever comes back.
	// From here until the fit row is durable, every failure returns the
	// debited credit: the job fails with retries, and a redelivered attempt
	// debits again on its own.
	op, err = h.advance(ctx, op, models.StageRefreshing)
	if err != nil {
		h.refundCredit(ctx, input.UserEmail)
		return nil, err
	}

	responseText, err := h.callFitAgent(ctx, input)
	if err != nil {
		h.refundCredit(ctx, input.UserEmail)
		h.abortOperation(ctx, op.ID, errorCodeFor(err), err.Error())
		return nil, err
	}

	record := fitparse.ParseText(input.UniversityID, responseText)
	record.ComputedAt = time.Now().UTC()
	metrics.FitResponsesParsed.WithLabelValues(string(record.Source)).Inc()

	// Stage SAVING: durable row first, then the cache write-through.
	op, err = h.advance(ctx, op, models.StageSaving)
	if err != nil {
		h.refundCredit(ctx, input.UserEmail)
		return nil, err
	}

	if err := h.persistFit(ctx, input.UserEmail, record); err != nil {
		h.refundCredit(ctx, input.UserEmail)
		h.abortOperation(ctx, op.ID, errorCodeFor(err), err.Error())
		return nil, err
	}

	if err := h.fits.SaveRecord(ctx, input.UserEmail, record); err != nil {
		// The row is durable; the cache rebuilds on the next refresh.
		h.logger.Warn("fit cache write-through failed", map[string]interface{}{
			"userEmail":    input.UserEmail,
			"universityId": input.UniversityID,
			"error":        err.Error(),
		})
	}

	op, err = h.advance(ctx, op, models.StageComplete)
	if err != nil {
		return nil, err
	}

	h.logger.Info("fit computed", map[string]interface{}{
		"operationId":     op.ID,
		"universityId":    record.UniversityID,
		"fitCategory":     record.FitCategory,
		"matchPercentage": record.MatchPercentage,
	})

	return &Output{OperationID: op.ID, Status: StatusComplete, Record: &record}, nil
}

// ensureOperation resolves the progress record this run reports into. A Zeebe
// retry after a failed attempt references a terminal operation; each attempt
// gets its own record so the history stays observable.
func (h *Handler) ensureOperation(ctx context.Context, input *Input) (*models.ComputeOperation, error) {
	if input.OperationID != "" {
		op, err := h.progress.Get(ctx, input.OperationID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProgressUpdateFailed, err)
		}
		if op != nil && !op.Stage.IsTerminal() {
			return op, nil
		}
	}

	op, err := h.progress.StartOperation(ctx, input.UserEmail, input.UniversityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgressUpdateFailed, err)
	}
	return op, nil
}

func (h *Handler) creditsRequired(ctx context.Context, op *models.ComputeOperation, detail string) (*Output, error) {
	if _, err := h.progress.CreditsRequired(ctx, op.ID, detail); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgressUpdateFailed, err)
	}

	h.logger.Info("fit computation needs credits", map[string]interface{}{
		"operationId": op.ID,
		"detail":      detail,
	})

	return &Output{OperationID: op.ID, Status: StatusCreditsRequired}, nil
}

func (h *Handler) advance(ctx context.Context, op *models.ComputeOperation, next models.ComputeStage) (*models.ComputeOperation, error) {
	updated, err := h.progress.Advance(ctx, op.ID, next)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgressUpdateFailed, err)
	}
	metrics.ComputeStageTransitions.WithLabelValues(string(op.Stage), string(next)).Inc()
	return updated, nil
}

// abortOperation records the failure on the progress side. The job failure is
// reported separately, so a progress write error here is only logged.
func (h *Handler) abortOperation(ctx context.Context, operationID, errorCode, detail string) {
	if _, err := h.progress.Fail(ctx, operationID, errorCode, detail); err != nil {
		h.logger.Error("failed to record operation failure", map[string]interface{}{
			"operationId": operationID,
			"error":       err.Error(),
		})
	}
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
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultTierState(), nil
		}
		return models.TierState{}, fmt.Errorf("%w: %v", ErrTierCheckFailed, err)
	}
	state.ListMax = models.ListMaxFor(state.Tier)

	data, _ := json.Marshal(state)
	h.redis.Set(ctx, cacheKey, data, tierCacheTTL)

	return state, nil
}

// debitCredit spends one credit. The balance guard makes the debit atomic:
// zero rows means another computation got there first.
func (h *Handler) debitCredit(ctx context.Context, userEmail string) (bool, error) {
	query := `UPDATE user_tiers SET credits_remaining = credits_remaining - 1
		WHERE user_email = $1 AND credits_remaining >= 1`
	res, err := h.db.ExecContext(ctx, query, userEmail)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTierCheckFailed, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTierCheckFailed, err)
	}
	if affected == 0 {
		return false, nil
	}

	h.redis.Del(ctx, "tier:"+userEmail)
	return true, nil
}

// refundCredit returns a debited credit when the computation aborts before
// the fit row is durable. Best effort: the job failure is reported either
// way, so a refund error is only logged.
func (h *Handler) refundCredit(ctx context.Context, userEmail string) {
	query := `UPDATE user_tiers SET credits_remaining = credits_remaining + 1
		WHERE user_email = $1`
	if _, err := h.db.ExecContext(ctx, query, userEmail); err != nil {
		h.logger.Error("credit refund failed", map[string]interface{}{
			"userEmail": userEmail,
			"error":     err.Error(),
		})
		return
	}
	h.redis.Del(ctx, "tier:"+userEmail)
}

func (h *Handler) callFitAgent(ctx context.Context, input *Input) (string, error) {
	payload := map[string]interface{}{
		"user_email":      input.UserEmail,
		"university_id":   input.UniversityID,
		"university_name": input.UniversityName,
	}
	if input.IntendedMajor != "" {
		payload["intended_major"] = input.IntendedMajor
	}
	body, _ := json.Marshal(payload)

	var lastErr error
	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ErrAgentTimeout
			case <-time.After(backoff):
			}
		}

		text, err := h.doAgentRequest(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ErrAgentTimeout
		}

		h.logger.Warn("fit agent call failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
	}

	return "", fmt.Errorf("%w: %v", ErrAgentCallFailed, lastErr)
}

func (h *Handler) doAgentRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.config.AgentBaseURL+"/api/agent/fit", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.config.AgentAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.config.AgentAPIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (h *Handler) persistFit(ctx context.Context, userEmail string, record models.FitRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", ErrFitPersistFailed, err)
	}

	query := `
		INSERT INTO fit_results (user_email, university_id, fit_category, match_percentage, payload, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_email, university_id)
		DO UPDATE SET fit_category = $3, match_percentage = $4, payload = $5, computed_at = $6`

	_, err = h.db.ExecContext(ctx, query,
		userEmail, record.UniversityID, string(record.FitCategory),
		record.MatchPercentage, payload, record.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFitPersistFailed, err)
	}
	return nil
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
	errorCode := errorCodeFor(err)

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

func errorCodeFor(err error) string {
	switch {
	case errors.Is(err, ErrAgentTimeout):
		return "AGENT_TIMEOUT"
	case errors.Is(err, ErrAgentCallFailed):
		return "NETWORK_FAILURE"
	case errors.Is(err, ErrTierCheckFailed):
		return "TIER_CHECK_FAILED"
	case errors.Is(err, ErrFitPersistFailed):
		return "DATABASE_INSERT_FAILED"
	case errors.Is(err, ErrProgressUpdateFailed):
		return "FIT_COMPUTE_FAILED"
	}
	return "FIT_COMPUTE_FAILED"
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
