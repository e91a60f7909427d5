// internal/workers/policy/validate-tier/handler.go
package validatetier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/common/metrics"
	"admissions-workers/internal/models"
	"admissions-workers/pkg/tiergate"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "validate-tier"

	tierCacheTTL = 5 * time.Minute
)

var (
	ErrUnknownAction   = errors.New("VALIDATION_FAILED")
	ErrTierCheckFailed = errors.New("TIER_CHECK_FAILED")
)

var validActions = map[string]tiergate.Action{
	string(tiergate.ActionAddCollege):    tiergate.ActionAddCollege,
	string(tiergate.ActionRemoveCollege): tiergate.ActionRemoveCollege,
	string(tiergate.ActionBulkRemove):    tiergate.ActionBulkRemove,
	string(tiergate.ActionComputeFit):    tiergate.ActionComputeFit,
	string(tiergate.ActionBulkRefresh):   tiergate.ActionBulkRefresh,
}

type Handler struct {
	config *Config
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, redisClient *redis.Client, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		redis:  redisClient,
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
		if errors.Is(err, ErrUnknownAction) {
			errorCode = "VALIDATION_FAILED"
		} else if errors.Is(err, ErrTierCheckFailed) {
			errorCode = "TIER_CHECK_FAILED"
			retries = 3
		}
		h.failJob(client, job, errorCode, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

// execute resolves the user's tier state and runs the gate for the requested
// action. A denial is a successful job with allowed=false, never a job
// failure: the process routes on the reason, it does not retry policy.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserEmail == "" {
		return nil, fmt.Errorf("%w: userEmail is required", ErrUnknownAction)
	}

	action, ok := validActions[input.Action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrUnknownAction, input.Action)
	}

	state, err := h.loadTierState(ctx, input.UserEmail)
	if err != nil {
		return nil, err
	}

	decision := tiergate.Decide(state.Tier, input.ListSize, state.CreditsRemaining, action)
	metrics.TierDecisions.WithLabelValues(string(action), decisionOutcome(decision)).Inc()

	if !decision.Allowed {
		h.logger.Info("action denied", map[string]interface{}{
			"userEmail": input.UserEmail,
			"action":    input.Action,
			"reason":    string(decision.Reason),
		})
	}

	return &Output{
		Allowed:          decision.Allowed,
		Reason:           string(decision.Reason),
		Detail:           decision.Detail,
		Tier:             string(state.Tier),
		CreditsRemaining: state.CreditsRemaining,
		ListMax:          state.ListMax,
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
		if errors.Is(err, sql.ErrNoRows) {
			// Unknown users act as free tier with no credits.
			return models.DefaultTierState(), nil
		}
		return models.TierState{}, fmt.Errorf("%w: %v", ErrTierCheckFailed, err)
	}
	state.ListMax = models.ListMaxFor(state.Tier)

	data, _ := json.Marshal(state)
	h.redis.Set(ctx, cacheKey, data, tierCacheTTL)

	return state, nil
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

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, _ int32) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
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

func decisionOutcome(d tiergate.Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return string(d.Reason)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
