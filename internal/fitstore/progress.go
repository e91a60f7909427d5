// internal/fitstore/progress.go
package fitstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"admissions-workers/internal/models"
)

// ProgressStore tracks compute operations through the stage machine. Every
// toggle starts a fresh operation with its own ID; a pointer key records the
// most recent operation per (user, university) so overlapping toggles stay
// individually observable.
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgress(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func operationKey(operationID string) string {
	return fmt.Sprintf("fit:op:%s", operationID)
}

func activeKey(userEmail, universityID string) string {
	return fmt.Sprintf("fit:op:active:%s:%s", userEmail, universityID)
}

// StartOperation creates a compute operation in the FIT stage and marks it
// as the latest for its (user, university) pair.
func (p *ProgressStore) StartOperation(ctx context.Context, userEmail, universityID string) (*models.ComputeOperation, error) {
	now := time.Now().UTC()
	op := &models.ComputeOperation{
		ID:           uuid.New().String(),
		UserEmail:    userEmail,
		UniversityID: universityID,
		Stage:        models.StageFit,
		Percent:      models.StageFit.Percent(),
		StartedAt:    now,
		UpdatedAt:    now,
	}

	if err := p.save(ctx, op); err != nil {
		return nil, err
	}
	if err := p.client.Set(ctx, activeKey(userEmail, universityID), op.ID, p.ttl).Err(); err != nil {
		return nil, err
	}
	return op, nil
}

// Advance moves the operation to the next stage after validating the
// transition. Skipping a stage is rejected.
func (p *ProgressStore) Advance(ctx context.Context, operationID string, next models.ComputeStage) (*models.ComputeOperation, error) {
	op, err := p.Get(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, fmt.Errorf("compute operation %s not found", operationID)
	}
	if !op.Stage.CanTransition(next) {
		return nil, fmt.Errorf("invalid stage transition %s -> %s for operation %s", op.Stage, next, operationID)
	}

	op.Stage = next
	op.Percent = next.Percent()
	op.UpdatedAt = time.Now().UTC()

	if err := p.save(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// Fail aborts the operation into ERROR with the code attached. The stored
// percent is left at the stage the operation reached.
func (p *ProgressStore) Fail(ctx context.Context, operationID, errorCode, detail string) (*models.ComputeOperation, error) {
	return p.abort(ctx, operationID, models.StageError, errorCode, detail)
}

// CreditsRequired aborts into the distinct credits terminal. Not an error:
// the college stays in the list and the caller routes the user to a credits
// purchase.
func (p *ProgressStore) CreditsRequired(ctx context.Context, operationID, detail string) (*models.ComputeOperation, error) {
	return p.abort(ctx, operationID, models.StageCreditsRequired, "INSUFFICIENT_CREDITS", detail)
}

func (p *ProgressStore) abort(ctx context.Context, operationID string, terminal models.ComputeStage, errorCode, detail string) (*models.ComputeOperation, error) {
	op, err := p.Get(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, fmt.Errorf("compute operation %s not found", operationID)
	}
	if !op.Stage.CanTransition(terminal) {
		return nil, fmt.Errorf("invalid stage transition %s -> %s for operation %s", op.Stage, terminal, operationID)
	}

	op.Stage = terminal
	op.ErrorCode = errorCode
	op.ErrorDetail = detail
	op.UpdatedAt = time.Now().UTC()

	if err := p.save(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// Get returns the operation by ID, or nil when expired or unknown.
func (p *ProgressStore) Get(ctx context.Context, operationID string) (*models.ComputeOperation, error) {
	raw, err := p.client.Get(ctx, operationKey(operationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var op models.ComputeOperation
	if err := json.Unmarshal([]byte(raw), &op); err != nil {
		return nil, fmt.Errorf("corrupted compute operation %s: %w", operationID, err)
	}
	return &op, nil
}

// Latest returns the most recently started operation for a (user, university)
// pair, or nil when none is tracked.
func (p *ProgressStore) Latest(ctx context.Context, userEmail, universityID string) (*models.ComputeOperation, error) {
	id, err := p.client.Get(ctx, activeKey(userEmail, universityID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.Get(ctx, id)
}

func (p *ProgressStore) save(ctx context.Context, op *models.ComputeOperation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal compute operation: %w", err)
	}
	return p.client.Set(ctx, operationKey(op.ID), payload, p.ttl).Err()
}
