// Package fitstore persists per-user fit records and compute-operation
// progress in Redis. Records are keyed per (user, university) with a
// membership set per user, so a staleness refresh can swap the whole cache
// without touching other users.
package fitstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"admissions-workers/internal/models"
)

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func recordKey(userEmail, universityID string) string {
	return fmt.Sprintf("fit:record:%s:%s", userEmail, universityID)
}

func indexKey(userEmail string) string {
	return fmt.Sprintf("fit:index:%s", userEmail)
}

// SaveRecord stores one record and registers it in the user's index. A zero
// ComputedAt is stamped here so parsed records stay deterministic until saved.
func (s *Store) SaveRecord(ctx context.Context, userEmail string, record models.FitRecord) error {
	if record.ComputedAt.IsZero() {
		record.ComputedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal fit record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(userEmail, record.UniversityID), payload, s.ttl)
	pipe.SAdd(ctx, indexKey(userEmail), record.UniversityID)
	pipe.Expire(ctx, indexKey(userEmail), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRecord returns the cached record or nil when absent. A corrupted entry
// counts as a miss so a bad write can never poison lookups. Lookup never
// reaches past Redis.
func (s *Store) GetRecord(ctx context.Context, userEmail, universityID string) (*models.FitRecord, error) {
	raw, err := s.client.Get(ctx, recordKey(userEmail, universityID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record models.FitRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, nil
	}
	return &record, nil
}

// ListRecords returns every cached record for the user. Index entries whose
// record has expired are skipped.
func (s *Store) ListRecords(ctx context.Context, userEmail string) ([]models.FitRecord, error) {
	ids, err := s.client.SMembers(ctx, indexKey(userEmail)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]models.FitRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.GetRecord(ctx, userEmail, id)
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	return records, nil
}

// ReplaceAll swaps the user's entire cache for the provided records. Staleness
// refresh reloads wholesale rather than merging.
func (s *Store) ReplaceAll(ctx context.Context, userEmail string, records []models.FitRecord) error {
	existing, err := s.client.SMembers(ctx, indexKey(userEmail)).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	now := time.Now().UTC()

	pipe := s.client.TxPipeline()
	for _, id := range existing {
		pipe.Del(ctx, recordKey(userEmail, id))
	}
	pipe.Del(ctx, indexKey(userEmail))

	for _, record := range records {
		if record.ComputedAt.IsZero() {
			record.ComputedAt = now
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal fit record for %s: %w", record.UniversityID, err)
		}
		pipe.Set(ctx, recordKey(userEmail, record.UniversityID), payload, s.ttl)
		pipe.SAdd(ctx, indexKey(userEmail), record.UniversityID)
	}
	if len(records) > 0 {
		pipe.Expire(ctx, indexKey(userEmail), s.ttl)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate drops every cached record for the user.
func (s *Store) Invalidate(ctx context.Context, userEmail string) error {
	return s.ReplaceAll(ctx, userEmail, nil)
}

// Count returns how many records the user has cached.
func (s *Store) Count(ctx context.Context, userEmail string) (int, error) {
	n, err := s.client.SCard(ctx, indexKey(userEmail)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
