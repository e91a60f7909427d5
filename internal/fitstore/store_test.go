package fitstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions-workers/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testRecord(universityID string, category models.FitCategory, pct int) models.FitRecord {
	return models.FitRecord{
		UniversityID:    universityID,
		FitCategory:     category,
		MatchPercentage: pct,
		Factors:         []models.FitFactor{},
		Recommendations: []string{},
		Source:          models.SourcePrecomputed,
	}
}

func TestStore_SaveAndGetRecord(t *testing.T) {
	_, client := setupTestRedis(t)
	store := New(client, time.Hour)
	ctx := context.Background()

	record := testRecord("stanford-university", models.FitReach, 72)
	require.NoError(t, store.SaveRecord(ctx, "student@example.com", record))

	got, err := store.GetRecord(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.FitReach, got.FitCategory)
	assert.Equal(t, 72, got.MatchPercentage)
	assert.False(t, got.ComputedAt.IsZero(), "save should stamp ComputedAt")
}

func TestStore_GetRecordMissReturnsNil(t *testing.T) {
	_, client := setupTestRedis(t)
	store := New(client, time.Hour)

	got, err := store.GetRecord(context.Background(), "student@example.com", "nowhere-university")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_CorruptedRecordCountsAsMiss(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := New(client, time.Hour)

	require.NoError(t, mr.Set("fit:record:student@example.com:broken-university", "{not json"))

	got, err := store.GetRecord(context.Background(), "student@example.com", "broken-university")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_RecordsScopedPerUser(t *testing.T) {
	_, client := setupTestRedis(t)
	store := New(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, "a@example.com", testRecord("stanford-university", models.FitReach, 72)))

	got, err := store.GetRecord(ctx, "b@example.com", "stanford-university")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ListRecords(t *testing.T) {
	_, client := setupTestRedis(t)
	store := New(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, "student@example.com", testRecord("stanford-university", models.FitReach, 72)))
	require.NoError(t, store.SaveRecord(ctx, "student@example.com", testRecord("ohio-state-university", models.FitSafety, 90)))

	records, err := store.ListRecords(ctx, "student@example.com")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	count, err := store.Count(ctx, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_ReplaceAllSwapsWholesale(t *testing.T) {
	_, client := setupTestRedis(t)
	store := New(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, "student@example.com", testRecord("old-university", models.FitTarget, 55)))

	fresh := []models.FitRecord{
		testRecord("stanford-university", models.FitReach, 72),
		testRecord("mit", models.FitSuperReach, 40),
	}
	require.NoError(t, store.ReplaceAll(ctx, "student@example.com", fresh))

	old, err := store.GetRecord(ctx, "student@example.com", "old-university")
	require.NoError(t, err)
	assert.Nil(t, old, "replaced cache must not retain prior records")

	records, err := store.ListRecords(ctx, "student@example.com")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStore_Invalidate(t *testing.T) {
	_, client := setupTestRedis(t)
	store := New(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, "student@example.com", testRecord("stanford-university", models.FitReach, 72)))
	require.NoError(t, store.Invalidate(ctx, "student@example.com"))

	records, err := store.ListRecords(ctx, "student@example.com")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_RecordsExpire(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := New(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, "student@example.com", testRecord("stanford-university", models.FitReach, 72)))

	mr.FastForward(2 * time.Minute)

	got, err := store.GetRecord(ctx, "student@example.com", "stanford-university")
	require.NoError(t, err)
	assert.Nil(t, got)
}
