// internal/workers/catalog/filter-sort-catalog/handler_test.go
package filtersortcatalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions-workers/internal/common/logger"
	"admissions-workers/internal/fitstore"
	"admissions-workers/internal/models"
)

func createTestHandler(t *testing.T) (*Handler, *fitstore.Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := fitstore.New(client, 30*time.Minute)

	handler := NewHandler(&Config{PageSize: 2, Timeout: 10 * time.Second}, store, logger.NewTestLogger(t))
	return handler, store
}

func testCatalog() []models.UniversityCatalogItem {
	stanford := models.UniversityCatalogItem{UniversityID: "stanford", Name: "Stanford University", Type: "private", State: "CA"}
	sjsu := models.UniversityCatalogItem{UniversityID: "sjsu", Name: "San Jose State University", Type: "public", State: "CA"}
	sjsu.SoftFitCategory = catPtr(models.FitSafety)
	mit := models.UniversityCatalogItem{UniversityID: "mit", Name: "MIT", Type: "private", State: "MA"}
	return []models.UniversityCatalogItem{stanford, sjsu, mit}
}

func TestHandler_Execute_UsesCachedFitsBeforeSoftCategories(t *testing.T) {
	handler, store := createTestHandler(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecord(ctx, "student@example.com", models.FitRecord{
		UniversityID:    "stanford",
		FitCategory:     models.FitReach,
		MatchPercentage: 72,
		Source:          models.SourceParsedStructured,
	}))

	output, err := handler.Execute(ctx, &Input{
		UserEmail: "student@example.com",
		Items:     testCatalog(),
		Filters:   Filters{FitCategory: "reach"},
	})

	require.NoError(t, err)
	require.Len(t, output.Items, 1)
	assert.Equal(t, "stanford", output.Items[0].UniversityID)
	assert.Equal(t, "REACH", output.Items[0].FitCategory)
	assert.False(t, output.Items[0].FitDegraded)
	assert.Equal(t, 1, output.Total)
}

func TestHandler_Execute_SoftCategoryFallback(t *testing.T) {
	handler, _ := createTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		UserEmail: "student@example.com",
		Items:     testCatalog(),
		Filters:   Filters{FitCategory: "safety"},
	})

	require.NoError(t, err)
	require.Len(t, output.Items, 1)
	assert.Equal(t, "sjsu", output.Items[0].UniversityID)
	assert.True(t, output.Items[0].FitDegraded)
}

func TestHandler_Execute_StateTokenResetsPage(t *testing.T) {
	handler, _ := createTestHandler(t)
	ctx := context.Background()

	first, err := handler.Execute(ctx, &Input{
		UserEmail: "student@example.com",
		Items:     testCatalog(),
		SortKey:   "name",
		Page:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.NotEmpty(t, first.StateToken)

	// Same token, same page position honored.
	second, err := handler.Execute(ctx, &Input{
		UserEmail:  "student@example.com",
		Items:      testCatalog(),
		SortKey:    "name",
		Page:       1,
		StateToken: first.StateToken,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Page)
	assert.False(t, second.PageReset)

	// Sort change invalidates the token and forces page zero.
	third, err := handler.Execute(ctx, &Input{
		UserEmail:  "student@example.com",
		Items:      testCatalog(),
		SortKey:    "rank",
		Page:       1,
		StateToken: first.StateToken,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, third.Page)
	assert.True(t, third.PageReset)
	assert.NotEqual(t, first.StateToken, third.StateToken)
}

func TestHandler_Execute_Pagination(t *testing.T) {
	handler, _ := createTestHandler(t)

	output, err := handler.Execute(context.Background(), &Input{
		UserEmail: "student@example.com",
		Items:     testCatalog(),
		SortKey:   "name",
		Page:      0,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, output.Total)
	assert.Equal(t, 2, output.PageSize)
	assert.Equal(t, 2, output.TotalPages)
	assert.Len(t, output.Items, 2)
}

func TestHandler_Execute_Validation(t *testing.T) {
	handler, _ := createTestHandler(t)

	t.Run("missing user email", func(t *testing.T) {
		_, err := handler.Execute(context.Background(), &Input{Items: testCatalog()})
		assert.ErrorIs(t, err, ErrMissingUserEmail)
	})

	t.Run("invalid sort key", func(t *testing.T) {
		_, err := handler.Execute(context.Background(), &Input{
			UserEmail: "student@example.com",
			Items:     testCatalog(),
			SortKey:   "popularity",
		})
		assert.ErrorIs(t, err, ErrInvalidSortKey)
	})

	t.Run("empty catalog is a valid empty result", func(t *testing.T) {
		output, err := handler.Execute(context.Background(), &Input{
			UserEmail: "student@example.com",
		})
		require.NoError(t, err)
		assert.Empty(t, output.Items)
		assert.Equal(t, 0, output.Total)
	})
}
