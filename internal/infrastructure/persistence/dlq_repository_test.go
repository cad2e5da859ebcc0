package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/orchestration"
	"github.com/ipaas/backend/internal/domain/resilience"
	"github.com/ipaas/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDLQEntry(target string) *resilience.DLQEntry {
	return resilience.NewDLQEntry(
		uuid.New(), target, "POST",
		"http://"+target+".internal:8080/api/v1/workorders",
		[]byte(`{"line":"3"}`), "connection refused", 3,
		orchestration.StatusPendingMaterialCheck,
	)
}

func TestDLQRepository_SaveAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDLQRepository(db)
	ctx := context.Background()

	entry := newTestDLQEntry("workorder")
	require.NoError(t, repo.Save(ctx, entry))

	found, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.CorrelationID, found.CorrelationID)
	assert.Equal(t, "workorder", found.Target)
	assert.Equal(t, resilience.DLQStatusPendingReview, found.Status)
	assert.Equal(t, orchestration.StatusPendingMaterialCheck, found.ResumeStatus)
	assert.Equal(t, []byte(`{"line":"3"}`), found.Payload)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDLQRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDLQRepository(db)
	ctx := context.Background()

	t.Run("persists review state changes", func(t *testing.T) {
		entry := newTestDLQEntry("workorder")
		require.NoError(t, repo.Save(ctx, entry))

		require.NoError(t, entry.MarkRetrying())
		require.NoError(t, entry.MarkRetryFailed("still unreachable"))
		require.NoError(t, repo.Update(ctx, entry))

		found, err := repo.FindByID(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, resilience.DLQStatusPendingReview, found.Status)
		assert.Equal(t, 4, found.RetryCount)
		assert.Equal(t, "still unreachable", found.LastError)
	})

	t.Run("unknown entry reports not found", func(t *testing.T) {
		entry := newTestDLQEntry("approval")
		err := repo.Update(ctx, entry)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestDLQRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDLQRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Save(ctx, newTestDLQEntry("workorder")))
	}
	resolved := newTestDLQEntry("approval")
	require.NoError(t, resolved.MarkResolved())
	require.NoError(t, repo.Save(ctx, resolved))

	t.Run("filters by status", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Filters["status"] = string(resilience.DLQStatusPendingReview)

		page, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
	})

	t.Run("filters by target", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Filters["target"] = "approval"

		page, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		assert.Equal(t, resilience.DLQStatusResolved, page.Items[0].Status)
	})
}

func TestDLQRepository_CountByStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormDLQRepository(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Save(ctx, newTestDLQEntry("workorder")))
	}
	resolved := newTestDLQEntry("approval")
	require.NoError(t, resolved.MarkResolved())
	require.NoError(t, repo.Save(ctx, resolved))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[resilience.DLQStatusPendingReview])
	assert.Equal(t, int64(1), counts[resilience.DLQStatusResolved])
	assert.Equal(t, int64(0), counts[resilience.DLQStatusRetrying])
}
