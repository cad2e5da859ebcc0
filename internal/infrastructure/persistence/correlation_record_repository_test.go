package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/orchestration"
	"github.com/ipaas/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&correlationRecordModel{}, &dlqEntryModel{})
	require.NoError(t, err)

	return db
}

func newTestRecord(t *testing.T, sourceRef string) *orchestration.CorrelationRecord {
	record, err := orchestration.NewCorrelationRecord(
		"servicedesk", sourceRef,
		orchestration.PipelineCaseToWorkOrder, orchestration.UrgencyHigh,
		"conveyor motor failure",
		map[string]interface{}{"line": "3"},
	)
	require.NoError(t, err)
	record.ClearDomainEvents()
	return record
}

func TestCorrelationRecordRepository_Save(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCorrelationRecordRepository(db)
	ctx := context.Background()

	t.Run("saves and reloads a record with payload and history", func(t *testing.T) {
		record := newTestRecord(t, "TICKET-1001")
		require.NoError(t, record.TransitionTo(orchestration.StatusPendingMaterialCheck, "orchestrator", "dispatched downstream"))
		record.ClearDomainEvents()

		require.NoError(t, repo.Save(ctx, record))

		found, err := repo.FindByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.ID, found.ID)
		assert.Equal(t, orchestration.PipelineCaseToWorkOrder, found.Pipeline)
		assert.Equal(t, orchestration.StatusPendingMaterialCheck, found.Status)
		assert.Equal(t, "3", found.Payload["line"])
		require.Len(t, found.History, 1)
		assert.Equal(t, orchestration.StatusReceived, found.History[0].FromStatus)
		assert.Equal(t, orchestration.StatusPendingMaterialCheck, found.History[0].ToStatus)
	})

	t.Run("duplicate source reference is rejected", func(t *testing.T) {
		first := newTestRecord(t, "TICKET-1002")
		require.NoError(t, repo.Save(ctx, first))

		second := newTestRecord(t, "TICKET-1002")
		err := repo.Save(ctx, second)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("same reference from another source is allowed", func(t *testing.T) {
		record := newTestRecord(t, "TICKET-1003")
		require.NoError(t, repo.Save(ctx, record))

		other, err := orchestration.NewCorrelationRecord(
			"crm", "TICKET-1003",
			orchestration.PipelineManualTriage, orchestration.UrgencyLow,
			"", nil,
		)
		require.NoError(t, err)
		assert.NoError(t, repo.Save(ctx, other))
	})
}

func TestCorrelationRecordRepository_FindBySourceRef(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCorrelationRecordRepository(db)
	ctx := context.Background()

	record := newTestRecord(t, "TICKET-2001")
	require.NoError(t, repo.Save(ctx, record))

	found, err := repo.FindBySourceRef(ctx, "servicedesk", "TICKET-2001")
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)

	_, err = repo.FindBySourceRef(ctx, "crm", "TICKET-2001")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCorrelationRecordRepository_SaveWithLock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCorrelationRecordRepository(db)
	ctx := context.Background()

	t.Run("persists transition and bumps version", func(t *testing.T) {
		record := newTestRecord(t, "TICKET-3001")
		require.NoError(t, repo.Save(ctx, record))

		require.NoError(t, record.TransitionTo(orchestration.StatusPendingMaterialCheck, "orchestrator", ""))
		record.ClearDomainEvents()
		require.NoError(t, repo.SaveWithLock(ctx, record))

		found, err := repo.FindByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, orchestration.StatusPendingMaterialCheck, found.Status)
		assert.Equal(t, 2, found.Version)
		assert.Len(t, found.History, 1)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		record := newTestRecord(t, "TICKET-3002")
		require.NoError(t, repo.Save(ctx, record))

		fresh, err := repo.FindByID(ctx, record.ID)
		require.NoError(t, err)
		require.NoError(t, fresh.TransitionTo(orchestration.StatusPendingMaterialCheck, "orchestrator", ""))
		fresh.ClearDomainEvents()
		require.NoError(t, repo.SaveWithLock(ctx, fresh))

		// The original copy still carries version 1
		require.NoError(t, record.TransitionTo(orchestration.StatusFailed, "orchestrator", "delivery failed"))
		err = repo.SaveWithLock(ctx, record)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})

	t.Run("unknown record reports not found", func(t *testing.T) {
		record := newTestRecord(t, "TICKET-3003")
		err := repo.SaveWithLock(ctx, record)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestCorrelationRecordRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCorrelationRecordRepository(db)
	ctx := context.Background()

	refs := []string{"TICKET-4001", "TICKET-4002", "TICKET-4003"}
	for _, ref := range refs {
		require.NoError(t, repo.Save(ctx, newTestRecord(t, ref)))
	}
	triage, err := orchestration.NewCorrelationRecord(
		"crm", "EMAIL-77",
		orchestration.PipelineManualTriage, orchestration.UrgencyLow,
		"", nil,
	)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, triage))

	t.Run("filters by pipeline", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Filters["pipeline"] = string(orchestration.PipelineCaseToWorkOrder)

		page, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Len(t, page.Items, 3)
	})

	t.Run("filters by source system", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Filters["source_system"] = "crm"

		page, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		assert.Equal(t, "EMAIL-77", page.Items[0].SourceRef)
	})

	t.Run("paginates", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.PageSize = 2

		page, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(4), page.Total)
		assert.Len(t, page.Items, 2)
		assert.Equal(t, 2, page.TotalPages)
	})
}

func TestCorrelationRecordRepository_FindByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormCorrelationRecordRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
