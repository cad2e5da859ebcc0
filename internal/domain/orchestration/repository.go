package orchestration

import (
	"context"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/shared"
)

// CorrelationRecordRepository defines persistence for correlation records
type CorrelationRecordRepository interface {
	// Save persists a new correlation record
	Save(ctx context.Context, record *CorrelationRecord) error

	// SaveWithLock updates a record using optimistic locking on Version.
	// Returns ErrConcurrencyConflict if the stored version does not match.
	SaveWithLock(ctx context.Context, record *CorrelationRecord) error

	// FindByID retrieves a record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*CorrelationRecord, error)

	// FindBySourceRef retrieves a record by its source system and reference
	FindBySourceRef(ctx context.Context, sourceSystem, sourceRef string) (*CorrelationRecord, error)

	// List retrieves records matching the filter, newest first
	List(ctx context.Context, filter shared.Filter) (shared.Paginated[*CorrelationRecord], error)
}
