package resilience

import (
	"context"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/shared"
)

// DLQRepository defines persistence for dead letter entries
type DLQRepository interface {
	// Save persists a new dead letter entry
	Save(ctx context.Context, entry *DLQEntry) error

	// Update persists changes to an existing entry
	Update(ctx context.Context, entry *DLQEntry) error

	// FindByID retrieves an entry by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*DLQEntry, error)

	// List retrieves entries matching the filter, newest first
	List(ctx context.Context, filter shared.Filter) (shared.Paginated[*DLQEntry], error)

	// CountByStatus returns the number of entries in each review state
	CountByStatus(ctx context.Context) (map[DLQStatus]int64, error)
}
