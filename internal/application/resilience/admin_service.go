package resilience

import (
	"context"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/resilience"
	"github.com/ipaas/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// BreakerAdmin exposes breaker state inspection and manual reset
type BreakerAdmin interface {
	Snapshots() []resilience.BreakerSnapshot
	Reset(target string) bool
}

// Resumer replays a dead lettered delivery and resumes the owning flow
type Resumer interface {
	Resume(ctx context.Context, entry *resilience.DLQEntry) error
}

// AdminService handles resilience administration: breaker inspection and
// reset, dead letter review, replay and resolution.
type AdminService struct {
	dlq      resilience.DLQRepository
	breakers BreakerAdmin
	resumer  Resumer
	logger   *zap.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(dlq resilience.DLQRepository, breakers BreakerAdmin, resumer Resumer, logger *zap.Logger) *AdminService {
	return &AdminService{
		dlq:      dlq,
		breakers: breakers,
		resumer:  resumer,
		logger:   logger.Named("resilience-admin"),
	}
}

// ListBreakers returns the state of every known circuit breaker
func (s *AdminService) ListBreakers(ctx context.Context) []BreakerResponse {
	snapshots := s.breakers.Snapshots()
	responses := make([]BreakerResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		responses = append(responses, ToBreakerResponse(snapshot))
	}
	return responses
}

// BreakerStatus returns the state of one target's circuit breaker
func (s *AdminService) BreakerStatus(ctx context.Context, target string) (*BreakerResponse, error) {
	for _, snapshot := range s.breakers.Snapshots() {
		if snapshot.Target == target {
			response := ToBreakerResponse(snapshot)
			return &response, nil
		}
	}
	return nil, shared.ErrNotFound
}

// ResetBreaker forces a target's breaker back to closed
func (s *AdminService) ResetBreaker(ctx context.Context, target string) error {
	if !s.breakers.Reset(target) {
		return shared.ErrNotFound
	}
	s.logger.Info("circuit breaker reset", zap.String("target", target))
	return nil
}

// ListDLQ retrieves dead letter entries matching the filter
func (s *AdminService) ListDLQ(ctx context.Context, filter shared.Filter) (shared.Paginated[DLQEntryResponse], error) {
	page, err := s.dlq.List(ctx, filter)
	if err != nil {
		return shared.Paginated[DLQEntryResponse]{}, err
	}

	items := make([]DLQEntryResponse, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, ToDLQEntryResponse(entry))
	}
	return shared.NewPaginated(items, page.Total, page.Page, page.PageSize), nil
}

// GetDLQEntry retrieves one dead letter entry
func (s *AdminService) GetDLQEntry(ctx context.Context, id uuid.UUID) (*DLQEntryResponse, error) {
	entry, err := s.dlq.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToDLQEntryResponse(entry)
	return &response, nil
}

// RetryEntry replays a dead lettered delivery. A successful replay resolves
// the entry and resumes the owning flow; a failed replay returns the entry
// to review with the attempt counted.
func (s *AdminService) RetryEntry(ctx context.Context, id uuid.UUID) (*DLQEntryResponse, error) {
	entry, err := s.dlq.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := entry.MarkRetrying(); err != nil {
		return nil, err
	}
	if err := s.dlq.Update(ctx, entry); err != nil {
		return nil, err
	}

	if replayErr := s.resumer.Resume(ctx, entry); replayErr != nil {
		s.logger.Warn("dead letter replay failed",
			zap.String("dlq_entry_id", entry.ID.String()),
			zap.String("target", entry.Target),
			zap.Error(replayErr),
		)
		if err := entry.MarkRetryFailed(replayErr.Error()); err != nil {
			return nil, err
		}
		if err := s.dlq.Update(ctx, entry); err != nil {
			return nil, err
		}
		response := ToDLQEntryResponse(entry)
		return &response, nil
	}

	if err := entry.MarkResolved(); err != nil {
		return nil, err
	}
	if err := s.dlq.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("dead letter entry replayed and resolved",
		zap.String("dlq_entry_id", entry.ID.String()),
		zap.String("target", entry.Target),
	)
	response := ToDLQEntryResponse(entry)
	return &response, nil
}

// ResolveEntry closes an entry without replaying it
func (s *AdminService) ResolveEntry(ctx context.Context, id uuid.UUID) (*DLQEntryResponse, error) {
	entry, err := s.dlq.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.MarkResolved(); err != nil {
		return nil, err
	}
	if err := s.dlq.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("dead letter entry resolved manually",
		zap.String("dlq_entry_id", entry.ID.String()),
	)
	response := ToDLQEntryResponse(entry)
	return &response, nil
}

// Overview summarizes resilience health: breaker states and dead letter
// queue depth by review state
func (s *AdminService) Overview(ctx context.Context) (*OverviewResponse, error) {
	counts, err := s.dlq.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	overview := &OverviewResponse{
		Breakers: s.ListBreakers(ctx),
		DLQ:      toDLQCounts(counts),
	}
	for _, breaker := range overview.Breakers {
		if breaker.State != string(resilience.BreakerClosed) {
			overview.DegradedTargets = append(overview.DegradedTargets, breaker.Target)
		}
	}
	return overview, nil
}

// Metrics reports dead letter queue depth and per-target breaker counters
func (s *AdminService) Metrics(ctx context.Context) (*MetricsResponse, error) {
	counts, err := s.dlq.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	snapshots := s.breakers.Snapshots()
	breakers := make([]BreakerMetrics, 0, len(snapshots))
	for _, snapshot := range snapshots {
		breakers = append(breakers, BreakerMetrics{
			Target:              snapshot.Target,
			State:               string(snapshot.State),
			ConsecutiveFailures: snapshot.ConsecutiveFails,
		})
	}

	return &MetricsResponse{
		DLQ:      toDLQCounts(counts),
		Breakers: breakers,
	}, nil
}

func toDLQCounts(counts map[resilience.DLQStatus]int64) DLQCounts {
	c := DLQCounts{
		PendingReview: counts[resilience.DLQStatusPendingReview],
		Retrying:      counts[resilience.DLQStatusRetrying],
		Resolved:      counts[resilience.DLQStatusResolved],
	}
	c.Total = c.PendingReview + c.Retrying + c.Resolved
	return c
}
