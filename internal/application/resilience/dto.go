package resilience

import (
	"time"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/resilience"
)

// BreakerResponse is the API shape of a circuit breaker snapshot
type BreakerResponse struct {
	Target              string     `json:"target"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	HalfOpenSuccesses   int        `json:"half_open_successes"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
}

// ToBreakerResponse maps a breaker snapshot to its API shape
func ToBreakerResponse(s resilience.BreakerSnapshot) BreakerResponse {
	return BreakerResponse{
		Target:              s.Target,
		State:               string(s.State),
		ConsecutiveFailures: s.ConsecutiveFails,
		HalfOpenSuccesses:   s.HalfOpenSuccess,
		OpenedAt:            s.OpenedAt,
		LastFailure:         s.LastFailure,
	}
}

// DLQEntryResponse is the API shape of a dead letter entry
type DLQEntryResponse struct {
	ID            uuid.UUID `json:"id"`
	CorrelationID uuid.UUID `json:"correlation_id"`
	Target        string    `json:"target"`
	Method        string    `json:"method"`
	URL           string    `json:"url"`
	LastError     string    `json:"last_error"`
	RetryCount    int       `json:"retry_count"`
	Status        string    `json:"status"`
	ResumeStatus  string    `json:"resume_status"`
	FailedAt      time.Time `json:"failed_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ToDLQEntryResponse maps a dead letter entry to its API shape
func ToDLQEntryResponse(e *resilience.DLQEntry) DLQEntryResponse {
	return DLQEntryResponse{
		ID:            e.ID,
		CorrelationID: e.CorrelationID,
		Target:        e.Target,
		Method:        e.Method,
		URL:           e.URL,
		LastError:     e.LastError,
		RetryCount:    e.RetryCount,
		Status:        string(e.Status),
		ResumeStatus:  string(e.ResumeStatus),
		FailedAt:      e.FailedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// DLQCounts is the dead letter queue depth by review state.
// Resolved entries are kept but never counted as pending.
type DLQCounts struct {
	PendingReview int64 `json:"pending_review"`
	Retrying      int64 `json:"retrying"`
	Resolved      int64 `json:"resolved"`
	Total         int64 `json:"total"`
}

// OverviewResponse summarizes resilience health
type OverviewResponse struct {
	Breakers        []BreakerResponse `json:"breakers"`
	DLQ             DLQCounts         `json:"dlq"`
	DegradedTargets []string          `json:"degraded_targets,omitempty"`
}

// BreakerMetrics is the per-target failure accounting exposed on the
// metrics endpoint
type BreakerMetrics struct {
	Target              string `json:"target"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

// MetricsResponse is the resilience metrics summary
type MetricsResponse struct {
	DLQ      DLQCounts        `json:"dlq"`
	Breakers []BreakerMetrics `json:"breakers"`
}
