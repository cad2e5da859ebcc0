package resilience

import "time"

// BreakerState is the current mode of a per-target circuit breaker
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerSnapshot is a point-in-time view of one target's breaker,
// exposed through the administration API
type BreakerSnapshot struct {
	Target           string       `json:"target"`
	State            BreakerState `json:"state"`
	ConsecutiveFails int          `json:"consecutive_failures"`
	HalfOpenSuccess  int          `json:"half_open_successes"`
	OpenedAt         *time.Time   `json:"opened_at,omitempty"`
	LastFailure      *time.Time   `json:"last_failure,omitempty"`
}

// BreakerOpenError signals a delivery was refused because the target's
// breaker is open. It is distinct from a delivery failure: the request
// was never attempted, so nothing lands in the dead letter queue.
type BreakerOpenError struct {
	Target     string
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *BreakerOpenError) Error() string {
	return "circuit breaker open for target " + e.Target
}
