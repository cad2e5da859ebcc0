package httpclient

import (
	"sync"
	"time"

	"github.com/ipaas/backend/internal/domain/resilience"
)

// BreakerSettings holds the thresholds for a circuit breaker
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open successes that closes it
	SuccessThreshold int
	// RecoveryTimeout is how long an open breaker waits before probing
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls caps concurrent trial calls while half-open.
	// Zero falls back to SuccessThreshold.
	HalfOpenMaxCalls int
}

// DefaultBreakerSettings returns the default breaker thresholds
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// StateChangeFunc is called when a breaker changes state
type StateChangeFunc func(target string, from, to resilience.BreakerState)

// breaker is the per-target circuit breaker.
// All fields are guarded by mu. The clock is injectable for tests.
type breaker struct {
	mu               sync.Mutex
	target           string
	settings         BreakerSettings
	state            resilience.BreakerState
	consecutiveFails int
	halfOpenSuccess  int
	halfOpenInFlight int
	openedAt         time.Time
	lastFailure      time.Time
	now              func() time.Time
	onStateChange    StateChangeFunc
}

func newBreaker(target string, settings BreakerSettings, now func() time.Time, onStateChange StateChangeFunc) *breaker {
	if now == nil {
		now = time.Now
	}
	return &breaker{
		target:        target,
		settings:      settings,
		state:         resilience.BreakerClosed,
		now:           now,
		onStateChange: onStateChange,
	}
}

// Allow reports whether a request may proceed. An open breaker moves to
// half-open once the recovery timeout has elapsed; while half-open only a
// bounded number of trial calls may be in flight. A refused caller gets a
// BreakerOpenError without the request being attempted.
func (b *breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case resilience.BreakerClosed:
		return nil

	case resilience.BreakerHalfOpen:
		if b.halfOpenInFlight >= b.halfOpenLimit() {
			return &resilience.BreakerOpenError{Target: b.target}
		}
		b.halfOpenInFlight++
		return nil
	}

	elapsed := b.now().Sub(b.openedAt)
	if elapsed >= b.settings.RecoveryTimeout {
		b.setState(resilience.BreakerHalfOpen)
		b.halfOpenSuccess = 0
		b.halfOpenInFlight = 1
		return nil
	}

	return &resilience.BreakerOpenError{
		Target:     b.target,
		RetryAfter: b.settings.RecoveryTimeout - elapsed,
	}
}

// halfOpenLimit must be called with mu held
func (b *breaker) halfOpenLimit() int {
	if b.settings.HalfOpenMaxCalls > 0 {
		return b.settings.HalfOpenMaxCalls
	}
	return b.settings.SuccessThreshold
}

// RecordSuccess notes a successful delivery. In half-open mode enough
// consecutive successes close the breaker; in closed mode the failure
// streak resets.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case resilience.BreakerHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.settings.SuccessThreshold {
			b.setState(resilience.BreakerClosed)
			b.consecutiveFails = 0
			b.halfOpenSuccess = 0
			b.halfOpenInFlight = 0
		}
	case resilience.BreakerClosed:
		b.consecutiveFails = 0
	}
}

// RecordFailure notes a failed delivery. A half-open failure reopens the
// breaker immediately; in closed mode the breaker opens once the failure
// streak reaches the threshold.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	switch b.state {
	case resilience.BreakerHalfOpen:
		b.open()
	case resilience.BreakerClosed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.settings.FailureThreshold {
			b.open()
		}
	}
}

// Reset forces the breaker back to closed with cleared counters
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setState(resilience.BreakerClosed)
	b.consecutiveFails = 0
	b.halfOpenSuccess = 0
	b.halfOpenInFlight = 0
	b.openedAt = time.Time{}
}

// Snapshot returns a point-in-time view of the breaker
func (b *breaker) Snapshot() resilience.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := resilience.BreakerSnapshot{
		Target:           b.target,
		State:            b.state,
		ConsecutiveFails: b.consecutiveFails,
		HalfOpenSuccess:  b.halfOpenSuccess,
	}
	if !b.openedAt.IsZero() {
		openedAt := b.openedAt
		snapshot.OpenedAt = &openedAt
	}
	if !b.lastFailure.IsZero() {
		lastFailure := b.lastFailure
		snapshot.LastFailure = &lastFailure
	}
	return snapshot
}

// open must be called with mu held
func (b *breaker) open() {
	b.setState(resilience.BreakerOpen)
	b.openedAt = b.now()
	b.halfOpenSuccess = 0
	b.halfOpenInFlight = 0
}

// setState must be called with mu held
func (b *breaker) setState(to resilience.BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(b.target, from, to)
	}
}

// BreakerRegistry holds one breaker per downstream target
type BreakerRegistry struct {
	mu            sync.Mutex
	breakers      map[string]*breaker
	settings      BreakerSettings
	now           func() time.Time
	onStateChange StateChangeFunc
}

// NewBreakerRegistry creates a registry that lazily creates breakers per target
func NewBreakerRegistry(settings BreakerSettings, now func() time.Time, onStateChange StateChangeFunc) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:      make(map[string]*breaker),
		settings:      settings,
		now:           now,
		onStateChange: onStateChange,
	}
}

// Get returns the breaker for a target, creating it on first use
func (r *BreakerRegistry) Get(target string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[target]
	if !ok {
		b = newBreaker(target, r.settings, r.now, r.onStateChange)
		r.breakers[target] = b
	}
	return b
}

// Snapshots returns the state of every known breaker
func (r *BreakerRegistry) Snapshots() []resilience.BreakerSnapshot {
	r.mu.Lock()
	breakers := make([]*breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	snapshots := make([]resilience.BreakerSnapshot, 0, len(breakers))
	for _, b := range breakers {
		snapshots = append(snapshots, b.Snapshot())
	}
	return snapshots
}

// Reset forces the breaker for a target back to closed.
// Returns false if no breaker exists for the target yet.
func (r *BreakerRegistry) Reset(target string) bool {
	r.mu.Lock()
	b, ok := r.breakers[target]
	r.mu.Unlock()

	if !ok {
		return false
	}
	b.Reset()
	return true
}
