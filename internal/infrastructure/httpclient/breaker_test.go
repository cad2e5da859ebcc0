package httpclient

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ipaas/backend/internal/domain/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a controllable clock for breaker tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock) *breaker {
	settings := BreakerSettings{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
	}
	return newBreaker("workorder-svc", settings, clock.Now, nil)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.NoError(t, b.Allow())
	}

	b.RecordFailure()

	err := b.Allow()
	require.Error(t, err)
	var openErr *resilience.BreakerOpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, "workorder-svc", openErr.Target)
	assert.Equal(t, resilience.BreakerOpen, b.Snapshot().State)
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}

	assert.NoError(t, b.Allow())
	assert.Equal(t, resilience.BreakerClosed, b.Snapshot().State)
}

func TestBreakerHalfOpenAfterRecoveryTimeout(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Error(t, b.Allow())

	clock.Advance(59 * time.Second)
	assert.Error(t, b.Allow())

	clock.Advance(time.Second)
	assert.NoError(t, b.Allow())
	assert.Equal(t, resilience.BreakerHalfOpen, b.Snapshot().State)
}

func TestBreakerClosesAfterHalfOpenSuccesses(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.Advance(60 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, resilience.BreakerHalfOpen, b.Snapshot().State)

	b.RecordSuccess()
	assert.Equal(t, resilience.BreakerClosed, b.Snapshot().State)
	assert.Equal(t, 0, b.Snapshot().ConsecutiveFails)
}

func TestBreakerHalfOpenCapsTrialCalls(t *testing.T) {
	clock := newFakeClock()
	settings := BreakerSettings{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 2,
	}
	b := newBreaker("workorder-svc", settings, clock.Now, nil)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.Advance(60 * time.Second)

	// The transition to half-open counts as the first trial call
	require.NoError(t, b.Allow())
	require.NoError(t, b.Allow())

	err := b.Allow()
	require.Error(t, err)
	var openErr *resilience.BreakerOpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, "workorder-svc", openErr.Target)
	assert.Equal(t, resilience.BreakerHalfOpen, b.Snapshot().State)

	// A finished trial frees its slot
	b.RecordSuccess()
	assert.NoError(t, b.Allow())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.Advance(60 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	b.RecordFailure()

	assert.Equal(t, resilience.BreakerOpen, b.Snapshot().State)
	assert.Error(t, b.Allow())
}

func TestBreakerReset(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Error(t, b.Allow())

	b.Reset()

	assert.NoError(t, b.Allow())
	snapshot := b.Snapshot()
	assert.Equal(t, resilience.BreakerClosed, snapshot.State)
	assert.Equal(t, 0, snapshot.ConsecutiveFails)
	assert.Nil(t, snapshot.OpenedAt)
}

func TestBreakerStateChangeCallback(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	settings := BreakerSettings{FailureThreshold: 2, SuccessThreshold: 1, RecoveryTimeout: time.Minute}
	b := newBreaker("approval-svc", settings, clock.Now, func(target string, from, to resilience.BreakerState) {
		transitions = append(transitions, string(from)+">"+string(to))
	})

	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(time.Minute)
	require.NoError(t, b.Allow())
	b.RecordSuccess()

	assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF_OPEN", "HALF_OPEN>CLOSED"}, transitions)
}

func TestBreakerRegistry(t *testing.T) {
	registry := NewBreakerRegistry(DefaultBreakerSettings(), newFakeClock().Now, nil)

	a := registry.Get("workorder-svc")
	b := registry.Get("approval-svc")
	assert.NotSame(t, a, b)
	assert.Same(t, a, registry.Get("workorder-svc"))

	for i := 0; i < 5; i++ {
		a.RecordFailure()
	}

	snapshots := registry.Snapshots()
	assert.Len(t, snapshots, 2)

	assert.True(t, registry.Reset("workorder-svc"))
	assert.Equal(t, resilience.BreakerClosed, a.Snapshot().State)
	assert.False(t, registry.Reset("unknown-svc"))
}
