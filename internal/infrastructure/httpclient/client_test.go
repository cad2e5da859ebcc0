package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/orchestration"
	"github.com/ipaas/backend/internal/domain/resilience"
	"github.com/ipaas/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryDLQ is an in-memory DLQSink for client tests
type memoryDLQ struct {
	mu      sync.Mutex
	entries []*resilience.DLQEntry
}

func (m *memoryDLQ) Save(ctx context.Context, entry *resilience.DLQEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryDLQ) Entries() []*resilience.DLQEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*resilience.DLQEntry(nil), m.entries...)
}

// cancelAwareDLQ refuses saves once the context is dead, like a real store
type cancelAwareDLQ struct {
	memoryDLQ
}

func (m *cancelAwareDLQ) Save(ctx context.Context, entry *resilience.DLQEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.memoryDLQ.Save(ctx, entry)
}

func newTestClient(t *testing.T, baseURL string, maxAttempts int, dlq DLQSink) *ResilientClient {
	t.Helper()
	targets := map[string]config.DownstreamConfig{
		"workorder-svc": {BaseURL: baseURL, Timeout: 2 * time.Second},
	}
	retryCfg := config.RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
	breakerCfg := config.BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		RecoveryTimeout:  time.Minute,
	}
	return NewResilientClient(targets, retryCfg, breakerCfg, dlq, zap.NewNop())
}

func testDelivery() Delivery {
	return Delivery{
		CorrelationID: uuid.New(),
		Target:        "workorder-svc",
		Method:        http.MethodPost,
		Path:          "/api/workorders",
		Payload:       []byte(`{"ref":"TICK-1"}`),
		ResumeStatus:  orchestration.StatusPendingMaterialCheck,
	}
}

func TestDeliverSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/workorders", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	dlq := &memoryDLQ{}
	client := newTestClient(t, server.URL, 3, dlq)

	err := client.Deliver(context.Background(), testDelivery())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, dlq.Entries())
}

func TestDeliverRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dlq := &memoryDLQ{}
	client := newTestClient(t, server.URL, 3, dlq)

	err := client.Deliver(context.Background(), testDelivery())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, dlq.Entries())
}

func TestDeliverExhaustedRetriesGoToDLQ(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dlq := &memoryDLQ{}
	client := newTestClient(t, server.URL, 3, dlq)
	delivery := testDelivery()

	err := client.Deliver(context.Background(), delivery)
	require.Error(t, err)

	var deliveryErr *DeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	assert.Equal(t, 3, deliveryErr.Attempts)
	assert.False(t, deliveryErr.Permanent)
	assert.Equal(t, int32(3), calls.Load())

	entries := dlq.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, delivery.CorrelationID, entries[0].CorrelationID)
	assert.Equal(t, "workorder-svc", entries[0].Target)
	assert.Equal(t, orchestration.StatusPendingMaterialCheck, entries[0].ResumeStatus)
	assert.Equal(t, resilience.DLQStatusPendingReview, entries[0].Status)
	assert.Equal(t, 3, entries[0].RetryCount)
	assert.Equal(t, deliveryErr.DLQEntryID, entries[0].ID)
}

func TestDeliverClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	dlq := &memoryDLQ{}
	client := newTestClient(t, server.URL, 3, dlq)

	err := client.Deliver(context.Background(), testDelivery())
	require.Error(t, err)

	var deliveryErr *DeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	assert.True(t, deliveryErr.Permanent)
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, dlq.Entries(), 1)
}

func TestDeliverRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dlq := &memoryDLQ{}
	client := newTestClient(t, server.URL, 3, dlq)

	err := client.Deliver(context.Background(), testDelivery())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDeliverBreakerOpenSkipsRequestAndDLQ(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dlq := &memoryDLQ{}
	// 6 attempts in two deliveries push the breaker past its threshold of 5
	client := newTestClient(t, server.URL, 3, dlq)

	require.Error(t, client.Deliver(context.Background(), testDelivery()))
	require.Error(t, client.Deliver(context.Background(), testDelivery()))
	callsBefore := calls.Load()
	dlqBefore := len(dlq.Entries())

	err := client.Deliver(context.Background(), testDelivery())
	require.Error(t, err)

	var openErr *resilience.BreakerOpenError
	require.True(t, errors.As(err, &openErr))
	assert.Equal(t, "workorder-svc", openErr.Target)
	assert.Equal(t, callsBefore, calls.Load(), "no request should reach the downstream")
	assert.Len(t, dlq.Entries(), dlqBefore, "breaker refusals must not be dead lettered")
}

func TestDeliverUnknownTarget(t *testing.T) {
	dlq := &memoryDLQ{}
	client := newTestClient(t, "http://localhost:0", 1, dlq)

	d := testDelivery()
	d.Target = "unknown-svc"
	err := client.Deliver(context.Background(), d)
	require.Error(t, err)
	assert.Empty(t, dlq.Entries())
}

func TestDeliverNetworkErrorsAreTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	dlq := &memoryDLQ{}
	client := newTestClient(t, server.URL, 2, dlq)

	err := client.Deliver(context.Background(), testDelivery())
	require.Error(t, err)

	var deliveryErr *DeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	assert.Equal(t, 2, deliveryErr.Attempts)
	assert.Len(t, dlq.Entries(), 1)
}

func TestDeliverContextCancelledDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dlq := &cancelAwareDLQ{}
	client := newTestClient(t, server.URL, 3, dlq)
	client.backoff = NewBackoff(time.Hour, time.Hour, 2.0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := client.Deliver(ctx, testDelivery())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var deliveryErr *DeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	assert.Equal(t, 1, deliveryErr.Attempts, "only the attempt made before cancellation counts")

	// The abandoned delivery must still be captured even though the
	// caller's context is already cancelled
	entries := dlq.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Contains(t, entries[0].LastError, "500")
}

func TestDeliverReplayFailureKeepsOriginalEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	dlq := &memoryDLQ{}
	client := newTestClient(t, server.URL, 2, dlq)

	d := testDelivery()
	d.Replay = true
	err := client.Deliver(context.Background(), d)
	require.Error(t, err)

	var deliveryErr *DeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	assert.Equal(t, 2, deliveryErr.Attempts)
	assert.Equal(t, uuid.Nil, deliveryErr.DLQEntryID)
	assert.Empty(t, dlq.Entries(), "a failed replay stays with the entry it replays")
}

func TestDeliverStopsRetryingWhenBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	dlq := &memoryDLQ{}
	// More attempts than the failure threshold of 5: the breaker opens on
	// this delivery's own failures and the remaining attempts are refused
	client := newTestClient(t, server.URL, 8, dlq)

	err := client.Deliver(context.Background(), testDelivery())
	require.Error(t, err)

	var deliveryErr *DeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	assert.Equal(t, 5, deliveryErr.Attempts)
	assert.Equal(t, int32(5), calls.Load(), "attempts past the failure threshold must not reach the downstream")

	entries := dlq.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].RetryCount)
}
