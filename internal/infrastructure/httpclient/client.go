package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/orchestration"
	"github.com/ipaas/backend/internal/domain/resilience"
	"github.com/ipaas/backend/internal/infrastructure/config"
	"github.com/ipaas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Delivery describes one outbound request to a downstream system
type Delivery struct {
	CorrelationID uuid.UUID
	Target        string
	Method        string
	Path          string
	Payload       []byte
	// ResumeStatus is the station the flow should resume at when this
	// delivery is replayed from the dead letter queue
	ResumeStatus orchestration.Status
	// Replay marks a delivery that replays an existing dead letter entry.
	// A failed replay is never captured again; the original entry keeps
	// owning the request.
	Replay bool
}

// DLQSink receives deliveries that exhausted their retries
type DLQSink interface {
	Save(ctx context.Context, entry *resilience.DLQEntry) error
}

// DeliveryError reports a delivery that failed permanently.
// If the failed delivery was captured, DLQEntryID identifies the entry.
type DeliveryError struct {
	Target     string
	Attempts   int
	Permanent  bool
	DLQEntryID uuid.UUID
	Err        error
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed after %d attempt(s): %v", e.Target, e.Attempts, e.Err)
}

// Unwrap returns the underlying error
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ResilientClient delivers requests to downstream systems with retries,
// per-target circuit breaking and dead letter capture
type ResilientClient struct {
	httpClient  *http.Client
	targets     map[string]config.DownstreamConfig
	backoff     Backoff
	maxAttempts int
	breakers    *BreakerRegistry
	dlq         DLQSink
	logger      *zap.Logger
	metrics     *telemetry.DeliveryMetrics
	// sleep is replaceable in tests to avoid real backoff waits
	sleep func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a ResilientClient
type ClientOption func(*ResilientClient)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(rc *ResilientClient) {
		rc.httpClient = c
	}
}

// WithClock replaces the breaker clock. Test use only.
func WithClock(now func() time.Time) ClientOption {
	return func(rc *ResilientClient) {
		rc.breakers.now = now
		for _, b := range rc.breakers.breakers {
			b.now = now
		}
	}
}

// WithMetrics attaches delivery metrics
func WithMetrics(m *telemetry.DeliveryMetrics) ClientOption {
	return func(rc *ResilientClient) {
		rc.metrics = m
	}
}

// NewResilientClient creates a delivery client for the configured targets
func NewResilientClient(
	targets map[string]config.DownstreamConfig,
	retryCfg config.RetryConfig,
	breakerCfg config.BreakerConfig,
	dlq DLQSink,
	logger *zap.Logger,
	opts ...ClientOption,
) *ResilientClient {
	rc := &ResilientClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		targets:     targets,
		backoff:     NewBackoff(retryCfg.BaseDelay, retryCfg.MaxDelay, retryCfg.Multiplier),
		maxAttempts: retryCfg.MaxAttempts,
		dlq:         dlq,
		logger:      logger.Named("delivery"),
		sleep:       sleepContext,
	}
	if rc.maxAttempts < 1 {
		rc.maxAttempts = 1
	}

	settings := BreakerSettings{
		FailureThreshold: breakerCfg.FailureThreshold,
		SuccessThreshold: breakerCfg.SuccessThreshold,
		RecoveryTimeout:  breakerCfg.RecoveryTimeout,
		HalfOpenMaxCalls: breakerCfg.HalfOpenMaxCalls,
	}
	if settings.FailureThreshold < 1 || settings.SuccessThreshold < 1 || settings.RecoveryTimeout <= 0 {
		settings = DefaultBreakerSettings()
	}
	rc.breakers = NewBreakerRegistry(settings, time.Now, rc.onBreakerStateChange)

	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Breakers exposes the breaker registry for administration
func (rc *ResilientClient) Breakers() *BreakerRegistry {
	return rc.breakers
}

// Deliver sends the request to its downstream target. Transient failures
// (5xx, 429, network errors) are retried with exponential backoff; 4xx
// responses other than 429 fail permanently without retry. A delivery that
// exhausts its attempts is captured in the dead letter queue. A delivery
// refused by an open breaker is never attempted and never captured; the
// caller receives a BreakerOpenError.
func (rc *ResilientClient) Deliver(ctx context.Context, d Delivery) error {
	target, ok := rc.targets[d.Target]
	if !ok {
		return fmt.Errorf("unknown downstream target: %s", d.Target)
	}

	br := rc.breakers.Get(d.Target)
	if err := br.Allow(); err != nil {
		rc.logger.Warn("delivery refused by open breaker",
			zap.String("target", d.Target),
			zap.String("correlation_id", d.CorrelationID.String()),
		)
		rc.metrics.RecordAttempt(ctx, d.Target, "breaker_open")
		return err
	}

	url := target.BaseURL + d.Path
	start := time.Now()
	attempts := 0
	var lastErr error

	for attempt := 1; attempt <= rc.maxAttempts; attempt++ {
		if attempt > 1 {
			// The breaker may have opened on this delivery's own failures
			if err := br.Allow(); err != nil {
				rc.logger.Warn("breaker opened mid delivery",
					zap.String("target", d.Target),
					zap.Int("attempts", attempts),
				)
				break
			}
			rc.metrics.RecordRetry(ctx, d.Target)
			if err := rc.sleep(ctx, rc.backoff.Delay(attempt-1)); err != nil {
				// Abandoned during backoff; lastErr keeps the delivery cause
				break
			}
		}

		attempts = attempt
		status, err := rc.attempt(ctx, d.Method, url, d.Payload, target.Timeout)
		if err == nil && status < 300 {
			br.RecordSuccess()
			rc.metrics.RecordAttempt(ctx, d.Target, "success")
			rc.metrics.RecordDuration(ctx, d.Target, time.Since(start))
			rc.logger.Debug("delivery succeeded",
				zap.String("target", d.Target),
				zap.Int("attempt", attempt),
				zap.Int("status", status),
			)
			return nil
		}

		br.RecordFailure()
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("downstream returned status %d", status)
		}

		if err == nil && isPermanentStatus(status) {
			rc.metrics.RecordAttempt(ctx, d.Target, "permanent_failure")
			rc.logger.Warn("delivery failed permanently",
				zap.String("target", d.Target),
				zap.Int("status", status),
				zap.String("correlation_id", d.CorrelationID.String()),
			)
			return rc.deadLetter(ctx, d, url, attempt, true, lastErr)
		}

		rc.metrics.RecordAttempt(ctx, d.Target, "transient_failure")
		rc.logger.Warn("delivery attempt failed",
			zap.String("target", d.Target),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
	}

	return rc.deadLetter(ctx, d, url, attempts, false, lastErr)
}

// attempt performs one HTTP request with the target's timeout
func (rc *ResilientClient) attempt(ctx context.Context, method, url string, payload []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

// deadLetter captures a permanently failed delivery and returns the DeliveryError
func (rc *ResilientClient) deadLetter(ctx context.Context, d Delivery, url string, attempts int, permanent bool, cause error) error {
	if d.Replay {
		// The request is already dead lettered; capturing the failed
		// replay would duplicate the entry
		return &DeliveryError{
			Target:    d.Target,
			Attempts:  attempts,
			Permanent: permanent,
			Err:       cause,
		}
	}

	entry := resilience.NewDLQEntry(d.CorrelationID, d.Target, d.Method, url, d.Payload, cause.Error(), attempts, d.ResumeStatus)

	// Capture must survive the caller's context: a delivery abandoned on
	// cancellation is still a terminal failure that may not be lost
	ctx = context.WithoutCancel(ctx)
	if err := rc.dlq.Save(ctx, entry); err != nil {
		rc.logger.Error("failed to capture delivery in dead letter queue",
			zap.String("target", d.Target),
			zap.String("correlation_id", d.CorrelationID.String()),
			zap.Error(err),
		)
	} else {
		rc.metrics.RecordDLQEntry(ctx, d.Target)
		rc.logger.Info("delivery captured in dead letter queue",
			zap.String("target", d.Target),
			zap.String("dlq_entry_id", entry.ID.String()),
			zap.String("correlation_id", d.CorrelationID.String()),
		)
	}

	return &DeliveryError{
		Target:     d.Target,
		Attempts:   attempts,
		Permanent:  permanent,
		DLQEntryID: entry.ID,
		Err:        cause,
	}
}

// onBreakerStateChange logs and counts breaker transitions
func (rc *ResilientClient) onBreakerStateChange(target string, from, to resilience.BreakerState) {
	rc.logger.Info("circuit breaker state changed",
		zap.String("target", target),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	rc.metrics.RecordBreakerTransition(context.Background(), target, string(from), string(to))
}

// isPermanentStatus reports whether a response status should not be retried.
// Client errors are permanent except 429, which signals backpressure.
func isPermanentStatus(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

// sleepContext waits for d or until the context is cancelled
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
