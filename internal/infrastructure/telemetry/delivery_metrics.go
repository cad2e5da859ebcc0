package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DeliveryMetrics records outcomes of the webhook ingestion pipeline and
// outbound downstream deliveries.
type DeliveryMetrics struct {
	ticketsIngested  *Counter
	deliveryAttempts *Counter
	deliveryRetries  *Counter
	breakerEvents    *Counter
	dlqEntries       *Counter
	deliveryDuration *Histogram
}

// NewDeliveryMetrics creates the delivery metrics set on the given meter.
// On instrument creation failure it logs and returns a nil-safe zero value,
// so metric errors never take the delivery path down.
func NewDeliveryMetrics(meter metric.Meter, logger *zap.Logger) *DeliveryMetrics {
	m := &DeliveryMetrics{}
	var err error

	if m.ticketsIngested, err = NewCounter(meter,
		"ipaas.tickets.ingested", "Number of webhooks accepted for processing", "{ticket}"); err != nil {
		logger.Warn("failed to create tickets ingested counter", zap.Error(err))
	}
	if m.deliveryAttempts, err = NewCounter(meter,
		"ipaas.delivery.attempts", "Number of downstream delivery attempts", "{attempt}"); err != nil {
		logger.Warn("failed to create delivery attempts counter", zap.Error(err))
	}
	if m.deliveryRetries, err = NewCounter(meter,
		"ipaas.delivery.retries", "Number of delivery retries after a transient failure", "{retry}"); err != nil {
		logger.Warn("failed to create delivery retries counter", zap.Error(err))
	}
	if m.breakerEvents, err = NewCounter(meter,
		"ipaas.breaker.transitions", "Number of circuit breaker state transitions", "{transition}"); err != nil {
		logger.Warn("failed to create breaker transitions counter", zap.Error(err))
	}
	if m.dlqEntries, err = NewCounter(meter,
		"ipaas.dlq.entries", "Number of deliveries parked in the dead letter queue", "{entry}"); err != nil {
		logger.Warn("failed to create dlq entries counter", zap.Error(err))
	}
	if m.deliveryDuration, err = NewHistogram(meter,
		"ipaas.delivery.duration", "Downstream delivery duration including retries", "ms"); err != nil {
		logger.Warn("failed to create delivery duration histogram", zap.Error(err))
	}

	return m
}

// RecordIngested counts an accepted webhook
func (m *DeliveryMetrics) RecordIngested(ctx context.Context, pipeline string) {
	if m == nil || m.ticketsIngested == nil {
		return
	}
	m.ticketsIngested.Inc(ctx, attribute.String("pipeline", pipeline))
}

// RecordAttempt counts one delivery attempt and its outcome
func (m *DeliveryMetrics) RecordAttempt(ctx context.Context, target, outcome string) {
	if m == nil || m.deliveryAttempts == nil {
		return
	}
	m.deliveryAttempts.Inc(ctx,
		attribute.String("target", target),
		attribute.String("outcome", outcome),
	)
}

// RecordRetry counts a delivery retry
func (m *DeliveryMetrics) RecordRetry(ctx context.Context, target string) {
	if m == nil || m.deliveryRetries == nil {
		return
	}
	m.deliveryRetries.Inc(ctx, attribute.String("target", target))
}

// RecordBreakerTransition counts a breaker state change
func (m *DeliveryMetrics) RecordBreakerTransition(ctx context.Context, target, from, to string) {
	if m == nil || m.breakerEvents == nil {
		return
	}
	m.breakerEvents.Inc(ctx,
		attribute.String("target", target),
		attribute.String("from", from),
		attribute.String("to", to),
	)
}

// RecordDLQEntry counts a delivery parked in the dead letter queue
func (m *DeliveryMetrics) RecordDLQEntry(ctx context.Context, target string) {
	if m == nil || m.dlqEntries == nil {
		return
	}
	m.dlqEntries.Inc(ctx, attribute.String("target", target))
}

// RecordDuration records the total delivery duration
func (m *DeliveryMetrics) RecordDuration(ctx context.Context, target string, d time.Duration) {
	if m == nil || m.deliveryDuration == nil {
		return
	}
	m.deliveryDuration.Record(ctx, float64(d.Milliseconds()), attribute.String("target", target))
}
