package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/classification"
	"github.com/ipaas/backend/internal/domain/orchestration"
	"github.com/ipaas/backend/internal/domain/resilience"
	"github.com/ipaas/backend/internal/domain/shared"
	"github.com/ipaas/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DeliveryRequest describes an outbound call to a downstream system
type DeliveryRequest struct {
	CorrelationID uuid.UUID
	Target        string
	Method        string
	Path          string
	Payload       []byte
	ResumeStatus  orchestration.Status
	// Replay marks the re-submission of an already dead lettered request
	Replay bool
}

// DeliveryClient sends requests downstream with retries, circuit breaking
// and dead letter capture
type DeliveryClient interface {
	Deliver(ctx context.Context, req DeliveryRequest) error
}

// FlowOrchestrator drives tickets through their pipelines: it ingests
// webhooks, dispatches downstream hops and applies downstream callbacks.
type FlowOrchestrator struct {
	records        orchestration.CorrelationRecordRepository
	classifier     *classification.Classifier
	client         DeliveryClient
	idempotency    shared.IdempotencyStore
	idempotencyCfg shared.IdempotencyConfig
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
	metrics        *telemetry.DeliveryMetrics
	locks          *keyedMutex
	// syncDispatch makes the first hop run inline instead of in a
	// goroutine. Test use only.
	syncDispatch bool
}

// OrchestratorOption configures a FlowOrchestrator
type OrchestratorOption func(*FlowOrchestrator)

// WithSynchronousDispatch makes first-hop dispatch run inline. Test use only.
func WithSynchronousDispatch() OrchestratorOption {
	return func(s *FlowOrchestrator) {
		s.syncDispatch = true
	}
}

// WithIdempotencyStore enables duplicate delivery suppression
func WithIdempotencyStore(store shared.IdempotencyStore, cfg shared.IdempotencyConfig) OrchestratorOption {
	return func(s *FlowOrchestrator) {
		s.idempotency = store
		s.idempotencyCfg = cfg
	}
}

// WithDeliveryMetrics attaches delivery metrics
func WithDeliveryMetrics(m *telemetry.DeliveryMetrics) OrchestratorOption {
	return func(s *FlowOrchestrator) {
		s.metrics = m
	}
}

// NewFlowOrchestrator creates a new FlowOrchestrator
func NewFlowOrchestrator(
	records orchestration.CorrelationRecordRepository,
	classifier *classification.Classifier,
	client DeliveryClient,
	logger *zap.Logger,
	opts ...OrchestratorOption,
) *FlowOrchestrator {
	s := &FlowOrchestrator{
		records:    records,
		classifier: classifier,
		client:     client,
		logger:     logger.Named("orchestrator"),
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEventPublisher sets the event publisher for cross-context integration
func (s *FlowOrchestrator) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// Ingest accepts a webhook event. Duplicate deliveries of the same source
// reference return the existing record without side effects. New tickets
// are classified, persisted and acknowledged; the first downstream hop
// runs in the background after the acknowledgement.
func (s *FlowOrchestrator) Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	if existing, err := s.records.FindBySourceRef(ctx, req.SourceSystem, req.SourceRef); err == nil {
		return duplicateAck(existing), nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if s.idempotency != nil && s.idempotencyCfg.Enabled {
		key := req.SourceSystem + ":" + req.SourceRef
		fresh, err := s.idempotency.MarkProcessed(ctx, key, s.idempotencyCfg.TTL)
		if err != nil {
			// Dedup store being down must not drop webhooks; the unique
			// source_ref index still prevents double inserts.
			s.logger.Warn("idempotency store unavailable", zap.Error(err))
		} else if !fresh {
			return nil, shared.ErrDuplicateDelivery
		}
	}

	verdict := s.classifier.Classify(&classification.Ticket{
		SourceSystem: req.SourceSystem,
		SourceRef:    req.SourceRef,
		Category:     req.Category,
		Subcategory:  req.Subcategory,
		Subject:      req.Subject,
		Description:  req.Description,
		Priority:     req.Priority,
		Payload:      req.Payload,
	})

	record, err := orchestration.NewCorrelationRecord(
		req.SourceSystem, req.SourceRef, verdict.Pipeline, verdict.Urgency, req.Subject, req.Payload,
	)
	if err != nil {
		return nil, err
	}

	if err := s.records.Save(ctx, record); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			if existing, findErr := s.records.FindBySourceRef(ctx, req.SourceSystem, req.SourceRef); findErr == nil {
				return duplicateAck(existing), nil
			}
		}
		return nil, err
	}

	s.publishEvents(ctx, record)
	s.metrics.RecordIngested(ctx, string(record.Pipeline))
	s.logger.Info("ticket ingested",
		zap.String("correlation_id", record.ID.String()),
		zap.String("source_system", req.SourceSystem),
		zap.String("source_ref", req.SourceRef),
		zap.String("pipeline", string(record.Pipeline)),
		zap.String("urgency", string(record.Urgency)),
	)

	if s.syncDispatch {
		s.dispatchFirstHop(ctx, record.ID)
	} else {
		go s.dispatchFirstHop(context.WithoutCancel(ctx), record.ID)
	}

	return &IngestResponse{
		CorrelationID: record.ID,
		Pipeline:      string(record.Pipeline),
		Urgency:       string(record.Urgency),
		Status:        string(record.Status),
		AutoResolve:   verdict.AutoResolve,
	}, nil
}

// duplicateAck acknowledges a redelivered event with the existing record
func duplicateAck(record *orchestration.CorrelationRecord) *IngestResponse {
	return &IngestResponse{
		CorrelationID: record.ID,
		Pipeline:      string(record.Pipeline),
		Urgency:       string(record.Urgency),
		Status:        string(record.Status),
		AutoResolve:   record.Pipeline.IsAutoResolve(),
		Duplicate:     true,
	}
}

// dispatchFirstHop moves a freshly ingested record to its in-flight station
// and delivers the initial downstream request
func (s *FlowOrchestrator) dispatchFirstHop(ctx context.Context, recordID uuid.UUID) {
	unlock := s.locks.Lock(recordID.String())
	defer unlock()

	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		s.logger.Error("failed to load record for dispatch",
			zap.String("correlation_id", recordID.String()), zap.Error(err))
		return
	}

	hop, ok := firstHop[record.Pipeline]
	if !ok {
		// Manual triage waits for a human operator
		return
	}
	if record.Status != record.Pipeline.InitialStatus() {
		// Already dispatched (e.g., duplicate goroutine after a retry)
		return
	}

	if err := record.TransitionTo(hop.Status, "orchestrator", "dispatched downstream"); err != nil {
		s.logger.Error("first hop transition rejected",
			zap.String("correlation_id", record.ID.String()), zap.Error(err))
		return
	}
	if err := s.records.SaveWithLock(ctx, record); err != nil {
		s.logger.Error("failed to persist first hop",
			zap.String("correlation_id", record.ID.String()), zap.Error(err))
		return
	}
	s.publishEvents(ctx, record)

	s.deliver(ctx, record, hop.Route, hop.Status)
}

// ApplyCallback applies a downstream status update to a record. Updates for
// the same record are serialized; a callback that does not fit the
// pipeline's station graph is rejected without mutating the record.
func (s *FlowOrchestrator) ApplyCallback(ctx context.Context, req CallbackRequest) (*TicketResponse, error) {
	unlock := s.locks.Lock(req.CorrelationID.String())
	defer unlock()

	record, err := s.records.FindByID(ctx, req.CorrelationID)
	if err != nil {
		return nil, err
	}

	actor := req.Actor
	if actor == "" {
		actor = "downstream"
	}

	if err := record.TransitionTo(orchestration.Status(req.NewStatus), actor, req.Notes); err != nil {
		return nil, err
	}

	// Apply automatic follow-ups and collect any downstream hops they carry
	var hops []struct {
		Route  route
		Status orchestration.Status
	}
	for {
		step, ok := autoSteps[record.Status]
		if !ok {
			break
		}
		if err := record.TransitionTo(step.Next, "orchestrator", "automatic follow-up"); err != nil {
			return nil, err
		}
		if step.Route != nil {
			hops = append(hops, struct {
				Route  route
				Status orchestration.Status
			}{Route: *step.Route, Status: step.Next})
		}
	}

	if err := s.records.SaveWithLock(ctx, record); err != nil {
		return nil, err
	}
	s.publishEvents(ctx, record)

	s.logger.Info("callback applied",
		zap.String("correlation_id", record.ID.String()),
		zap.String("status", string(record.Status)),
		zap.String("actor", actor),
	)

	// A failed hop notifies from inside deliver, so decide before running them
	notifyTerminal := record.Status.IsTerminal()
	// Hops outlive the inbound request that carried the callback: a
	// disconnecting caller must not abandon the downstream call mid-flight
	hopCtx := context.WithoutCancel(ctx)
	for _, hop := range hops {
		s.deliver(hopCtx, record, hop.Route, hop.Status)
	}
	if notifyTerminal {
		s.notifyOriginator(hopCtx, record)
	}

	response := ToTicketResponse(record)
	return &response, nil
}

// GetTicket retrieves one correlation record
func (s *FlowOrchestrator) GetTicket(ctx context.Context, id uuid.UUID) (*TicketResponse, error) {
	record, err := s.records.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToTicketResponse(record)
	return &response, nil
}

// ListTickets retrieves correlation records matching the filter
func (s *FlowOrchestrator) ListTickets(ctx context.Context, filter shared.Filter) (shared.Paginated[TicketResponse], error) {
	page, err := s.records.List(ctx, filter)
	if err != nil {
		return shared.Paginated[TicketResponse]{}, err
	}

	items := make([]TicketResponse, 0, len(page.Items))
	for _, record := range page.Items {
		items = append(items, ToTicketResponse(record))
	}
	return shared.NewPaginated(items, page.Total, page.Page, page.PageSize), nil
}

// Resume replays a dead lettered delivery and, when it succeeds, moves the
// failed record back to the station the flow should resume at.
func (s *FlowOrchestrator) Resume(ctx context.Context, entry *resilience.DLQEntry) error {
	err := s.client.Deliver(ctx, DeliveryRequest{
		CorrelationID: entry.CorrelationID,
		Target:        entry.Target,
		Method:        entry.Method,
		Path:          pathFromURL(entry.URL),
		Payload:       entry.Payload,
		ResumeStatus:  entry.ResumeStatus,
		Replay:        true,
	})
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(entry.CorrelationID.String())
	defer unlock()

	record, err := s.records.FindByID(ctx, entry.CorrelationID)
	if err != nil {
		return err
	}
	if record.Status != orchestration.StatusFailed {
		// Record already recovered through another path
		return nil
	}
	if err := record.TransitionTo(entry.ResumeStatus, "admin", "dead letter replay"); err != nil {
		return err
	}
	if err := s.records.SaveWithLock(ctx, record); err != nil {
		return err
	}
	s.publishEvents(ctx, record)
	return nil
}

// deliver sends one downstream hop and parks the record at FAILED when the
// delivery is dead lettered or refused by an open breaker
func (s *FlowOrchestrator) deliver(ctx context.Context, record *orchestration.CorrelationRecord, r route, resumeAt orchestration.Status) {
	payload, err := json.Marshal(map[string]interface{}{
		"correlation_id": record.ID,
		"source_system":  record.SourceSystem,
		"source_ref":     record.SourceRef,
		"subject":        record.Subject,
		"urgency":        record.Urgency,
		"payload":        record.Payload,
	})
	if err != nil {
		s.logger.Error("failed to encode delivery payload",
			zap.String("correlation_id", record.ID.String()), zap.Error(err))
		return
	}

	err = s.client.Deliver(ctx, DeliveryRequest{
		CorrelationID: record.ID,
		Target:        r.Target,
		Method:        http.MethodPost,
		Path:          r.Path,
		Payload:       payload,
		ResumeStatus:  resumeAt,
	})
	if err == nil {
		return
	}

	var breakerErr *resilience.BreakerOpenError
	reason := fmt.Sprintf("delivery to %s failed: %v", r.Target, err)
	if errors.As(err, &breakerErr) {
		reason = fmt.Sprintf("delivery to %s refused: circuit breaker open", r.Target)
	}

	if ferr := record.MarkFailed("orchestrator", reason); ferr != nil {
		s.logger.Error("failed to mark record as failed",
			zap.String("correlation_id", record.ID.String()), zap.Error(ferr))
		return
	}
	if serr := s.records.SaveWithLock(ctx, record); serr != nil {
		s.logger.Error("failed to persist failure",
			zap.String("correlation_id", record.ID.String()), zap.Error(serr))
		return
	}
	s.publishEvents(ctx, record)
	s.notifyOriginator(ctx, record)
}

// notifyOriginator echoes a terminal status back to the system that
// submitted the ticket. The notification is best effort: the ticket
// itself already reached its terminal station.
func (s *FlowOrchestrator) notifyOriginator(ctx context.Context, record *orchestration.CorrelationRecord) {
	payload, err := json.Marshal(map[string]interface{}{
		"correlation_id": record.ID,
		"source_ref":     record.SourceRef,
		"pipeline":       record.Pipeline,
		"status":         record.Status,
	})
	if err != nil {
		s.logger.Error("failed to encode originator notification",
			zap.String("correlation_id", record.ID.String()), zap.Error(err))
		return
	}

	err = s.client.Deliver(ctx, DeliveryRequest{
		CorrelationID: record.ID,
		Target:        record.SourceSystem,
		Method:        http.MethodPost,
		Path:          "/api/v1/status-updates",
		Payload:       payload,
		ResumeStatus:  record.Status,
	})
	if err != nil {
		s.logger.Warn("failed to notify originating system",
			zap.String("correlation_id", record.ID.String()),
			zap.String("source_system", record.SourceSystem),
			zap.Error(err))
	}
}

// publishEvents flushes and publishes the record's pending domain events
func (s *FlowOrchestrator) publishEvents(ctx context.Context, record *orchestration.CorrelationRecord) {
	events := record.GetDomainEvents()
	record.ClearDomainEvents()
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish domain events", zap.Error(err))
	}
}

// pathFromURL strips the scheme and host from a stored delivery URL
func pathFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}
