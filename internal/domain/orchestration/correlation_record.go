package orchestration

import (
	"fmt"
	"time"

	"github.com/ipaas/backend/internal/domain/shared"
)

// Urgency expresses how quickly a ticket should be acted on
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyNormal Urgency = "NORMAL"
	UrgencyHigh   Urgency = "HIGH"
)

// IsValid checks if the urgency is one of the known levels
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh:
		return true
	}
	return false
}

// TransitionEntry is one step of a record's append-only history
type TransitionEntry struct {
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CorrelationRecord is the aggregate root tracking one ticket across systems.
// It carries the source reference, the classified pipeline, the current
// station and the full transition history.
type CorrelationRecord struct {
	shared.BaseAggregateRoot
	SourceSystem string
	SourceRef    string
	Pipeline     PipelineKind
	Urgency      Urgency
	Status       Status
	Subject      string
	Payload      map[string]interface{}
	History      []TransitionEntry
}

// NewCorrelationRecord creates a record at the pipeline's initial station
// with an empty history
func NewCorrelationRecord(sourceSystem, sourceRef string, pipeline PipelineKind, urgency Urgency, subject string, payload map[string]interface{}) (*CorrelationRecord, error) {
	if sourceSystem == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Source system is required")
	}
	if sourceRef == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Source reference is required")
	}
	if !pipeline.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown pipeline kind: %s", pipeline))
	}
	if !urgency.IsValid() {
		urgency = UrgencyNormal
	}

	record := &CorrelationRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SourceSystem:      sourceSystem,
		SourceRef:         sourceRef,
		Pipeline:          pipeline,
		Urgency:           urgency,
		Status:            pipeline.InitialStatus(),
		Subject:           subject,
		Payload:           payload,
		History:           make([]TransitionEntry, 0),
	}

	record.AddDomainEvent(NewTicketIngestedEvent(record))
	return record, nil
}

// TransitionTo moves the record to a new station. This is the only mutation
// path for Status and History: the transition is validated against the
// pipeline's station graph, appended to the history and the current status
// updated in the same step, so the last history entry always matches Status.
func (r *CorrelationRecord) TransitionTo(to Status, actor, reason string) error {
	if !r.Pipeline.CanTransition(r.Status, to) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot transition from %s to %s in pipeline %s", r.Status, to, r.Pipeline))
	}

	entry := TransitionEntry{
		FromStatus: r.Status,
		ToStatus:   to,
		Actor:      actor,
		Reason:     reason,
		OccurredAt: time.Now(),
	}
	from := r.Status
	r.History = append(r.History, entry)
	r.Status = to
	r.Touch()

	r.AddDomainEvent(NewTicketTransitionedEvent(r, from, to, actor))
	if to.IsTerminal() {
		r.AddDomainEvent(NewTicketClosedEvent(r))
	}
	return nil
}

// MarkFailed records a delivery failure, parking the record at FAILED
func (r *CorrelationRecord) MarkFailed(actor, reason string) error {
	return r.TransitionTo(StatusFailed, actor, reason)
}

// IsClosed reports whether the record reached a terminal station
func (r *CorrelationRecord) IsClosed() bool {
	return r.Status.IsTerminal()
}
