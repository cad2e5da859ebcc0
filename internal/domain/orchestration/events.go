package orchestration

import (
	"github.com/ipaas/backend/internal/domain/shared"
)

// Event types for the orchestration domain
const (
	EventTicketIngested     = "orchestration.ticket.ingested"
	EventTicketTransitioned = "orchestration.ticket.transitioned"
	EventTicketClosed       = "orchestration.ticket.closed"
)

// TicketIngestedEvent is raised when a webhook is accepted and a new
// correlation record created
type TicketIngestedEvent struct {
	shared.BaseDomainEvent
	SourceSystem string       `json:"source_system"`
	SourceRef    string       `json:"source_ref"`
	Pipeline     PipelineKind `json:"pipeline"`
	Urgency      Urgency      `json:"urgency"`
}

// NewTicketIngestedEvent creates a new ticket ingested event
func NewTicketIngestedEvent(record *CorrelationRecord) *TicketIngestedEvent {
	return &TicketIngestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTicketIngested, "CorrelationRecord", record.ID),
		SourceSystem:    record.SourceSystem,
		SourceRef:       record.SourceRef,
		Pipeline:        record.Pipeline,
		Urgency:         record.Urgency,
	}
}

// TicketTransitionedEvent is raised on every station change
type TicketTransitionedEvent struct {
	shared.BaseDomainEvent
	Pipeline   PipelineKind `json:"pipeline"`
	FromStatus Status       `json:"from_status"`
	ToStatus   Status       `json:"to_status"`
	Actor      string       `json:"actor"`
}

// NewTicketTransitionedEvent creates a new ticket transitioned event
func NewTicketTransitionedEvent(record *CorrelationRecord, from, to Status, actor string) *TicketTransitionedEvent {
	return &TicketTransitionedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTicketTransitioned, "CorrelationRecord", record.ID),
		Pipeline:        record.Pipeline,
		FromStatus:      from,
		ToStatus:        to,
		Actor:           actor,
	}
}

// TicketClosedEvent is raised when a record reaches a terminal station
type TicketClosedEvent struct {
	shared.BaseDomainEvent
	Pipeline    PipelineKind `json:"pipeline"`
	FinalStatus Status       `json:"final_status"`
}

// NewTicketClosedEvent creates a new ticket closed event
func NewTicketClosedEvent(record *CorrelationRecord) *TicketClosedEvent {
	return &TicketClosedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTicketClosed, "CorrelationRecord", record.ID),
		Pipeline:        record.Pipeline,
		FinalStatus:     record.Status,
	}
}
