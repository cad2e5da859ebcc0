package orchestration

import (
	"time"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/orchestration"
)

// IngestRequest is a normalized inbound webhook event
type IngestRequest struct {
	SourceSystem string                 `json:"source_system" binding:"required"`
	SourceRef    string                 `json:"source_ref" binding:"required"`
	Category     string                 `json:"category"`
	Subcategory  string                 `json:"subcategory"`
	Subject      string                 `json:"short_description"`
	Description  string                 `json:"description"`
	Priority     string                 `json:"priority"`
	Payload      map[string]interface{} `json:"payload"`
}

// CallbackRequest is a status update from a downstream system
type CallbackRequest struct {
	CorrelationID uuid.UUID `json:"correlation_id" binding:"required"`
	NewStatus     string    `json:"new_status" binding:"required"`
	Actor         string    `json:"actor"`
	Notes         string    `json:"notes"`
}

// TransitionResponse is one history entry in API responses
type TransitionResponse struct {
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TicketResponse is the API shape of a correlation record
type TicketResponse struct {
	ID           uuid.UUID            `json:"id"`
	SourceSystem string               `json:"source_system"`
	SourceRef    string               `json:"source_ref"`
	Pipeline     string               `json:"pipeline"`
	Urgency      string               `json:"urgency"`
	Status       string               `json:"status"`
	Subject      string               `json:"subject,omitempty"`
	History      []TransitionResponse `json:"history"`
	Version      int                  `json:"version"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// ToTicketResponse maps a correlation record to its API shape
func ToTicketResponse(record *orchestration.CorrelationRecord) TicketResponse {
	history := make([]TransitionResponse, 0, len(record.History))
	for _, entry := range record.History {
		history = append(history, TransitionResponse{
			FromStatus: string(entry.FromStatus),
			ToStatus:   string(entry.ToStatus),
			Actor:      entry.Actor,
			Reason:     entry.Reason,
			OccurredAt: entry.OccurredAt,
		})
	}
	return TicketResponse{
		ID:           record.ID,
		SourceSystem: record.SourceSystem,
		SourceRef:    record.SourceRef,
		Pipeline:     string(record.Pipeline),
		Urgency:      string(record.Urgency),
		Status:       string(record.Status),
		Subject:      record.Subject,
		History:      history,
		Version:      record.Version,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

// IngestResponse acknowledges an accepted webhook
type IngestResponse struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	Pipeline      string    `json:"pipeline"`
	Urgency       string    `json:"urgency"`
	Status        string    `json:"status"`
	AutoResolve   bool      `json:"auto_resolve"`
	Duplicate     bool      `json:"duplicate"`
}
