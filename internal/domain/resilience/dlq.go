package resilience

import (
	"time"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/orchestration"
	"github.com/ipaas/backend/internal/domain/shared"
)

// DLQStatus is the review state of a dead letter entry
type DLQStatus string

const (
	DLQStatusPendingReview DLQStatus = "PENDING_REVIEW"
	DLQStatusRetrying      DLQStatus = "RETRYING"
	DLQStatusResolved      DLQStatus = "RESOLVED"
)

// DLQEntry captures a downstream delivery that exhausted its retries.
// It carries everything needed to replay the delivery later: the target,
// the original request payload and the station the flow should resume at.
type DLQEntry struct {
	shared.BaseAggregateRoot
	CorrelationID uuid.UUID
	Target        string
	Method        string
	URL           string
	Payload       []byte
	LastError     string
	RetryCount    int
	Status        DLQStatus
	ResumeStatus  orchestration.Status
	FailedAt      time.Time
}

// NewDLQEntry creates a dead letter entry pending review. retryCount
// records how many delivery attempts were spent before capture; admin
// replays increment it further.
func NewDLQEntry(correlationID uuid.UUID, target, method, url string, payload []byte, lastError string, retryCount int, resumeStatus orchestration.Status) *DLQEntry {
	return &DLQEntry{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CorrelationID:     correlationID,
		Target:            target,
		Method:            method,
		URL:               url,
		Payload:           payload,
		LastError:         lastError,
		RetryCount:        retryCount,
		Status:            DLQStatusPendingReview,
		ResumeStatus:      resumeStatus,
		FailedAt:          time.Now(),
	}
}

// MarkRetrying moves the entry into the retrying state.
// Only entries pending review can be retried.
func (e *DLQEntry) MarkRetrying() error {
	if e.Status != DLQStatusPendingReview {
		return shared.NewDomainError("INVALID_STATE", "Only entries pending review can be retried")
	}
	e.Status = DLQStatusRetrying
	e.Touch()
	return nil
}

// MarkResolved closes the entry after a successful replay or manual resolution
func (e *DLQEntry) MarkResolved() error {
	if e.Status == DLQStatusResolved {
		return shared.NewDomainError("INVALID_STATE", "Entry is already resolved")
	}
	e.Status = DLQStatusResolved
	e.Touch()
	return nil
}

// MarkRetryFailed returns a retrying entry to review after a failed replay
func (e *DLQEntry) MarkRetryFailed(lastError string) error {
	if e.Status != DLQStatusRetrying {
		return shared.NewDomainError("INVALID_STATE", "Entry is not being retried")
	}
	e.Status = DLQStatusPendingReview
	e.LastError = lastError
	e.RetryCount++
	e.Touch()
	return nil
}
