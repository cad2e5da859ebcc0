package classification

import (
	"strings"

	"github.com/ipaas/backend/internal/domain/orchestration"
)

// Ticket is the normalized inbound event handed to the classifier
type Ticket struct {
	SourceSystem string
	SourceRef    string
	Category     string
	Subcategory  string
	Subject      string
	Description  string
	Priority     string
	Payload      map[string]interface{}
}

// Result is the classifier's verdict for a ticket
type Result struct {
	Pipeline orchestration.PipelineKind
	Urgency  orchestration.Urgency
	// AutoResolve marks flows the platform completes without human
	// involvement once the downstream confirms
	AutoResolve bool
}

// Classifier decides which pipeline a ticket belongs to and how urgent it is.
// Classification is total: any ticket that matches no rule falls back to
// manual triage rather than being rejected.
type Classifier struct {
	rules []rule
}

type rule struct {
	matches func(t *Ticket) bool
	result  Result
}

// NewClassifier creates a classifier with the built-in rule table
func NewClassifier() *Classifier {
	return &Classifier{
		rules: []rule{
			{
				matches: func(t *Ticket) bool {
					return strings.EqualFold(t.Subcategory, "password reset") ||
						containsAny(t, "password reset", "password expired", "account locked")
				},
				result: Result{
					Pipeline:    orchestration.PipelinePasswordReset,
					Urgency:     orchestration.UrgencyNormal,
					AutoResolve: true,
				},
			},
			{
				matches: func(t *Ticket) bool {
					category := strings.ToLower(t.Category)
					return category == "incident" || category == "case" ||
						containsAny(t, "equipment failure", "machine down", "hardware fault")
				},
				result: Result{
					Pipeline: orchestration.PipelineCaseToWorkOrder,
					Urgency:  orchestration.UrgencyHigh,
				},
			},
			{
				matches: func(t *Ticket) bool {
					category := strings.ToLower(t.Category)
					return category == "request" || category == "change" ||
						containsAny(t, "access request", "approval needed", "license request")
				},
				result: Result{
					Pipeline: orchestration.PipelineTicketToApproval,
					Urgency:  orchestration.UrgencyNormal,
				},
			},
		},
	}
}

// Classify returns the pipeline and urgency for a ticket.
// It never fails: unmatched tickets go to manual triage.
func (c *Classifier) Classify(t *Ticket) Result {
	for _, r := range c.rules {
		if r.matches(t) {
			result := r.result
			result.Urgency = adjustUrgency(result.Urgency, t.Priority)
			return result
		}
	}
	return Result{
		Pipeline: orchestration.PipelineManualTriage,
		Urgency:  adjustUrgency(orchestration.UrgencyLow, t.Priority),
	}
}

// adjustUrgency lets an explicit source priority raise the rule's default
func adjustUrgency(base orchestration.Urgency, priority string) orchestration.Urgency {
	switch strings.ToLower(priority) {
	case "critical", "urgent", "high", "p1":
		return orchestration.UrgencyHigh
	case "low", "p4", "p5":
		if base == orchestration.UrgencyHigh {
			return base
		}
		return orchestration.UrgencyLow
	}
	return base
}

func containsAny(t *Ticket, phrases ...string) bool {
	subject := strings.ToLower(t.Subject)
	description := strings.ToLower(t.Description)
	for _, p := range phrases {
		if strings.Contains(subject, p) || strings.Contains(description, p) {
			return true
		}
	}
	return false
}
