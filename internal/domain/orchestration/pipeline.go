package orchestration

// PipelineKind identifies which downstream flow a ticket is routed through
type PipelineKind string

const (
	PipelineCaseToWorkOrder  PipelineKind = "CASE_TO_WORKORDER"
	PipelineTicketToApproval PipelineKind = "TICKET_TO_APPROVAL"
	PipelinePasswordReset    PipelineKind = "PASSWORD_RESET"
	PipelineManualTriage     PipelineKind = "MANUAL_TRIAGE"
)

// IsValid checks if the pipeline kind is one of the known kinds
func (k PipelineKind) IsValid() bool {
	switch k {
	case PipelineCaseToWorkOrder, PipelineTicketToApproval, PipelinePasswordReset, PipelineManualTriage:
		return true
	}
	return false
}

// IsAutoResolve reports whether the pipeline completes without human
// involvement once the downstream confirms
func (k PipelineKind) IsAutoResolve() bool {
	return k == PipelinePasswordReset
}

// Status represents a station in a pipeline's flow
type Status string

const (
	// Case-to-workorder stations
	StatusReceived             Status = "RECEIVED"
	StatusPendingMaterialCheck Status = "PENDING_MATERIAL_CHECK"
	StatusMaterialsAvailable   Status = "MATERIALS_AVAILABLE"
	StatusMaterialsShortage    Status = "MATERIALS_SHORTAGE"
	StatusPurchaseRequested    Status = "PURCHASE_REQUESTED"
	StatusPurchaseApproved     Status = "PURCHASE_APPROVED"
	StatusPurchaseRejected     Status = "PURCHASE_REJECTED"
	StatusReadyToProceed       Status = "READY_TO_PROCEED"
	StatusInProgress           Status = "IN_PROGRESS"

	// Round-trip stations shared by approval and password-reset flows
	StatusPending          Status = "PENDING"
	StatusSentToDownstream Status = "SENT_TO_DOWNSTREAM"

	// Manual triage
	StatusAwaitingTriage Status = "AWAITING_TRIAGE"

	// Terminal stations
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether the status accepts no further transitions
// except the administrative resume path out of FAILED
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// caseToWorkOrderTransitions is the station graph for the case-to-workorder flow
var caseToWorkOrderTransitions = map[Status][]Status{
	StatusReceived:             {StatusPendingMaterialCheck},
	StatusPendingMaterialCheck: {StatusMaterialsAvailable, StatusMaterialsShortage},
	StatusMaterialsAvailable:   {StatusReadyToProceed},
	StatusMaterialsShortage:    {StatusPurchaseRequested},
	StatusPurchaseRequested:    {StatusPurchaseApproved, StatusPurchaseRejected},
	StatusPurchaseApproved:     {StatusReadyToProceed},
	StatusPurchaseRejected:     {StatusCancelled},
	StatusReadyToProceed:       {StatusInProgress},
	StatusInProgress:           {StatusCompleted},
	StatusCompleted:            {},
	StatusCancelled:            {},
	StatusFailed:               {StatusReceived, StatusPendingMaterialCheck, StatusMaterialsAvailable, StatusMaterialsShortage, StatusPurchaseRequested, StatusPurchaseApproved, StatusReadyToProceed, StatusInProgress},
}

// roundTripTransitions is the station graph for flows that send one
// request downstream and wait for a completion callback
var roundTripTransitions = map[Status][]Status{
	StatusPending:          {StatusSentToDownstream},
	StatusSentToDownstream: {StatusInProgress, StatusCompleted, StatusFailed},
	StatusInProgress:       {StatusCompleted, StatusFailed},
	StatusCompleted:        {},
	StatusFailed:           {StatusPending, StatusSentToDownstream, StatusInProgress},
}

// manualTriageTransitions holds tickets parked for a human operator
var manualTriageTransitions = map[Status][]Status{
	StatusAwaitingTriage: {StatusCompleted, StatusCancelled},
	StatusCompleted:      {},
	StatusCancelled:      {},
	StatusFailed:         {StatusAwaitingTriage},
}

// pipelineTransitions maps each pipeline kind to its station graph
var pipelineTransitions = map[PipelineKind]map[Status][]Status{
	PipelineCaseToWorkOrder:  caseToWorkOrderTransitions,
	PipelineTicketToApproval: roundTripTransitions,
	PipelinePasswordReset:    roundTripTransitions,
	PipelineManualTriage:     manualTriageTransitions,
}

// InitialStatus returns the station a new record starts at for the given pipeline
func (k PipelineKind) InitialStatus() Status {
	switch k {
	case PipelineCaseToWorkOrder:
		return StatusReceived
	case PipelineTicketToApproval, PipelinePasswordReset:
		return StatusPending
	case PipelineManualTriage:
		return StatusAwaitingTriage
	}
	return StatusAwaitingTriage
}

// CanTransition checks if a status transition is allowed within the pipeline.
// Any non-terminal station may transition to FAILED to record a delivery failure.
func (k PipelineKind) CanTransition(from, to Status) bool {
	if to == StatusFailed && !from.IsTerminal() {
		return true
	}
	graph, ok := pipelineTransitions[k]
	if !ok {
		return false
	}
	for _, allowed := range graph[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
