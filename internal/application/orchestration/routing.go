package orchestration

import (
	"github.com/ipaas/backend/internal/domain/orchestration"
)

// route describes the downstream hop taken when a record reaches a station
type route struct {
	Target string
	Path   string
}

// firstHop maps each pipeline to the station and downstream call of its
// initial dispatch. Manual triage has no downstream hop.
var firstHop = map[orchestration.PipelineKind]struct {
	Status orchestration.Status
	Route  route
}{
	orchestration.PipelineCaseToWorkOrder: {
		Status: orchestration.StatusPendingMaterialCheck,
		Route:  route{Target: "workorder", Path: "/api/v1/workorders"},
	},
	orchestration.PipelineTicketToApproval: {
		Status: orchestration.StatusSentToDownstream,
		Route:  route{Target: "approval", Path: "/api/v1/approvals"},
	},
	orchestration.PipelinePasswordReset: {
		Status: orchestration.StatusSentToDownstream,
		Route:  route{Target: "identity", Path: "/api/v1/password-resets"},
	},
}

// autoStep is a follow-up the orchestrator applies on its own after a
// callback lands the record at a station. A step may carry another
// downstream hop.
type autoStep struct {
	Next  orchestration.Status
	Route *route
}

// autoSteps maps case-to-workorder decision stations to their automatic
// follow-up. Material shortages trigger a purchase request to the approval
// system; resolved decisions advance to the next station.
var autoSteps = map[orchestration.Status]autoStep{
	orchestration.StatusMaterialsAvailable: {
		Next: orchestration.StatusReadyToProceed,
	},
	orchestration.StatusMaterialsShortage: {
		Next:  orchestration.StatusPurchaseRequested,
		Route: &route{Target: "approval", Path: "/api/v1/purchase-requests"},
	},
	orchestration.StatusPurchaseApproved: {
		Next: orchestration.StatusReadyToProceed,
	},
	orchestration.StatusPurchaseRejected: {
		Next: orchestration.StatusCancelled,
	},
}
