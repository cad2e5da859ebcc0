package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	orchapp "github.com/ipaas/backend/internal/application/orchestration"
)

// CallbackHandler handles downstream status callback endpoints
type CallbackHandler struct {
	BaseHandler
	orchestrator *orchapp.FlowOrchestrator
}

// NewCallbackHandler creates a new CallbackHandler
func NewCallbackHandler(orchestrator *orchapp.FlowOrchestrator) *CallbackHandler {
	return &CallbackHandler{
		orchestrator: orchestrator,
	}
}

// StatusCallbackRequest represents a downstream status update body
// @Description Request body for downstream status callbacks
type StatusCallbackRequest struct {
	CorrelationID string `json:"correlation_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	NewStatus     string `json:"new_status" binding:"required" example:"MATERIALS_AVAILABLE"`
	Actor         string `json:"actor" binding:"max=100" example:"workorder"`
	Notes         string `json:"notes" binding:"max=500" example:"stock check passed"`
}

// Apply godoc
// @Summary      Apply a downstream status callback
// @Description  Advances the correlated flow to the reported status. Out-of-order callbacks are rejected; automatic follow-up steps run before the response is returned.
// @Tags         callbacks
// @Accept       json
// @Produce      json
// @Param        source path string true "Downstream system name"
// @Param        request body StatusCallbackRequest true "Status callback"
// @Success      200 {object} dto.Response{data=orchestration.TicketResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /callback/{source} [post]
func (h *CallbackHandler) Apply(c *gin.Context) {
	var req StatusCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	correlationID, err := uuid.Parse(req.CorrelationID)
	if err != nil {
		h.BadRequest(c, "Invalid correlation ID format")
		return
	}

	// The URL names the downstream system; an explicit actor in the body wins
	actor := req.Actor
	if actor == "" {
		actor = c.Param("source")
	}

	resp, err := h.orchestrator.ApplyCallback(c.Request.Context(), orchapp.CallbackRequest{
		CorrelationID: correlationID,
		NewStatus:     req.NewStatus,
		Actor:         actor,
		Notes:         req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}
