package handler

import (
	"github.com/gin-gonic/gin"
	orchapp "github.com/ipaas/backend/internal/application/orchestration"
)

// WebhookHandler handles inbound webhook ingestion endpoints
type WebhookHandler struct {
	BaseHandler
	orchestrator *orchapp.FlowOrchestrator
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(orchestrator *orchapp.FlowOrchestrator) *WebhookHandler {
	return &WebhookHandler{
		orchestrator: orchestrator,
	}
}

// IngestWebhookRequest represents an inbound webhook event body. The source
// system is taken from the URL path, not the body.
// @Description Request body for webhook ingestion
type IngestWebhookRequest struct {
	ID               string                 `json:"id" binding:"required,min=1,max=200" example:"TICKET-4821"`
	Category         string                 `json:"category" binding:"max=100" example:"incident"`
	Subcategory      string                 `json:"subcategory" binding:"max=100" example:"Hardware"`
	ShortDescription string                 `json:"short_description" binding:"max=500" example:"Conveyor belt motor failure"`
	Description      string                 `json:"description" example:"Line 3 stopped, motor overheating"`
	Priority         string                 `json:"priority" binding:"max=50" example:"critical"`
	Payload          map[string]interface{} `json:"payload"`
}

// Ingest godoc
// @Summary      Ingest a webhook event
// @Description  Accepts an event from a source system, classifies it and starts the matching flow. Redelivery of the same event id is acknowledged without starting a second flow.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        source path string true "Source system name"
// @Param        request body IngestWebhookRequest true "Webhook event"
// @Success      202 {object} dto.Response{data=orchestration.IngestResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /webhook/{source} [post]
func (h *WebhookHandler) Ingest(c *gin.Context) {
	source := c.Param("source")
	if source == "" {
		h.BadRequest(c, "Source system is required")
		return
	}

	var req IngestWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	appReq := orchapp.IngestRequest{
		SourceSystem: source,
		SourceRef:    req.ID,
		Category:     req.Category,
		Subcategory:  req.Subcategory,
		Subject:      req.ShortDescription,
		Description:  req.Description,
		Priority:     req.Priority,
		Payload:      req.Payload,
	}

	resp, err := h.orchestrator.Ingest(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, resp)
}
