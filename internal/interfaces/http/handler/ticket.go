package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	orchapp "github.com/ipaas/backend/internal/application/orchestration"
	"github.com/ipaas/backend/internal/domain/shared"
	"github.com/ipaas/backend/internal/interfaces/http/dto"
)

// TicketHandler handles correlation record query endpoints
type TicketHandler struct {
	BaseHandler
	orchestrator *orchapp.FlowOrchestrator
}

// NewTicketHandler creates a new TicketHandler
func NewTicketHandler(orchestrator *orchapp.FlowOrchestrator) *TicketHandler {
	return &TicketHandler{
		orchestrator: orchestrator,
	}
}

// TicketListRequest represents ticket list query parameters
type TicketListRequest struct {
	dto.ListRequest
	Pipeline     string `form:"pipeline"`
	Status       string `form:"status"`
	SourceSystem string `form:"source_system"`
}

// List godoc
// @Summary      List tickets
// @Description  Lists correlation records with optional pipeline, status and source system filters
// @Tags         tickets
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        pipeline query string false "Filter by pipeline kind"
// @Param        status query string false "Filter by current status"
// @Param        source_system query string false "Filter by source system"
// @Success      200 {object} dto.Response{data=[]orchestration.TicketResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /tickets [get]
func (h *TicketHandler) List(c *gin.Context) {
	req := TicketListRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Filters:  make(map[string]interface{}),
	}
	if req.Pipeline != "" {
		filter.Filters["pipeline"] = req.Pipeline
	}
	if req.Status != "" {
		filter.Filters["status"] = req.Status
	}
	if req.SourceSystem != "" {
		filter.Filters["source_system"] = req.SourceSystem
	}

	page, err := h.orchestrator.ListTickets(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get godoc
// @Summary      Get a ticket
// @Description  Returns one correlation record with its full transition history
// @Tags         tickets
// @Produce      json
// @Param        id path string true "Correlation record ID"
// @Success      200 {object} dto.Response{data=orchestration.TicketResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /tickets/{id} [get]
func (h *TicketHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid ticket ID format")
		return
	}

	resp, err := h.orchestrator.GetTicket(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}
