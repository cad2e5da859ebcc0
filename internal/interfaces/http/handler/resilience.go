package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	resapp "github.com/ipaas/backend/internal/application/resilience"
	"github.com/ipaas/backend/internal/domain/shared"
	"github.com/ipaas/backend/internal/interfaces/http/dto"
)

// ResilienceHandler handles breaker and dead letter administration endpoints
type ResilienceHandler struct {
	BaseHandler
	adminService *resapp.AdminService
}

// NewResilienceHandler creates a new ResilienceHandler
func NewResilienceHandler(adminService *resapp.AdminService) *ResilienceHandler {
	return &ResilienceHandler{
		adminService: adminService,
	}
}

// ListBreakers godoc
// @Summary      Circuit breaker status
// @Description  Returns the current state of the downstream circuit breakers, optionally narrowed to one target
// @Tags         resilience
// @Produce      json
// @Param        target query string false "Downstream target name"
// @Success      200 {object} dto.Response{data=[]resilience.BreakerResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /resilience/circuit-breaker [get]
func (h *ResilienceHandler) ListBreakers(c *gin.Context) {
	if target := c.Query("target"); target != "" {
		resp, err := h.adminService.BreakerStatus(c.Request.Context(), target)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, resp)
		return
	}
	h.Success(c, h.adminService.ListBreakers(c.Request.Context()))
}

// ResetBreakerRequest names the downstream target whose breaker to reset
type ResetBreakerRequest struct {
	Target string `json:"target" binding:"required" example:"workorder"`
}

// ResetBreaker godoc
// @Summary      Reset a circuit breaker
// @Description  Forces the breaker for a downstream target back to closed, clearing its counters
// @Tags         resilience
// @Accept       json
// @Produce      json
// @Param        request body ResetBreakerRequest true "Target to reset"
// @Success      204 "breaker reset"
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /resilience/circuit-breaker/reset [post]
func (h *ResilienceHandler) ResetBreaker(c *gin.Context) {
	var req ResetBreakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if err := h.adminService.ResetBreaker(c.Request.Context(), req.Target); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// DLQListRequest represents dead letter list query parameters
type DLQListRequest struct {
	dto.ListRequest
	Status string `form:"status" binding:"omitempty,oneof=PENDING_REVIEW RETRYING RESOLVED"`
	Target string `form:"target"`
}

// ListDLQ godoc
// @Summary      List dead letter entries
// @Description  Lists dead lettered deliveries with optional status and target filters
// @Tags         resilience
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        status query string false "Filter by review status" Enums(PENDING_REVIEW, RETRYING, RESOLVED)
// @Param        target query string false "Filter by downstream target"
// @Success      200 {object} dto.Response{data=[]resilience.DLQEntryResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /resilience/dlq/messages [get]
func (h *ResilienceHandler) ListDLQ(c *gin.Context) {
	req := DLQListRequest{ListRequest: dto.DefaultListRequest()}
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
	if req.Status != "" {
		filter.Filters["status"] = req.Status
	}
	if req.Target != "" {
		filter.Filters["target"] = req.Target
	}

	page, err := h.adminService.ListDLQ(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// GetDLQEntry godoc
// @Summary      Get a dead letter entry
// @Tags         resilience
// @Produce      json
// @Param        id path string true "Dead letter entry ID"
// @Success      200 {object} dto.Response{data=resilience.DLQEntryResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /resilience/dlq/messages/{id} [get]
func (h *ResilienceHandler) GetDLQEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid dead letter entry ID format")
		return
	}

	resp, err := h.adminService.GetDLQEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// RetryDLQEntry godoc
// @Summary      Retry a dead letter entry
// @Description  Replays the dead lettered delivery. On success the entry is resolved and the owning flow resumes; on failure the entry returns to review with the attempt counted.
// @Tags         resilience
// @Produce      json
// @Param        id path string true "Dead letter entry ID"
// @Success      200 {object} dto.Response{data=resilience.DLQEntryResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /resilience/dlq/messages/{id}/retry [post]
func (h *ResilienceHandler) RetryDLQEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid dead letter entry ID format")
		return
	}

	resp, err := h.adminService.RetryEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// ResolveDLQEntry godoc
// @Summary      Resolve a dead letter entry
// @Description  Closes the entry without replaying it
// @Tags         resilience
// @Produce      json
// @Param        id path string true "Dead letter entry ID"
// @Success      200 {object} dto.Response{data=resilience.DLQEntryResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /resilience/dlq/messages/{id}/resolve [post]
func (h *ResilienceHandler) ResolveDLQEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid dead letter entry ID format")
		return
	}

	resp, err := h.adminService.ResolveEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Status godoc
// @Summary      Resilience status
// @Description  Summarizes breaker states, dead letter queue depth and degraded targets
// @Tags         resilience
// @Produce      json
// @Success      200 {object} dto.Response{data=resilience.OverviewResponse}
// @Router       /resilience/status [get]
func (h *ResilienceHandler) Status(c *gin.Context) {
	resp, err := h.adminService.Overview(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Metrics godoc
// @Summary      Resilience metrics
// @Description  Reports dead letter queue counts by review state and per-target breaker counters. Resolved entries are excluded from the pending count.
// @Tags         resilience
// @Produce      json
// @Success      200 {object} dto.Response{data=resilience.MetricsResponse}
// @Router       /resilience/metrics [get]
func (h *ResilienceHandler) Metrics(c *gin.Context) {
	resp, err := h.adminService.Metrics(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
