// Package handler exposes the insights HTTP endpoints.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"opspulse_backend/internal/insights/domain"
	"opspulse_backend/internal/insights/repository"
	"opspulse_backend/internal/insights/service"
	"opspulse_backend/internal/insights/transport"
	"opspulse_backend/platform/httpkit"
	"opspulse_backend/platform/validator"
)

// Handler handles HTTP requests for insights.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid insight id"
)

// New creates a new insights handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts insights routes on the provided group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("/cycle", h.RunCycle)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/resolve", h.Resolve)
}

// RunCycle triggers one insight cycle for the caller's tenant.
// POST /api/v1/insights/cycle
func (h *Handler) RunCycle(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.svc.RunInsightCycle(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.CycleResponse{Created: result.Created, Resolved: result.Resolved})
}

// List returns open insights ordered by severity, score impact, recency.
// GET /api/v1/insights
func (h *Handler) List(c *gin.Context) {
	var req transport.ListInsightsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	params := repository.ListOpenParams{Limit: req.Limit, Offset: req.Offset}
	if req.Kind != "" {
		kind := domain.Kind(req.Kind)
		params.Kind = &kind
	}
	if req.MinSeverity != "" {
		if severity, ok := domain.ParseSeverity(req.MinSeverity); ok {
			params.MinSeverity = &severity
		}
	}

	insights, total, err := h.svc.ListOpenInsights(c.Request.Context(), tenantID, params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ListInsightsResponse{
		Insights: transport.ToInsightResponses(insights),
		Total:    total,
	})
}

// GetByID returns a single insight.
// GET /api/v1/insights/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	ins, err := h.svc.GetInsight(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToInsightResponse(*ins))
}

// Resolve marks an insight resolved by the caller.
// POST /api/v1/insights/:id/resolve
func (h *Handler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.ResolveInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	ins, err := h.svc.ResolveInsight(c.Request.Context(), tenantID, id, identity.UserID(), req.Note)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToInsightResponse(*ins))
}

func mustGetTenantID(c *gin.Context, identity httpkit.Identity) (uuid.UUID, bool) {
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return uuid.UUID{}, false
	}
	return *tenantID, true
}
