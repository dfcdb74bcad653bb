// Package handler exposes the actions HTTP endpoints.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"opspulse_backend/internal/actions/domain"
	"opspulse_backend/internal/actions/repository"
	"opspulse_backend/internal/actions/service"
	"opspulse_backend/internal/actions/transport"
	"opspulse_backend/platform/httpkit"
	"opspulse_backend/platform/validator"
)

// Handler handles HTTP requests for actions.
type Handler struct {
	svc      *service.Service
	proposer *service.Proposer
	val      *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid action id"
)

// New creates a new actions handler.
func New(svc *service.Service, proposer *service.Proposer, val *validator.Validator) *Handler {
	return &Handler{svc: svc, proposer: proposer, val: val}
}

// RegisterRoutes mounts actions routes on the provided group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("/cycle", h.RunProposalCycle)
	rg.GET("/:id", h.GetByID)
	rg.POST("/:id/approve", h.Approve)
	rg.POST("/:id/execute", h.Execute)
	rg.POST("/:id/undo", h.Undo)
}

// RunProposalCycle derives fresh proposals from open insights.
// POST /api/v1/actions/cycle
func (h *Handler) RunProposalCycle(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	summary, err := h.proposer.RunProposalCycle(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ProposalCycleResponse{
		Created:   summary.Created,
		Skipped:   summary.Skipped,
		TotalOpen: summary.TotalOpen,
	})
}

// List returns actions, optionally filtered by status.
// GET /api/v1/actions
func (h *Handler) List(c *gin.Context) {
	var req transport.ListActionsRequest
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

	params := repository.ListParams{Limit: req.Limit, Offset: req.Offset}
	if req.Status != "" {
		status := domain.Status(req.Status)
		params.Status = &status
	}

	actions, total, err := h.svc.ListActions(c.Request.Context(), tenantID, params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ListActionsResponse{
		Actions: transport.ToActionResponses(actions),
		Total:   total,
	})
}

// GetByID returns a single action.
// GET /api/v1/actions/:id
func (h *Handler) GetByID(c *gin.Context) {
	h.withAction(c, h.svc.GetAction)
}

// Approve transitions a PROPOSED action to APPROVED.
// POST /api/v1/actions/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	h.transition(c, h.svc.Approve)
}

// Execute runs an APPROVED action's per-kind executor.
// POST /api/v1/actions/:id/execute
func (h *Handler) Execute(c *gin.Context) {
	h.transition(c, h.svc.Execute)
}

// Undo compensates an EXECUTED action inside its undo window.
// POST /api/v1/actions/:id/undo
func (h *Handler) Undo(c *gin.Context) {
	h.transition(c, h.svc.Undo)
}

func (h *Handler) withAction(c *gin.Context, fn func(ctx context.Context, tenantID, id uuid.UUID) (*domain.Action, error)) {
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

	action, err := fn(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToActionResponse(*action))
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, tenantID, id uuid.UUID, actor service.Actor) (*domain.Action, error)) {
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

	actor := service.Actor{ID: identity.UserID(), Roles: identity.Roles()}
	action, err := fn(c.Request.Context(), tenantID, id, actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToActionResponse(*action))
}

func mustGetTenantID(c *gin.Context, identity httpkit.Identity) (uuid.UUID, bool) {
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return uuid.UUID{}, false
	}
	return *tenantID, true
}
