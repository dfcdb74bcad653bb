package delivery

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"opspulse_backend/platform/httpkit"
)

// Handler exposes the admin delivery endpoints.
type Handler struct {
	repo Repository
}

const msgInvalidID = "invalid endpoint id"

// NewHandler creates a new delivery handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts delivery routes on the provided group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/endpoints", h.ListEndpoints)
	rg.GET("/endpoints/:id/records", h.ListRecords)
	rg.POST("/endpoints/:id/activate", h.Activate)
}

// EndpointResponse is the endpoint representation. The signing secret is
// never returned.
type EndpointResponse struct {
	ID               uuid.UUID  `json:"id"`
	URL              string     `json:"url"`
	SubscribedEvents []string   `json:"subscribedEvents"`
	IsActive         bool       `json:"isActive"`
	FailureCount     int        `json:"failureCount"`
	LastFailureAt    *time.Time `json:"lastFailureAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// RecordResponse is one delivery attempt.
type RecordResponse struct {
	ID         int64     `json:"id"`
	Event      string    `json:"event"`
	StatusCode *int      `json:"statusCode,omitempty"`
	Success    bool      `json:"success"`
	Attempt    int       `json:"attempt"`
	DurationMs int64     `json:"durationMs"`
	BodyHash   string    `json:"bodyHash"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toEndpointResponse(ep Endpoint) EndpointResponse {
	return EndpointResponse{
		ID:               ep.ID,
		URL:              ep.URL,
		SubscribedEvents: ep.SubscribedEvents,
		IsActive:         ep.IsActive,
		FailureCount:     ep.FailureCount,
		LastFailureAt:    ep.LastFailureAt,
		CreatedAt:        ep.CreatedAt,
	}
}

// ListEndpoints returns the tenant's delivery endpoints with health state.
// GET /api/v1/admin/delivery/endpoints
func (h *Handler) ListEndpoints(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	endpoints, err := h.repo.ListEndpoints(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	responses := make([]EndpointResponse, 0, len(endpoints))
	for _, ep := range endpoints {
		responses = append(responses, toEndpointResponse(ep))
	}
	httpkit.OK(c, gin.H{"endpoints": responses})
}

// ListRecords returns recent delivery attempts for an endpoint.
// GET /api/v1/admin/delivery/endpoints/:id/records
func (h *Handler) ListRecords(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	records, err := h.repo.ListRecords(c.Request.Context(), tenantID, id, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	responses := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, RecordResponse{
			ID:         rec.ID,
			Event:      rec.Event,
			StatusCode: rec.StatusCode,
			Success:    rec.Success,
			Attempt:    rec.Attempt,
			DurationMs: rec.DurationMs,
			BodyHash:   rec.BodyHash,
			CreatedAt:  rec.CreatedAt,
		})
	}
	httpkit.OK(c, gin.H{"records": responses})
}

// Activate re-enables a suspended endpoint and resets its failure count.
// POST /api/v1/admin/delivery/endpoints/:id/activate
func (h *Handler) Activate(c *gin.Context) {
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

	ep, err := h.repo.Activate(c.Request.Context(), tenantID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toEndpointResponse(*ep))
}

func mustGetTenantID(c *gin.Context, identity httpkit.Identity) (uuid.UUID, bool) {
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return uuid.UUID{}, false
	}
	return *tenantID, true
}
