// Package insights provides the insight engine bounded context module.
package insights

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/internal/events"
	apphttp "opspulse_backend/internal/http"
	"opspulse_backend/internal/insights/handler"
	"opspulse_backend/internal/insights/repository"
	"opspulse_backend/internal/insights/service"
	"opspulse_backend/platform/logger"
	"opspulse_backend/platform/validator"
)

// Module is the insights bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repo
}

// NewModule creates and wires the insights module.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, audit service.AuditSink, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.NewRepo(pool)
	svc := service.NewService(repo, eventBus, audit, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "insights"
}

// Service returns the insight service for the scheduler and other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes the insight repository for cross-context adapters.
func (m *Module) Repository() *repository.Repo {
	return m.repo
}

// RegisterRoutes mounts insights routes on the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/insights")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
