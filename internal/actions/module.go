// Package actions provides the action lifecycle bounded context module.
package actions

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/internal/actions/handler"
	"opspulse_backend/internal/actions/repository"
	"opspulse_backend/internal/actions/service"
	"opspulse_backend/internal/events"
	"opspulse_backend/internal/features"
	apphttp "opspulse_backend/internal/http"
	"opspulse_backend/internal/identity"
	"opspulse_backend/internal/notification"
	"opspulse_backend/platform/config"
	"opspulse_backend/platform/logger"
	"opspulse_backend/platform/validator"
)

// Module is the actions bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	service  *service.Service
	proposer *service.Proposer
}

// NewModule creates and wires the actions module.
func NewModule(
	pool *pgxpool.Pool,
	eventBus events.Bus,
	insights service.InsightReader,
	notifier *notification.Notifier,
	resolver identity.Resolver,
	gate features.Gate,
	audit service.AuditSink,
	val *validator.Validator,
	log *logger.Logger,
	cfg config.EngineConfig,
) *Module {
	repo := repository.NewRepo(pool)
	targets := repository.NewTargets(pool)

	registry := service.NewRegistry(notifier, resolver, targets, time.Now)
	svc := service.NewService(repo, registry, eventBus, audit, log, cfg)
	proposer := service.NewProposer(repo, insights, targets, gate, eventBus, log, cfg)
	h := handler.New(svc, proposer, val)

	return &Module{handler: h, service: svc, proposer: proposer}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "actions"
}

// Service returns the lifecycle service for the scheduler.
func (m *Module) Service() *service.Service {
	return m.service
}

// Proposer returns the proposal cycle runner for the scheduler.
func (m *Module) Proposer() *service.Proposer {
	return m.proposer
}

// RegisterRoutes mounts actions routes on the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/actions")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
