package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/internal/events"
	apphttp "opspulse_backend/internal/http"
	"opspulse_backend/platform/config"
	"opspulse_backend/platform/logger"
)

// Module is the delivery subsystem module implementing http.Module. It
// bridges the in-process event bus to tenant webhook endpoints.
type Module struct {
	handler    *Handler
	dispatcher *Dispatcher
}

// NewModule creates and wires the delivery module.
func NewModule(pool *pgxpool.Pool, cfg config.DeliveryConfig, log *logger.Logger) *Module {
	repo := NewRepo(pool)
	dispatcher := NewDispatcher(repo, log, cfg)
	return &Module{handler: NewHandler(repo), dispatcher: dispatcher}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "delivery"
}

// Dispatcher exposes the dispatcher for shutdown draining.
func (m *Module) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// RegisterRoutes mounts delivery admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Admin.Group("/delivery")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)

// deliveredEvents is the set of domain events forwarded to webhooks.
var deliveredEvents = []string{
	events.InsightCreated{}.EventName(),
	events.InsightResolved{}.EventName(),
	events.ActionProposed{}.EventName(),
	events.ActionApproved{}.EventName(),
	events.ActionExecuted{}.EventName(),
	events.ActionUndone{}.EventName(),
	events.ActionFailed{}.EventName(),
}

// SubscribeBus wires every delivered domain event to the dispatcher.
func (m *Module) SubscribeBus(bus events.Bus) {
	for _, name := range deliveredEvents {
		bus.Subscribe(name, events.HandlerFunc(m.handleEvent))
	}
}

func (m *Module) handleEvent(ctx context.Context, event events.Event) error {
	tenantID, ok := eventTenant(event)
	if !ok {
		return fmt.Errorf("event %s carries no tenant", event.EventName())
	}
	m.dispatcher.Dispatch(ctx, tenantID, event.EventName(), event)
	return nil
}

func eventTenant(event events.Event) (uuid.UUID, bool) {
	switch e := event.(type) {
	case events.InsightCreated:
		return e.TenantID, true
	case events.InsightResolved:
		return e.TenantID, true
	case events.ActionProposed:
		return e.TenantID, true
	case events.ActionApproved:
		return e.TenantID, true
	case events.ActionExecuted:
		return e.TenantID, true
	case events.ActionUndone:
		return e.TenantID, true
	case events.ActionFailed:
		return e.TenantID, true
	default:
		return uuid.UUID{}, false
	}
}
