package notification

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/internal/email"
	apphttp "opspulse_backend/internal/http"
	"opspulse_backend/internal/notification/handler"
	"opspulse_backend/internal/notification/inapp"
	"opspulse_backend/platform/config"
	"opspulse_backend/platform/logger"
)

// Module is the notification bounded context module.
type Module struct {
	notifier *Notifier
	handler  *handler.Handler
}

// NewModule wires the notifier with its email side channel.
func NewModule(pool *pgxpool.Pool, cfg config.EmailConfig, log *logger.Logger) *Module {
	var sender email.Sender = email.NoopSender{}
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(cfg)
	}

	repo := inapp.NewRepository(pool)
	notifier := NewNotifier(repo, sender, log)
	return &Module{
		notifier: notifier,
		handler:  handler.New(repo),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// Notifier returns the nudge notifier for the action executors.
func (m *Module) Notifier() *Notifier {
	return m.notifier
}

// RegisterRoutes mounts notification routes on the authenticated group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/notifications")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
