package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/internal/actions"
	"opspulse_backend/internal/adapters"
	"opspulse_backend/internal/audit"
	"opspulse_backend/internal/delivery"
	"opspulse_backend/internal/events"
	"opspulse_backend/internal/features"
	apphttp "opspulse_backend/internal/http"
	"opspulse_backend/internal/http/router"
	"opspulse_backend/internal/identity"
	"opspulse_backend/internal/insights"
	"opspulse_backend/internal/notification"
	"opspulse_backend/platform/config"
	"opspulse_backend/platform/db"
	"opspulse_backend/platform/logger"
	"opspulse_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	auditRecorder := audit.NewRecorder(pool, log)
	identityRepo := identity.NewRepo(pool)
	featureGate := features.NewRepo(pool)

	notificationModule := notification.NewModule(pool, cfg, log)
	insightsModule := insights.NewModule(pool, eventBus, auditRecorder, val, log)

	// Anti-corruption layer: actions reads open insights through its own view.
	insightReader := adapters.NewInsightReaderAdapter(insightsModule.Repository())
	actionsModule := actions.NewModule(
		pool,
		eventBus,
		insightReader,
		notificationModule.Notifier(),
		identityRepo,
		featureGate,
		auditRecorder,
		val,
		log,
		cfg,
	)

	// Delivery module bridges domain events to tenant webhook endpoints.
	deliveryModule := delivery.NewModule(pool, cfg, log)
	deliveryModule.SubscribeBus(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			insightsModule,
			actionsModule,
			notificationModule,
			deliveryModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		drainDeliveries(shutdownCtx, log, deliveryModule)
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// drainDeliveries waits for in-flight webhook dispatches, bounded by the
// shutdown deadline.
func drainDeliveries(ctx context.Context, log *logger.Logger, module *delivery.Module) {
	done := make(chan struct{})
	go func() {
		module.Dispatcher().Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("shutdown deadline reached with deliveries in flight")
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
