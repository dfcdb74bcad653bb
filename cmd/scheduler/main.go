package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/internal/actions"
	"opspulse_backend/internal/adapters"
	"opspulse_backend/internal/audit"
	"opspulse_backend/internal/delivery"
	"opspulse_backend/internal/events"
	"opspulse_backend/internal/features"
	"opspulse_backend/internal/identity"
	"opspulse_backend/internal/insights"
	"opspulse_backend/internal/notification"
	"opspulse_backend/internal/scheduler"
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

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	auditRecorder := audit.NewRecorder(pool, log)
	identityRepo := identity.NewRepo(pool)
	featureGate := features.NewRepo(pool)

	notificationModule := notification.NewModule(pool, cfg, log)
	insightsModule := insights.NewModule(pool, eventBus, auditRecorder, val, log)

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

	// Cycle events published by this process also reach tenant webhooks.
	deliveryModule := delivery.NewModule(pool, cfg, log)
	deliveryModule.SubscribeBus(eventBus)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer client.Close()

	worker, err := scheduler.NewWorker(cfg, insightsModule.Service(), actionsModule.Proposer(), identityRepo, client, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		periodic.Run(ctx)
	}()

	log.Info("scheduler running", "cycleInterval", cfg.GetCycleInterval().String())
	wg.Wait()

	deliveryModule.Dispatcher().Wait()
	log.Info("scheduler stopped")
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
