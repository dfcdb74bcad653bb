package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"opspulse_backend/platform/config"
	"opspulse_backend/platform/logger"
)

// Periodic emits the engine tick on the configured cadence.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	scheduler := asynq.NewScheduler(opt, nil)
	spec := fmt.Sprintf("@every %s", cfg.GetCycleInterval())
	if _, err := scheduler.Register(spec, NewEngineTickTask(), asynq.Queue(queue)); err != nil {
		return nil, fmt.Errorf("register engine tick: %w", err)
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

// Run emits ticks until the context is cancelled.
func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
	}
}
