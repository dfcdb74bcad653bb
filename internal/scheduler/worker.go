package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	actionsvc "opspulse_backend/internal/actions/service"
	insightsvc "opspulse_backend/internal/insights/service"
	"opspulse_backend/platform/config"
	"opspulse_backend/platform/logger"
)

// TenantLister resolves which tenants a tick fans out to.
type TenantLister interface {
	ListActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Worker consumes engine cycle tasks. A tick enqueues one insight cycle per
// active tenant; each insight cycle chains a proposal cycle for its tenant so
// proposals always observe that cycle's insights.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	insights *insightsvc.Service
	proposer *actionsvc.Proposer
	tenants  TenantLister
	enqueuer CycleEnqueuer
	log      *logger.Logger
}

func NewWorker(
	cfg config.SchedulerConfig,
	insights *insightsvc.Service,
	proposer *actionsvc.Proposer,
	tenants TenantLister,
	enqueuer CycleEnqueuer,
	log *logger.Logger,
) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		insights: insights,
		proposer: proposer,
		tenants:  tenants,
		enqueuer: enqueuer,
		log:      log,
	}

	mux.HandleFunc(TaskEngineTick, w.handleTick)
	mux.HandleFunc(TaskInsightCycle, w.handleInsightCycle)
	mux.HandleFunc(TaskProposalCycle, w.handleProposalCycle)

	return w, nil
}

func (w *Worker) handleTick(ctx context.Context, _ *asynq.Task) error {
	tenantIDs, err := w.tenants.ListActiveTenantIDs(ctx)
	if err != nil {
		return err
	}

	for _, tenantID := range tenantIDs {
		if err := w.enqueuer.EnqueueInsightCycle(ctx, tenantID); err != nil {
			w.log.Error("enqueue insight cycle failed", "tenantId", tenantID, "error", err)
		}
	}
	return nil
}

func (w *Worker) handleInsightCycle(ctx context.Context, task *asynq.Task) error {
	tenantID, err := tenantFromTask(task)
	if err != nil {
		return err
	}

	if _, err := w.insights.RunInsightCycle(ctx, tenantID); err != nil {
		return err
	}
	return w.enqueuer.EnqueueProposalCycle(ctx, tenantID)
}

func (w *Worker) handleProposalCycle(ctx context.Context, task *asynq.Task) error {
	tenantID, err := tenantFromTask(task)
	if err != nil {
		return err
	}

	_, err = w.proposer.RunProposalCycle(ctx, tenantID)
	return err
}

func tenantFromTask(task *asynq.Task) (uuid.UUID, error) {
	payload, err := ParseTenantCyclePayload(task)
	if err != nil {
		return uuid.UUID{}, err
	}
	return uuid.Parse(payload.TenantID)
}

// Run serves tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
