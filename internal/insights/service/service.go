// Package service orchestrates the insight cycle: collect metrics,
// synthesize candidates, reconcile them against the store, and publish
// lifecycle events.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	domainevents "opspulse_backend/internal/events"
	"opspulse_backend/internal/insights/repository"
	"opspulse_backend/internal/telemetry"
	"opspulse_backend/platform/apperr"
	"opspulse_backend/platform/logger"
)

// AuditSink records audit entries. Failures are logged by the implementation
// and never propagate into engine operations.
type AuditSink interface {
	Record(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID, entityType, entityID, action string, before, after any)
}

// CycleResult summarizes one insight cycle.
type CycleResult struct {
	Created  int
	Resolved int
}

// Service implements the insight engine operations.
type Service struct {
	repo  repository.Repository
	bus   domainevents.Bus
	audit AuditSink
	log   *logger.Logger
	now   func() time.Time
}

// NewService creates the insight service.
func NewService(repo repository.Repository, bus domainevents.Bus, audit AuditSink, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		bus:   bus,
		audit: audit,
		log:   log,
		now:   time.Now,
	}
}

// RunInsightCycle executes one collect → synthesize → reconcile pass for a
// tenant. Read failures surface as transient errors so the scheduler retries
// the whole cycle; nothing is acted upon from a partial snapshot.
func (s *Service) RunInsightCycle(ctx context.Context, tenantID uuid.UUID) (CycleResult, error) {
	started := s.now()

	snap, err := s.repo.CollectMetrics(ctx, tenantID, started)
	if err != nil {
		telemetry.CyclesTotal.WithLabelValues("insight", "error").Inc()
		return CycleResult{}, apperr.Transient("metric collection failed", err)
	}

	candidates := Synthesize(snap)

	outcome, err := s.repo.Reconcile(ctx, tenantID, candidates)
	if err != nil {
		telemetry.CyclesTotal.WithLabelValues("insight", "error").Inc()
		return CycleResult{}, apperr.Transient("insight reconciliation failed", err)
	}

	for _, ins := range outcome.Created {
		telemetry.InsightTransitionsTotal.WithLabelValues(string(ins.Kind), "created").Inc()
		s.bus.Publish(ctx, domainevents.InsightCreated{
			BaseEvent:   domainevents.NewBaseEvent(),
			InsightID:   ins.ID,
			TenantID:    tenantID,
			Kind:        string(ins.Kind),
			Severity:    ins.Severity.String(),
			ScoreImpact: ins.ScoreImpact,
			Title:       ins.Title,
		})
	}
	for _, ins := range outcome.AutoResolved {
		telemetry.InsightTransitionsTotal.WithLabelValues(string(ins.Kind), "auto_resolved").Inc()
		s.bus.Publish(ctx, domainevents.InsightResolved{
			BaseEvent:  domainevents.NewBaseEvent(),
			InsightID:  ins.ID,
			TenantID:   tenantID,
			Kind:       string(ins.Kind),
			AutoHealed: true,
		})
	}

	result := CycleResult{Created: len(outcome.Created), Resolved: len(outcome.AutoResolved)}

	duration := s.now().Sub(started)
	telemetry.CyclesTotal.WithLabelValues("insight", "success").Inc()
	telemetry.CycleDuration.WithLabelValues("insight").Observe(duration.Seconds())
	s.log.CycleCompleted("insight", tenantID.String(), result.Created, result.Resolved, float64(duration.Milliseconds()))

	return result, nil
}

// ListOpenInsights returns open insights ordered by severity, score impact,
// then recency, with a total for paging.
func (s *Service) ListOpenInsights(ctx context.Context, tenantID uuid.UUID, params repository.ListOpenParams) ([]repository.Insight, int, error) {
	return s.repo.ListOpen(ctx, tenantID, params)
}

// GetInsight fetches one insight scoped to the tenant.
func (s *Service) GetInsight(ctx context.Context, tenantID, id uuid.UUID) (*repository.Insight, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// ResolveInsight marks an insight resolved by a human actor.
func (s *Service) ResolveInsight(ctx context.Context, tenantID, id, actorID uuid.UUID, note *string) (*repository.Insight, error) {
	before, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	ins, err := s.repo.Resolve(ctx, tenantID, id, actorID, note)
	if err != nil {
		return nil, err
	}

	telemetry.InsightTransitionsTotal.WithLabelValues(string(ins.Kind), "resolved").Inc()
	s.audit.Record(ctx, tenantID, &actorID, "insight", ins.ID.String(), "resolve", before, ins)
	s.bus.Publish(ctx, domainevents.InsightResolved{
		BaseEvent:  domainevents.NewBaseEvent(),
		InsightID:  ins.ID,
		TenantID:   tenantID,
		Kind:       string(ins.Kind),
		ResolvedBy: &actorID,
		AutoHealed: false,
	})
	return ins, nil
}

// OpenRecent exposes the proposer's bounded read of open insights.
func (s *Service) OpenRecent(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.Insight, error) {
	return s.repo.ListOpenRecent(ctx, tenantID, limit)
}
