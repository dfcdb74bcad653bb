// Package service implements the action lifecycle state machine and the
// proposal cycle.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/actions/domain"
	"opspulse_backend/internal/actions/repository"
	domainevents "opspulse_backend/internal/events"
	"opspulse_backend/internal/identity"
	"opspulse_backend/internal/telemetry"
	"opspulse_backend/platform/apperr"
	"opspulse_backend/platform/config"
	"opspulse_backend/platform/logger"
)

// AuditSink records audit entries, fire-and-forget.
type AuditSink interface {
	Record(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID, entityType, entityID, action string, before, after any)
}

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	ID    uuid.UUID
	Roles []string
}

func (a Actor) hasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// operatorKinds are the action kinds a non-admin operator may execute.
// Kinds that mutate financial or assignment state need an admin.
var operatorKinds = map[domain.Kind]bool{
	domain.KindCreateNudge:    true,
	domain.KindCreateWorkItem: true,
}

// Service implements the action lifecycle operations.
type Service struct {
	repo       repository.Repository
	registry   *Registry
	bus        domainevents.Bus
	audit      AuditSink
	log        *logger.Logger
	undoWindow time.Duration
	now        func() time.Time
}

// NewService creates the action service.
func NewService(repo repository.Repository, registry *Registry, bus domainevents.Bus, audit AuditSink, log *logger.Logger, cfg config.EngineConfig) *Service {
	return &Service{
		repo:       repo,
		registry:   registry,
		bus:        bus,
		audit:      audit,
		log:        log,
		undoWindow: cfg.GetUndoWindow(),
		now:        time.Now,
	}
}

// GetAction fetches one action scoped to the tenant.
func (s *Service) GetAction(ctx context.Context, tenantID, id uuid.UUID) (*domain.Action, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// ListActions returns actions newest first with a total for paging.
func (s *Service) ListActions(ctx context.Context, tenantID uuid.UUID, params repository.ListParams) ([]domain.Action, int, error) {
	return s.repo.List(ctx, tenantID, params)
}

// Approve transitions a PROPOSED action to APPROVED.
func (s *Service) Approve(ctx context.Context, tenantID, id uuid.UUID, actor Actor) (*domain.Action, error) {
	before, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if before.Status != domain.StatusProposed {
		return nil, apperr.Conflict("only PROPOSED actions can be approved")
	}

	action, err := s.repo.MarkApproved(ctx, tenantID, id, actor.ID)
	if err != nil {
		return nil, err
	}

	telemetry.ActionTransitionsTotal.WithLabelValues(string(action.Kind), string(domain.StatusApproved)).Inc()
	s.audit.Record(ctx, tenantID, &actor.ID, "action", action.ID.String(), "approve", before, action)
	s.bus.Publish(ctx, domainevents.ActionApproved{
		BaseEvent:  domainevents.NewBaseEvent(),
		ActionID:   action.ID,
		TenantID:   tenantID,
		Kind:       string(action.Kind),
		ApprovedBy: actor.ID,
	})
	return action, nil
}

// Execute transitions an APPROVED action to EXECUTED by running its per-kind
// executor. The claim is a conditional write, so of two concurrent callers
// exactly one runs the executor; the other gets a conflict. An executor
// failure is written to the action (status FAILED) before being surfaced.
func (s *Service) Execute(ctx context.Context, tenantID, id uuid.UUID, actor Actor) (*domain.Action, error) {
	before, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	// Validate payload and kind before any state change.
	payload, err := domain.ParsePayload(before.Kind, before.Payload)
	if err != nil {
		return nil, err
	}
	executor, err := s.registry.Lookup(before.Kind)
	if err != nil {
		return nil, err
	}

	if !actor.hasRole(identity.RoleAdmin) && !operatorKinds[before.Kind] {
		return nil, apperr.Forbidden("this action kind requires an admin")
	}

	if before.Status != domain.StatusApproved {
		return nil, apperr.Conflict("only APPROVED actions can be executed")
	}

	claimed, err := s.repo.ClaimExecute(ctx, tenantID, id, actor.ID)
	if err != nil {
		return nil, err
	}

	undoData, execErr := executor.Execute(ctx, tenantID, payload, actor.ID)
	if execErr != nil {
		// Write-then-rethrow: the failure is recorded on the action before
		// it reaches the caller.
		if markErr := s.repo.MarkFailed(ctx, id, execErr.Error()); markErr != nil {
			s.log.Error("recording action failure failed", "error", markErr, "actionId", id.String())
		}
		telemetry.ActionTransitionsTotal.WithLabelValues(string(claimed.Kind), string(domain.StatusFailed)).Inc()
		s.bus.Publish(ctx, domainevents.ActionFailed{
			BaseEvent: domainevents.NewBaseEvent(),
			ActionID:  id,
			TenantID:  tenantID,
			Kind:      string(claimed.Kind),
			Error:     execErr.Error(),
		})
		if _, ok := execErr.(*apperr.Error); ok {
			return nil, execErr
		}
		return nil, apperr.Execution("action execution failed", execErr)
	}

	var undoExpiresAt *time.Time
	if len(undoData) > 0 && executor.Undoable() {
		expires := s.now().Add(s.undoWindow)
		undoExpiresAt = &expires
	} else {
		undoData = nil
	}
	if err := s.repo.FinishExecute(ctx, id, undoData, undoExpiresAt); err != nil {
		return nil, err
	}

	action, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	telemetry.ActionTransitionsTotal.WithLabelValues(string(action.Kind), string(domain.StatusExecuted)).Inc()
	s.audit.Record(ctx, tenantID, &actor.ID, "action", action.ID.String(), "execute", before, action)
	s.bus.Publish(ctx, domainevents.ActionExecuted{
		BaseEvent:  domainevents.NewBaseEvent(),
		ActionID:   action.ID,
		TenantID:   tenantID,
		Kind:       string(action.Kind),
		ExecutedBy: actor.ID,
		Payload:    action.Payload,
		Undoable:   action.Undoable(),
	})
	return action, nil
}

// Undo compensates an EXECUTED action inside its undo window and moves it to
// CANCELED. Outside the window, or without undo data, the call is a conflict
// and the action is left untouched.
func (s *Service) Undo(ctx context.Context, tenantID, id uuid.UUID, actor Actor) (*domain.Action, error) {
	before, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if before.Status != domain.StatusExecuted {
		return nil, apperr.Conflict("only EXECUTED actions can be undone")
	}
	if !before.Undoable() {
		return nil, apperr.Conflict("action is not undoable")
	}
	now := s.now()
	if before.UndoExpiresAt == nil || !now.Before(*before.UndoExpiresAt) {
		return nil, apperr.Conflict("undo window expired")
	}

	executor, err := s.registry.Lookup(before.Kind)
	if err != nil {
		return nil, err
	}

	claimed, err := s.repo.ClaimUndo(ctx, tenantID, id, now)
	if err != nil {
		return nil, err
	}

	if compErr := executor.Compensate(ctx, tenantID, claimed.UndoData); compErr != nil {
		if revertErr := s.repo.RevertUndo(ctx, id, compErr.Error()); revertErr != nil {
			s.log.Error("reverting failed undo failed", "error", revertErr, "actionId", id.String())
		}
		return nil, apperr.Execution("action undo failed", compErr)
	}

	if err := s.repo.ClearUndo(ctx, id); err != nil {
		return nil, err
	}

	action, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	telemetry.ActionTransitionsTotal.WithLabelValues(string(action.Kind), string(domain.StatusCanceled)).Inc()
	s.audit.Record(ctx, tenantID, &actor.ID, "action", action.ID.String(), "undo", before, action)
	s.bus.Publish(ctx, domainevents.ActionUndone{
		BaseEvent: domainevents.NewBaseEvent(),
		ActionID:  action.ID,
		TenantID:  tenantID,
		Kind:      string(action.Kind),
		UndoneBy:  actor.ID,
	})
	return action, nil
}
