package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/actions/domain"
	"opspulse_backend/internal/actions/repository"
	"opspulse_backend/internal/identity"
	"opspulse_backend/internal/notification"
	"opspulse_backend/internal/notification/inapp"
	"opspulse_backend/platform/apperr"
)

// NudgeSender creates and removes nudge notifications.
type NudgeSender interface {
	Nudge(ctx context.Context, p notification.NudgeParams) (inapp.Notification, error)
	RemoveNudge(ctx context.Context, tenantID, notificationID uuid.UUID) error
}

// TargetStore mutates the narrow fields of target entities.
type TargetStore interface {
	InsertWorkItem(ctx context.Context, tenantID uuid.UUID, title, description, priority string) (uuid.UUID, error)
	DeleteWorkItem(ctx context.Context, tenantID, id uuid.UUID) error
	GetWorkItemAssignee(ctx context.Context, tenantID, id uuid.UUID) (*uuid.UUID, error)
	SetWorkItemAssignee(ctx context.Context, tenantID, id uuid.UUID, assignee *uuid.UUID) error
	GetInvoiceLock(ctx context.Context, tenantID, invoiceID uuid.UUID) (*repository.InvoiceLock, error)
	SetInvoiceLock(ctx context.Context, tenantID, invoiceID uuid.UUID, lockedAt *time.Time, lockedBy *uuid.UUID) error
}

// Executor is one side of a symmetric execute/compensate pair for an action
// kind.
type Executor interface {
	Kind() domain.Kind
	// Undoable reports whether Execute produces undo data.
	Undoable() bool
	// Execute applies the action's side effect and returns the undo data
	// needed to compensate it, or nil for non-undoable kinds.
	Execute(ctx context.Context, tenantID uuid.UUID, payload domain.Payload, actor uuid.UUID) (json.RawMessage, error)
	// Compensate reverses a prior Execute using its captured undo data.
	Compensate(ctx context.Context, tenantID uuid.UUID, undoData json.RawMessage) error
}

// Registry maps action kinds to executors. The set is fixed at wiring time.
type Registry struct {
	executors map[domain.Kind]Executor
}

// NewRegistry wires the closed set of per-kind executors.
func NewRegistry(nudges NudgeSender, resolver identity.Resolver, targets TargetStore, clock func() time.Time) *Registry {
	r := &Registry{executors: make(map[domain.Kind]Executor)}
	for _, e := range []Executor{
		&createNudgeExecutor{nudges: nudges, resolver: resolver},
		&createWorkItemExecutor{targets: targets},
		&lockInvoiceExecutor{targets: targets, clock: clock},
		&reassignWorkExecutor{targets: targets},
	} {
		r.executors[e.Kind()] = e
	}
	return r
}

// Lookup returns the executor for a kind. Unknown kinds are a hard bad
// request, not an execution failure.
func (r *Registry) Lookup(kind domain.Kind) (Executor, error) {
	e, ok := r.executors[kind]
	if !ok {
		return nil, apperr.BadRequest(fmt.Sprintf("unsupported action kind %q", kind))
	}
	return e, nil
}

// create-nudge: insert a notification row for the tenant's active holder of
// the payload role; undo deletes that row.

type createNudgeExecutor struct {
	nudges   NudgeSender
	resolver identity.Resolver
}

func (e *createNudgeExecutor) Kind() domain.Kind { return domain.KindCreateNudge }
func (e *createNudgeExecutor) Undoable() bool    { return true }

func (e *createNudgeExecutor) Execute(ctx context.Context, tenantID uuid.UUID, payload domain.Payload, actor uuid.UUID) (json.RawMessage, error) {
	p, ok := payload.(*domain.NudgePayload)
	if !ok {
		return nil, apperr.BadRequest("payload is not a nudge payload")
	}

	user, err := e.resolver.FindActiveUserByRole(ctx, tenantID, p.Role)
	if err != nil {
		return nil, err
	}

	row, err := e.nudges.Nudge(ctx, notification.NudgeParams{
		TenantID: tenantID,
		User:     *user,
		Title:    p.Title,
		Content:  p.Content,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(domain.NudgeUndo{NotificationID: row.ID, UserID: row.UserID})
}

func (e *createNudgeExecutor) Compensate(ctx context.Context, tenantID uuid.UUID, undoData json.RawMessage) error {
	var undo domain.NudgeUndo
	if err := json.Unmarshal(undoData, &undo); err != nil {
		return fmt.Errorf("decode nudge undo data: %w", err)
	}
	return e.nudges.RemoveNudge(ctx, tenantID, undo.NotificationID)
}

// create-work-item: insert a work item from payload fields; undo deletes it.

type createWorkItemExecutor struct {
	targets TargetStore
}

func (e *createWorkItemExecutor) Kind() domain.Kind { return domain.KindCreateWorkItem }
func (e *createWorkItemExecutor) Undoable() bool    { return true }

func (e *createWorkItemExecutor) Execute(ctx context.Context, tenantID uuid.UUID, payload domain.Payload, actor uuid.UUID) (json.RawMessage, error) {
	p, ok := payload.(*domain.WorkItemPayload)
	if !ok {
		return nil, apperr.BadRequest("payload is not a work item payload")
	}

	id, err := e.targets.InsertWorkItem(ctx, tenantID, p.Title, p.Description, p.Priority)
	if err != nil {
		return nil, err
	}
	return json.Marshal(domain.WorkItemUndo{WorkItemID: id})
}

func (e *createWorkItemExecutor) Compensate(ctx context.Context, tenantID uuid.UUID, undoData json.RawMessage) error {
	var undo domain.WorkItemUndo
	if err := json.Unmarshal(undoData, &undo); err != nil {
		return fmt.Errorf("decode work item undo data: %w", err)
	}
	return e.targets.DeleteWorkItem(ctx, tenantID, undo.WorkItemID)
}

// lock-invoice: stamp the invoice's lock fields with now+actor; undo restores
// the exact prior values captured before the execute.

type lockInvoiceExecutor struct {
	targets TargetStore
	clock   func() time.Time
}

func (e *lockInvoiceExecutor) Kind() domain.Kind { return domain.KindLockInvoice }
func (e *lockInvoiceExecutor) Undoable() bool    { return true }

func (e *lockInvoiceExecutor) Execute(ctx context.Context, tenantID uuid.UUID, payload domain.Payload, actor uuid.UUID) (json.RawMessage, error) {
	p, ok := payload.(*domain.LockInvoicePayload)
	if !ok {
		return nil, apperr.BadRequest("payload is not a lock invoice payload")
	}

	prior, err := e.targets.GetInvoiceLock(ctx, tenantID, p.InvoiceID)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	if err := e.targets.SetInvoiceLock(ctx, tenantID, p.InvoiceID, &now, &actor); err != nil {
		return nil, err
	}

	return json.Marshal(domain.LockInvoiceUndo{
		InvoiceID:    p.InvoiceID,
		PrevLockedAt: prior.LockedAt,
		PrevLockedBy: prior.LockedBy,
	})
}

func (e *lockInvoiceExecutor) Compensate(ctx context.Context, tenantID uuid.UUID, undoData json.RawMessage) error {
	var undo domain.LockInvoiceUndo
	if err := json.Unmarshal(undoData, &undo); err != nil {
		return fmt.Errorf("decode lock invoice undo data: %w", err)
	}
	return e.targets.SetInvoiceLock(ctx, tenantID, undo.InvoiceID, undo.PrevLockedAt, undo.PrevLockedBy)
}

// reassign-work: set the work item's assignee; undo restores the prior
// assignee exactly, including a prior nil.

type reassignWorkExecutor struct {
	targets TargetStore
}

func (e *reassignWorkExecutor) Kind() domain.Kind { return domain.KindReassignWork }
func (e *reassignWorkExecutor) Undoable() bool    { return true }

func (e *reassignWorkExecutor) Execute(ctx context.Context, tenantID uuid.UUID, payload domain.Payload, actor uuid.UUID) (json.RawMessage, error) {
	p, ok := payload.(*domain.ReassignWorkPayload)
	if !ok {
		return nil, apperr.BadRequest("payload is not a reassign work payload")
	}

	prior, err := e.targets.GetWorkItemAssignee(ctx, tenantID, p.WorkItemID)
	if err != nil {
		return nil, err
	}
	if err := e.targets.SetWorkItemAssignee(ctx, tenantID, p.WorkItemID, &p.NewAssigneeID); err != nil {
		return nil, err
	}

	return json.Marshal(domain.ReassignWorkUndo{WorkItemID: p.WorkItemID, PrevAssigneeID: prior})
}

func (e *reassignWorkExecutor) Compensate(ctx context.Context, tenantID uuid.UUID, undoData json.RawMessage) error {
	var undo domain.ReassignWorkUndo
	if err := json.Unmarshal(undoData, &undo); err != nil {
		return fmt.Errorf("decode reassign work undo data: %w", err)
	}
	return e.targets.SetWorkItemAssignee(ctx, tenantID, undo.WorkItemID, undo.PrevAssigneeID)
}
