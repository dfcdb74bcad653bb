package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/actions/domain"
	"opspulse_backend/internal/actions/repository"
	"opspulse_backend/internal/events"
	"opspulse_backend/internal/identity"
	"opspulse_backend/internal/notification"
	"opspulse_backend/internal/notification/inapp"
	"opspulse_backend/platform/apperr"
	"opspulse_backend/platform/logger"
)

// fakeRepo is an in-memory action store that mirrors the conditional-write
// semantics of the PostgreSQL repository.
type fakeRepo struct {
	mu      sync.Mutex
	actions map[uuid.UUID]*domain.Action
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{actions: make(map[uuid.UUID]*domain.Action)}
}

var _ repository.Repository = (*fakeRepo)(nil)

func (f *fakeRepo) Insert(_ context.Context, p repository.InsertParams) (*domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &domain.Action{
		ID:        uuid.New(),
		TenantID:  p.TenantID,
		InsightID: p.InsightID,
		Kind:      p.Kind,
		Status:    domain.StatusProposed,
		Title:     p.Title,
		Rationale: p.Rationale,
		Payload:   p.Payload,
		CreatedAt: time.Now(),
	}
	f.actions[a.ID] = a
	return copyAction(a), nil
}

func (f *fakeRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.TenantID != tenantID {
		return nil, apperr.NotFound("action not found")
	}
	return copyAction(a), nil
}

func (f *fakeRepo) List(_ context.Context, tenantID uuid.UUID, params repository.ListParams) ([]domain.Action, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Action
	for _, a := range f.actions {
		if a.TenantID != tenantID {
			continue
		}
		if params.Status != nil && a.Status != *params.Status {
			continue
		}
		out = append(out, *copyAction(a))
	}
	return out, len(out), nil
}

func (f *fakeRepo) HasActiveProposal(_ context.Context, tenantID, insightID uuid.UUID, kind domain.Kind) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actions {
		if a.TenantID != tenantID || a.InsightID == nil || *a.InsightID != insightID || a.Kind != kind {
			continue
		}
		if a.Status == domain.StatusProposed || a.Status == domain.StatusApproved {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) MarkApproved(_ context.Context, tenantID, id, actor uuid.UUID) (*domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.TenantID != tenantID || a.Status != domain.StatusProposed {
		return nil, apperr.Conflict("only PROPOSED actions can be approved")
	}
	now := time.Now()
	a.Status = domain.StatusApproved
	a.ApprovedBy = &actor
	a.ApprovedAt = &now
	a.Error = nil
	return copyAction(a), nil
}

func (f *fakeRepo) ClaimExecute(_ context.Context, tenantID, id, actor uuid.UUID) (*domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.TenantID != tenantID || a.Status != domain.StatusApproved {
		return nil, apperr.Conflict("only APPROVED actions can be executed")
	}
	now := time.Now()
	a.Status = domain.StatusExecuted
	a.ExecutedBy = &actor
	a.ExecutedAt = &now
	a.Error = nil
	return copyAction(a), nil
}

func (f *fakeRepo) FinishExecute(_ context.Context, id uuid.UUID, undoData json.RawMessage, undoExpiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.Status != domain.StatusExecuted {
		return apperr.Conflict("action is no longer EXECUTED")
	}
	a.UndoData = undoData
	a.UndoExpiresAt = undoExpiresAt
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.Status != domain.StatusExecuted {
		return nil
	}
	a.Status = domain.StatusFailed
	a.Error = &errMsg
	a.UndoData = nil
	a.UndoExpiresAt = nil
	return nil
}

func (f *fakeRepo) ClaimUndo(_ context.Context, tenantID, id uuid.UUID, now time.Time) (*domain.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.TenantID != tenantID || a.Status != domain.StatusExecuted ||
		len(a.UndoData) == 0 || a.UndoExpiresAt == nil || !now.Before(*a.UndoExpiresAt) {
		return nil, apperr.Conflict("action is not undoable")
	}
	a.Status = domain.StatusCanceled
	return copyAction(a), nil
}

func (f *fakeRepo) ClearUndo(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actions[id]; ok && a.Status == domain.StatusCanceled {
		a.UndoData = nil
		a.UndoExpiresAt = nil
	}
	return nil
}

func (f *fakeRepo) RevertUndo(_ context.Context, id uuid.UUID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actions[id]; ok && a.Status == domain.StatusCanceled {
		a.Status = domain.StatusExecuted
		a.Error = &errMsg
	}
	return nil
}

func copyAction(a *domain.Action) *domain.Action {
	c := *a
	return &c
}

// fakeTargets records target entity state in memory.
type fakeTargets struct {
	mu         sync.Mutex
	workItems  map[uuid.UUID]*uuid.UUID // id -> assignee
	invoices   map[uuid.UUID]repository.InvoiceLock
	failInsert bool
}

func newFakeTargets() *fakeTargets {
	return &fakeTargets{
		workItems: make(map[uuid.UUID]*uuid.UUID),
		invoices:  make(map[uuid.UUID]repository.InvoiceLock),
	}
}

func (f *fakeTargets) InsertWorkItem(_ context.Context, _ uuid.UUID, title, _, _ string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return uuid.Nil, errors.New("work item insert failed")
	}
	id := uuid.New()
	f.workItems[id] = nil
	return id, nil
}

func (f *fakeTargets) DeleteWorkItem(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workItems[id]; !ok {
		return apperr.NotFound("work item not found")
	}
	delete(f.workItems, id)
	return nil
}

func (f *fakeTargets) GetWorkItemAssignee(_ context.Context, _ uuid.UUID, id uuid.UUID) (*uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	assignee, ok := f.workItems[id]
	if !ok {
		return nil, apperr.NotFound("work item not found")
	}
	return assignee, nil
}

func (f *fakeTargets) SetWorkItemAssignee(_ context.Context, _ uuid.UUID, id uuid.UUID, assignee *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workItems[id]; !ok {
		return apperr.NotFound("work item not found")
	}
	f.workItems[id] = assignee
	return nil
}

func (f *fakeTargets) GetInvoiceLock(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID) (*repository.InvoiceLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.invoices[invoiceID]
	if !ok {
		return nil, apperr.NotFound("invoice not found")
	}
	return &lock, nil
}

func (f *fakeTargets) SetInvoiceLock(_ context.Context, _ uuid.UUID, invoiceID uuid.UUID, lockedAt *time.Time, lockedBy *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invoices[invoiceID]; !ok {
		return apperr.NotFound("invoice not found")
	}
	f.invoices[invoiceID] = repository.InvoiceLock{InvoiceID: invoiceID, LockedAt: lockedAt, LockedBy: lockedBy}
	return nil
}

// fakeNudges counts nudge rows.
type fakeNudges struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]bool
	created int
}

func newFakeNudges() *fakeNudges {
	return &fakeNudges{rows: make(map[uuid.UUID]bool)}
}

func (f *fakeNudges) Nudge(_ context.Context, p notification.NudgeParams) (inapp.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.rows[id] = true
	f.created++
	return inapp.Notification{ID: id, TenantID: p.TenantID, UserID: p.User.ID, Title: p.Title, Content: p.Content}, nil
}

func (f *fakeNudges) RemoveNudge(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.rows[id] {
		return apperr.NotFound("notification not found")
	}
	delete(f.rows, id)
	return nil
}

type fakeResolver struct {
	users map[string]identity.User
}

func (f *fakeResolver) FindActiveUserByRole(_ context.Context, tenantID uuid.UUID, role string) (*identity.User, error) {
	u, ok := f.users[role]
	if !ok {
		return nil, apperr.NotFound("no active user with role " + role)
	}
	u.TenantID = tenantID
	return &u, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakeBus) Publish(_ context.Context, e events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeBus) PublishSync(ctx context.Context, e events.Event) error {
	f.Publish(ctx, e)
	return nil
}

func (f *fakeBus) Subscribe(string, events.Handler) {}

func (f *fakeBus) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventName())
	}
	return out
}

type fakeAudit struct{}

func (fakeAudit) Record(context.Context, uuid.UUID, *uuid.UUID, string, string, string, any, any) {}

type engineCfg struct {
	undoWindow time.Duration
	limit      int
}

func (c engineCfg) GetUndoWindow() time.Duration { return c.undoWindow }
func (c engineCfg) GetProposalInsightLimit() int { return c.limit }

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	targets  *fakeTargets
	nudges   *fakeNudges
	bus      *fakeBus
	tenantID uuid.UUID
	admin    Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeRepo()
	targets := newFakeTargets()
	nudges := newFakeNudges()
	bus := &fakeBus{}
	resolver := &fakeResolver{users: map[string]identity.User{
		identity.RoleSales:   {ID: uuid.New(), Email: "sales@example.com", Name: "Sales", Role: identity.RoleSales},
		identity.RoleFinance: {ID: uuid.New(), Email: "finance@example.com", Name: "Finance", Role: identity.RoleFinance},
	}}

	registry := NewRegistry(nudges, resolver, targets, time.Now)
	svc := NewService(repo, registry, bus, fakeAudit{}, logger.New("test"), engineCfg{undoWindow: time.Minute, limit: 20})

	return &fixture{
		svc:      svc,
		repo:     repo,
		targets:  targets,
		nudges:   nudges,
		bus:      bus,
		tenantID: uuid.New(),
		admin:    Actor{ID: uuid.New(), Roles: []string{identity.RoleAdmin}},
	}
}

func (f *fixture) propose(t *testing.T, kind domain.Kind, payload any) *domain.Action {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	insightID := uuid.New()
	action, err := f.repo.Insert(context.Background(), repository.InsertParams{
		TenantID:  f.tenantID,
		InsightID: &insightID,
		Kind:      kind,
		Title:     "test action",
		Rationale: "test",
		Payload:   raw,
	})
	if err != nil {
		t.Fatalf("insert action: %v", err)
	}
	return action
}

func isConflict(err error) bool {
	return apperr.Is(err, apperr.KindConflict)
}

func TestApprove_OnlyFromProposed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	action := f.propose(t, domain.KindCreateNudge, domain.NudgePayload{Role: identity.RoleSales, Title: "t", Content: "c"})

	approved, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", approved.Status)
	}

	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); !isConflict(err) {
		t.Fatalf("expected conflict on double approve, got %v", err)
	}
}

func TestExecute_OnlyFromApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	action := f.propose(t, domain.KindCreateNudge, domain.NudgePayload{Role: identity.RoleSales, Title: "t", Content: "c"})

	if _, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin); !isConflict(err) {
		t.Fatalf("expected conflict executing a PROPOSED action, got %v", err)
	}

	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}
	executed, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if executed.Status != domain.StatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", executed.Status)
	}
	if !executed.Undoable() {
		t.Fatal("expected undo data after execute")
	}
	if executed.UndoExpiresAt == nil {
		t.Fatal("expected an undo window")
	}
	if f.nudges.created != 1 {
		t.Fatalf("expected 1 nudge, got %d", f.nudges.created)
	}

	if _, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin); !isConflict(err) {
		t.Fatalf("expected conflict on double execute, got %v", err)
	}
	if f.nudges.created != 1 {
		t.Fatalf("executor ran again on double execute, nudges=%d", f.nudges.created)
	}
}

func TestExecute_FailureIsWrittenThenSurfaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.targets.failInsert = true

	action := f.propose(t, domain.KindCreateWorkItem, domain.WorkItemPayload{Title: "w"})
	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}

	_, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin)
	if err == nil {
		t.Fatal("expected executor failure to surface")
	}

	stored, getErr := f.svc.GetAction(ctx, f.tenantID, action.ID)
	if getErr != nil {
		t.Fatalf("get action: %v", getErr)
	}
	if stored.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if stored.Error == nil || *stored.Error == "" {
		t.Fatal("expected the failure reason on the action")
	}
}

func TestExecute_UnknownKindIsBadRequestBeforeStateChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	action := f.propose(t, domain.Kind("send-rocket"), map[string]string{})
	f.repo.actions[action.ID].Status = domain.StatusApproved

	_, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin)
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request for unknown kind, got %v", err)
	}

	stored, _ := f.svc.GetAction(ctx, f.tenantID, action.ID)
	if stored.Status != domain.StatusApproved {
		t.Fatalf("expected status unchanged, got %s", stored.Status)
	}
}

func TestExecute_OperatorCannotRunFinancialKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	operator := Actor{ID: uuid.New(), Roles: []string{identity.RoleOperator}}

	invoiceID := uuid.New()
	f.targets.invoices[invoiceID] = repository.InvoiceLock{InvoiceID: invoiceID}

	action := f.propose(t, domain.KindLockInvoice, domain.LockInvoicePayload{InvoiceID: invoiceID})
	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := f.svc.Execute(ctx, f.tenantID, action.ID, operator); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for operator, got %v", err)
	}

	nudge := f.propose(t, domain.KindCreateNudge, domain.NudgePayload{Role: identity.RoleSales, Title: "t", Content: "c"})
	if _, err := f.svc.Approve(ctx, f.tenantID, nudge.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Execute(ctx, f.tenantID, nudge.ID, operator); err != nil {
		t.Fatalf("operator should execute nudges: %v", err)
	}
}

func TestUndo_ExpiredWindowIsConflictAndStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	action := f.propose(t, domain.KindCreateNudge, domain.NudgePayload{Role: identity.RoleSales, Title: "t", Content: "c"})
	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}
	executed, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// 1ms past the window boundary.
	f.svc.now = func() time.Time { return executed.UndoExpiresAt.Add(time.Millisecond) }

	_, undoErr := f.svc.Undo(ctx, f.tenantID, action.ID, f.admin)
	if !isConflict(undoErr) {
		t.Fatalf("expected conflict past the undo window, got %v", undoErr)
	}
	if undoErr.(*apperr.Error).Message != "undo window expired" {
		t.Fatalf("expected %q, got %q", "undo window expired", undoErr.(*apperr.Error).Message)
	}

	stored, _ := f.svc.GetAction(ctx, f.tenantID, action.ID)
	if stored.Status != domain.StatusExecuted {
		t.Fatalf("expected status unchanged at EXECUTED, got %s", stored.Status)
	}
}

func TestUndo_RemovesNudgeInsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	action := f.propose(t, domain.KindCreateNudge, domain.NudgePayload{Role: identity.RoleSales, Title: "t", Content: "c"})
	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("execute: %v", err)
	}

	undone, err := f.svc.Undo(ctx, f.tenantID, action.ID, f.admin)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if undone.Status != domain.StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", undone.Status)
	}
	if undone.Undoable() {
		t.Fatal("expected undo data cleared")
	}
	if len(f.nudges.rows) != 0 {
		t.Fatalf("expected the notification row deleted, %d remain", len(f.nudges.rows))
	}

	if _, err := f.svc.Undo(ctx, f.tenantID, action.ID, f.admin); !isConflict(err) {
		t.Fatalf("expected conflict on double undo, got %v", err)
	}
}

func TestExecuteUndoSymmetry_LockInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	priorAt := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	priorBy := uuid.New()
	invoiceID := uuid.New()
	f.targets.invoices[invoiceID] = repository.InvoiceLock{InvoiceID: invoiceID, LockedAt: &priorAt, LockedBy: &priorBy}

	action := f.propose(t, domain.KindLockInvoice, domain.LockInvoicePayload{InvoiceID: invoiceID})
	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("execute: %v", err)
	}

	locked := f.targets.invoices[invoiceID]
	if locked.LockedBy == nil || *locked.LockedBy != f.admin.ID {
		t.Fatal("expected the invoice locked by the executor actor")
	}

	if _, err := f.svc.Undo(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("undo: %v", err)
	}

	restored := f.targets.invoices[invoiceID]
	if restored.LockedAt == nil || !restored.LockedAt.Equal(priorAt) {
		t.Fatalf("expected prior lock time restored, got %v", restored.LockedAt)
	}
	if restored.LockedBy == nil || *restored.LockedBy != priorBy {
		t.Fatalf("expected prior lock actor restored, got %v", restored.LockedBy)
	}
}

func TestExecuteUndoSymmetry_ReassignWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	workItemID := uuid.New()
	f.targets.workItems[workItemID] = nil // unassigned before the execute
	newAssignee := uuid.New()

	action := f.propose(t, domain.KindReassignWork, domain.ReassignWorkPayload{WorkItemID: workItemID, NewAssigneeID: newAssignee})
	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got := f.targets.workItems[workItemID]; got == nil || *got != newAssignee {
		t.Fatalf("expected assignee %s, got %v", newAssignee, got)
	}

	if _, err := f.svc.Undo(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("undo: %v", err)
	}

	if got := f.targets.workItems[workItemID]; got != nil {
		t.Fatalf("expected the prior nil assignee restored, got %v", got)
	}
}

func TestExecute_ConcurrentCallsRunExecutorExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	action := f.propose(t, domain.KindCreateNudge, domain.NudgePayload{Role: identity.RoleSales, Title: "t", Content: "c"})
	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case isConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful execute, got %d", successes)
	}
	if conflicts != callers-1 {
		t.Fatalf("expected %d conflicts, got %d", callers-1, conflicts)
	}
	if f.nudges.created != 1 {
		t.Fatalf("expected the executor to run exactly once, nudges=%d", f.nudges.created)
	}
}

func TestLifecycle_PublishesTransitionEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	action := f.propose(t, domain.KindCreateNudge, domain.NudgePayload{Role: identity.RoleSales, Title: "t", Content: "c"})
	if _, err := f.svc.Approve(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Execute(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := f.svc.Undo(ctx, f.tenantID, action.ID, f.admin); err != nil {
		t.Fatalf("undo: %v", err)
	}

	want := []string{"actions.action.approved", "actions.action.executed", "actions.action.undone"}
	got := f.bus.names()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected event %q at position %d, got %q", want[i], i, got[i])
		}
	}
}
