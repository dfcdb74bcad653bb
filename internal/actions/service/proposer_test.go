package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/actions/domain"
	"opspulse_backend/platform/logger"
)

type fakeInsightReader struct {
	insights []OpenInsight
}

func (f *fakeInsightReader) OpenRecent(_ context.Context, _ uuid.UUID, limit int) ([]OpenInsight, error) {
	if len(f.insights) > limit {
		return f.insights[:limit], nil
	}
	return f.insights, nil
}

type fakeInvoicePicker struct {
	invoiceID *uuid.UUID
}

func (f *fakeInvoicePicker) MostAtRiskUnlockedInvoice(context.Context, uuid.UUID, time.Time) (*uuid.UUID, error) {
	return f.invoiceID, nil
}

type fakeGate struct {
	enabled map[string]bool
}

func (f *fakeGate) IsEnabled(_ context.Context, _ uuid.UUID, key string) (bool, error) {
	return f.enabled[key], nil
}

func (f *fakeGate) AssertEnabled(ctx context.Context, tenantID uuid.UUID, key string) error {
	return nil
}

func newProposerFixture(insights []OpenInsight, invoiceID *uuid.UUID, locking bool) (*Proposer, *fakeRepo, *fakeBus) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	p := NewProposer(
		repo,
		&fakeInsightReader{insights: insights},
		&fakeInvoicePicker{invoiceID: invoiceID},
		&fakeGate{enabled: map[string]bool{"invoice_locking": locking}},
		bus,
		logger.New("test"),
		engineCfg{undoWindow: time.Minute, limit: 20},
	)
	return p, repo, bus
}

func TestRunProposalCycle_StalledDealsProposeSalesNudge(t *testing.T) {
	insight := OpenInsight{ID: uuid.New(), Kind: "stalled_deals", Title: "deals quiet"}
	p, repo, bus := newProposerFixture([]OpenInsight{insight}, nil, false)

	summary, err := p.RunProposalCycle(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("proposal cycle: %v", err)
	}
	if summary.Created != 1 || summary.Skipped != 0 || summary.TotalOpen != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(repo.actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(repo.actions))
	}
	for _, a := range repo.actions {
		if a.Kind != domain.KindCreateNudge || a.Status != domain.StatusProposed {
			t.Fatalf("unexpected action %s/%s", a.Kind, a.Status)
		}
		if a.InsightID == nil || *a.InsightID != insight.ID {
			t.Fatal("expected the proposal to reference its insight")
		}
	}
	if names := bus.names(); len(names) != 1 || names[0] != "actions.action.proposed" {
		t.Fatalf("expected one proposed event, got %v", names)
	}
}

func TestRunProposalCycle_SecondRunSkipsActiveProposals(t *testing.T) {
	tenantID := uuid.New()
	insight := OpenInsight{ID: uuid.New(), Kind: "security_alert", Title: "breach"}
	p, repo, _ := newProposerFixture([]OpenInsight{insight}, nil, false)

	first, err := p.RunProposalCycle(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if first.Created != 1 {
		t.Fatalf("expected 1 created, got %d", first.Created)
	}

	second, err := p.RunProposalCycle(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if second.Created != 0 || second.Skipped != 1 {
		t.Fatalf("expected dedup skip, got %+v", second)
	}
	if len(repo.actions) != 1 {
		t.Fatalf("expected no duplicate action, got %d", len(repo.actions))
	}
}

func TestRunProposalCycle_TerminalActionAllowsFreshProposal(t *testing.T) {
	tenantID := uuid.New()
	insight := OpenInsight{ID: uuid.New(), Kind: "health_drop", Title: "drop"}
	p, repo, _ := newProposerFixture([]OpenInsight{insight}, nil, false)

	if _, err := p.RunProposalCycle(context.Background(), tenantID); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	for _, a := range repo.actions {
		a.Status = domain.StatusFailed
	}

	summary, err := p.RunProposalCycle(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("expected a fresh proposal after FAILED, got %+v", summary)
	}
}

func TestRunProposalCycle_HealthDropProposesWorkItem(t *testing.T) {
	insight := OpenInsight{ID: uuid.New(), Kind: "health_drop", Title: "score fell 30 points"}
	p, repo, _ := newProposerFixture([]OpenInsight{insight}, nil, false)

	summary, err := p.RunProposalCycle(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("expected one proposal, got %+v", summary)
	}
	for _, a := range repo.actions {
		if a.Kind != domain.KindCreateWorkItem {
			t.Fatalf("expected a work item proposal, got %s", a.Kind)
		}
		payload, err := domain.ParsePayload(a.Kind, a.Payload)
		if err != nil {
			t.Fatalf("parse payload: %v", err)
		}
		item, ok := payload.(*domain.WorkItemPayload)
		if !ok {
			t.Fatalf("expected *WorkItemPayload, got %T", payload)
		}
		if item.Priority != "high" {
			t.Fatalf("expected high priority review, got %q", item.Priority)
		}
	}
}

func TestRunProposalCycle_InvoiceLockingIsFeatureGated(t *testing.T) {
	insight := OpenInsight{ID: uuid.New(), Kind: "overdue_invoices", Title: "overdue"}
	invoiceID := uuid.New()

	// Gate off: only the finance nudge.
	p, repo, _ := newProposerFixture([]OpenInsight{insight}, &invoiceID, false)
	summary, err := p.RunProposalCycle(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("expected only the nudge with the gate off, got %+v", summary)
	}

	// Gate on: nudge plus lock-invoice against the at-risk invoice.
	p, repo, _ = newProposerFixture([]OpenInsight{insight}, &invoiceID, true)
	summary, err = p.RunProposalCycle(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if summary.Created != 2 {
		t.Fatalf("expected nudge and lock proposals, got %+v", summary)
	}
	var lockSeen bool
	for _, a := range repo.actions {
		if a.Kind == domain.KindLockInvoice {
			lockSeen = true
		}
	}
	if !lockSeen {
		t.Fatal("expected a lock-invoice proposal")
	}
}

func TestRunProposalCycle_NoAtRiskInvoiceSkipsLockProposal(t *testing.T) {
	insight := OpenInsight{ID: uuid.New(), Kind: "overdue_invoices", Title: "overdue"}
	p, _, _ := newProposerFixture([]OpenInsight{insight}, nil, true)

	summary, err := p.RunProposalCycle(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("expected only the nudge without a target invoice, got %+v", summary)
	}
}

func TestRunProposalCycle_UnknownInsightKindProposesNothing(t *testing.T) {
	insight := OpenInsight{ID: uuid.New(), Kind: "weather_report", Title: "rain"}
	p, repo, _ := newProposerFixture([]OpenInsight{insight}, nil, false)

	summary, err := p.RunProposalCycle(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if summary.Created != 0 || summary.TotalOpen != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(repo.actions) != 0 {
		t.Fatalf("expected no actions, got %d", len(repo.actions))
	}
}
