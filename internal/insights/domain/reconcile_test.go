package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBuildReconcilePlan_InsertsNewKinds(t *testing.T) {
	plan := BuildReconcilePlan(nil, []Candidate{
		{Kind: KindStalledDeals, Severity: SeverityHigh},
		{Kind: KindOverdueInvoices, Severity: SeverityLow},
	})

	if len(plan.Insert) != 2 {
		t.Fatalf("expected 2 inserts, got %d", len(plan.Insert))
	}
	if len(plan.Refresh) != 0 || len(plan.AutoResolve) != 0 {
		t.Fatalf("expected no refreshes or resolves, got %d and %d", len(plan.Refresh), len(plan.AutoResolve))
	}
}

func TestBuildReconcilePlan_SecondPassRefreshesInsteadOfInserting(t *testing.T) {
	candidates := []Candidate{{Kind: KindStalledDeals, Severity: SeverityHigh}}

	first := BuildReconcilePlan(nil, candidates)
	if len(first.Insert) != 1 {
		t.Fatalf("expected 1 insert on first pass, got %d", len(first.Insert))
	}

	openID := uuid.New()
	existing := []OpenInsight{{ID: openID, Kind: KindStalledDeals, CreatedAt: time.Now()}}

	second := BuildReconcilePlan(existing, candidates)
	if len(second.Insert) != 0 {
		t.Fatalf("expected no inserts on second pass, got %d", len(second.Insert))
	}
	if len(second.Refresh) != 1 || second.Refresh[0].InsightID != openID {
		t.Fatalf("expected a refresh of the open insight, got %+v", second.Refresh)
	}
	if len(second.AutoResolve) != 0 {
		t.Fatalf("expected no resolves, got %d", len(second.AutoResolve))
	}
}

func TestBuildReconcilePlan_AutoResolvesVanishedKinds(t *testing.T) {
	openID := uuid.New()
	existing := []OpenInsight{{ID: openID, Kind: KindOverdueWork, CreatedAt: time.Now()}}

	plan := BuildReconcilePlan(existing, nil)
	if len(plan.AutoResolve) != 1 || plan.AutoResolve[0] != openID {
		t.Fatalf("expected the open insight to auto-resolve, got %+v", plan.AutoResolve)
	}
	if len(plan.Insert) != 0 || len(plan.Refresh) != 0 {
		t.Fatal("expected no inserts or refreshes")
	}
}

func TestBuildReconcilePlan_CollapsesDuplicatesOntoNewest(t *testing.T) {
	older := OpenInsight{ID: uuid.New(), Kind: KindSecurityAlert, CreatedAt: time.Now().Add(-time.Hour)}
	newer := OpenInsight{ID: uuid.New(), Kind: KindSecurityAlert, CreatedAt: time.Now()}

	plan := BuildReconcilePlan([]OpenInsight{older, newer}, []Candidate{{Kind: KindSecurityAlert}})

	if len(plan.AutoResolve) != 1 || plan.AutoResolve[0] != older.ID {
		t.Fatalf("expected the older duplicate to resolve, got %+v", plan.AutoResolve)
	}
	if len(plan.Refresh) != 1 || plan.Refresh[0].InsightID != newer.ID {
		t.Fatalf("expected the newest duplicate to be refreshed, got %+v", plan.Refresh)
	}

	// Same outcome regardless of row order.
	reversed := BuildReconcilePlan([]OpenInsight{newer, older}, []Candidate{{Kind: KindSecurityAlert}})
	if len(reversed.AutoResolve) != 1 || reversed.AutoResolve[0] != older.ID {
		t.Fatalf("expected the older duplicate to resolve regardless of order, got %+v", reversed.AutoResolve)
	}
}

func TestBuildReconcilePlan_DuplicateCandidatesOfOneKindCollapse(t *testing.T) {
	plan := BuildReconcilePlan(nil, []Candidate{
		{Kind: KindHealthDrop, Severity: SeverityCritical},
		{Kind: KindHealthDrop, Severity: SeverityLow},
	})

	if len(plan.Insert) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(plan.Insert))
	}
	if plan.Insert[0].Severity != SeverityCritical {
		t.Fatalf("expected the first candidate to win, got severity %s", plan.Insert[0].Severity)
	}
}

func TestBuildReconcilePlan_MixedConvergence(t *testing.T) {
	openStalled := OpenInsight{ID: uuid.New(), Kind: KindStalledDeals, CreatedAt: time.Now()}
	openWork := OpenInsight{ID: uuid.New(), Kind: KindOverdueWork, CreatedAt: time.Now()}

	plan := BuildReconcilePlan(
		[]OpenInsight{openStalled, openWork},
		[]Candidate{
			{Kind: KindStalledDeals, Severity: SeverityMedium},
			{Kind: KindSecurityAlert, Severity: SeverityCritical},
		},
	)

	if len(plan.Refresh) != 1 || plan.Refresh[0].InsightID != openStalled.ID {
		t.Fatalf("expected stalled_deals to refresh, got %+v", plan.Refresh)
	}
	if len(plan.Insert) != 1 || plan.Insert[0].Kind != KindSecurityAlert {
		t.Fatalf("expected security_alert to insert, got %+v", plan.Insert)
	}
	if len(plan.AutoResolve) != 1 || plan.AutoResolve[0] != openWork.ID {
		t.Fatalf("expected overdue_work to auto-resolve, got %+v", plan.AutoResolve)
	}
}
