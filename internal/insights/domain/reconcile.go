package domain

import (
	"time"

	"github.com/google/uuid"
)

// OpenInsight is the reconciler's view of a currently-unresolved row.
type OpenInsight struct {
	ID        uuid.UUID
	Kind      Kind
	CreatedAt time.Time
}

// ReconcilePlan is the set of writes one reconcile pass must apply. Building
// the plan is pure; applying it happens inside a single transaction.
type ReconcilePlan struct {
	// Refresh updates an existing open insight in place from a candidate.
	// No creation event is emitted for refreshed insights.
	Refresh []RefreshOp
	// Insert creates a brand-new open insight and emits a creation event.
	Insert []Candidate
	// AutoResolve closes open insights whose condition disappeared, plus any
	// duplicate open rows collapsed onto the newest of their kind.
	AutoResolve []uuid.UUID
}

// RefreshOp pairs an existing open insight with its replacement candidate.
type RefreshOp struct {
	InsightID uuid.UUID
	Candidate Candidate
}

// BuildReconcilePlan computes the writes needed to converge the open insight
// set onto the candidate set. Guarantees after applying the plan:
//
//   - exactly one open insight per kind that has a candidate;
//   - no open insight for a kind without a candidate;
//   - duplicate open rows of one kind (legacy data or a race) collapse onto
//     the most recent row, the rest are resolved.
//
// Running the same candidate set twice yields an empty Insert list on the
// second pass, which is what makes the cycle idempotent.
func BuildReconcilePlan(existing []OpenInsight, candidates []Candidate) ReconcilePlan {
	var plan ReconcilePlan

	// Newest open row per kind; older duplicates get resolved.
	newestByKind := make(map[Kind]OpenInsight, len(existing))
	for _, open := range existing {
		current, ok := newestByKind[open.Kind]
		if !ok {
			newestByKind[open.Kind] = open
			continue
		}
		if open.CreatedAt.After(current.CreatedAt) {
			plan.AutoResolve = append(plan.AutoResolve, current.ID)
			newestByKind[open.Kind] = open
		} else {
			plan.AutoResolve = append(plan.AutoResolve, open.ID)
		}
	}

	seen := make(map[Kind]bool, len(candidates))
	for _, candidate := range candidates {
		if seen[candidate.Kind] {
			continue
		}
		seen[candidate.Kind] = true

		if open, ok := newestByKind[candidate.Kind]; ok {
			plan.Refresh = append(plan.Refresh, RefreshOp{InsightID: open.ID, Candidate: candidate})
		} else {
			plan.Insert = append(plan.Insert, candidate)
		}
	}

	// Kinds that still have an open row but produced no candidate this cycle
	// auto-heal.
	for kind, open := range newestByKind {
		if !seen[kind] {
			plan.AutoResolve = append(plan.AutoResolve, open.ID)
		}
	}

	return plan
}
