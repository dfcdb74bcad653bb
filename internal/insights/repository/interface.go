package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/insights/domain"
)

// Insight is a persisted insight row.
type Insight struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Kind         domain.Kind
	Severity     domain.Severity
	ScoreImpact  int
	Title        string
	Explanation  string
	SubjectType  *string
	SubjectID    *uuid.UUID
	Meta         json.RawMessage
	IsResolved   bool
	ResolvedNote *string
	ResolvedBy   *uuid.UUID
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// ReconcileOutcome reports what one reconcile transaction changed.
type ReconcileOutcome struct {
	Created      []Insight
	Refreshed    int
	AutoResolved []Insight
}

// ListOpenParams filters and pages the open insight listing.
type ListOpenParams struct {
	Kind        *domain.Kind
	MinSeverity *domain.Severity
	Limit       int
	Offset      int
}

// Repository defines persistence for insights.
type Repository interface {
	// Reconcile converges the tenant's open insight set onto the candidate
	// set inside a single transaction. See domain.BuildReconcilePlan for the
	// guarantees.
	Reconcile(ctx context.Context, tenantID uuid.UUID, candidates []domain.Candidate) (ReconcileOutcome, error)

	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Insight, error)
	ListOpen(ctx context.Context, tenantID uuid.UUID, params ListOpenParams) ([]Insight, int, error)
	// ListOpenRecent returns up to limit open insights, most severe and most
	// recent first. Used by the action proposer.
	ListOpenRecent(ctx context.Context, tenantID uuid.UUID, limit int) ([]Insight, error)

	// Resolve marks an open insight resolved by a user. Resolving an already
	// resolved insight is a conflict.
	Resolve(ctx context.Context, tenantID, id, resolvedBy uuid.UUID, note *string) (*Insight, error)

	// CollectMetrics computes a fresh snapshot of the tenant's operational
	// state. Nothing is cached between calls.
	CollectMetrics(ctx context.Context, tenantID uuid.UUID, now time.Time) (*domain.MetricSnapshot, error)
}
