// Package domain holds the core types of the insight engine: metric
// snapshots, insight kinds, severity ordering, and synthesized candidates.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies a fixed insight category. The set is closed: the
// reconciler guarantees at most one open insight per (tenant, kind).
type Kind string

const (
	KindStalledDeals    Kind = "stalled_deals"
	KindOverdueInvoices Kind = "overdue_invoices"
	KindOverdueWork     Kind = "overdue_work"
	KindSecurityAlert   Kind = "security_alert"
	KindHealthDrop      Kind = "health_drop"
)

// Severity is an ordinal urgency level. Higher is more urgent; values are
// compared directly.
type Severity int

const (
	SeverityLow      Severity = 1
	SeverityMedium   Severity = 2
	SeverityHigh     Severity = 3
	SeverityCritical Severity = 4
)

// String returns the canonical label for a severity level.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity maps a canonical label back to its ordinal value.
func ParseSeverity(label string) (Severity, bool) {
	switch label {
	case "LOW":
		return SeverityLow, true
	case "MEDIUM":
		return SeverityMedium, true
	case "HIGH":
		return SeverityHigh, true
	case "CRITICAL":
		return SeverityCritical, true
	default:
		return 0, false
	}
}

// StalledDeal is an open deal with no recent activity.
type StalledDeal struct {
	ID          uuid.UUID
	Title       string
	AmountCents int64
	IdleDays    int
}

// OverdueInvoice is a sent, unpaid invoice past its due date.
type OverdueInvoice struct {
	ID          uuid.UUID
	Number      string
	AmountCents int64
	DaysOverdue int
	IsLocked    bool
}

// AssigneeWorkload groups overdue open work items by assignee.
type AssigneeWorkload struct {
	AssigneeID *uuid.UUID
	Count      int
}

// HealthSample is one periodic health-score measurement.
type HealthSample struct {
	Score   int
	TakenAt time.Time
}

// MetricSnapshot is the read-only view of a tenant's operational state at a
// single point in time. It is computed fresh on every cycle; nothing here is
// cached.
type MetricSnapshot struct {
	TenantID uuid.UUID
	TakenAt  time.Time

	StalledDealCount int
	StalledDeals     []StalledDeal

	OverdueInvoiceCount int
	OverdueInvoiceTotal int64
	OverdueInvoices     []OverdueInvoice

	OverdueWorkCount int
	OverdueWork      []AssigneeWorkload

	CriticalSecurityEvents int

	// Two most recent health samples, newest first. Either may be nil when
	// the tenant has insufficient history.
	LatestHealth   *HealthSample
	PreviousHealth *HealthSample
}

// Candidate is a synthesized, not-yet-persisted insight.
type Candidate struct {
	Kind        Kind
	Severity    Severity
	ScoreImpact int
	Title       string
	Explanation string
	SubjectType *string
	SubjectID   *uuid.UUID
	Meta        map[string]any
}
