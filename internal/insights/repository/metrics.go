package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/insights/domain"
)

// Thresholds for the metric queries. Durations are measured against the
// cycle's single reference time so one snapshot is internally consistent.
const (
	stalledDealIdleDays    = 14
	overdueInvoiceDays     = 7
	snapshotTopSubjects    = 5
	healthSamplesRequested = 2
)

// CollectMetrics computes a fresh snapshot of the tenant's operational state.
func (r *Repo) CollectMetrics(ctx context.Context, tenantID uuid.UUID, now time.Time) (*domain.MetricSnapshot, error) {
	snap := &domain.MetricSnapshot{TenantID: tenantID, TakenAt: now}

	if err := r.collectStalledDeals(ctx, snap, now); err != nil {
		return nil, err
	}
	if err := r.collectOverdueInvoices(ctx, snap, now); err != nil {
		return nil, err
	}
	if err := r.collectOverdueWork(ctx, snap, now); err != nil {
		return nil, err
	}
	if err := r.collectSecurityEvents(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.collectHealthSamples(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *Repo) collectStalledDeals(ctx context.Context, snap *domain.MetricSnapshot, now time.Time) error {
	cutoff := now.AddDate(0, 0, -stalledDealIdleDays)

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM deals
		WHERE tenant_id = $1 AND status = 'open' AND last_activity_at < $2`,
		snap.TenantID, cutoff).Scan(&snap.StalledDealCount)
	if err != nil {
		return fmt.Errorf("count stalled deals: %w", err)
	}
	if snap.StalledDealCount == 0 {
		return nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, title, amount_cents, last_activity_at
		FROM deals
		WHERE tenant_id = $1 AND status = 'open' AND last_activity_at < $2
		ORDER BY amount_cents DESC
		LIMIT $3`, snap.TenantID, cutoff, snapshotTopSubjects)
	if err != nil {
		return fmt.Errorf("list stalled deals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var deal domain.StalledDeal
		var lastActivity time.Time
		if err := rows.Scan(&deal.ID, &deal.Title, &deal.AmountCents, &lastActivity); err != nil {
			return fmt.Errorf("scan stalled deal: %w", err)
		}
		deal.IdleDays = int(now.Sub(lastActivity).Hours() / 24)
		snap.StalledDeals = append(snap.StalledDeals, deal)
	}
	return rows.Err()
}

func (r *Repo) collectOverdueInvoices(ctx context.Context, snap *domain.MetricSnapshot, now time.Time) error {
	cutoff := now.AddDate(0, 0, -overdueInvoiceDays)

	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount_cents), 0)
		FROM invoices
		WHERE tenant_id = $1 AND status = 'sent' AND due_at < $2`,
		snap.TenantID, cutoff).Scan(&snap.OverdueInvoiceCount, &snap.OverdueInvoiceTotal)
	if err != nil {
		return fmt.Errorf("count overdue invoices: %w", err)
	}
	if snap.OverdueInvoiceCount == 0 {
		return nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, number, amount_cents, due_at, locked_at IS NOT NULL
		FROM invoices
		WHERE tenant_id = $1 AND status = 'sent' AND due_at < $2
		ORDER BY amount_cents DESC
		LIMIT $3`, snap.TenantID, cutoff, snapshotTopSubjects)
	if err != nil {
		return fmt.Errorf("list overdue invoices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var inv domain.OverdueInvoice
		var dueAt time.Time
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.AmountCents, &dueAt, &inv.IsLocked); err != nil {
			return fmt.Errorf("scan overdue invoice: %w", err)
		}
		inv.DaysOverdue = int(now.Sub(dueAt).Hours() / 24)
		snap.OverdueInvoices = append(snap.OverdueInvoices, inv)
	}
	return rows.Err()
}

func (r *Repo) collectOverdueWork(ctx context.Context, snap *domain.MetricSnapshot, now time.Time) error {
	rows, err := r.db.Query(ctx, `
		SELECT assignee_id, COUNT(*)
		FROM work_items
		WHERE tenant_id = $1 AND status = 'open' AND due_at IS NOT NULL AND due_at < $2
		GROUP BY assignee_id
		ORDER BY COUNT(*) DESC`, snap.TenantID, now)
	if err != nil {
		return fmt.Errorf("group overdue work: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var load domain.AssigneeWorkload
		if err := rows.Scan(&load.AssigneeID, &load.Count); err != nil {
			return fmt.Errorf("scan overdue work: %w", err)
		}
		snap.OverdueWork = append(snap.OverdueWork, load)
		snap.OverdueWorkCount += load.Count
	}
	return rows.Err()
}

func (r *Repo) collectSecurityEvents(ctx context.Context, snap *domain.MetricSnapshot) error {
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM security_events
		WHERE tenant_id = $1 AND severity = 'critical' AND is_resolved = FALSE`,
		snap.TenantID).Scan(&snap.CriticalSecurityEvents)
	if err != nil {
		return fmt.Errorf("count security events: %w", err)
	}
	return nil
}

func (r *Repo) collectHealthSamples(ctx context.Context, snap *domain.MetricSnapshot) error {
	rows, err := r.db.Query(ctx, `
		SELECT score, created_at
		FROM health_scores
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, snap.TenantID, healthSamplesRequested)
	if err != nil {
		return fmt.Errorf("list health scores: %w", err)
	}
	defer rows.Close()

	var samples []domain.HealthSample
	for rows.Next() {
		var sample domain.HealthSample
		if err := rows.Scan(&sample.Score, &sample.TakenAt); err != nil {
			return fmt.Errorf("scan health score: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(samples) > 0 {
		snap.LatestHealth = &samples[0]
	}
	if len(samples) > 1 {
		snap.PreviousHealth = &samples[1]
	}
	return nil
}
