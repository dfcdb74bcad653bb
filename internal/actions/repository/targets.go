package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/platform/apperr"
)

// InvoiceLock is the narrow invoice view the lock-invoice executor touches.
type InvoiceLock struct {
	InvoiceID uuid.UUID
	LockedAt  *time.Time
	LockedBy  *uuid.UUID
}

// Targets reads and mutates the narrow slices of collaborator entities that
// per-kind executors touch. Everything else about those entities belongs to
// their own modules.
type Targets struct {
	db *pgxpool.Pool
}

// NewTargets creates the target entity store.
func NewTargets(db *pgxpool.Pool) *Targets {
	return &Targets{db: db}
}

// InsertWorkItem creates a work item from action payload fields.
func (t *Targets) InsertWorkItem(ctx context.Context, tenantID uuid.UUID, title, description, priority string) (uuid.UUID, error) {
	if priority == "" {
		priority = "normal"
	}
	var id uuid.UUID
	err := t.db.QueryRow(ctx, `
		INSERT INTO work_items (tenant_id, title, description, priority)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, tenantID, title, description, priority).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert work item: %w", err)
	}
	return id, nil
}

// DeleteWorkItem removes a work item. Used by the create-work-item
// compensator; a missing row is a not-found error.
func (t *Targets) DeleteWorkItem(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := t.db.Exec(ctx, `
		DELETE FROM work_items WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete work item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("work item not found")
	}
	return nil
}

// GetWorkItemAssignee reads the current assignee before a reassign.
func (t *Targets) GetWorkItemAssignee(ctx context.Context, tenantID, id uuid.UUID) (*uuid.UUID, error) {
	var assignee *uuid.UUID
	err := t.db.QueryRow(ctx, `
		SELECT assignee_id FROM work_items
		WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(&assignee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("work item not found")
		}
		return nil, fmt.Errorf("get work item assignee: %w", err)
	}
	return assignee, nil
}

// SetWorkItemAssignee sets (or restores) a work item's assignee.
func (t *Targets) SetWorkItemAssignee(ctx context.Context, tenantID, id uuid.UUID, assignee *uuid.UUID) error {
	tag, err := t.db.Exec(ctx, `
		UPDATE work_items SET assignee_id = $3
		WHERE id = $1 AND tenant_id = $2`, id, tenantID, assignee)
	if err != nil {
		return fmt.Errorf("set work item assignee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("work item not found")
	}
	return nil
}

// GetInvoiceLock reads the invoice's current lock fields. The invoice must
// exist in the tenant.
func (t *Targets) GetInvoiceLock(ctx context.Context, tenantID, invoiceID uuid.UUID) (*InvoiceLock, error) {
	lock := &InvoiceLock{InvoiceID: invoiceID}
	err := t.db.QueryRow(ctx, `
		SELECT locked_at, locked_by FROM invoices
		WHERE id = $1 AND tenant_id = $2`, invoiceID, tenantID).Scan(&lock.LockedAt, &lock.LockedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("invoice not found")
		}
		return nil, fmt.Errorf("get invoice lock: %w", err)
	}
	return lock, nil
}

// SetInvoiceLock sets (or restores) the invoice's lock fields exactly.
func (t *Targets) SetInvoiceLock(ctx context.Context, tenantID, invoiceID uuid.UUID, lockedAt *time.Time, lockedBy *uuid.UUID) error {
	tag, err := t.db.Exec(ctx, `
		UPDATE invoices SET locked_at = $3, locked_by = $4
		WHERE id = $1 AND tenant_id = $2`, invoiceID, tenantID, lockedAt, lockedBy)
	if err != nil {
		return fmt.Errorf("set invoice lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("invoice not found")
	}
	return nil
}

// MostAtRiskUnlockedInvoice returns the highest-amount sent, unlocked,
// overdue invoice, or nil when none qualifies.
func (t *Targets) MostAtRiskUnlockedInvoice(ctx context.Context, tenantID uuid.UUID, now time.Time) (*uuid.UUID, error) {
	cutoff := now.AddDate(0, 0, -7)
	var id uuid.UUID
	err := t.db.QueryRow(ctx, `
		SELECT id FROM invoices
		WHERE tenant_id = $1 AND status = 'sent' AND locked_at IS NULL AND due_at < $2
		ORDER BY amount_cents DESC
		LIMIT 1`, tenantID, cutoff).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find at-risk invoice: %w", err)
	}
	return &id, nil
}
