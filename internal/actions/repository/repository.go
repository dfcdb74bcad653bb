// Package repository implements action persistence on PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/internal/actions/domain"
	"opspulse_backend/platform/apperr"
)

// Repo is the PostgreSQL-backed action repository.
type Repo struct {
	db *pgxpool.Pool
}

// NewRepo creates a new action repository.
func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

var _ Repository = (*Repo)(nil)

const actionColumns = `
	id, tenant_id, insight_id, kind, status, title, rationale, payload,
	approved_by, approved_at, executed_by, executed_at,
	undo_data, undo_expires_at, error, created_at`

func scanAction(row pgx.Row) (*domain.Action, error) {
	var a domain.Action
	err := row.Scan(
		&a.ID, &a.TenantID, &a.InsightID, &a.Kind, &a.Status, &a.Title,
		&a.Rationale, &a.Payload, &a.ApprovedBy, &a.ApprovedAt,
		&a.ExecutedBy, &a.ExecutedAt, &a.UndoData, &a.UndoExpiresAt,
		&a.Error, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Insert creates a new PROPOSED action.
func (r *Repo) Insert(ctx context.Context, params InsertParams) (*domain.Action, error) {
	payload := params.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO ops_actions (tenant_id, insight_id, kind, status, title, rationale, payload)
		VALUES ($1, $2, $3, 'PROPOSED', $4, $5, $6)
		RETURNING `+actionColumns,
		params.TenantID, params.InsightID, params.Kind, params.Title, params.Rationale, payload)
	action, err := scanAction(row)
	if err != nil {
		return nil, fmt.Errorf("insert action: %w", err)
	}
	return action, nil
}

// GetByID fetches a single action scoped to a tenant.
func (r *Repo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Action, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+actionColumns+`
		FROM ops_actions
		WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("action not found")
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return action, nil
}

// List returns actions newest first with an exact total.
func (r *Repo) List(ctx context.Context, tenantID uuid.UUID, params ListParams) ([]domain.Action, int, error) {
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	where := `tenant_id = $1`
	args := []any{tenantID}
	if params.Status != nil {
		args = append(args, *params.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ops_actions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count actions: %w", err)
	}

	args = append(args, limit, params.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM ops_actions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, actionColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, *action)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, total, nil
}

// HasActiveProposal reports whether a non-terminal action of this kind
// already references the insight.
func (r *Repo) HasActiveProposal(ctx context.Context, tenantID, insightID uuid.UUID, kind domain.Kind) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ops_actions
			WHERE tenant_id = $1 AND insight_id = $2 AND kind = $3
			  AND status IN ('PROPOSED', 'APPROVED')
		)`, tenantID, insightID, kind).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active proposal: %w", err)
	}
	return exists, nil
}

// MarkApproved transitions PROPOSED → APPROVED.
func (r *Repo) MarkApproved(ctx context.Context, tenantID, id, actor uuid.UUID) (*domain.Action, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE ops_actions
		SET status = 'APPROVED', approved_by = $3, approved_at = now(), error = NULL
		WHERE id = $1 AND tenant_id = $2 AND status = 'PROPOSED'
		RETURNING `+actionColumns, id, tenantID, actor)
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("only PROPOSED actions can be approved")
		}
		return nil, fmt.Errorf("approve action: %w", err)
	}
	return action, nil
}

// ClaimExecute transitions APPROVED → EXECUTED. The conditional write is the
// coordination point: of two concurrent callers exactly one matches the row.
func (r *Repo) ClaimExecute(ctx context.Context, tenantID, id, actor uuid.UUID) (*domain.Action, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE ops_actions
		SET status = 'EXECUTED', executed_by = $3, executed_at = now(), error = NULL
		WHERE id = $1 AND tenant_id = $2 AND status = 'APPROVED'
		RETURNING `+actionColumns, id, tenantID, actor)
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("only APPROVED actions can be executed")
		}
		return nil, fmt.Errorf("claim execute: %w", err)
	}
	return action, nil
}

// FinishExecute stores the undo data captured by the executor.
func (r *Repo) FinishExecute(ctx context.Context, id uuid.UUID, undoData json.RawMessage, undoExpiresAt *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE ops_actions
		SET undo_data = $2, undo_expires_at = $3
		WHERE id = $1 AND status = 'EXECUTED'`, id, undoData, undoExpiresAt)
	if err != nil {
		return fmt.Errorf("finish execute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("action is no longer EXECUTED")
	}
	return nil
}

// MarkFailed records an executor failure, EXECUTED → FAILED.
func (r *Repo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ops_actions
		SET status = 'FAILED', error = $2, undo_data = NULL, undo_expires_at = NULL
		WHERE id = $1 AND status = 'EXECUTED'`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ClaimUndo transitions EXECUTED → CANCELED inside the undo window. The undo
// data stays on the row until ClearUndo so the compensator can read it.
func (r *Repo) ClaimUndo(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (*domain.Action, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE ops_actions
		SET status = 'CANCELED'
		WHERE id = $1 AND tenant_id = $2 AND status = 'EXECUTED'
		  AND undo_data IS NOT NULL AND undo_expires_at > $3
		RETURNING `+actionColumns, id, tenantID, now)
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("action is not undoable")
		}
		return nil, fmt.Errorf("claim undo: %w", err)
	}
	return action, nil
}

// ClearUndo drops the undo data after a successful compensation.
func (r *Repo) ClearUndo(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ops_actions
		SET undo_data = NULL, undo_expires_at = NULL
		WHERE id = $1 AND status = 'CANCELED'`, id)
	if err != nil {
		return fmt.Errorf("clear undo: %w", err)
	}
	return nil
}

// RevertUndo restores EXECUTED after a failed compensation, keeping the undo
// data so a later attempt inside the window can retry.
func (r *Repo) RevertUndo(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ops_actions
		SET status = 'EXECUTED', error = $2
		WHERE id = $1 AND status = 'CANCELED'`, id, errMsg)
	if err != nil {
		return fmt.Errorf("revert undo: %w", err)
	}
	return nil
}
