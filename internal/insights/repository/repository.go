// Package repository implements insight persistence on PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/internal/insights/domain"
	"opspulse_backend/platform/apperr"
)

// Repo is the PostgreSQL-backed insight repository.
type Repo struct {
	db *pgxpool.Pool
}

// NewRepo creates a new insight repository.
func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

var _ Repository = (*Repo)(nil)

const insightColumns = `
	id, tenant_id, kind, severity, score_impact, title, explanation,
	subject_type, subject_id, meta, is_resolved, resolved_note, resolved_by,
	created_at, resolved_at`

func scanInsight(row pgx.Row) (*Insight, error) {
	var ins Insight
	err := row.Scan(
		&ins.ID, &ins.TenantID, &ins.Kind, &ins.Severity, &ins.ScoreImpact,
		&ins.Title, &ins.Explanation, &ins.SubjectType, &ins.SubjectID,
		&ins.Meta, &ins.IsResolved, &ins.ResolvedNote, &ins.ResolvedBy,
		&ins.CreatedAt, &ins.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ins, nil
}

func metaJSON(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

// refreshInsightSQL re-describes an open insight from the latest snapshot.
// created_at advances on every refresh so the created_at DESC ordering and
// the duplicate collapse both rank by last refresh, not first insert.
const refreshInsightSQL = `
	UPDATE ops_insights
	SET severity = $2, score_impact = $3, title = $4, explanation = $5,
	    subject_type = $6, subject_id = $7, meta = $8, created_at = now()
	WHERE id = $1 AND is_resolved = FALSE`

// Reconcile applies one reconcile pass inside a single transaction. Open rows
// are locked first so concurrent cycles for the same tenant serialize instead
// of double-inserting.
func (r *Repo) Reconcile(ctx context.Context, tenantID uuid.UUID, candidates []domain.Candidate) (ReconcileOutcome, error) {
	var outcome ReconcileOutcome

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return outcome, fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, kind, created_at
		FROM ops_insights
		WHERE tenant_id = $1 AND is_resolved = FALSE
		FOR UPDATE`, tenantID)
	if err != nil {
		return outcome, fmt.Errorf("lock open insights: %w", err)
	}
	var existing []domain.OpenInsight
	for rows.Next() {
		var open domain.OpenInsight
		if err := rows.Scan(&open.ID, &open.Kind, &open.CreatedAt); err != nil {
			rows.Close()
			return outcome, fmt.Errorf("scan open insight: %w", err)
		}
		existing = append(existing, open)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return outcome, fmt.Errorf("iterate open insights: %w", err)
	}

	plan := domain.BuildReconcilePlan(existing, candidates)

	for _, id := range plan.AutoResolve {
		row := tx.QueryRow(ctx, `
			UPDATE ops_insights
			SET is_resolved = TRUE, resolved_at = now(),
			    resolved_note = 'auto-resolved: condition no longer present'
			WHERE id = $1 AND is_resolved = FALSE
			RETURNING `+insightColumns, id)
		ins, err := scanInsight(row)
		if err != nil {
			return outcome, fmt.Errorf("auto-resolve insight %s: %w", id, err)
		}
		outcome.AutoResolved = append(outcome.AutoResolved, *ins)
	}

	for _, op := range plan.Refresh {
		meta, err := metaJSON(op.Candidate.Meta)
		if err != nil {
			return outcome, fmt.Errorf("marshal insight meta: %w", err)
		}
		tag, err := tx.Exec(ctx, refreshInsightSQL,
			op.InsightID, op.Candidate.Severity, op.Candidate.ScoreImpact,
			op.Candidate.Title, op.Candidate.Explanation,
			op.Candidate.SubjectType, op.Candidate.SubjectID, meta)
		if err != nil {
			return outcome, fmt.Errorf("refresh insight %s: %w", op.InsightID, err)
		}
		outcome.Refreshed += int(tag.RowsAffected())
	}

	for _, candidate := range plan.Insert {
		meta, err := metaJSON(candidate.Meta)
		if err != nil {
			return outcome, fmt.Errorf("marshal insight meta: %w", err)
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO ops_insights
				(tenant_id, kind, severity, score_impact, title, explanation,
				 subject_type, subject_id, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+insightColumns,
			tenantID, candidate.Kind, candidate.Severity, candidate.ScoreImpact,
			candidate.Title, candidate.Explanation,
			candidate.SubjectType, candidate.SubjectID, meta)
		ins, err := scanInsight(row)
		if err != nil {
			return outcome, fmt.Errorf("insert insight %s: %w", candidate.Kind, err)
		}
		outcome.Created = append(outcome.Created, *ins)
	}

	if err := tx.Commit(ctx); err != nil {
		return outcome, fmt.Errorf("commit reconcile tx: %w", err)
	}
	return outcome, nil
}

// GetByID fetches a single insight scoped to a tenant.
func (r *Repo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Insight, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+insightColumns+`
		FROM ops_insights
		WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	ins, err := scanInsight(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("insight not found")
		}
		return nil, fmt.Errorf("get insight: %w", err)
	}
	return ins, nil
}

// ListOpen returns open insights ordered by severity, score impact, then
// recency, with an exact total for paging.
func (r *Repo) ListOpen(ctx context.Context, tenantID uuid.UUID, params ListOpenParams) ([]Insight, int, error) {
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	where := `tenant_id = $1 AND is_resolved = FALSE`
	args := []any{tenantID}
	if params.Kind != nil {
		args = append(args, *params.Kind)
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if params.MinSeverity != nil {
		args = append(args, *params.MinSeverity)
		where += fmt.Sprintf(" AND severity >= $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ops_insights WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count open insights: %w", err)
	}

	args = append(args, limit, params.Offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM ops_insights
		WHERE %s
		ORDER BY severity DESC, score_impact DESC, created_at DESC
		LIMIT $%d OFFSET $%d`, insightColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list open insights: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		ins, err := scanInsight(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan insight: %w", err)
		}
		insights = append(insights, *ins)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate insights: %w", err)
	}
	return insights, total, nil
}

// ListOpenRecent returns up to limit open insights for the proposer.
func (r *Repo) ListOpenRecent(ctx context.Context, tenantID uuid.UUID, limit int) ([]Insight, error) {
	insights, _, err := r.ListOpen(ctx, tenantID, ListOpenParams{Limit: limit})
	return insights, err
}

// Resolve marks an insight resolved by a user. The conditional write makes a
// double resolve a conflict rather than a silent overwrite.
func (r *Repo) Resolve(ctx context.Context, tenantID, id, resolvedBy uuid.UUID, note *string) (*Insight, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE ops_insights
		SET is_resolved = TRUE, resolved_at = now(), resolved_by = $3, resolved_note = $4
		WHERE id = $1 AND tenant_id = $2 AND is_resolved = FALSE
		RETURNING `+insightColumns, id, tenantID, resolvedBy, note)
	ins, err := scanInsight(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, tenantID, id); getErr != nil {
				return nil, getErr
			}
			return nil, apperr.Conflict("insight is already resolved")
		}
		return nil, fmt.Errorf("resolve insight: %w", err)
	}
	return ins, nil
}
