package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/platform/apperr"
)

// Repo is the PostgreSQL-backed identity resolver.
type Repo struct {
	db *pgxpool.Pool
}

// NewRepo creates a new identity repository.
func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

var _ Resolver = (*Repo)(nil)

// FindActiveUserByRole returns the tenant's active user holding the given
// role. The oldest account wins when several users share the role so the
// target is stable across cycles.
func (r *Repo) FindActiveUserByRole(ctx context.Context, tenantID uuid.UUID, role string) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, email, name, role, is_active
		FROM users
		WHERE tenant_id = $1 AND role = $2 AND is_active = TRUE
		ORDER BY created_at ASC
		LIMIT 1`, tenantID, role).Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.Role, &u.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(fmt.Sprintf("no active user with role %s", role))
		}
		return nil, fmt.Errorf("find user by role: %w", err)
	}
	return &u, nil
}

// ListActiveTenantIDs returns the tenants the scheduler fans cycles out to.
func (r *Repo) ListActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM tenants WHERE is_active = TRUE ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
