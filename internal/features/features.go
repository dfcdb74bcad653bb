// Package features implements the per-tenant feature gate consulted by the
// action proposer before emitting policy-gated proposals.
package features

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/platform/apperr"
)

// Feature keys known to the engine.
const (
	FeatureInvoiceLocking = "invoice_locking"
)

// Gate answers whether a feature is enabled for a tenant.
type Gate interface {
	// AssertEnabled returns a forbidden error when the feature is missing or
	// disabled for the tenant.
	AssertEnabled(ctx context.Context, tenantID uuid.UUID, featureKey string) error
	IsEnabled(ctx context.Context, tenantID uuid.UUID, featureKey string) (bool, error)
}

// Repo is the PostgreSQL-backed feature gate.
type Repo struct {
	db *pgxpool.Pool
}

// NewRepo creates a new feature gate.
func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

var _ Gate = (*Repo)(nil)

// IsEnabled reports whether the feature is enabled. Unknown features are
// treated as disabled.
func (r *Repo) IsEnabled(ctx context.Context, tenantID uuid.UUID, featureKey string) (bool, error) {
	var enabled bool
	err := r.db.QueryRow(ctx, `
		SELECT is_enabled FROM ops_tenant_features
		WHERE tenant_id = $1 AND feature_key = $2`, tenantID, featureKey).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check feature %s: %w", featureKey, err)
	}
	return enabled, nil
}

// AssertEnabled fails with a forbidden error when the feature is off.
func (r *Repo) AssertEnabled(ctx context.Context, tenantID uuid.UUID, featureKey string) error {
	enabled, err := r.IsEnabled(ctx, tenantID, featureKey)
	if err != nil {
		return err
	}
	if !enabled {
		return apperr.Forbidden("upgrade required")
	}
	return nil
}
