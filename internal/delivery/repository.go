// Package delivery implements outbound webhook delivery: signed HTTP posts
// with per-endpoint retry and a consecutive-failure circuit breaker.
package delivery

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

// Endpoint is a tenant-configured webhook target. Rows are created by the
// configuration surface; this subsystem only mutates the health fields.
type Endpoint struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	URL              string
	Secret           string
	SubscribedEvents []string
	IsActive         bool
	FailureCount     int
	LastFailureAt    *time.Time
	CreatedAt        time.Time
}

// Record is one delivery attempt, append-only.
type Record struct {
	ID         int64
	EndpointID uuid.UUID
	Event      string
	StatusCode *int
	Success    bool
	Attempt    int
	DurationMs int64
	BodyHash   string
	CreatedAt  time.Time
}

// RecordParams describes one attempt to persist.
type RecordParams struct {
	EndpointID uuid.UUID
	Event      string
	StatusCode *int
	Success    bool
	Attempt    int
	DurationMs int64
	BodyHash   string
}

// Repository defines delivery persistence.
type Repository interface {
	// ListActiveSubscribed returns active endpoints subscribed to the event.
	ListActiveSubscribed(ctx context.Context, tenantID uuid.UUID, event string) ([]Endpoint, error)
	ListEndpoints(ctx context.Context, tenantID uuid.UUID) ([]Endpoint, error)
	ListRecords(ctx context.Context, tenantID, endpointID uuid.UUID, limit int) ([]Record, error)

	// Activate re-enables a suspended endpoint and resets its counter.
	Activate(ctx context.Context, tenantID, id uuid.UUID) (*Endpoint, error)

	RecordAttempt(ctx context.Context, params RecordParams) error
	// MarkSuccess resets the consecutive failure counter to zero.
	MarkSuccess(ctx context.Context, endpointID uuid.UUID) error
	// MarkFailure increments the counter and suspends the endpoint once it
	// reaches the threshold. Returns the new count and whether this call
	// tripped the breaker.
	MarkFailure(ctx context.Context, endpointID uuid.UUID, threshold int) (int, bool, error)
}

// Repo is the PostgreSQL-backed delivery repository.
type Repo struct {
	db *pgxpool.Pool
}

// NewRepo creates a new delivery repository.
func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

var _ Repository = (*Repo)(nil)

const endpointColumns = `
	id, tenant_id, url, secret, subscribed_events, is_active,
	failure_count, last_failure_at, created_at`

func scanEndpoint(row pgx.Row) (*Endpoint, error) {
	var ep Endpoint
	err := row.Scan(
		&ep.ID, &ep.TenantID, &ep.URL, &ep.Secret, &ep.SubscribedEvents,
		&ep.IsActive, &ep.FailureCount, &ep.LastFailureAt, &ep.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// ListActiveSubscribed returns the endpoints a dispatch fans out to.
func (r *Repo) ListActiveSubscribed(ctx context.Context, tenantID uuid.UUID, event string) ([]Endpoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+endpointColumns+`
		FROM ops_delivery_endpoints
		WHERE tenant_id = $1 AND is_active = TRUE AND $2 = ANY(subscribed_events)`,
		tenantID, event)
	if err != nil {
		return nil, fmt.Errorf("list subscribed endpoints: %w", err)
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

// ListEndpoints returns all of a tenant's endpoints.
func (r *Repo) ListEndpoints(ctx context.Context, tenantID uuid.UUID) ([]Endpoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+endpointColumns+`
		FROM ops_delivery_endpoints
		WHERE tenant_id = $1
		ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

func collectEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var endpoints []Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		endpoints = append(endpoints, *ep)
	}
	return endpoints, rows.Err()
}

// ListRecords returns an endpoint's most recent delivery attempts.
func (r *Repo) ListRecords(ctx context.Context, tenantID, endpointID uuid.UUID, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT rec.id, rec.endpoint_id, rec.event, rec.status_code, rec.success,
		       rec.attempt, rec.duration_ms, rec.body_hash, rec.created_at
		FROM ops_delivery_records rec
		JOIN ops_delivery_endpoints ep ON ep.id = rec.endpoint_id
		WHERE ep.tenant_id = $1 AND rec.endpoint_id = $2
		ORDER BY rec.created_at DESC
		LIMIT $3`, tenantID, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("list delivery records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EndpointID, &rec.Event, &rec.StatusCode,
			&rec.Success, &rec.Attempt, &rec.DurationMs, &rec.BodyHash, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Activate re-enables an endpoint and resets its failure counter. This is
// the human re-enable path after a circuit breaker trip.
func (r *Repo) Activate(ctx context.Context, tenantID, id uuid.UUID) (*Endpoint, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE ops_delivery_endpoints
		SET is_active = TRUE, failure_count = 0
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+endpointColumns, id, tenantID)
	ep, err := scanEndpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("delivery endpoint not found")
		}
		return nil, fmt.Errorf("activate endpoint: %w", err)
	}
	return ep, nil
}

// RecordAttempt appends one delivery attempt row.
func (r *Repo) RecordAttempt(ctx context.Context, params RecordParams) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ops_delivery_records
			(endpoint_id, event, status_code, success, attempt, duration_ms, body_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		params.EndpointID, params.Event, params.StatusCode, params.Success,
		params.Attempt, params.DurationMs, params.BodyHash)
	if err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}
	return nil
}

// MarkSuccess resets the consecutive failure counter.
func (r *Repo) MarkSuccess(ctx context.Context, endpointID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ops_delivery_endpoints
		SET failure_count = 0, last_failure_at = NULL
		WHERE id = $1`, endpointID)
	if err != nil {
		return fmt.Errorf("mark delivery success: %w", err)
	}
	return nil
}

// markFailureSQL trips the breaker at the threshold. is_active is ANDed with
// its current value so a failure recorded below the threshold can never
// reactivate an endpoint that was deactivated out of band.
const markFailureSQL = `
	UPDATE ops_delivery_endpoints
	SET failure_count = failure_count + 1,
	    last_failure_at = now(),
	    is_active = (is_active AND failure_count + 1 < $2)
	WHERE id = $1
	RETURNING failure_count, is_active`

// MarkFailure increments the counter and trips the breaker at the threshold.
func (r *Repo) MarkFailure(ctx context.Context, endpointID uuid.UUID, threshold int) (int, bool, error) {
	var count int
	var active bool
	err := r.db.QueryRow(ctx, markFailureSQL, endpointID, threshold).Scan(&count, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Endpoint deleted mid-dispatch; best-effort skip.
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("mark delivery failure: %w", err)
	}
	return count, !active && count == threshold, nil
}
