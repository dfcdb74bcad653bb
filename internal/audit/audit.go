// Package audit records engine mutations into an append-only log. Recording
// is fire-and-forget: failures are logged and never propagate into the
// operation being audited.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"opspulse_backend/platform/logger"
)

// Recorder writes audit entries to PostgreSQL.
type Recorder struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewRecorder creates a new audit recorder.
func NewRecorder(db *pgxpool.Pool, log *logger.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Record appends one audit entry. Before/after snapshots are optional and
// serialized as JSON; values that fail to marshal are stored as null.
func (r *Recorder) Record(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID, entityType, entityID, action string, before, after any) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ops_audit_log (tenant_id, actor_id, entity_type, entity_id, action, before, after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tenantID, actorID, entityType, entityID, action, marshalSnapshot(before), marshalSnapshot(after))
	if err != nil {
		r.log.DatabaseError("audit.record", err)
	}
}

func marshalSnapshot(v any) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
