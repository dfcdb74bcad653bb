package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/actions/domain"
)

// InsertParams creates a new PROPOSED action.
type InsertParams struct {
	TenantID  uuid.UUID
	InsightID *uuid.UUID
	Kind      domain.Kind
	Title     string
	Rationale string
	Payload   json.RawMessage
}

// ListParams filters and pages the action listing.
type ListParams struct {
	Status *domain.Status
	Limit  int
	Offset int
}

// Repository defines action persistence. All transitions are conditional
// writes keyed on the expected prior status; a write that matches zero rows
// is a conflict, never a silent no-op.
type Repository interface {
	Insert(ctx context.Context, params InsertParams) (*domain.Action, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Action, error)
	List(ctx context.Context, tenantID uuid.UUID, params ListParams) ([]domain.Action, int, error)

	// HasActiveProposal reports whether a PROPOSED or APPROVED action of the
	// same kind already references the insight.
	HasActiveProposal(ctx context.Context, tenantID, insightID uuid.UUID, kind domain.Kind) (bool, error)

	// MarkApproved transitions PROPOSED → APPROVED and clears any prior error.
	MarkApproved(ctx context.Context, tenantID, id, actor uuid.UUID) (*domain.Action, error)

	// ClaimExecute transitions APPROVED → EXECUTED. Exactly one of several
	// concurrent callers wins the claim; the executor runs only for the
	// winner.
	ClaimExecute(ctx context.Context, tenantID, id, actor uuid.UUID) (*domain.Action, error)
	// FinishExecute stores the undo data captured by the executor.
	FinishExecute(ctx context.Context, id uuid.UUID, undoData json.RawMessage, undoExpiresAt *time.Time) error
	// MarkFailed transitions EXECUTED → FAILED after an executor error.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// ClaimUndo transitions EXECUTED → CANCELED when undo data is present and
	// the window has not expired, returning the claimed row with its undo
	// data intact.
	ClaimUndo(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (*domain.Action, error)
	// ClearUndo drops the undo data after a successful compensation.
	ClearUndo(ctx context.Context, id uuid.UUID) error
	// RevertUndo moves a claimed action back to EXECUTED when the
	// compensator fails, recording the failure.
	RevertUndo(ctx context.Context, id uuid.UUID, errMsg string) error
}
