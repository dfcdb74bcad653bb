// Package transport defines request and response DTOs for the actions API.
package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/actions/domain"
)

// ListActionsRequest filters and pages the action listing.
type ListActionsRequest struct {
	Status string `form:"status" validate:"omitempty,oneof=PROPOSED APPROVED EXECUTED CANCELED FAILED"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" validate:"omitempty,min=0"`
}

// ActionResponse is the API shape of an action.
type ActionResponse struct {
	ID            uuid.UUID       `json:"id"`
	InsightID     *uuid.UUID      `json:"insightId,omitempty"`
	Kind          string          `json:"kind"`
	Status        string          `json:"status"`
	Title         string          `json:"title"`
	Rationale     string          `json:"rationale"`
	Payload       json.RawMessage `json:"payload"`
	ApprovedBy    *uuid.UUID      `json:"approvedBy,omitempty"`
	ApprovedAt    *time.Time      `json:"approvedAt,omitempty"`
	ExecutedBy    *uuid.UUID      `json:"executedBy,omitempty"`
	ExecutedAt    *time.Time      `json:"executedAt,omitempty"`
	Undoable      bool            `json:"undoable"`
	UndoExpiresAt *time.Time      `json:"undoExpiresAt,omitempty"`
	Error         *string         `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ListActionsResponse pages actions.
type ListActionsResponse struct {
	Actions []ActionResponse `json:"actions"`
	Total   int              `json:"total"`
}

// ProposalCycleResponse reports one proposal cycle run.
type ProposalCycleResponse struct {
	Created   int `json:"created"`
	Skipped   int `json:"skipped"`
	TotalOpen int `json:"totalOpen"`
}

// ToActionResponse maps a domain action to its API shape. Undo data itself
// never leaves the engine; only its presence is exposed.
func ToActionResponse(a domain.Action) ActionResponse {
	return ActionResponse{
		ID:            a.ID,
		InsightID:     a.InsightID,
		Kind:          string(a.Kind),
		Status:        string(a.Status),
		Title:         a.Title,
		Rationale:     a.Rationale,
		Payload:       a.Payload,
		ApprovedBy:    a.ApprovedBy,
		ApprovedAt:    a.ApprovedAt,
		ExecutedBy:    a.ExecutedBy,
		ExecutedAt:    a.ExecutedAt,
		Undoable:      a.Undoable(),
		UndoExpiresAt: a.UndoExpiresAt,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

// ToActionResponses maps a slice of actions, never returning nil.
func ToActionResponses(actions []domain.Action) []ActionResponse {
	out := make([]ActionResponse, 0, len(actions))
	for _, a := range actions {
		out = append(out, ToActionResponse(a))
	}
	return out
}
