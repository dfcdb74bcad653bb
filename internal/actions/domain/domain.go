// Package domain defines the action state machine vocabulary: kinds,
// statuses, and the closed union of per-kind payload shapes.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/platform/apperr"
)

// Kind identifies an executable action type. The set is closed at build
// time; unknown kinds are rejected at the boundary.
type Kind string

const (
	KindCreateNudge    Kind = "create-nudge"
	KindCreateWorkItem Kind = "create-work-item"
	KindLockInvoice    Kind = "lock-invoice"
	KindReassignWork   Kind = "reassign-work"
)

// Known reports whether the kind is part of the closed set.
func (k Kind) Known() bool {
	switch k {
	case KindCreateNudge, KindCreateWorkItem, KindLockInvoice, KindReassignWork:
		return true
	default:
		return false
	}
}

// Status is an action lifecycle state. CANCELED and FAILED are terminal:
// actions never resurrect, a fresh proposal must be generated.
type Status string

const (
	StatusProposed Status = "PROPOSED"
	StatusApproved Status = "APPROVED"
	StatusExecuted Status = "EXECUTED"
	StatusCanceled Status = "CANCELED"
	StatusFailed   Status = "FAILED"
)

// Action is a persisted action row.
type Action struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	InsightID     *uuid.UUID
	Kind          Kind
	Status        Status
	Title         string
	Rationale     string
	Payload       json.RawMessage
	ApprovedBy    *uuid.UUID
	ApprovedAt    *time.Time
	ExecutedBy    *uuid.UUID
	ExecutedAt    *time.Time
	UndoData      json.RawMessage
	UndoExpiresAt *time.Time
	Error         *string
	CreatedAt     time.Time
}

// Undoable reports whether the action currently carries undo data.
func (a *Action) Undoable() bool {
	return len(a.UndoData) > 0 && !bytes.Equal(a.UndoData, []byte("null"))
}

// Payload is one variant of the closed payload union.
type Payload interface {
	ActionKind() Kind
	Validate() error
}

// NudgePayload targets the tenant's active holder of a role with a message.
type NudgePayload struct {
	Role    string `json:"role"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (NudgePayload) ActionKind() Kind { return KindCreateNudge }

func (p NudgePayload) Validate() error {
	if p.Role == "" || p.Title == "" || p.Content == "" {
		return apperr.Validation("nudge payload requires role, title and content")
	}
	return nil
}

// WorkItemPayload creates a work item from its fields.
type WorkItemPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

func (WorkItemPayload) ActionKind() Kind { return KindCreateWorkItem }

func (p WorkItemPayload) Validate() error {
	if p.Title == "" {
		return apperr.Validation("work item payload requires a title")
	}
	switch p.Priority {
	case "", "low", "normal", "high", "urgent":
		return nil
	default:
		return apperr.Validation(fmt.Sprintf("unknown work item priority %q", p.Priority))
	}
}

// LockInvoicePayload locks a specific invoice against edits.
type LockInvoicePayload struct {
	InvoiceID uuid.UUID `json:"invoiceId"`
}

func (LockInvoicePayload) ActionKind() Kind { return KindLockInvoice }

func (p LockInvoicePayload) Validate() error {
	if p.InvoiceID == uuid.Nil {
		return apperr.Validation("lock invoice payload requires invoiceId")
	}
	return nil
}

// ReassignWorkPayload moves a work item to a new assignee.
type ReassignWorkPayload struct {
	WorkItemID    uuid.UUID `json:"workItemId"`
	NewAssigneeID uuid.UUID `json:"newAssigneeId"`
}

func (ReassignWorkPayload) ActionKind() Kind { return KindReassignWork }

func (p ReassignWorkPayload) Validate() error {
	if p.WorkItemID == uuid.Nil || p.NewAssigneeID == uuid.Nil {
		return apperr.Validation("reassign work payload requires workItemId and newAssigneeId")
	}
	return nil
}

// ParsePayload decodes raw JSON into the payload variant for the kind.
// Unknown kinds and malformed payloads are bad requests, not execution
// failures: they are rejected before any state changes.
func ParsePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch kind {
	case KindCreateNudge:
		payload = &NudgePayload{}
	case KindCreateWorkItem:
		payload = &WorkItemPayload{}
	case KindLockInvoice:
		payload = &LockInvoicePayload{}
	case KindReassignWork:
		payload = &ReassignWorkPayload{}
	default:
		return nil, apperr.BadRequest(fmt.Sprintf("unsupported action kind %q", kind))
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, apperr.Validation(fmt.Sprintf("malformed %s payload: %v", kind, err))
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

// Undo data captured at execute time, one shape per undoable kind.

// NudgeUndo identifies the notification row to delete on undo.
type NudgeUndo struct {
	NotificationID uuid.UUID `json:"notificationId"`
	UserID         uuid.UUID `json:"userId"`
}

// WorkItemUndo identifies the created work item to delete on undo.
type WorkItemUndo struct {
	WorkItemID uuid.UUID `json:"workItemId"`
}

// LockInvoiceUndo captures the invoice's lock fields before the execute so
// undo restores them exactly.
type LockInvoiceUndo struct {
	InvoiceID    uuid.UUID  `json:"invoiceId"`
	PrevLockedAt *time.Time `json:"prevLockedAt"`
	PrevLockedBy *uuid.UUID `json:"prevLockedBy"`
}

// ReassignWorkUndo captures the work item's assignee before the execute.
type ReassignWorkUndo struct {
	WorkItemID     uuid.UUID  `json:"workItemId"`
	PrevAssigneeID *uuid.UUID `json:"prevAssigneeId"`
}
