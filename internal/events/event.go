// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"encoding/json"

	"opspulse_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Insight Domain Events
// =============================================================================

// InsightCreated is published when the reconciler opens a brand-new insight.
// Refreshing an already-open insight does not publish this event.
type InsightCreated struct {
	BaseEvent
	InsightID   uuid.UUID `json:"insightId"`
	TenantID    uuid.UUID `json:"tenantId"`
	Kind        string    `json:"kind"`
	Severity    string    `json:"severity"`
	ScoreImpact int       `json:"scoreImpact"`
	Title       string    `json:"title"`
}

func (e InsightCreated) EventName() string { return "insights.insight.created" }

// InsightResolved is published when an insight is resolved, either by a human
// or automatically when its underlying condition disappears.
type InsightResolved struct {
	BaseEvent
	InsightID  uuid.UUID  `json:"insightId"`
	TenantID   uuid.UUID  `json:"tenantId"`
	Kind       string     `json:"kind"`
	ResolvedBy *uuid.UUID `json:"resolvedBy,omitempty"`
	AutoHealed bool       `json:"autoHealed"`
}

func (e InsightResolved) EventName() string { return "insights.insight.resolved" }

// =============================================================================
// Action Domain Events
// =============================================================================

// ActionProposed is published when the proposer inserts a new action proposal.
type ActionProposed struct {
	BaseEvent
	ActionID  uuid.UUID  `json:"actionId"`
	TenantID  uuid.UUID  `json:"tenantId"`
	InsightID *uuid.UUID `json:"insightId,omitempty"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
}

func (e ActionProposed) EventName() string { return "actions.action.proposed" }

// ActionApproved is published when a human approves a proposed action.
type ActionApproved struct {
	BaseEvent
	ActionID   uuid.UUID `json:"actionId"`
	TenantID   uuid.UUID `json:"tenantId"`
	Kind       string    `json:"kind"`
	ApprovedBy uuid.UUID `json:"approvedBy"`
}

func (e ActionApproved) EventName() string { return "actions.action.approved" }

// ActionExecuted is published after an approved action executes successfully.
type ActionExecuted struct {
	BaseEvent
	ActionID   uuid.UUID       `json:"actionId"`
	TenantID   uuid.UUID       `json:"tenantId"`
	Kind       string          `json:"kind"`
	ExecutedBy uuid.UUID       `json:"executedBy"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Undoable   bool            `json:"undoable"`
}

func (e ActionExecuted) EventName() string { return "actions.action.executed" }

// ActionUndone is published when an executed action is compensated inside its
// undo window.
type ActionUndone struct {
	BaseEvent
	ActionID uuid.UUID `json:"actionId"`
	TenantID uuid.UUID `json:"tenantId"`
	Kind     string    `json:"kind"`
	UndoneBy uuid.UUID `json:"undoneBy"`
}

func (e ActionUndone) EventName() string { return "actions.action.undone" }

// ActionFailed is published when a per-kind executor fails and the action is
// moved to FAILED.
type ActionFailed struct {
	BaseEvent
	ActionID uuid.UUID `json:"actionId"`
	TenantID uuid.UUID `json:"tenantId"`
	Kind     string    `json:"kind"`
	Error    string    `json:"error"`
}

func (e ActionFailed) EventName() string { return "actions.action.failed" }
