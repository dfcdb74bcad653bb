// Package transport defines request and response DTOs for the insights API.
package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/insights/repository"
)

// ListInsightsRequest filters the open insight listing.
type ListInsightsRequest struct {
	Kind        string `form:"kind" validate:"omitempty,oneof=stalled_deals overdue_invoices overdue_work security_alert health_drop"`
	MinSeverity string `form:"minSeverity" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Limit       int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset      int    `form:"offset" validate:"omitempty,min=0"`
}

// ResolveInsightRequest carries an optional resolution note.
type ResolveInsightRequest struct {
	Note *string `json:"note" validate:"omitempty,max=2000"`
}

// InsightResponse is the API shape of an insight.
type InsightResponse struct {
	ID           uuid.UUID       `json:"id"`
	Kind         string          `json:"kind"`
	Severity     string          `json:"severity"`
	ScoreImpact  int             `json:"scoreImpact"`
	Title        string          `json:"title"`
	Explanation  string          `json:"explanation"`
	SubjectType  *string         `json:"subjectType,omitempty"`
	SubjectID    *uuid.UUID      `json:"subjectId,omitempty"`
	Meta         json.RawMessage `json:"meta"`
	IsResolved   bool            `json:"isResolved"`
	ResolvedNote *string         `json:"resolvedNote,omitempty"`
	ResolvedBy   *uuid.UUID      `json:"resolvedBy,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ResolvedAt   *time.Time      `json:"resolvedAt,omitempty"`
}

// ListInsightsResponse pages open insights.
type ListInsightsResponse struct {
	Insights []InsightResponse `json:"insights"`
	Total    int               `json:"total"`
}

// CycleResponse reports one insight cycle run.
type CycleResponse struct {
	Created  int `json:"created"`
	Resolved int `json:"resolved"`
}

// ToInsightResponse maps a repository row to its API shape.
func ToInsightResponse(ins repository.Insight) InsightResponse {
	return InsightResponse{
		ID:           ins.ID,
		Kind:         string(ins.Kind),
		Severity:     ins.Severity.String(),
		ScoreImpact:  ins.ScoreImpact,
		Title:        ins.Title,
		Explanation:  ins.Explanation,
		SubjectType:  ins.SubjectType,
		SubjectID:    ins.SubjectID,
		Meta:         ins.Meta,
		IsResolved:   ins.IsResolved,
		ResolvedNote: ins.ResolvedNote,
		ResolvedBy:   ins.ResolvedBy,
		CreatedAt:    ins.CreatedAt,
		ResolvedAt:   ins.ResolvedAt,
	}
}

// ToInsightResponses maps a slice of rows, never returning nil.
func ToInsightResponses(insights []repository.Insight) []InsightResponse {
	out := make([]InsightResponse, 0, len(insights))
	for _, ins := range insights {
		out = append(out, ToInsightResponse(ins))
	}
	return out
}
