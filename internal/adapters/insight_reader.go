// Package adapters bridges bounded contexts without letting them import
// each other's internals directly.
package adapters

import (
	"context"

	"github.com/google/uuid"

	actionsvc "opspulse_backend/internal/actions/service"
	insightrepo "opspulse_backend/internal/insights/repository"
)

// InsightReaderAdapter exposes open insights to the action proposer in the
// proposer's own view type.
type InsightReaderAdapter struct {
	repo insightrepo.Repository
}

// NewInsightReaderAdapter creates the adapter.
func NewInsightReaderAdapter(repo insightrepo.Repository) *InsightReaderAdapter {
	return &InsightReaderAdapter{repo: repo}
}

var _ actionsvc.InsightReader = (*InsightReaderAdapter)(nil)

// OpenRecent returns up to limit open insights, most severe first.
func (a *InsightReaderAdapter) OpenRecent(ctx context.Context, tenantID uuid.UUID, limit int) ([]actionsvc.OpenInsight, error) {
	rows, err := a.repo.ListOpenRecent(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]actionsvc.OpenInsight, 0, len(rows))
	for _, row := range rows {
		out = append(out, actionsvc.OpenInsight{
			ID:       row.ID,
			Kind:     string(row.Kind),
			Title:    row.Title,
			Severity: row.Severity.String(),
		})
	}
	return out, nil
}
