package service

import (
	"fmt"

	"opspulse_backend/internal/insights/domain"
)

// Synthesize turns a metric snapshot into zero or more insight candidates.
// It is pure and deterministic: the same snapshot always yields the same
// candidates, at most one per kind, none for a non-triggering category.
func Synthesize(snap *domain.MetricSnapshot) []domain.Candidate {
	var candidates []domain.Candidate

	if c := synthesizeStalledDeals(snap); c != nil {
		candidates = append(candidates, *c)
	}
	if c := synthesizeOverdueInvoices(snap); c != nil {
		candidates = append(candidates, *c)
	}
	if c := synthesizeOverdueWork(snap); c != nil {
		candidates = append(candidates, *c)
	}
	if c := synthesizeSecurityAlert(snap); c != nil {
		candidates = append(candidates, *c)
	}
	if c := synthesizeHealthDrop(snap); c != nil {
		candidates = append(candidates, *c)
	}
	return candidates
}

// scoreImpact is min(cap, n*weight) + offset, monotonic in n. The value
// ranks insights for triage and nothing else.
func scoreImpact(n, weight, cap, offset int) int {
	impact := n * weight
	if impact > cap {
		impact = cap
	}
	return impact + offset
}

func synthesizeStalledDeals(snap *domain.MetricSnapshot) *domain.Candidate {
	count := snap.StalledDealCount
	if count == 0 {
		return nil
	}

	severity := domain.SeverityLow
	switch {
	case count >= 10:
		severity = domain.SeverityCritical
	case count >= 5:
		severity = domain.SeverityHigh
	case count >= 2:
		severity = domain.SeverityMedium
	}

	candidate := &domain.Candidate{
		Kind:        domain.KindStalledDeals,
		Severity:    severity,
		ScoreImpact: scoreImpact(count, 3, 30, 10),
		Title:       fmt.Sprintf("%d deals have gone quiet", count),
		Explanation: fmt.Sprintf("%d open deals have had no activity for more than 14 days.", count),
		Meta:        map[string]any{"count": count},
	}
	if len(snap.StalledDeals) > 0 {
		top := snap.StalledDeals[0]
		subjectType := "deal"
		subjectID := top.ID
		candidate.SubjectType = &subjectType
		candidate.SubjectID = &subjectID
		candidate.Meta["topDealTitle"] = top.Title
		candidate.Meta["topDealAmountCents"] = top.AmountCents
	}
	return candidate
}

func synthesizeOverdueInvoices(snap *domain.MetricSnapshot) *domain.Candidate {
	count := snap.OverdueInvoiceCount
	if count == 0 {
		return nil
	}

	severity := domain.SeverityLow
	switch {
	case count >= 10:
		severity = domain.SeverityCritical
	case count >= 5:
		severity = domain.SeverityHigh
	case count >= 2:
		severity = domain.SeverityMedium
	}

	candidate := &domain.Candidate{
		Kind:        domain.KindOverdueInvoices,
		Severity:    severity,
		ScoreImpact: scoreImpact(count, 4, 40, 15),
		Title:       fmt.Sprintf("%d invoices overdue", count),
		Explanation: fmt.Sprintf("%d sent invoices are more than 7 days past due, %.2f outstanding.", count, float64(snap.OverdueInvoiceTotal)/100),
		Meta: map[string]any{
			"count":            count,
			"totalAmountCents": snap.OverdueInvoiceTotal,
		},
	}
	if len(snap.OverdueInvoices) > 0 {
		top := snap.OverdueInvoices[0]
		subjectType := "invoice"
		subjectID := top.ID
		candidate.SubjectType = &subjectType
		candidate.SubjectID = &subjectID
		candidate.Meta["topInvoiceNumber"] = top.Number
	}
	return candidate
}

func synthesizeOverdueWork(snap *domain.MetricSnapshot) *domain.Candidate {
	count := snap.OverdueWorkCount
	if count == 0 {
		return nil
	}

	severity := domain.SeverityLow
	switch {
	case count >= 15:
		severity = domain.SeverityCritical
	case count >= 8:
		severity = domain.SeverityHigh
	case count >= 3:
		severity = domain.SeverityMedium
	}

	candidate := &domain.Candidate{
		Kind:        domain.KindOverdueWork,
		Severity:    severity,
		ScoreImpact: scoreImpact(count, 2, 20, 5),
		Title:       fmt.Sprintf("%d work items past due", count),
		Explanation: fmt.Sprintf("%d open work items are past their due date across %d assignees.", count, len(snap.OverdueWork)),
		Meta:        map[string]any{"count": count},
	}
	if len(snap.OverdueWork) > 0 && snap.OverdueWork[0].AssigneeID != nil {
		candidate.Meta["topAssigneeId"] = snap.OverdueWork[0].AssigneeID.String()
		candidate.Meta["topAssigneeCount"] = snap.OverdueWork[0].Count
	}
	return candidate
}

// Security findings are never downgraded: any unresolved critical event makes
// the candidate CRITICAL regardless of count.
func synthesizeSecurityAlert(snap *domain.MetricSnapshot) *domain.Candidate {
	count := snap.CriticalSecurityEvents
	if count == 0 {
		return nil
	}
	return &domain.Candidate{
		Kind:        domain.KindSecurityAlert,
		Severity:    domain.SeverityCritical,
		ScoreImpact: scoreImpact(count, 5, 25, 25),
		Title:       fmt.Sprintf("%d critical security events unresolved", count),
		Explanation: fmt.Sprintf("%d critical security events are awaiting investigation.", count),
		Meta:        map[string]any{"count": count},
	}
}

// A health drop fires only when the score fell by at least 10 points between
// the two most recent samples.
func synthesizeHealthDrop(snap *domain.MetricSnapshot) *domain.Candidate {
	if snap.LatestHealth == nil || snap.PreviousHealth == nil {
		return nil
	}
	delta := snap.LatestHealth.Score - snap.PreviousHealth.Score
	if delta > -10 {
		return nil
	}

	severity := domain.SeverityMedium
	switch {
	case delta <= -25:
		severity = domain.SeverityCritical
	case delta <= -15:
		severity = domain.SeverityHigh
	}

	drop := -delta
	return &domain.Candidate{
		Kind:        domain.KindHealthDrop,
		Severity:    severity,
		ScoreImpact: scoreImpact(drop, 1, 30, 10),
		Title:       fmt.Sprintf("Health score dropped %d points", drop),
		Explanation: fmt.Sprintf("The tenant health score fell from %d to %d between the last two samples.", snap.PreviousHealth.Score, snap.LatestHealth.Score),
		Meta: map[string]any{
			"previousScore": snap.PreviousHealth.Score,
			"latestScore":   snap.LatestHealth.Score,
			"delta":         delta,
		},
	}
}
