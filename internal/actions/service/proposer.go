package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opspulse_backend/internal/actions/domain"
	"opspulse_backend/internal/actions/repository"
	domainevents "opspulse_backend/internal/events"
	"opspulse_backend/internal/features"
	"opspulse_backend/internal/identity"
	"opspulse_backend/internal/telemetry"
	"opspulse_backend/platform/apperr"
	"opspulse_backend/platform/config"
	"opspulse_backend/platform/logger"
)

// OpenInsight is the proposer's view of an open insight row.
type OpenInsight struct {
	ID       uuid.UUID
	Kind     string
	Title    string
	Severity string
}

// InsightReader lists open insights for the proposer.
type InsightReader interface {
	OpenRecent(ctx context.Context, tenantID uuid.UUID, limit int) ([]OpenInsight, error)
}

// InvoicePicker selects the lock-invoice target.
type InvoicePicker interface {
	MostAtRiskUnlockedInvoice(ctx context.Context, tenantID uuid.UUID, now time.Time) (*uuid.UUID, error)
}

// ProposalSummary reports one proposal cycle.
type ProposalSummary struct {
	Created   int
	Skipped   int
	TotalOpen int
}

// Proposer derives action proposals from open insights via a fixed
// per-insight-kind mapping.
type Proposer struct {
	repo     repository.Repository
	insights InsightReader
	invoices InvoicePicker
	gate     features.Gate
	bus      domainevents.Bus
	log      *logger.Logger
	limit    int
	now      func() time.Time
}

// NewProposer creates the proposer.
func NewProposer(repo repository.Repository, insights InsightReader, invoices InvoicePicker, gate features.Gate, bus domainevents.Bus, log *logger.Logger, cfg config.EngineConfig) *Proposer {
	return &Proposer{
		repo:     repo,
		insights: insights,
		invoices: invoices,
		gate:     gate,
		bus:      bus,
		log:      log,
		limit:    cfg.GetProposalInsightLimit(),
		now:      time.Now,
	}
}

type proposal struct {
	kind      domain.Kind
	title     string
	rationale string
	payload   any
}

// RunProposalCycle derives proposals for up to the configured number of most
// relevant open insights. An existing PROPOSED or APPROVED action of the
// same kind for an insight is skipped, never duplicated.
func (p *Proposer) RunProposalCycle(ctx context.Context, tenantID uuid.UUID) (ProposalSummary, error) {
	started := p.now()

	open, err := p.insights.OpenRecent(ctx, tenantID, p.limit)
	if err != nil {
		telemetry.CyclesTotal.WithLabelValues("proposal", "error").Inc()
		return ProposalSummary{}, apperr.Transient("loading open insights failed", err)
	}

	summary := ProposalSummary{TotalOpen: len(open)}
	for _, insight := range open {
		proposals, err := p.proposalsFor(ctx, tenantID, insight)
		if err != nil {
			telemetry.CyclesTotal.WithLabelValues("proposal", "error").Inc()
			return summary, err
		}

		for _, prop := range proposals {
			exists, err := p.repo.HasActiveProposal(ctx, tenantID, insight.ID, prop.kind)
			if err != nil {
				telemetry.CyclesTotal.WithLabelValues("proposal", "error").Inc()
				return summary, apperr.Transient("checking existing proposals failed", err)
			}
			if exists {
				summary.Skipped++
				continue
			}

			payload, err := json.Marshal(prop.payload)
			if err != nil {
				return summary, fmt.Errorf("marshal %s payload: %w", prop.kind, err)
			}

			insightID := insight.ID
			action, err := p.repo.Insert(ctx, repository.InsertParams{
				TenantID:  tenantID,
				InsightID: &insightID,
				Kind:      prop.kind,
				Title:     prop.title,
				Rationale: prop.rationale,
				Payload:   payload,
			})
			if err != nil {
				telemetry.CyclesTotal.WithLabelValues("proposal", "error").Inc()
				return summary, apperr.Transient("inserting proposal failed", err)
			}
			summary.Created++

			telemetry.ActionTransitionsTotal.WithLabelValues(string(action.Kind), string(domain.StatusProposed)).Inc()
			p.bus.Publish(ctx, domainevents.ActionProposed{
				BaseEvent: domainevents.NewBaseEvent(),
				ActionID:  action.ID,
				TenantID:  tenantID,
				InsightID: action.InsightID,
				Kind:      string(action.Kind),
				Title:     action.Title,
			})
		}
	}

	duration := p.now().Sub(started)
	telemetry.CyclesTotal.WithLabelValues("proposal", "success").Inc()
	telemetry.CycleDuration.WithLabelValues("proposal").Observe(duration.Seconds())
	p.log.CycleCompleted("proposal", tenantID.String(), summary.Created, summary.Skipped, float64(duration.Milliseconds()))

	return summary, nil
}

// proposalsFor is the fixed per-insight-kind mapping.
func (p *Proposer) proposalsFor(ctx context.Context, tenantID uuid.UUID, insight OpenInsight) ([]proposal, error) {
	switch insight.Kind {
	case "stalled_deals":
		return []proposal{{
			kind:      domain.KindCreateNudge,
			title:     "Nudge sales about stalled deals",
			rationale: insight.Title,
			payload: domain.NudgePayload{
				Role:    identity.RoleSales,
				Title:   "Deals need attention",
				Content: "Several open deals have gone quiet. Review the pipeline and follow up.",
			},
		}}, nil

	case "overdue_invoices":
		proposals := []proposal{{
			kind:      domain.KindCreateNudge,
			title:     "Nudge finance about overdue invoices",
			rationale: insight.Title,
			payload: domain.NudgePayload{
				Role:    identity.RoleFinance,
				Title:   "Overdue invoices need chasing",
				Content: "Sent invoices are past due. Chase payment or escalate.",
			},
		}}

		enabled, err := p.gate.IsEnabled(ctx, tenantID, features.FeatureInvoiceLocking)
		if err != nil {
			return nil, apperr.Transient("checking invoice locking feature failed", err)
		}
		if enabled {
			invoiceID, err := p.invoices.MostAtRiskUnlockedInvoice(ctx, tenantID, p.now())
			if err != nil {
				return nil, apperr.Transient("selecting at-risk invoice failed", err)
			}
			if invoiceID != nil {
				proposals = append(proposals, proposal{
					kind:      domain.KindLockInvoice,
					title:     "Lock the most at-risk overdue invoice",
					rationale: insight.Title,
					payload:   domain.LockInvoicePayload{InvoiceID: *invoiceID},
				})
			}
		}
		return proposals, nil

	case "overdue_work":
		return []proposal{{
			kind:      domain.KindCreateNudge,
			title:     "Nudge operations about overdue work",
			rationale: insight.Title,
			payload: domain.NudgePayload{
				Role:    identity.RoleOps,
				Title:   "Work items are overdue",
				Content: "Open work items are past their due date. Rebalance or close them out.",
			},
		}}, nil

	case "security_alert":
		return []proposal{{
			kind:      domain.KindCreateWorkItem,
			title:     "Investigate critical security events",
			rationale: insight.Title,
			payload: domain.WorkItemPayload{
				Title:       "Investigate unresolved critical security events",
				Description: "Critical security events are unresolved. Triage and resolve each one.",
				Priority:    "urgent",
			},
		}}, nil

	case "health_drop":
		return []proposal{{
			kind:      domain.KindCreateWorkItem,
			title:     "Review operational health drop",
			rationale: insight.Title,
			payload: domain.WorkItemPayload{
				Title:       "Review health score drop",
				Description: "The tenant health score dropped sharply between the last two samples. Identify the cause.",
				Priority:    "high",
			},
		}}, nil

	default:
		// Unknown insight kinds propose nothing.
		return nil, nil
	}
}
