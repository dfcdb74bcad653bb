// Package telemetry exposes Prometheus metrics for the engine. Metrics are
// registered on the default registry and served on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts insight and proposal cycle runs by outcome.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opspulse",
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Engine cycle runs by cycle name and outcome.",
	}, []string{"cycle", "outcome"})

	// CycleDuration observes wall-clock cycle duration in seconds.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "opspulse",
		Subsystem: "engine",
		Name:      "cycle_duration_seconds",
		Help:      "Engine cycle duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"cycle"})

	// InsightsOpen tracks newly created and auto-resolved insights per cycle.
	InsightTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opspulse",
		Subsystem: "engine",
		Name:      "insight_transitions_total",
		Help:      "Insight transitions by kind and transition (created, resolved, auto_resolved).",
	}, []string{"kind", "transition"})

	// ActionTransitionsTotal counts action state machine transitions.
	ActionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opspulse",
		Subsystem: "engine",
		Name:      "action_transitions_total",
		Help:      "Action transitions by kind and target status.",
	}, []string{"kind", "status"})

	// DeliveryAttemptsTotal counts outbound webhook attempts by outcome.
	DeliveryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opspulse",
		Subsystem: "delivery",
		Name:      "attempts_total",
		Help:      "Webhook delivery attempts by outcome (success, failure).",
	}, []string{"outcome"})

	// DeliveryDuration observes single-attempt duration in seconds.
	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "opspulse",
		Subsystem: "delivery",
		Name:      "attempt_duration_seconds",
		Help:      "Webhook delivery attempt duration in seconds.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// EndpointsSuspendedTotal counts circuit-breaker trips.
	EndpointsSuspendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "opspulse",
		Subsystem: "delivery",
		Name:      "endpoints_suspended_total",
		Help:      "Delivery endpoints suspended after consecutive failures.",
	})
)
