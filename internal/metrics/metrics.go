// Package metrics provides Prometheus instrumentation for the risk gate.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EvaluationsTotal counts gate evaluations by resulting level.
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "evaluations_total",
			Help:      "Total risk evaluations by level.",
		},
		[]string{"level"},
	)

	// EvaluationDuration observes end-to-end gate latency.
	EvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskgate",
		Name:      "evaluation_duration_seconds",
		Help:      "Risk evaluation duration in seconds.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	})

	// BlockedTotal counts attempts rejected at critical level.
	BlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riskgate",
		Name:      "blocked_total",
		Help:      "Total attempts blocked at critical risk.",
	})

	// DegradedTotal counts evaluations that ran with a store lookup or write failing.
	DegradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riskgate",
		Name:      "degraded_total",
		Help:      "Total evaluations that failed open on a store error.",
	})

	// FactorsTotal counts how often each factor fires.
	FactorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "factors_triggered_total",
			Help:      "Total triggered risk factors by name.",
		},
		[]string{"factor"},
	)

	// ReviewQueuedTotal counts attempts sent to manual review.
	ReviewQueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riskgate",
		Name:      "review_queued_total",
		Help:      "Total attempts queued for manual review.",
	})

	// ReviewDecisionsTotal counts reviewer verdicts.
	ReviewDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "review_decisions_total",
			Help:      "Total review decisions by verdict.",
		},
		[]string{"decision"},
	)

	// PaymentFailuresTotal counts failed captures reported by checkout.
	PaymentFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riskgate",
		Name:      "payment_failures_total",
		Help:      "Total failed payment captures reported.",
	})

	// WebhookDeliveriesTotal counts review webhook delivery attempts by result.
	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "webhook_deliveries_total",
			Help:      "Total review webhook deliveries by result.",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, route pattern, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskgate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		EvaluationsTotal,
		EvaluationDuration,
		BlockedTotal,
		DegradedTotal,
		FactorsTotal,
		ReviewQueuedTotal,
		ReviewDecisionsTotal,
		PaymentFailuresTotal,
		WebhookDeliveriesTotal,
		HTTPRequestsTotal,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
