package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "operations_total", Help: "Document operations by collection, operation and outcome."},
		[]string{"collection", "op", "outcome"},
	)
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "docsync", Name: "operation_duration_seconds", Help: "Store round-trip latency of document operations.", Buckets: prometheus.DefBuckets},
		[]string{"collection", "op"},
	)
	HandleRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "handle_rebuilds_total", Help: "Client/database/collection handle set constructions by reason."},
		[]string{"reason"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "events_published_total", Help: "Document lifecycle events handed to the event bus by outcome."},
		[]string{"outcome"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docsync", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

// Outcome labels for Operations.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(Operations)
	reg.MustRegister(OperationDuration)
	reg.MustRegister(HandleRebuilds)
	reg.MustRegister(EventsPublished)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
