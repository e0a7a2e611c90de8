package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the security counters exported on /metrics.
type Metrics struct {
	SecurityEvents     *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	RateLimited        *prometheus.CounterVec
	JanitorPruned      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SecurityEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "security_events_total",
			Help:      "Security events recorded to the audit log, by action and status.",
		}, []string{"action", "status"}),
		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "audit_write_failures_total",
			Help:      "Audit log entries that could not be persisted.",
		}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter, by policy.",
		}, []string{"policy"}),
		JanitorPruned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "janitor_pruned_tokens_total",
			Help:      "Expired or spent tokens deleted by the janitor, by kind.",
		}, []string{"kind"}),
	}
}
