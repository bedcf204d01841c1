// README: Prometheus collectors for dispatch, lifecycle, oracle and payment outcomes.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	MatchAttempts   *prometheus.CounterVec
	ClaimConflicts  prometheus.Counter
	Transitions     *prometheus.CounterVec
	OracleFailures  *prometheus.CounterVec
	PaymentOutcomes *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New registers every collector on a private registry so tests can build as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		MatchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusride",
			Name:      "match_attempts_total",
			Help:      "Match attempts by outcome.",
		}, []string{"outcome"}),
		ClaimConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "campusride",
			Name:      "claim_conflicts_total",
			Help:      "Driver claims lost to a concurrent match.",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusride",
			Name:      "ride_transitions_total",
			Help:      "Ride state transitions.",
		}, []string{"from", "to"}),
		OracleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusride",
			Name:      "oracle_failures_total",
			Help:      "Distance or payment oracle calls that failed or timed out.",
		}, []string{"oracle"}),
		PaymentOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusride",
			Name:      "payments_total",
			Help:      "Charges and refunds by outcome.",
		}, []string{"op", "outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campusride",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "campusride",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// The helpers below accept a nil receiver so services can run without metrics.

func (m *Metrics) Match(outcome string) {
	if m == nil {
		return
	}
	m.MatchAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.ClaimConflicts.Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) OracleFailure(oracle string) {
	if m == nil {
		return
	}
	m.OracleFailures.WithLabelValues(oracle).Inc()
}

func (m *Metrics) Payment(op, outcome string) {
	if m == nil {
		return
	}
	m.PaymentOutcomes.WithLabelValues(op, outcome).Inc()
}
