// Package metrics provides observability for outbound backend calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels recorded per request.
const (
	OutcomeSuccess         = "success"
	OutcomeFailure         = "failure"
	OutcomeNetworkError    = "network_error"
	OutcomeTimeout         = "timeout"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeRateLimited     = "rate_limited"
	OutcomeBreakerOpen     = "breaker_open"
)

// Metrics tracks gateway request outcomes and latencies.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// New registers gateway metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers gateway metrics on the given registerer; tests pass a
// fresh registry to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_gateway_requests_total",
			Help: "Backend requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatehouse_gateway_request_duration_seconds",
			Help:    "Backend request duration by endpoint",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"endpoint"}),
	}
}

// ObserveRequest records one completed (or failed-fast) backend call.
func (m *Metrics) ObserveRequest(endpoint, outcome string, d time.Duration) {
	if m != nil {
		m.Requests.WithLabelValues(endpoint, outcome).Inc()
		m.Duration.WithLabelValues(endpoint).Observe(d.Seconds())
	}
}
