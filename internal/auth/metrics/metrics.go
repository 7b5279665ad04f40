// Package metrics provides observability for auth operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for sign-in and OTP counters.
const (
	OutcomeSuccess     = "success"
	OutcomeOTPRequired = "otp_required"
	OutcomeFailure     = "failure"
)

// Metrics tracks auth operation outcomes and durations.
type Metrics struct {
	SignIns          *prometheus.CounterVec
	OTPVerifications *prometheus.CounterVec
	SignOuts         prometheus.Counter
	OperationSeconds *prometheus.HistogramVec
}

// New registers auth metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers auth metrics on the given registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SignIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_auth_signins_total",
			Help: "Sign-in attempts by outcome",
		}, []string{"outcome"}),

		OTPVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_auth_otp_verifications_total",
			Help: "OTP verification attempts by outcome",
		}, []string{"outcome"}),

		SignOuts: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_auth_signouts_total",
			Help: "Completed sign-outs, including local-only ones",
		}),

		OperationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatehouse_auth_operation_duration_seconds",
			Help:    "Auth operation duration by operation",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"operation"}),
	}
}

// ObserveSignIn records one sign-in attempt.
func (m *Metrics) ObserveSignIn(outcome string) {
	if m != nil {
		m.SignIns.WithLabelValues(outcome).Inc()
	}
}

// ObserveOTPVerification records one OTP verification attempt.
func (m *Metrics) ObserveOTPVerification(outcome string) {
	if m != nil {
		m.OTPVerifications.WithLabelValues(outcome).Inc()
	}
}

// ObserveSignOut records one completed sign-out.
func (m *Metrics) ObserveSignOut() {
	if m != nil {
		m.SignOuts.Inc()
	}
}

// ObserveOperation records the duration of one auth operation.
func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	if m != nil {
		m.OperationSeconds.WithLabelValues(operation).Observe(d.Seconds())
	}
}
