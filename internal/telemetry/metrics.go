// Package telemetry provides observability primitives for the
// authentication protocol: HTTP-layer request metrics plus
// domain-specific counters for login outcomes, OTP delivery, the login
// throttle, and OAuth2 circuit breaker health.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	LoginAttemptsTotal    *prometheus.CounterVec // labels: method, outcome
	LoginThrottleRejects  prometheus.Counter
	OTPSentTotal          *prometheus.CounterVec // labels: channel
	CircuitBreakerState   *prometheus.GaugeVec   // labels: service, 0=closed 1=open 2=half_open
	CircuitBreakerRejects *prometheus.CounterVec // labels: service
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "warden",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "warden",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		LoginAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "login_attempts_total",
			Help:      "Total login attempts by auth method and outcome.",
		}, []string{"method", "outcome"}),

		LoginThrottleRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "login_throttle_rejects_total",
			Help:      "Total login attempts rejected by the per-identifier throttle.",
		}),

		OTPSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "otp_sent_total",
			Help:      "Total one-time passwords dispatched, by delivery channel.",
		}, []string{"channel"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "warden",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per OAuth2 service (0=closed, 1=open, 2=half_open).",
		}, []string{"service"}),

		CircuitBreakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "circuit_breaker_rejects_total",
			Help:      "Total OAuth2 logins rejected by circuit breaker.",
		}, []string{"service"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.LoginAttemptsTotal,
		m.LoginThrottleRejects,
		m.OTPSentTotal,
		m.CircuitBreakerState,
		m.CircuitBreakerRejects,
	)

	return m
}
