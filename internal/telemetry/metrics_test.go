package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.ActiveRequests == nil {
		t.Error("ActiveRequests is nil")
	}
	if m.LoginAttemptsTotal == nil {
		t.Error("LoginAttemptsTotal is nil")
	}
	if m.LoginThrottleRejects == nil {
		t.Error("LoginThrottleRejects is nil")
	}
	if m.OTPSentTotal == nil {
		t.Error("OTPSentTotal is nil")
	}
	if m.CircuitBreakerState == nil {
		t.Error("CircuitBreakerState is nil")
	}
	if m.CircuitBreakerRejects == nil {
		t.Error("CircuitBreakerRejects is nil")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected at least one metric family")
	}
}

func TestNewMetricsIncrement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("POST", "/auth", "200").Inc()
	m.LoginAttemptsTotal.WithLabelValues("native", "success").Inc()
	m.LoginThrottleRejects.Inc()
	m.OTPSentTotal.WithLabelValues("email").Inc()
	m.CircuitBreakerState.WithLabelValues("github").Set(1)
	m.ActiveRequests.Set(5)
	m.RequestDuration.WithLabelValues("POST", "/auth").Observe(0.123)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather after increment: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"warden_requests_total",
		"warden_login_attempts_total",
		"warden_login_throttle_rejects_total",
		"warden_otp_sent_total",
		"warden_circuit_breaker_state",
		"warden_active_requests",
		"warden_request_duration_seconds",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}

// SetupTracing is not unit-tested because it requires a gRPC connection
// to an OTLP collector, which is integration-test territory.
