package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDispatchMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewDispatchMetrics("relay", registry)

	m.RecordAttempt("anthropic", "success")
	m.RecordAttempt("anthropic", "transient")
	m.RecordAttempt("ollama", "success")
	m.RecordCredentialEvent(EventDeactivated)
	m.RecordCredentialEvent(EventRateLimited)
	m.RecordCredentialEvent(EventRateLimited)
	m.SetActiveCredentials(3)
	m.ObserveLatency("anthropic", 250*time.Millisecond)

	if got := testutil.ToFloat64(m.attempts.WithLabelValues("anthropic", "success")); got != 1 {
		t.Errorf("attempts{anthropic,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("anthropic", "transient")); got != 1 {
		t.Errorf("attempts{anthropic,transient} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.credentialEvents.WithLabelValues(EventRateLimited)); got != 2 {
		t.Errorf("credential_events{rate_limited} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.activeCredentials); got != 3 {
		t.Errorf("active_credentials = %v, want 3", got)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	// The engine treats metrics as optional; every method must be a no-op
	// on a nil receiver.
	var m *DispatchMetrics
	m.RecordAttempt("anthropic", "success")
	m.ObserveLatency("anthropic", time.Second)
	m.RecordCredentialEvent(EventDeactivated)
	m.SetActiveCredentials(1)
}
