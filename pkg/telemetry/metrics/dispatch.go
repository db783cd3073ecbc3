// Package metrics exposes Prometheus instrumentation for the dispatch
// engine: attempt outcomes, credential state transitions, and call latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics tracks dispatch-engine activity.
//
// Metrics:
//   - relay_dispatch_attempts_total: attempts by provider and outcome
//   - relay_dispatch_latency_seconds: adapter call latency by provider
//   - relay_credential_events_total: credential state transitions by event
//   - relay_active_credentials: credentials currently eligible for selection
type DispatchMetrics struct {
	// Attempt outcomes (success, fatal, transient, rejection, cancelled)
	attempts *prometheus.CounterVec

	// Adapter call latency histogram
	latency *prometheus.HistogramVec

	// Credential state transitions (deactivated, rate_limited)
	credentialEvents *prometheus.CounterVec

	// Credentials currently eligible for selection
	activeCredentials prometheus.Gauge
}

// Credential event labels.
const (
	EventDeactivated = "deactivated"
	EventRateLimited = "rate_limited"
)

// NewDispatchMetrics creates and registers dispatch metrics with the
// provided registry.
func NewDispatchMetrics(namespace string, registry *prometheus.Registry) *DispatchMetrics {
	m := &DispatchMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_attempts_total",
				Help:      "Total dispatch attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_latency_seconds",
				Help:      "Adapter call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		credentialEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_events_total",
				Help:      "Credential state transitions by event type",
			},
			[]string{"event"},
		),

		activeCredentials: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_credentials",
				Help:      "Credentials currently eligible for selection",
			},
		),
	}

	registry.MustRegister(
		m.attempts,
		m.latency,
		m.credentialEvents,
		m.activeCredentials,
	)

	return m
}

// RecordAttempt counts one dispatch attempt outcome.
func (m *DispatchMetrics) RecordAttempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(provider, outcome).Inc()
}

// ObserveLatency records one adapter call duration.
func (m *DispatchMetrics) ObserveLatency(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordCredentialEvent counts one credential state transition.
func (m *DispatchMetrics) RecordCredentialEvent(event string) {
	if m == nil {
		return
	}
	m.credentialEvents.WithLabelValues(event).Inc()
}

// SetActiveCredentials updates the active-credential gauge.
func (m *DispatchMetrics) SetActiveCredentials(n int) {
	if m == nil {
		return
	}
	m.activeCredentials.Set(float64(n))
}
