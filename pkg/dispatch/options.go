package dispatch

import (
	"log/slog"
	"time"

	"nimbus-chat/relay/pkg/providers"
	"nimbus-chat/relay/pkg/telemetry/metrics"
)

// DefaultCooldown is the rate-limit window: a rate-limited credential is
// skipped until this long after its last-used timestamp.
const DefaultCooldown = 60 * time.Second

// CredentialErrorFunc is invoked whenever the engine mutates a credential's
// activity or rate-limit state, so the caller's persisted configuration and
// displayed status stay in sync.
type CredentialErrorFunc func(credentialID string, code providers.Code, fatal bool)

// Options configures an Engine.
type Options struct {
	// DefaultModel is used when a credential has no preferred model and
	// the request supplies no override.
	DefaultModel string

	// CallTimeout bounds each individual adapter call. Zero disables the
	// engine-level timeout; backend calls then rely on the transport's
	// own behavior.
	CallTimeout time.Duration

	// Cooldown overrides the rate-limit window. Zero means DefaultCooldown.
	Cooldown time.Duration

	// OnCredentialError is the caller's state-sync callback. May be nil.
	OnCredentialError CredentialErrorFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional dispatch instrumentation. May be nil.
	Metrics *metrics.DispatchMetrics

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// cooldown returns the effective rate-limit window.
func (o *Options) cooldown() time.Duration {
	if o.Cooldown > 0 {
		return o.Cooldown
	}
	return DefaultCooldown
}

// retryBudget computes the attempt bound for one generation call: two
// attempts minimum, twice the active-credential count when the pool is
// larger.
func retryBudget(activeCount int) int {
	budget := 2 * activeCount
	if budget < 2 {
		budget = 2
	}
	return budget
}
