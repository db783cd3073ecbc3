// Package credential holds the mutable pool of credential entries the
// dispatch engine rotates through. The pool is pure data: all field
// mutation as a consequence of dispatch outcomes happens inside the engine,
// never here and never in callers.
package credential

import (
	"time"

	"github.com/google/uuid"

	"nimbus-chat/relay/pkg/providers"
)

// Entry is one authentication/configuration unit for one backend.
type Entry struct {
	// ID is an opaque unique identifier, assigned at creation, never reused.
	ID string `json:"id"`

	// Secret is the authentication token. Empty is valid but unusable:
	// the engine never dispatches on an empty-secret entry.
	Secret string `json:"secret"`

	// Provider identifies which adapter serves this entry.
	Provider providers.Kind `json:"provider"`

	// Endpoint is the base address. Required for the OpenAI-compatible
	// and self-hosted providers, ignored for the cloud SDK.
	Endpoint string `json:"endpoint,omitempty"`

	// PreferredModel is the model this entry should use; may be empty
	// until models are fetched, in which case the caller-supplied default
	// applies.
	PreferredModel string `json:"preferred_model,omitempty"`

	// Active marks the entry eligible for selection. The engine sets it
	// false after a fatal classification.
	Active bool `json:"active"`

	// UsageQuota is the number of consecutive requests this entry serves
	// before rotation advances. Always >= 1.
	UsageQuota int `json:"usage_quota"`

	// RateLimited is set by the engine after a transient failure and
	// clears automatically once the cooldown window elapses.
	RateLimited bool `json:"rate_limited,omitempty"`

	// LastUsedAt is the time of last use or last rate-limit event; the
	// cooldown expiry is computed from it.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`

	// LastErrorCode is the last classified error code observed.
	// Informational only.
	LastErrorCode providers.Code `json:"last_error_code,omitempty"`

	// GroupID is an optional label for caller-side organization. The
	// engine never reads it.
	GroupID string `json:"group_id,omitempty"`
}

// New creates an active entry with a fresh ID and a usage quota of 1.
func New(provider providers.Kind, secret, endpoint string) *Entry {
	return &Entry{
		ID:         uuid.NewString(),
		Secret:     secret,
		Provider:   provider,
		Endpoint:   endpoint,
		Active:     true,
		UsageQuota: 1,
	}
}

// Usable reports whether the entry may be handed to an adapter.
func (e *Entry) Usable() bool {
	return e.Active && e.Secret != ""
}

// Quota returns the effective usage quota, floored at 1 so a zero-valued
// entry still rotates instead of being skipped forever.
func (e *Entry) Quota() int {
	if e.UsageQuota < 1 {
		return 1
	}
	return e.UsageQuota
}

// CooldownElapsed reports whether the rate-limit window has passed.
func (e *Entry) CooldownElapsed(now time.Time, cooldown time.Duration) bool {
	return now.Sub(e.LastUsedAt) >= cooldown
}
