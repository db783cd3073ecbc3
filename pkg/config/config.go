// Package config loads and validates the relay configuration: the
// credential declarations the dispatch engine rotates through plus the
// ambient logging, metrics, and dispatch settings.
package config

import (
	"fmt"
	"time"

	"nimbus-chat/relay/pkg/credential"
	"nimbus-chat/relay/pkg/providers"
)

// Config is the root configuration structure.
type Config struct {
	// Dispatch contains the engine-level settings.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Credentials declares the credential pool, in rotation order.
	Credentials []CredentialConfig `yaml:"credentials"`

	// Logging contains structured-logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `yaml:"metrics"`
}

// DispatchConfig contains the engine-level settings.
type DispatchConfig struct {
	// DefaultModel is used when a credential has no preferred model.
	DefaultModel string `yaml:"default_model"`

	// CallTimeout bounds each adapter call. Zero disables the
	// engine-level timeout.
	// Default: 0
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Cooldown is the rate-limit window after a transient failure.
	// Default: 60s
	Cooldown time.Duration `yaml:"cooldown"`
}

// CredentialConfig declares one credential entry.
type CredentialConfig struct {
	// Provider is one of "anthropic", "openai-compat", "ollama".
	Provider string `yaml:"provider"`

	// Secret is the authentication token.
	Secret string `yaml:"secret"`

	// Endpoint is the base address; required for openai-compat and
	// ollama, ignored for anthropic.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Model is the preferred model for this credential.
	Model string `yaml:"model,omitempty"`

	// Active defaults to true; set false to keep the entry configured
	// but out of rotation.
	Active *bool `yaml:"active,omitempty"`

	// UsageQuota is the number of consecutive requests before rotation.
	// Default: 1
	UsageQuota int `yaml:"usage_quota,omitempty"`

	// Group is an optional caller-side label.
	Group string `yaml:"group,omitempty"`
}

// LoggingConfig contains structured-logging settings.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json", "text").
	// Default: "text"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled turns instrumentation on.
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	// Default: "relay"
	Namespace string `yaml:"namespace"`
}

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Dispatch.Cooldown == 0 {
		cfg.Dispatch.Cooldown = 60 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "relay"
	}
	for i := range cfg.Credentials {
		if cfg.Credentials[i].UsageQuota == 0 {
			cfg.Credentials[i].UsageQuota = 1
		}
	}
}

// Validate checks the configuration for inconsistencies.
func Validate(cfg *Config) error {
	for i, cc := range cfg.Credentials {
		kind := providers.Kind(cc.Provider)
		if !kind.Valid() {
			return fmt.Errorf("credentials[%d]: unknown provider %q (supported: %s, %s, %s)",
				i, cc.Provider, providers.KindAnthropic, providers.KindOpenAICompat, providers.KindOllama)
		}
		if kind != providers.KindAnthropic && cc.Endpoint == "" {
			return fmt.Errorf("credentials[%d]: endpoint is required for provider %q", i, cc.Provider)
		}
		if cc.UsageQuota < 1 {
			return fmt.Errorf("credentials[%d]: usage_quota must be >= 1, got %d", i, cc.UsageQuota)
		}
	}

	if cfg.Dispatch.CallTimeout < 0 {
		return fmt.Errorf("dispatch.call_timeout must not be negative")
	}
	if cfg.Dispatch.Cooldown < 0 {
		return fmt.Errorf("dispatch.cooldown must not be negative")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text; got %q", cfg.Logging.Format)
	}

	return nil
}

// Entries builds credential pool entries from the declarations, preserving
// order. Fresh IDs are assigned on every call; persistence of stable IDs is
// the caller's concern (see the store package).
func (cfg *Config) Entries() []*credential.Entry {
	entries := make([]*credential.Entry, 0, len(cfg.Credentials))
	for _, cc := range cfg.Credentials {
		entry := credential.New(providers.Kind(cc.Provider), cc.Secret, cc.Endpoint)
		entry.PreferredModel = cc.Model
		entry.UsageQuota = cc.UsageQuota
		entry.GroupID = cc.Group
		if cc.Active != nil {
			entry.Active = *cc.Active
		}
		entries = append(entries, entry)
	}
	return entries
}
