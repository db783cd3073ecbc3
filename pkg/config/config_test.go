package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nimbus-chat/relay/pkg/providers"
)

func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
dispatch:
  default_model: claude-sonnet-4-5
  call_timeout: 30s
credentials:
  - provider: anthropic
    secret: sk-ant-test
    usage_quota: 3
  - provider: openai-compat
    secret: sk-test
    endpoint: https://openrouter.ai/api/v1
    model: gpt-4o
    active: false
  - provider: ollama
    secret: ""
    endpoint: http://localhost:11434
logging:
  level: debug
  format: json
metrics:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dispatch.DefaultModel != "claude-sonnet-4-5" {
		t.Errorf("DefaultModel = %q", cfg.Dispatch.DefaultModel)
	}
	if cfg.Dispatch.CallTimeout != 30*time.Second {
		t.Errorf("CallTimeout = %v, want 30s", cfg.Dispatch.CallTimeout)
	}
	if cfg.Dispatch.Cooldown != 60*time.Second {
		t.Errorf("Cooldown = %v, want the 60s default", cfg.Dispatch.Cooldown)
	}
	if len(cfg.Credentials) != 3 {
		t.Fatalf("len(Credentials) = %d, want 3", len(cfg.Credentials))
	}
	if cfg.Credentials[0].UsageQuota != 3 {
		t.Errorf("UsageQuota = %d, want 3", cfg.Credentials[0].UsageQuota)
	}
	if cfg.Credentials[1].Active == nil || *cfg.Credentials[1].Active {
		t.Error("active: false not parsed")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Namespace != "relay" {
		t.Errorf("Metrics = %+v, want enabled with default namespace", cfg.Metrics)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load on a missing file did not fail")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{
			Credentials: []CredentialConfig{
				{Provider: "anthropic", Secret: "s", UsageQuota: 1},
			},
		}
		ApplyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(cfg *Config) {}, false},
		{"unknown provider", func(cfg *Config) { cfg.Credentials[0].Provider = "gemini" }, true},
		{"missing endpoint", func(cfg *Config) { cfg.Credentials[0].Provider = "ollama" }, true},
		{"zero quota", func(cfg *Config) { cfg.Credentials[0].UsageQuota = 0 }, true},
		{"negative timeout", func(cfg *Config) { cfg.Dispatch.CallTimeout = -time.Second }, true},
		{"bad level", func(cfg *Config) { cfg.Logging.Level = "trace" }, true},
		{"bad format", func(cfg *Config) { cfg.Logging.Format = "logfmt" }, true},
		{"endpoint optional for anthropic", func(cfg *Config) { cfg.Credentials[0].Endpoint = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEntries(t *testing.T) {
	inactive := false
	cfg := &Config{
		Credentials: []CredentialConfig{
			{Provider: "anthropic", Secret: "s1", Model: "claude-sonnet-4-5", UsageQuota: 2, Group: "primary"},
			{Provider: "ollama", Secret: "", Endpoint: "http://localhost:11434", UsageQuota: 1, Active: &inactive},
		},
	}

	entries := cfg.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	first := entries[0]
	if first.Provider != providers.KindAnthropic || first.PreferredModel != "claude-sonnet-4-5" ||
		first.UsageQuota != 2 || first.GroupID != "primary" || !first.Active {
		t.Errorf("first entry = %+v, want the declared fields", first)
	}
	if first.ID == "" || first.ID == entries[1].ID {
		t.Error("entries did not get distinct IDs")
	}
	if entries[1].Active {
		t.Error("active: false not carried into the entry")
	}
}

func TestWatcherReloads(t *testing.T) {
	path := writeConfig(t, `
credentials:
  - provider: anthropic
    secret: s1
`)

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	ctx, cancel := testContext(t)
	defer cancel()

	go func() {
		_ = w.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// Give the watch loop a moment to start before touching the file.
	time.Sleep(50 * time.Millisecond)

	update := `
credentials:
  - provider: anthropic
    secret: s1
  - provider: anthropic
    secret: s2
`
	if err := os.WriteFile(path, []byte(update), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if len(cfg.Credentials) != 2 {
			t.Errorf("reloaded credentials = %d, want 2", len(cfg.Credentials))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload after a write")
	}
}

func TestWatcherKeepsPreviousOnBrokenConfig(t *testing.T) {
	path := writeConfig(t, `
credentials:
  - provider: anthropic
    secret: s1
`)

	w, err := NewWatcher(path, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	reloaded := make(chan struct{}, 1)
	ctx, cancel := testContext(t)
	defer cancel()

	go func() {
		_ = w.Watch(ctx, func(cfg *Config) {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("credentials:\n  - provider: bogus\n    secret: x\n"), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case <-reloaded:
		t.Error("invalid configuration triggered the reload callback")
	case <-time.After(500 * time.Millisecond):
		// Reload was skipped, the previous config stays in effect.
	}
}
