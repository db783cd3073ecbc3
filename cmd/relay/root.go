package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"nimbus-chat/relay/pkg/config"
	"nimbus-chat/relay/pkg/dispatch"
	"nimbus-chat/relay/pkg/providers"
	"nimbus-chat/relay/pkg/telemetry/logging"
	"nimbus-chat/relay/pkg/telemetry/metrics"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - multi-provider key-rotation dispatch engine",
	Long: `Relay dispatches chat generation requests across a pool of credentials
spanning multiple LLM backends (cloud SDK, OpenAI-compatible endpoints, and
self-hosted servers), rotating keys round-robin with per-credential quotas,
rate-limit cooldowns, and automatic failover on classified errors.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "relay.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// session bundles what subcommands need after setup.
type session struct {
	cfg      *config.Config
	engine   *dispatch.Engine
	registry *prometheus.Registry
}

// setup loads the configuration, installs the logger, and builds an engine
// with the configured credential pool.
func setup() (*session, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.Setup(cfg.Logging, nil)
	if err != nil {
		return nil, err
	}

	opts := dispatch.Options{
		DefaultModel: cfg.Dispatch.DefaultModel,
		CallTimeout:  cfg.Dispatch.CallTimeout,
		Cooldown:     cfg.Dispatch.Cooldown,
		Logger:       logger,
		OnCredentialError: func(credentialID string, code providers.Code, fatal bool) {
			logger.Warn("credential state changed",
				"credential_id", credentialID,
				"code", code,
				"fatal", fatal,
			)
		},
	}

	s := &session{cfg: cfg}
	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		opts.Metrics = metrics.NewDispatchMetrics(cfg.Metrics.Namespace, s.registry)
	}

	s.engine = dispatch.New(opts)
	s.engine.UpdateCredentials(cfg.Entries())

	return s, nil
}
