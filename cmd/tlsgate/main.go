// Package main is the entry point for the tlsgate binary.
// It resolves TLS connection policies from static configuration and
// dynamic providers, either once or as a watching daemon.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	itls "github.com/polisai/tlsgate/internal/tls"
	"github.com/polisai/tlsgate/pkg/config"
	"github.com/polisai/tlsgate/pkg/logging"
	"github.com/polisai/tlsgate/pkg/policy"
	"github.com/polisai/tlsgate/pkg/telemetry"
	"github.com/polisai/tlsgate/pkg/tlspolicy"
	"github.com/polisai/tlsgate/pkg/tlspolicy/providers"
	"github.com/polisai/tlsgate/pkg/watcher"
)

const (
	defaultConfigPath = "tlsgate.yaml"
	defaultLogLevel   = "info"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for tlsgate
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tlsgate",
		Short: "TLS connection-policy resolver",
		Long: `tlsgate decides how outbound connections are secured: it merges static
configuration with options from a dynamic provider and reports whether TLS
is disabled, required, or optional for the connection.

Example:
  tlsgate resolve --config tlsgate.yaml
  tlsgate watch --config tlsgate.yaml`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newWatchCmd())

	return rootCmd
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the connection policy once and print the decision",
		RunE:  runResolve,
	}
	cmd.Flags().Bool("render", false, "Translate the resolved options into TLS settings and include them in the output")
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the configuration and re-resolve on every change",
		RunE:  runWatch,
	}
	cmd.Flags().String("listen", "", "Metrics and decision listen address (overrides config)")
	return cmd
}

// resolveOutput is the JSON document printed by the resolve command.
type resolveOutput struct {
	Mode    tlspolicy.Mode   `json:"mode"`
	Options []map[string]any `json:"options,omitempty"`
	Cause   string           `json:"cause,omitempty"`
	Verdict *policy.Verdict  `json:"verdict,omitempty"`
	TLS     map[string]any   `json:"tls,omitempty"`
}

func runResolve(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	render, err := cmd.Flags().GetBool("render")
	if err != nil {
		return fmt.Errorf("failed to get render flag: %w", err)
	}

	ctx := cmd.Context()

	resolver := tlspolicy.NewResolver(buildRegistry(cfg))
	decision := resolver.Resolve(ctx, cfg.TLS.Policy())

	output := resolveOutput{Mode: decision.Mode}
	for _, opt := range decision.Options {
		output.Options = append(output.Options, map[string]any{"key": opt.Key, "value": opt.Value})
	}
	if decision.Cause != nil {
		output.Cause = decision.Cause.Error()
	}

	if cfg.Audit.Enabled {
		gate, err := buildGate(ctx, cfg.Audit)
		if err != nil {
			return err
		}
		verdict, err := gate.Check(ctx, decision)
		if err != nil {
			return fmt.Errorf("audit gate: %w", err)
		}
		output.Verdict = &verdict
	}

	if render && decision.Mode != tlspolicy.ModeFailed && decision.Mode != tlspolicy.ModeDisabled {
		tlsConfig, err := itls.Materialize(decision.Options)
		if err != nil {
			return fmt.Errorf("render TLS settings: %w", err)
		}
		output.TLS = map[string]any{
			"min_version":          tlsVersionName(tlsConfig.MinVersion),
			"max_version":          tlsVersionName(tlsConfig.MaxVersion),
			"insecure_skip_verify": tlsConfig.InsecureSkipVerify,
			"server_name":          tlsConfig.ServerName,
			"certificates":         len(tlsConfig.Certificates),
			"cipher_suites":        len(tlsConfig.CipherSuites),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return err
	}

	if decision.Mode == tlspolicy.ModeFailed {
		logger.Error("resolution failed", "cause", decision.Cause)
		return fmt.Errorf("resolution failed: %v", decision.Cause)
	}
	if output.Verdict != nil && !output.Verdict.Allow {
		return fmt.Errorf("audit gate denied policy: %s", output.Verdict.Reason)
	}
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	loader, err := config.NewLoader(configPath)
	if err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logger := buildLogger(cmd, cfg)
	slog.SetDefault(logger)

	listenAddr := cfg.Metrics.ListenAddr
	if flagAddr, err := cmd.Flags().GetString("listen"); err == nil && flagAddr != "" {
		listenAddr = flagAddr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "tlsgate",
		Endpoint:    cfg.Telemetry.Endpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		logger.Warn("telemetry setup failed, continuing without tracing", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	collector, err := telemetry.GetResolutionMetrics(logger)
	if err != nil {
		logger.Warn("metrics collector setup failed", "error", err)
	}

	var gate *policy.Gate
	if cfg.Audit.Enabled {
		gate, err = buildGate(ctx, cfg.Audit)
		if err != nil {
			return err
		}
	}

	w, err := watcher.New(watcher.Options{
		Loader:     loader,
		Resolver:   tlspolicy.NewResolver(buildRegistry(cfg)),
		Gate:       gate,
		Collector:  collector,
		ListenAddr: listenAddr,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	logger.Info("starting tlsgate watcher",
		"config", configPath,
		"listen_addr", listenAddr,
		"audit", cfg.Audit.Enabled,
	)

	runErr := w.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	return runErr
}

// loadConfig loads and validates the configuration file named by the
// --config flag and builds a logger from it.
func loadConfig(cmd *cobra.Command) (*config.FileConfig, *slog.Logger, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	loader, err := config.NewLoader(configPath)
	if err != nil {
		return nil, nil, err
	}
	defer loader.Close()

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := buildLogger(cmd, cfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func buildLogger(cmd *cobra.Command, cfg *config.FileConfig) *slog.Logger {
	level := cfg.Log.Level
	if flagLevel, err := cmd.Flags().GetString("log-level"); err == nil && flagLevel != defaultLogLevel {
		level = flagLevel
	}
	return logging.NewLogger(logging.Config{Level: level, Pretty: cfg.Log.Pretty})
}

// buildRegistry assembles the operation registry for cfg: the built-in
// operations, plus a "profile" operation backed by the document's named
// option profiles when any are declared.
func buildRegistry(cfg *config.FileConfig) *providers.Registry {
	registry := providers.Builtin()
	if len(cfg.Profiles) > 0 {
		store := providers.NewMemoryProfileStore()
		for name, opts := range cfg.Profiles {
			store.Put(name, tlspolicy.Options(opts))
		}
		registry.MustRegister("profile", providers.ProfileOperation(store))
	}
	return registry
}

func buildGate(ctx context.Context, cfg config.AuditConfig) (*policy.Gate, error) {
	module, err := os.ReadFile(cfg.ModuleFile)
	if err != nil {
		return nil, fmt.Errorf("read audit module: %w", err)
	}
	return policy.NewGate(ctx, policy.GateOptions{
		Entrypoint: cfg.Entrypoint,
		Modules:    map[string]string{cfg.ModuleFile: string(module)},
	})
}

func tlsVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "1.0"
	case tls.VersionTLS11:
		return "1.1"
	case tls.VersionTLS12:
		return "1.2"
	case tls.VersionTLS13:
		return "1.3"
	case 0:
		return ""
	default:
		return fmt.Sprintf("0x%04x", version)
	}
}
