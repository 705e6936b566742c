// Package main is the entry point for the chainwatch binary.
//
// Startup sequence for the run command:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Load and validate the configuration root (fatal on error)
//  4. Build storage, client pool, filter, trigger, and watcher services
//  5. Start the pipeline, config hot reload, and metrics server
//  6. Block until SIGINT/SIGTERM, then graceful shutdown
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chainwatch-io/chainwatch/internal/bootstrap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliConfig struct {
	configRoot     string
	storageBackend string
	storagePath    string
	metricsAddr    string
	workers        int
	logLevel       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	root := &cobra.Command{
		Use:   "chainwatch",
		Short: "Chainwatch watches blockchains and fires notifications on matches",
		Long: `Chainwatch polls configured blockchain networks, evaluates monitor
conditions against every confirmed block, and dispatches matches to
notification channels such as Slack, Discord, Telegram, email, webhooks,
and local scripts.`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(cfg))
	root.AddCommand(newExecuteMonitorCmd(cfg))
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.configRoot, "config", envOrDefault("CHAINWATCH_CONFIG", "./config"), "Configuration root holding networks/, monitors/, triggers/")
	root.PersistentFlags().StringVar(&cfg.storageBackend, "storage", envOrDefault("CHAINWATCH_STORAGE", "file"), "Storage backend (file or sqlite)")
	root.PersistentFlags().StringVar(&cfg.storagePath, "storage-path", envOrDefault("CHAINWATCH_STORAGE_PATH", "./data"), "Storage directory (file backend) or database path (sqlite backend)")
	root.PersistentFlags().StringVar(&cfg.metricsAddr, "metrics-addr", envOrDefault("CHAINWATCH_METRICS_ADDR", ""), "Metrics listen address, e.g. :8081 (empty disables)")
	root.PersistentFlags().IntVar(&cfg.workers, "workers", 0, "Block worker count (0 = default)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("CHAINWATCH_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newRunCmd(cfg *cliConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the monitoring pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}
}

func newExecuteMonitorCmd(cfg *cliConfig) *cobra.Command {
	var (
		networkSlug string
		blockNumber uint64
	)
	cmd := &cobra.Command{
		Use:   "execute-monitor <monitor-name>",
		Short: "Evaluate one monitor against a single block and print matches as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeMonitor(cmd, cfg, args[0], networkSlug, blockNumber)
		},
	}
	cmd.Flags().StringVar(&networkSlug, "network", "", "Network slug (required when the monitor targets several networks)")
	cmd.Flags().Uint64Var(&blockNumber, "block", 0, "Block or ledger number (0 = latest confirmed)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chainwatch %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *cliConfig) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting chainwatch",
		zap.String("version", version),
		zap.String("config", cfg.configRoot),
		zap.String("storage", cfg.storageBackend),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.New(bootstrap.Options{
		ConfigRoot:     cfg.configRoot,
		StorageBackend: cfg.storageBackend,
		StoragePath:    cfg.storagePath,
		MetricsAddr:    cfg.metricsAddr,
		Workers:        cfg.workers,
	}, logger)
	if err != nil {
		return err
	}

	if err := app.Run(ctx); err != nil {
		return err
	}
	logger.Info("chainwatch stopped")
	return nil
}

func executeMonitor(cmd *cobra.Command, cfg *cliConfig, monitorName, networkSlug string, blockNumber uint64) error {
	logger, err := buildLogger("error")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	app, err := bootstrap.New(bootstrap.Options{
		ConfigRoot:     cfg.configRoot,
		StorageBackend: cfg.storageBackend,
		StoragePath:    cfg.storagePath,
	}, logger)
	if err != nil {
		return err
	}

	req := bootstrap.ExecuteRequest{
		MonitorName: monitorName,
		NetworkSlug: networkSlug,
	}
	if blockNumber > 0 {
		req.Block = &blockNumber
	}

	if err := app.ExecuteMonitor(cmd.Context(), req, os.Stdout); err != nil {
		// Evaluation failures use a distinct exit code so scripts can tell
		// them apart from startup errors.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
