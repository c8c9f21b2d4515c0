package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ideavolution/coordinator/internal/config"
	"github.com/ideavolution/coordinator/internal/logger"
	"github.com/ideavolution/coordinator/internal/server"
	"github.com/ideavolution/coordinator/internal/version"
)

var (
	// cfgPath names an optional YAML file; CONFIG_FILE is used when empty
	cfgPath string

	rootCmd = &cobra.Command{
		Use:   "coordinator",
		Short: "Coordinate surplus food alerts between restaurants, food banks and drivers.",
		Long: `Runs the alert lifecycle service.

Restaurants post surplus food alerts, food banks race to accept them, and an
assigned driver carries the donation through pickup and delivery. Every change
is pushed to the parties' dashboards over a websocket at /ws.

Configuration comes from an optional YAML file and the environment, with the
environment taking precedence. A .env file in the working directory is loaded
first when present.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
)

// Execute runs the coordinator CLI and exits with non-zero status on error
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(serveCmd(), migrateCmd(), tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra flag registration
func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML configuration file")
}

// loadConfig reads .env, then the config file and environment, and applies
// the log level
func loadConfig(ctx context.Context) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WarnKV(ctx, "Failed to load .env file", "error", err)
	}

	path := cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, ok := logger.ParseLevel(cfg.LogLevel)
	if !ok {
		logger.WarnKV(ctx, "Unknown log level; using info", "log_level", cfg.LogLevel)
	}
	logger.SetLevel(level)
	return cfg, nil
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger.InfoKV(ctx, "Starting coordinator", "version", version.Version, "port", cfg.HTTPPort)
	return server.Run(ctx, cfg)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server (default).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}
