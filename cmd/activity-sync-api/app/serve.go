package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/repo-activity-sync/internal/app"
	"github.com/stacklok/repo-activity-sync/internal/config"
	"github.com/stacklok/repo-activity-sync/internal/versions"
)

const defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the activity sync API server",
		Long: `Start the activity sync API server. It runs sync batches on the configured
interval and serves the manual trigger, status and health endpoints.

The server requires a configuration file (--config) that specifies:
- Database connection settings
- Sync schedule, staleness cutoff and concurrency
- Provider API settings and telemetry

Flags can also be set through ACTIVITY_SYNC_ADDRESS and ACTIVITY_SYNC_CONFIG.
See examples/ directory for a sample configuration.`,
		RunE: runServe,
	}

	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	return serveCmd
}

// serveSettings resolves the serve flags, letting environment variables fill unset ones
func serveSettings(cmd *cobra.Command) (address, configPath string, err error) {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, name := range []string{"address", "config"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return "", "", fmt.Errorf("failed to bind %s flag: %w", name, err)
		}
	}

	configPath = v.GetString("config")
	if configPath == "" {
		return "", "", fmt.Errorf("a configuration file is required (--config)")
	}
	return v.GetString("address"), configPath, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	address, configPath, err := serveSettings(cmd)
	if err != nil {
		return err
	}

	info := versions.GetVersionInfo()
	slog.Info("Starting activity sync API server",
		"version", info.Version,
		"commit", info.Commit,
		"address", address)

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"database_host", cfg.Database.Host,
		"sync_interval", cfg.GetSync().Interval)

	activityApp, err := app.NewActivitySyncApp(
		context.WithoutCancel(ctx),
		app.WithConfig(cfg),
		app.WithAddress(address),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- activityApp.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			_ = activityApp.Stop(defaultGracefulTimeout)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	if err := activityApp.Stop(defaultGracefulTimeout); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		return err
	}
	return nil
}
