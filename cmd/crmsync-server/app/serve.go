package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	syncapp "github.com/stacklok/crmsync/internal/app"
	"github.com/stacklok/crmsync/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync server",
	Long: `Start the sync server: the change-detection scheduler, the operation workers,
the webhook intake and the admin API.

The server requires a configuration file (--config) that specifies:
- The system of record and the external connectors
- The tenants with their conflict policy and adapter bindings
- Storage, authentication and telemetry settings

Changes to the tenants section are applied without a restart.
See examples/ directory for sample configurations.`,
	RunE: runServe,
}

// Long enough for in-flight operations to reach their adapter timeout
const defaultGracefulTimeout = 30 * time.Second

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides server.address)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	configPath := viper.GetString("config")
	configManager, err := config.NewConfigManager(configPath)
	if err != nil {
		return err
	}
	cfg := configManager.GetConfig()
	slog.Info("Loaded configuration",
		"path", configPath,
		"system_of_record", cfg.SystemOfRecord.Name,
		"connectors", len(cfg.Connectors),
		"tenants", len(cfg.Tenants),
		"storage", cfg.GetStorageType())

	opts := []syncapp.SyncAppOptions{syncapp.WithConfigManager(configManager)}
	if address := viper.GetString("address"); address != "" {
		opts = append(opts, syncapp.WithAddress(address))
	}

	app, err := syncapp.NewSyncApp(ctx, opts...)
	if err != nil {
		if closeErr := configManager.Close(); closeErr != nil {
			slog.Warn("Failed to close config watcher", "error", closeErr)
		}
		return fmt.Errorf("failed to build sync server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-errCh:
		if runErr != nil {
			slog.Error("Sync server failed", "error", runErr)
		}
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		return err
	}
	return runErr
}
