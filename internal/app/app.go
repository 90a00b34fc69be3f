// Package app provides application lifecycle management for the sync server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/crmsync/internal/app/storage"
	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/sync/coordinator"
	"github.com/stacklok/crmsync/internal/telemetry"
)

// SyncApp encapsulates all components needed to run the sync server.
// It provides lifecycle management and graceful shutdown capabilities
type SyncApp struct {
	config         *config.Config
	configManager  config.ConfigManager
	components     *AppComponents
	httpServer     *http.Server
	storageFactory storage.Factory

	// telemetry is only set when the app owns the providers
	telemetry *telemetry.Telemetry

	// serializes tenant re-application on config reload
	reloadMu sync.Mutex

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the HTTP server, the orchestrator, the scheduler and the config watcher.
// It blocks until Stop is called or one of them fails, in which case the others are stopped too.
func (app *SyncApp) Start() error {
	g, gctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		if err := app.components.Orchestrator.Start(gctx); err != nil {
			return fmt.Errorf("orchestrator failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := app.components.Scheduler.Start(gctx); err != nil {
			return fmt.Errorf("scheduler failed: %w", err)
		}
		return nil
	})
	if app.configManager != nil {
		g.Go(func() error {
			err := app.configManager.WatchConfig(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				// keep serving with the configuration already loaded
				slog.Error("Config watcher stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
		defer cancel()
		return app.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout.
// Intake stops first so that no new work arrives while queued operations drain.
func (app *SyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	if err := app.components.Scheduler.Stop(); err != nil {
		slog.Error("Failed to stop scheduler", "error", err)
	}
	if err := app.components.Orchestrator.Stop(); err != nil {
		slog.Error("Failed to stop orchestrator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if app.configManager != nil {
		if err := app.configManager.Close(); err != nil {
			slog.Warn("Failed to close config watcher", "error", err)
		}
	}
	if app.telemetry != nil {
		if err := app.telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to shut down telemetry", "error", err)
		}
	}
	if app.storageFactory != nil {
		app.storageFactory.Cleanup()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Info("Server shutdown complete")
	return nil
}

// applyTenants re-applies the tenants section of a reloaded configuration.
// Progress and pause state of existing tenants are kept; removed tenants lose
// their queued operations.
func (app *SyncApp) applyTenants(cfg *config.Config) {
	app.reloadMu.Lock()
	defer app.reloadMu.Unlock()

	ctx := app.ctx
	stateSvc := app.components.StateService

	before, err := stateSvc.ListTenants(ctx)
	if err != nil {
		slog.Error("Failed to list tenants before reload", "error", err)
		return
	}
	if err := stateSvc.Initialize(ctx, cfg.Tenants); err != nil {
		slog.Error("Failed to apply reloaded tenants", "error", err)
		return
	}
	after, err := stateSvc.ListTenants(ctx)
	if err != nil {
		slog.Error("Failed to list tenants after reload", "error", err)
		return
	}

	present := make(map[string]bool, len(after))
	for _, st := range after {
		present[st.TenantID] = true
		if err := app.components.Scheduler.EnsureTenant(st.TenantID); err != nil &&
			!errors.Is(err, coordinator.ErrNotRunning) {
			slog.Error("Failed to start tenant sweeps", "tenant", st.TenantID, "error", err)
		}
	}
	for _, st := range before {
		if !present[st.TenantID] {
			dropped := app.components.Queue.Drop(st.TenantID)
			slog.Info("Tenant removed by configuration reload", "tenant", st.TenantID, "dropped_operations", dropped)
		}
	}

	slog.Info("Tenants re-applied from configuration", "tenants", len(after))
}

// GetConfig returns the configuration the app was built with
func (app *SyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *SyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components
func (app *SyncApp) Components() *AppComponents {
	return app.components
}
