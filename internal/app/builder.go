package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/crmsync/internal/api"
	"github.com/stacklok/crmsync/internal/app/storage"
	"github.com/stacklok/crmsync/internal/auth"
	"github.com/stacklok/crmsync/internal/authz"
	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/service"
	pkgsync "github.com/stacklok/crmsync/internal/sync"
	"github.com/stacklok/crmsync/internal/sync/coordinator"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/telemetry"
	"github.com/stacklok/crmsync/internal/webhook"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 35 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// SyncTracerName is the tracer used for operation processing spans
	SyncTracerName = "github.com/stacklok/crmsync/sync"
)

// SyncAppOptions is a function that configures the sync app builder
type SyncAppOptions func(*syncAppConfig) error

// syncAppConfig collects the builder inputs.
// It supports dependency injection for testing while providing sensible defaults for production
type syncAppConfig struct {
	config        *config.Config
	configManager config.ConfigManager

	// Optional component overrides (primarily for testing)
	storageFactory storage.Factory
	connectors     *connector.Registry
	telemetry      *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	authMiddleware  func(http.Handler) http.Handler
	authzMiddleware func(http.Handler) http.Handler
}

func baseConfig(opts ...SyncAppOptions) (*syncAppConfig, error) {
	cfg := &syncAppConfig{
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil && cfg.configManager != nil {
		cfg.config = cfg.configManager.GetConfig()
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.address == "" {
		cfg.address = cfg.config.Server.GetAddress()
	}

	return cfg, nil
}

// NewSyncApp builds every component of the sync server from configuration.
// Storage, telemetry and connectors can be injected; the rest is derived from them.
func NewSyncApp(ctx context.Context, opts ...SyncAppOptions) (*SyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	ownTelemetry := cfg.telemetry == nil
	if ownTelemetry {
		connectors := make([]string, 0, len(cfg.config.Connectors))
		for _, conn := range cfg.config.Connectors {
			connectors = append(connectors, conn.Name)
		}
		cfg.telemetry, err = telemetry.New(ctx,
			telemetry.WithTelemetryConfig(cfg.config.Telemetry),
			telemetry.WithDeployment(cfg.config.SystemOfRecord.Name, connectors))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if !cleanupNeeded {
			return
		}
		if cfg.storageFactory != nil {
			cfg.storageFactory.Cleanup()
		}
		if ownTelemetry {
			if err := cfg.telemetry.Shutdown(context.Background()); err != nil {
				slog.Warn("Failed to shut down telemetry", "error", err)
			}
		}
	}()

	// Single decision point for database vs file storage
	if cfg.storageFactory == nil {
		cfg.storageFactory, err = storage.NewStorageFactory(ctx, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	components, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	if cfg.authMiddleware == nil {
		cfg.authMiddleware, err = auth.NewAuthMiddleware(cfg.config.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to build auth middleware: %w", err)
		}
		cfg.authzMiddleware, err = authz.NewMiddleware(cfg.config.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to build authorization middleware: %w", err)
		}
	}

	httpServer, err := buildHTTPServer(cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	app := &SyncApp{
		config:         cfg.config,
		configManager:  cfg.configManager,
		components:     components,
		httpServer:     httpServer,
		storageFactory: cfg.storageFactory,
		ctx:            appCtx,
		cancelFunc:     cancel,
	}
	if ownTelemetry {
		app.telemetry = cfg.telemetry
	}
	if cfg.configManager != nil {
		cfg.configManager.OnReload(app.applyTenants)
	}

	return app, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithConfigManager sets the configuration manager. Its configuration is used
// unless WithConfig is given, and tenants are re-applied on every reload.
func WithConfigManager(m config.ConfigManager) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.configManager = m
		return nil
	}
}

// WithAddress sets the HTTP server address, overriding server.address
func WithAddress(addr string) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("address is not valid: %w", err)
		}
		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(net.JoinHostPort(host, port)); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithConnectors allows injecting prebuilt adapters (for testing)
func WithConnectors(r *connector.Registry) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.connectors = r
		return nil
	}
}

// WithTelemetry sets the telemetry providers; the caller keeps ownership
func WithTelemetry(t *telemetry.Telemetry) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithAuthMiddleware overrides the admin API authentication
func WithAuthMiddleware(mw func(http.Handler) http.Handler) SyncAppOptions {
	return func(cfg *syncAppConfig) error {
		cfg.authMiddleware = mw
		return nil
	}
}

// buildSyncComponents builds the tenant registry, queue, adapters, orchestrator,
// scheduler, webhook ingestor and admin service
func buildSyncComponents(ctx context.Context, b *syncAppConfig) (*AppComponents, error) {
	slog.Info("Initializing sync components")
	cfg := b.config

	stateSvc, err := b.storageFactory.CreateStateService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create state service: %w", err)
	}
	if err := stateSvc.Initialize(ctx, cfg.Tenants); err != nil {
		return nil, fmt.Errorf("failed to initialize tenants: %w", err)
	}

	store, err := b.storageFactory.CreateRecordStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create record store: %w", err)
	}

	if b.connectors == nil {
		b.connectors, err = BuildConnectors(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build connectors: %w", err)
		}
	}

	q := queue.New(queue.WithPauseCheck(stateSvc.IsPaused))

	meterProvider := b.telemetry.MeterProvider()
	if err := telemetry.RegisterQueueDepth(meterProvider, q.Depth); err != nil {
		return nil, fmt.Errorf("failed to register queue depth gauge: %w", err)
	}
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	webhookMetrics, err := telemetry.NewWebhookMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook metrics: %w", err)
	}

	sorName := cfg.SystemOfRecord.Name
	orchestrator := pkgsync.New(b.connectors, sorName, stateSvc, store, q,
		pkgsync.WithWorkers(cfg.Sync.GetWorkers()),
		pkgsync.WithBatchSize(cfg.Sync.GetBatchSize()),
		pkgsync.WithMaxAttempts(cfg.Sync.GetMaxAttempts()),
		pkgsync.WithBackoff(cfg.Sync.GetBackoffInitial(), cfg.Sync.GetBackoffMax()),
		pkgsync.WithPollInterval(cfg.Sync.GetPollInterval()),
		pkgsync.WithAdapterTimeout(cfg.Sync.GetAdapterTimeout()),
		pkgsync.WithFailureBurstThreshold(cfg.Sync.GetFailureBurstThreshold()),
		pkgsync.WithSyncMetrics(syncMetrics),
		pkgsync.WithTracer(b.telemetry.Tracer(SyncTracerName)),
	)

	scheduler := coordinator.New(b.connectors, sorName, stateSvc, store, q,
		coordinator.WithRecoveryLookback(cfg.Sync.GetRecoveryLookback()),
		coordinator.WithSyncMetrics(syncMetrics),
	)

	sources := make([]webhook.Source, 0, len(cfg.Webhooks))
	for _, wh := range cfg.Webhooks {
		src, err := webhook.NewSource(wh)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	ingestor := webhook.New(sorName, sources, stateSvc, store, q, webhook.WithWebhookMetrics(webhookMetrics))

	svc := service.New(stateSvc, store, q, scheduler,
		service.WithTracer(b.telemetry.Tracer(service.ServiceTracerName)),
		service.WithAdapterValidator(cfg.ValidateTenantAdapters),
	)

	slog.Info("Sync components initialized successfully",
		"system_of_record", sorName,
		"webhook_sources", len(sources),
		"workers", cfg.Sync.GetWorkers())

	return &AppComponents{
		StateService: stateSvc,
		Store:        store,
		Queue:        q,
		Connectors:   b.connectors,
		Orchestrator: orchestrator,
		Scheduler:    scheduler,
		Ingestor:     ingestor,
		SyncService:  svc,
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *syncAppConfig, components *AppComponents) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Tracing and metrics come first to capture requests rejected further down the chain
	metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	observability := []func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.telemetry.TracerProvider())}
	if metricsMiddleware != nil {
		observability = append(observability, metricsMiddleware)
	}
	middlewares := append(observability, b.middlewares...)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(middlewares...),
		api.WithMetricsHandler(b.telemetry.MetricsHandler()),
	}
	if b.authMiddleware != nil {
		adminMiddlewares := []func(http.Handler) http.Handler{b.authMiddleware}
		if b.authzMiddleware != nil {
			adminMiddlewares = append(adminMiddlewares, b.authzMiddleware)
		}
		serverOpts = append(serverOpts, api.WithAdminMiddlewares(adminMiddlewares...))
	}
	router := api.NewServer(components.SyncService, components.Ingestor, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
