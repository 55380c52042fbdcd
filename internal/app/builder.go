package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/repo-activity-sync/internal/api"
	"github.com/stacklok/repo-activity-sync/internal/app/storage"
	"github.com/stacklok/repo-activity-sync/internal/config"
	"github.com/stacklok/repo-activity-sync/internal/httpclient"
	"github.com/stacklok/repo-activity-sync/internal/provider"
	"github.com/stacklok/repo-activity-sync/internal/status"
	pkgsync "github.com/stacklok/repo-activity-sync/internal/sync"
	"github.com/stacklok/repo-activity-sync/internal/sync/coordinator"
	"github.com/stacklok/repo-activity-sync/internal/sync/writer"
	"github.com/stacklok/repo-activity-sync/internal/telemetry"
)

const (
	defaultHTTPAddress = ":8080"

	// Manual triggers block for a whole batch, so requests get the batch budget
	defaultRequestTimeout = coordinator.DefaultBatchTimeout + 30*time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = defaultRequestTimeout + 5*time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// ActivitySyncAppOptions is a function that configures the activity sync app builder
type ActivitySyncAppOptions func(*activitySyncAppConfig) error

// activitySyncAppConfig collects the settings and overrides used to build an ActivitySyncApp.
// It supports dependency injection for testing while providing defaults for production.
type activitySyncAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	storageFactory storage.Factory
	syncManager    pkgsync.Manager
	fetcher        provider.Fetcher
	telemetry      *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...ActivitySyncAppOptions) (*activitySyncAppConfig, error) {
	cfg := &activitySyncAppConfig{
		address:        defaultHTTPAddress,
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

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	// Requests must outlive the batch they wait for
	if batchTimeout := config.ParseDuration(cfg.config.GetSync().BatchTimeout); batchTimeout > 0 {
		if minimum := batchTimeout + 30*time.Second; cfg.requestTimeout < minimum {
			cfg.requestTimeout = minimum
		}
		if cfg.writeTimeout <= cfg.requestTimeout {
			cfg.writeTimeout = cfg.requestTimeout + 5*time.Second
		}
	}

	return cfg, nil
}

// NewActivitySyncApp builds the application from the given options
func NewActivitySyncApp(
	ctx context.Context,
	opts ...ActivitySyncAppOptions,
) (*ActivitySyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if cfg.telemetry == nil {
		cfg.telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.config.Telemetry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	// Create storage factory. All storage components share its connection pool.
	if cfg.storageFactory == nil {
		cfg.storageFactory, err = storage.NewDatabaseFactory(ctx, cfg.config.Database,
			storage.WithTracer(cfg.telemetry.Tracer(writer.TracerName)))
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	// Ensure cleanup happens on error
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded {
			cfg.storageFactory.Cleanup()
			if shutdownErr := cfg.telemetry.Shutdown(ctx); shutdownErr != nil {
				slog.Warn("Failed to shut down telemetry", "error", shutdownErr)
			}
		}
	}()

	tracker := buildTracker(ctx, cfg)

	syncCoordinator, err := buildSyncComponents(ctx, cfg, tracker)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, syncCoordinator, tracker)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &ActivitySyncApp{
		config: cfg.config,
		components: &AppComponents{
			SyncCoordinator: syncCoordinator,
			StorageFactory:  cfg.storageFactory,
			Tracker:         tracker,
			Telemetry:       cfg.telemetry,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) ActivitySyncAppOptions {
	return func(cfg *activitySyncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) ActivitySyncAppOptions {
	return func(cfg *activitySyncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ActivitySyncAppOptions {
	return func(cfg *activitySyncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) ActivitySyncAppOptions {
	return func(cfg *activitySyncAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) ActivitySyncAppOptions {
	return func(cfg *activitySyncAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithFetcher allows injecting a custom provider fetcher (for testing)
func WithFetcher(f provider.Fetcher) ActivitySyncAppOptions {
	return func(cfg *activitySyncAppConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithTelemetry sets already initialized telemetry providers
func WithTelemetry(t *telemetry.Telemetry) ActivitySyncAppOptions {
	return func(cfg *activitySyncAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// buildTracker creates the scheduler status tracker, persisting the last
// batch summary when a status directory is configured
func buildTracker(ctx context.Context, b *activitySyncAppConfig) *status.Tracker {
	statusDir := b.config.GetSync().StatusDir
	if statusDir == "" {
		return status.NewTracker(ctx)
	}

	slog.Info("Persisting batch status", "dir", statusDir)
	return status.NewTracker(ctx, status.WithPersistence(status.NewFileStatusPersistence(statusDir)))
}

// providerConfig converts the provider section of the configuration
func providerConfig(p *config.ProviderConfig) provider.Config {
	return provider.Config{
		BaseURL:           p.BaseURL,
		Host:              p.Host,
		PageSize:          p.PageSize,
		MaxPages:          p.MaxPages,
		RequestsPerSecond: p.RequestsPerSecond,
		Burst:             p.Burst,
		MaxAttempts:       p.MaxAttempts,
		SinceOverlap:      config.ParseDuration(p.SinceOverlap),
	}
}

// coordinatorConfig converts the sync section of the configuration
func coordinatorConfig(s *config.SyncConfig) coordinator.Config {
	return coordinator.Config{
		Interval:        config.ParseDuration(s.Interval),
		Jitter:          config.ParseDuration(s.Jitter),
		StalenessCutoff: config.ParseDuration(s.StalenessCutoff),
		BatchTimeout:    config.ParseDuration(s.BatchTimeout),
		Concurrency:     s.Concurrency,
		RunOnStart:      s.RunOnStart,
	}
}

// buildSyncComponents builds the sync manager and the batch coordinator
func buildSyncComponents(
	ctx context.Context,
	b *activitySyncAppConfig,
	tracker *status.Tracker,
) (coordinator.Coordinator, error) {
	slog.Info("Initializing sync components")

	store, err := b.storageFactory.CreateRepositoryStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository store: %w", err)
	}

	if b.syncManager == nil {
		resolver, err := b.storageFactory.CreateCredentialResolver(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create credential resolver: %w", err)
		}

		syncWriter, err := b.storageFactory.CreateSyncWriter(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync writer: %w", err)
		}

		if b.fetcher == nil {
			providerCfg := b.config.GetProvider()
			client := httpclient.NewDefaultClient(config.ParseDuration(providerCfg.RequestTimeout))
			b.fetcher = provider.NewGitHubFetcher(providerConfig(providerCfg), client)
		}

		b.syncManager = pkgsync.NewDefaultSyncManager(resolver, b.fetcher, syncWriter,
			pkgsync.WithTracer(b.telemetry.Tracer(pkgsync.TracerName)))
	}

	coordOpts := []coordinator.Option{
		coordinator.WithTracker(tracker),
		coordinator.WithTracer(b.telemetry.Tracer(coordinator.TracerName)),
	}

	batchMetrics, err := telemetry.NewBatchMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create batch metrics: %w", err)
	}
	if batchMetrics != nil {
		coordOpts = append(coordOpts, coordinator.WithBatchMetrics(batchMetrics))
	}

	syncCoordinator := coordinator.New(store, b.syncManager, coordinatorConfig(b.config.GetSync()), coordOpts...)
	slog.Info("Sync components initialized successfully")

	return syncCoordinator, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *activitySyncAppConfig,
	runner coordinator.BatchRunner,
	tracker *status.Tracker,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Telemetry middlewares run first so that rejected and timed out requests are observed
	var telemetryMiddlewares []func(http.Handler) http.Handler
	if b.telemetry != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			telemetryMiddlewares = append(telemetryMiddlewares, metricsMiddleware)
		}
		telemetryMiddlewares = append(telemetryMiddlewares, telemetry.TracingMiddleware(b.telemetry.TracerProvider()))
	}
	middlewares := append(telemetryMiddlewares, b.middlewares...)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(middlewares...),
		api.WithReadinessChecker(b.storageFactory),
	}
	if tracker != nil {
		serverOpts = append(serverOpts, api.WithStatusSource(tracker))
	}
	if b.telemetry != nil && b.telemetry.MetricsHandler() != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.telemetry.MetricsHandler()))
	}

	router := api.NewServer(runner, serverOpts...)

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
