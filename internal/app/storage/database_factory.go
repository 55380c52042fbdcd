package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/repo-activity-sync/internal/config"
	"github.com/stacklok/repo-activity-sync/internal/credentials"
	"github.com/stacklok/repo-activity-sync/internal/registry"
	"github.com/stacklok/repo-activity-sync/internal/sync/writer"
)

// DatabaseFactory creates database-backed storage components.
type DatabaseFactory struct {
	config *config.DatabaseConfig
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*DatabaseFactory)

// WithTracer sets the OpenTelemetry tracer for the sync writer.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.tracer = tracer
	}
}

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(
	ctx context.Context,
	cfg *config.DatabaseConfig,
	opts ...DatabaseFactoryOption,
) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	pool, err := buildDatabaseConnectionPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	factory := &DatabaseFactory{
		config: cfg,
		pool:   pool,
	}
	for _, opt := range opts {
		opt(factory)
	}

	return factory, nil
}

// CreateRepositoryStore creates a database-backed tracked repository store
func (d *DatabaseFactory) CreateRepositoryStore(_ context.Context) (registry.Store, error) {
	slog.Debug("Creating database-backed repository store")
	return registry.NewDBStore(d.pool)
}

// CreateCredentialResolver creates a database-backed credential resolver
func (d *DatabaseFactory) CreateCredentialResolver(_ context.Context) (credentials.Resolver, error) {
	slog.Debug("Creating database-backed credential resolver")
	return credentials.NewDBResolver(d.pool)
}

// CreateSyncWriter creates a database-backed sync writer for activity records
func (d *DatabaseFactory) CreateSyncWriter(_ context.Context) (writer.SyncWriter, error) {
	slog.Debug("Creating database-backed sync writer")

	var opts []writer.Option
	if d.tracer != nil {
		opts = append(opts, writer.WithTracer(d.tracer))
	}
	return writer.NewDBSyncWriter(d.pool, opts...)
}

// Ping acquires a connection and checks that the database answers
func (d *DatabaseFactory) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Cleanup closes the database connection pool
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// buildDatabaseConnectionPool creates a database connection pool with proper configuration.
// The pool connects lazily, so an unreachable database surfaces on first use or Ping.
func buildDatabaseConnectionPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if lifetime := config.ParseDuration(cfg.ConnMaxLifetime); lifetime > 0 {
		poolConfig.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	slog.Info("Database connection pool created",
		"host", cfg.Host,
		"port", cfg.GetPort(),
		"database", cfg.Database,
		"max_conns", poolConfig.MaxConns,
	)
	return pool, nil
}
