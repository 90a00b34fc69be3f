package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/crmsync/internal/app/storage/auth"
	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
)

// DatabaseFactory creates database-backed storage components.
// All components created by this factory share one PostgreSQL connection pool.
type DatabaseFactory struct {
	config *config.Config
	pool   *pgxpool.Pool
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	slog.Info("Creating database-backed storage factory",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database)

	pool, err := buildDatabaseConnectionPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	return &DatabaseFactory{
		config: cfg,
		pool:   pool,
	}, nil
}

// Pool returns the connection pool shared by the created components
func (d *DatabaseFactory) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateStateService creates a database-backed tenant state service
func (d *DatabaseFactory) CreateStateService(_ context.Context) (state.TenantStateService, error) {
	slog.Debug("Creating database-backed state service")
	return state.NewStateService(d.config, nil, d.pool)
}

// CreateRecordStore creates a database-backed record store
func (d *DatabaseFactory) CreateRecordStore(_ context.Context) (records.Store, error) {
	slog.Debug("Creating database-backed record store")
	store, _, err := records.NewStore(d.config, d.pool)
	return store, err
}

// Cleanup closes the database connection pool
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// buildDatabaseConnectionPool creates a connection pool for the application user.
// With dynamic auth every new connection receives a fresh token.
func buildDatabaseConnectionPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime != "" {
		lifetime, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connMaxLifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = lifetime
	}

	if cfg.DynamicAuth != nil {
		beforeConnect, err := auth.NewDynamicAuth(ctx, cfg, cfg.User)
		if err != nil {
			return nil, fmt.Errorf("failed to set up dynamic database auth: %w", err)
		}
		poolConfig.BeforeConnect = beforeConnect
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	slog.Info("Database connection pool created successfully")
	return pool, nil
}
