package state

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/status"
)

// NewStateService creates a TenantStateService based on the configured storage type.
//
// For file-based storage, it returns a service that persists each tenant to disk
// through statusPersistence. For database storage, it returns a service that stores
// tenants directly in PostgreSQL; pool must not be nil in that case.
func NewStateService(
	cfg *config.Config,
	statusPersistence status.StatusPersistence,
	pool *pgxpool.Pool,
) (TenantStateService, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if pool == nil {
			return nil, fmt.Errorf("database pool is required when storage type is database")
		}
		return NewDBStateService(pool), nil
	case config.StorageTypeFile:
		if statusPersistence == nil {
			return nil, fmt.Errorf("status persistence is required when storage type is file")
		}
		return NewFileStateService(statusPersistence), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}
