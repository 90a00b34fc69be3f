// Package storage creates the storage-dependent components of the sync server as a family.
// It implements the Abstract Factory pattern so the tenant state service and the
// record store always share a backend: both on the local filesystem or both in PostgreSQL.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components as a family.
//
// The factory encapsulates the creation of:
// - TenantStateService: tenant configuration, pause flags and watermarks
// - records.Store: external mappings, conflict log and failure log
//
// It also manages the lifecycle of storage resources (connection pool, directory locks).
type Factory interface {
	// CreateStateService creates the tenant state service
	CreateStateService(ctx context.Context) (state.TenantStateService, error)

	// CreateRecordStore creates the store for mappings, conflicts and failures.
	// Repeated calls return the same store.
	CreateRecordStore(ctx context.Context) (records.Store, error)

	// Cleanup releases any resources held by this factory.
	// Should be called when the application shuts down.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeFile:
		return NewFileFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}
