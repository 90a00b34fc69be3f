package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/status"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
)

// TenantsDir is the sub-directory of the data directory holding tenant state
const TenantsDir = "tenants"

// FileFactory creates file-based storage components.
// Tenant state lives in <dataDir>/tenants and records in <dataDir>/records.
type FileFactory struct {
	config  *config.Config
	dataDir string

	statusPersistence status.StatusPersistence

	mu         sync.Mutex
	store      records.Store
	closeStore func() error
}

var _ Factory = (*FileFactory)(nil)

// NewFileFactory creates a new file-based storage factory, creating the data directory if needed
func NewFileFactory(cfg *config.Config) (*FileFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	slog.Info("Creating file-based storage factory", "data_dir", dataDir)

	return &FileFactory{
		config:            cfg,
		dataDir:           dataDir,
		statusPersistence: status.NewFileStatusPersistence(filepath.Join(dataDir, TenantsDir)),
	}, nil
}

// CreateStateService creates a file-backed tenant state service
func (f *FileFactory) CreateStateService(_ context.Context) (state.TenantStateService, error) {
	return state.NewStateService(f.config, f.statusPersistence, nil)
}

// CreateRecordStore opens the file record store, locking its directory
func (f *FileFactory) CreateRecordStore(_ context.Context) (records.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.store != nil {
		return f.store, nil
	}
	store, closeStore, err := records.NewStore(f.config, nil)
	if err != nil {
		return nil, err
	}
	f.store, f.closeStore = store, closeStore
	return store, nil
}

// Cleanup releases the record directory lock. It is safe to call more than once.
func (f *FileFactory) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closeStore == nil {
		return
	}
	if err := f.closeStore(); err != nil {
		slog.Warn("Failed to release records directory", "error", err)
	}
	f.store, f.closeStore = nil, nil
}
