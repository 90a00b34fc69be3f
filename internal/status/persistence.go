// Package status provides tenant sync state documents and their file persistence.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofrs/flock"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the per-tenant state file
	StatusFileName = "state.json"

	lockFileName = ".lock"
)

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidTenantID reports whether id can name a tenant.
// Tenant ids become directory names, so path separators are not allowed.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id) && id != "." && id != ".."
}

// StatusPersistence defines the interface for tenant state persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveState saves the state of a tenant
	SaveState(ctx context.Context, tenantID string, state *TenantState) error

	// LoadState loads the state of a tenant.
	// Returns nil without error if nothing was saved yet.
	LoadState(ctx context.Context, tenantID string) (*TenantState, error)

	// LoadAllStates loads the state of every tenant
	LoadAllStates(ctx context.Context) (map[string]*TenantState, error)

	// DeleteState removes a tenant's state
	DeleteState(ctx context.Context, tenantID string) error
}

// fileStatusPersistence implements StatusPersistence using the local filesystem
type fileStatusPersistence struct {
	basePath string
	lock     *flock.Flock
}

// NewFileStatusPersistence creates a file-based state persistence.
// basePath is the directory holding one sub-directory per tenant.
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
		lock:     flock.New(filepath.Join(basePath, lockFileName)),
	}
}

// SaveState writes the state as JSON, atomically replacing the previous file
func (f *fileStatusPersistence) SaveState(_ context.Context, tenantID string, state *TenantState) error {
	if !ValidTenantID(tenantID) {
		return fmt.Errorf("invalid tenant id %q", tenantID)
	}

	tenantDir := filepath.Join(f.basePath, tenantID)
	if err := os.MkdirAll(tenantDir, 0750); err != nil {
		return fmt.Errorf("failed to create state directory for tenant '%s': %w", tenantID, err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for tenant '%s': %w", tenantID, err)
	}

	// serialize writers sharing the data directory
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock state directory: %w", err)
	}
	defer func() {
		if err := f.lock.Unlock(); err != nil {
			slog.Warn("Failed to unlock state directory", "error", err)
		}
	}()

	filePath := filepath.Join(tenantDir, StatusFileName)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary state file for tenant '%s': %w", tenantID, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename state file for tenant '%s': %w", tenantID, err)
	}

	return nil
}

// LoadState reads the state of a tenant
func (f *fileStatusPersistence) LoadState(_ context.Context, tenantID string) (*TenantState, error) {
	if !ValidTenantID(tenantID) {
		return nil, fmt.Errorf("invalid tenant id %q", tenantID)
	}

	filePath := filepath.Join(f.basePath, tenantID, StatusFileName)

	// #nosec G304 -- filePath is built from basePath and a validated tenant id
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file for tenant '%s': %w", tenantID, err)
	}

	var state TenantState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state for tenant '%s': %w", tenantID, err)
	}
	return &state, nil
}

// LoadAllStates loads every tenant directory under the base path.
// Unreadable tenants are logged and skipped.
func (f *fileStatusPersistence) LoadAllStates(ctx context.Context) (map[string]*TenantState, error) {
	result := make(map[string]*TenantState)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || !ValidTenantID(entry.Name()) {
			continue
		}

		state, err := f.LoadState(ctx, entry.Name())
		if err != nil {
			slog.Warn("Skipping unreadable tenant state", "tenant", entry.Name(), "error", err)
			continue
		}
		if state != nil {
			result[entry.Name()] = state
		}
	}

	return result, nil
}

// DeleteState removes the tenant's directory
func (f *fileStatusPersistence) DeleteState(_ context.Context, tenantID string) error {
	if !ValidTenantID(tenantID) {
		return fmt.Errorf("invalid tenant id %q", tenantID)
	}
	if err := os.RemoveAll(filepath.Join(f.basePath, tenantID)); err != nil {
		return fmt.Errorf("failed to delete state for tenant '%s': %w", tenantID, err)
	}
	return nil
}
