package records

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/stacklok/crmsync/internal/entity"
	"github.com/stacklok/crmsync/internal/status"
)

const (
	recordsFileSuffix = ".json"
	lockFileName      = ".lock"
)

// FileStore keeps records in memory and writes the records of a tenant to
// <dir>/<tenant>.json after every change
type FileStore struct {
	*memoryStore
	dir  string
	lock *flock.Flock
}

// NewFileStore creates a Store persisted as one JSON document per tenant in dir.
// The directory is locked for the lifetime of the process; Close releases it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock records directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("records directory %s is in use by another process", dir)
	}

	s := &FileStore{memoryStore: newMemoryStore(), dir: dir, lock: lock}
	if err := s.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return s, nil
}

// Close releases the directory lock
func (s *FileStore) Close() error {
	return s.lock.Unlock()
}

func (s *FileStore) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read records directory: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		tenantID, ok := strings.CutSuffix(name, recordsFileSuffix)
		if e.IsDir() || !ok || !status.ValidTenantID(tenantID) {
			continue
		}

		// #nosec G304 -- name comes from a directory listing and is a validated tenant id
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return fmt.Errorf("failed to read records of tenant '%s': %w", tenantID, err)
		}
		t := newTenantRecords()
		if err := json.Unmarshal(data, t); err != nil {
			return fmt.Errorf("failed to decode records of tenant '%s': %w", tenantID, err)
		}
		t.index()
		s.tenants[tenantID] = t
		slog.Debug("Loaded sync records", "tenant", tenantID, "mappings", len(t.Mappings))
	}
	return nil
}

func (s *FileStore) persistLocked(tenantID string) error {
	if !status.ValidTenantID(tenantID) {
		return fmt.Errorf("invalid tenant id %q", tenantID)
	}

	data, err := json.Marshal(s.tenant(tenantID))
	if err != nil {
		return fmt.Errorf("failed to marshal records of tenant '%s': %w", tenantID, err)
	}

	path := filepath.Join(s.dir, tenantID+recordsFileSuffix)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write records of tenant '%s': %w", tenantID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename records of tenant '%s': %w", tenantID, err)
	}
	return nil
}

func (s *FileStore) SaveMapping(_ context.Context, m *entity.ExternalMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveMappingLocked(m); err != nil {
		return err
	}
	return s.persistLocked(m.TenantID)
}

func (s *FileStore) AppendConflict(_ context.Context, rec *entity.ConflictRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendConflictLocked(rec); err != nil {
		return err
	}
	return s.persistLocked(rec.TenantID)
}

func (s *FileStore) RecordFailure(_ context.Context, rec *FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recordFailureLocked(rec); err != nil {
		return err
	}
	return s.persistLocked(rec.TenantID)
}

func (s *FileStore) DeleteTenant(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenantID]; !ok {
		return 0, nil
	}
	n := s.deleteTenantLocked(tenantID)
	return n, s.persistLocked(tenantID)
}
