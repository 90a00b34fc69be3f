package records

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/crmsync/internal/entity"
)

// maxRetained bounds the conflict and failure records kept per tenant in memory
const maxRetained = 1000

type mappingKey struct {
	kind     entity.Kind
	entityID string
	system   string
}

type externalKey struct {
	kind       entity.Kind
	system     string
	externalID string
}

// tenantRecords is everything stored for one tenant
type tenantRecords struct {
	Mappings  []*entity.ExternalMapping `json:"mappings"`
	Conflicts []*entity.ConflictRecord  `json:"conflicts"`
	Failures  []*FailureRecord          `json:"failures"`

	// FailureCount includes failures no longer retained
	FailureCount int `json:"failureCount"`

	byEntity   map[mappingKey]*entity.ExternalMapping
	byExternal map[externalKey]*entity.ExternalMapping
}

func newTenantRecords() *tenantRecords {
	return &tenantRecords{
		byEntity:   make(map[mappingKey]*entity.ExternalMapping),
		byExternal: make(map[externalKey]*entity.ExternalMapping),
	}
}

// index rebuilds the lookup maps after decoding
func (t *tenantRecords) index() {
	t.byEntity = make(map[mappingKey]*entity.ExternalMapping, len(t.Mappings))
	t.byExternal = make(map[externalKey]*entity.ExternalMapping, len(t.Mappings))
	for _, m := range t.Mappings {
		t.byEntity[mappingKey{m.Kind, m.EntityID, m.System}] = m
		t.byExternal[externalKey{m.Kind, m.System, m.ExternalID}] = m
	}
}

type memoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenantRecords
	now     func() time.Time
}

// NewMemoryStore creates a Store that keeps everything in memory
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tenants: make(map[string]*tenantRecords),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryStore) tenant(tenantID string) *tenantRecords {
	t, ok := s.tenants[tenantID]
	if !ok {
		t = newTenantRecords()
		s.tenants[tenantID] = t
	}
	return t
}

func (s *memoryStore) GetMapping(
	_ context.Context, tenantID string, kind entity.Kind, entityID, system string,
) (*entity.ExternalMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[tenantID]; ok {
		if m, ok := t.byEntity[mappingKey{kind, entityID, system}]; ok {
			out := *m
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryStore) FindByExternalID(
	_ context.Context, tenantID string, kind entity.Kind, system, externalID string,
) (*entity.ExternalMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[tenantID]; ok {
		if m, ok := t.byExternal[externalKey{kind, system, externalID}]; ok {
			out := *m
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryStore) SaveMapping(_ context.Context, m *entity.ExternalMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveMappingLocked(m)
}

func (s *memoryStore) saveMappingLocked(m *entity.ExternalMapping) error {
	if err := validateMapping(m); err != nil {
		return err
	}

	t := s.tenant(m.TenantID)
	ek := externalKey{m.Kind, m.System, m.ExternalID}
	if other, ok := t.byExternal[ek]; ok && other.EntityID != m.EntityID {
		return fmt.Errorf("%w: %s/%s in %s belongs to %s",
			ErrDuplicateExternalID, m.Kind, m.ExternalID, m.System, other.EntityID)
	}

	row := *m
	now := s.now()
	if row.SyncedAt.IsZero() {
		row.SyncedAt = now
	}

	mk := mappingKey{m.Kind, m.EntityID, m.System}
	if existing, ok := t.byEntity[mk]; ok {
		row.CreatedAt = existing.CreatedAt
		delete(t.byExternal, externalKey{existing.Kind, existing.System, existing.ExternalID})
		*existing = row
		t.byExternal[ek] = existing
		return nil
	}

	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	t.Mappings = append(t.Mappings, &row)
	t.byEntity[mk] = &row
	t.byExternal[ek] = &row
	return nil
}

func (s *memoryStore) AppendConflict(_ context.Context, rec *entity.ConflictRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendConflictLocked(rec)
}

func (s *memoryStore) appendConflictLocked(rec *entity.ConflictRecord) error {
	if rec == nil || rec.ID == "" || rec.TenantID == "" {
		return fmt.Errorf("conflict record requires an id and a tenant")
	}
	t := s.tenant(rec.TenantID)
	stored := *rec
	stored.Local = rec.Local.Clone()
	stored.Remote = rec.Remote.Clone()
	stored.Winner = rec.Winner.Clone()
	t.Conflicts = appendCapped(t.Conflicts, &stored)
	return nil
}

func (s *memoryStore) RecentConflicts(_ context.Context, tenantID string, limit int) ([]*entity.ConflictRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	out := newestFirst(t.Conflicts, limitOrDefault(limit))
	for i, rec := range out {
		c := *rec
		c.Local, c.Remote, c.Winner = rec.Local.Clone(), rec.Remote.Clone(), rec.Winner.Clone()
		out[i] = &c
	}
	return out, nil
}

func (s *memoryStore) RecordFailure(_ context.Context, rec *FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordFailureLocked(rec)
}

func (s *memoryStore) recordFailureLocked(rec *FailureRecord) error {
	if rec == nil || rec.TenantID == "" {
		return fmt.Errorf("failure record requires a tenant")
	}
	t := s.tenant(rec.TenantID)
	stored := *rec
	if stored.FailedAt.IsZero() {
		stored.FailedAt = s.now()
	}
	t.Failures = appendCapped(t.Failures, &stored)
	t.FailureCount++
	return nil
}

func (s *memoryStore) RecentFailures(_ context.Context, tenantID string, limit int) ([]*FailureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	out := newestFirst(t.Failures, limitOrDefault(limit))
	for i, rec := range out {
		c := *rec
		out[i] = &c
	}
	return out, nil
}

func (s *memoryStore) CountFailures(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[tenantID]; ok {
		return t.FailureCount, nil
	}
	return 0, nil
}

func (s *memoryStore) DeleteTenant(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteTenantLocked(tenantID), nil
}

func (s *memoryStore) deleteTenantLocked(tenantID string) int {
	t, ok := s.tenants[tenantID]
	if !ok {
		return 0
	}
	n := len(t.Mappings)
	t.Mappings = nil
	t.byEntity = make(map[mappingKey]*entity.ExternalMapping)
	t.byExternal = make(map[externalKey]*entity.ExternalMapping)
	return n
}

func validateMapping(m *entity.ExternalMapping) error {
	switch {
	case m == nil:
		return fmt.Errorf("mapping cannot be nil")
	case m.TenantID == "", m.EntityID == "", m.System == "", m.ExternalID == "":
		return fmt.Errorf("mapping requires tenant, entity id, system and external id")
	}
	_, err := entity.ParseKind(string(m.Kind))
	return err
}

func appendCapped[T any](list []T, item T) []T {
	list = append(list, item)
	if len(list) > maxRetained {
		list = slices.Delete(list, 0, len(list)-maxRetained)
	}
	return list
}

func newestFirst[T any](list []T, limit int) []T {
	n := min(limit, len(list))
	out := make([]T, 0, n)
	for i := len(list) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, list[i])
	}
	return out
}
