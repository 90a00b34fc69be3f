package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/status"
)

type fileStateService struct {
	statusPersistence status.StatusPersistence

	mu     sync.RWMutex
	cached map[string]*status.TenantState
}

// NewFileStateService creates a new file-based tenant state service.
// All reads are served from memory; every change is written through.
func NewFileStateService(statusPersistence status.StatusPersistence) TenantStateService {
	return &fileStateService{
		statusPersistence: statusPersistence,
		cached:            make(map[string]*status.TenantState),
	}
}

func (f *fileStateService) Initialize(ctx context.Context, tenants []config.TenantConfig) error {
	loaded, err := f.statusPersistence.LoadAllStates(ctx)
	if err != nil {
		return err
	}

	/*
	 * The cache assumes that only one process at a time accesses the data
	 * directory. Deployments sharing state between replicas use Postgres.
	 */
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cached = loaded
	upserts, deletes := reconcile(loaded, tenants, time.Now().UTC())
	for _, st := range upserts {
		if err := f.statusPersistence.SaveState(ctx, st.TenantID, st); err != nil {
			return err
		}
		f.cached[st.TenantID] = st
	}
	for _, id := range deletes {
		slog.Info("Removing tenant no longer present in configuration", "tenant", id)
		if err := f.statusPersistence.DeleteState(ctx, id); err != nil {
			return err
		}
		delete(f.cached, id)
	}

	for _, st := range f.cached {
		attrs := []any{"tenant", st.TenantID, "adapters", len(st.Adapters), "policy", st.ConflictPolicy}
		if st.LastFullSyncAt != nil {
			attrs = append(attrs, "last_full_sync", st.LastFullSyncAt.Format(time.RFC3339))
		}
		slog.Info("Tenant loaded", attrs...)
	}
	return nil
}

func (f *fileStateService) ListTenants(_ context.Context) ([]*status.TenantState, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedStates(f.cached), nil
}

func (f *fileStateService) GetTenant(_ context.Context, tenantID string) (*status.TenantState, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st, ok := f.cached[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return st.Clone(), nil
}

func (f *fileStateService) UpsertTenant(
	ctx context.Context,
	tenant config.TenantConfig,
	creation status.CreationType,
) (*status.TenantState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	var st *status.TenantState
	if current, ok := f.cached[tenant.TenantID]; ok {
		st = current.Clone()
		applyConfig(st, tenant, creation, now)
	} else {
		st = newTenantState(tenant, creation, now)
	}

	if err := f.statusPersistence.SaveState(ctx, st.TenantID, st); err != nil {
		return nil, err
	}
	f.cached[st.TenantID] = st
	return st.Clone(), nil
}

func (f *fileStateService) DeleteTenant(ctx context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cached[tenantID]; !ok {
		return ErrTenantNotFound
	}
	if err := f.statusPersistence.DeleteState(ctx, tenantID); err != nil {
		return err
	}
	delete(f.cached, tenantID)
	return nil
}

func (f *fileStateService) UpdateAtomically(
	ctx context.Context,
	tenantID string,
	testAndUpdateFn func(tenant *status.TenantState) bool,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, ok := f.cached[tenantID]
	if !ok {
		return false, ErrTenantNotFound
	}

	// mutate a copy so a failed save leaves the cache untouched
	st := current.Clone()
	if !testAndUpdateFn(st) {
		return false, nil
	}
	st.UpdatedAt = time.Now().UTC()
	if err := f.statusPersistence.SaveState(ctx, tenantID, st); err != nil {
		return false, err
	}
	f.cached[tenantID] = st
	return true, nil
}

func (f *fileStateService) IsPaused(tenantID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st, ok := f.cached[tenantID]
	return ok && st.Paused
}
