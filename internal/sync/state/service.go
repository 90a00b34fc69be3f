// Package state contains the tenant registry: the per-tenant sync
// configuration and progress the server persists.
package state

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/status"
)

// ErrTenantNotFound is returned when a tenant can't be found.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantStateService provides access to the tenant registry.
//
//go:generate mockgen -destination=mocks/mock_tenant_state_service.go -package=mocks github.com/stacklok/crmsync/internal/sync/state TenantStateService
type TenantStateService interface {
	// Initialize loads persisted tenants and reconciles them with the configured ones.
	// Tenants from the configuration file are created or updated, keeping their
	// watermarks and pause state. File tenants missing from the list are removed;
	// tenants managed through the API are left alone.
	Initialize(ctx context.Context, tenants []config.TenantConfig) error

	// ListTenants returns every tenant ordered by id
	ListTenants(ctx context.Context) ([]*status.TenantState, error)

	// GetTenant returns one tenant or ErrTenantNotFound
	GetTenant(ctx context.Context, tenantID string) (*status.TenantState, error)

	// UpsertTenant creates a tenant or replaces its administrative configuration.
	// Watermarks, pause state and LastFullSyncAt of an existing tenant are kept.
	UpsertTenant(ctx context.Context, tenant config.TenantConfig, creation status.CreationType) (*status.TenantState, error)

	// DeleteTenant removes a tenant or returns ErrTenantNotFound
	DeleteTenant(ctx context.Context, tenantID string) error

	// UpdateAtomically is used to carry out atomic updates on a tenant.
	// Implementations fetch the current state, apply testAndUpdateFn to it and
	// persist it if the function reports a change, all as a single atomic action.
	// The returned boolean is the value returned by testAndUpdateFn.
	UpdateAtomically(
		ctx context.Context,
		tenantID string,
		testAndUpdateFn func(tenant *status.TenantState) bool,
	) (bool, error)

	// IsPaused reports whether the tenant is administratively paused.
	// It never blocks on storage and is safe to call while holding other locks.
	IsPaused(tenantID string) bool
}

// applyConfig copies the administrative fields of cfg onto st
func applyConfig(st *status.TenantState, cfg config.TenantConfig, creation status.CreationType, now time.Time) {
	st.TenantID = cfg.TenantID
	st.SyncEnabled = cfg.IsSyncEnabled()
	st.Adapters = cfg.Bindings()
	st.ConflictPolicy = cfg.ConflictPolicy
	st.SyncIntervalSeconds = cfg.GetSyncIntervalSeconds()
	st.CreationType = creation
	st.UpdatedAt = now

	// adapters that were removed cannot stay paused
	for name := range st.PausedAdapters {
		if _, ok := st.Adapter(name); !ok {
			delete(st.PausedAdapters, name)
		}
	}
}

// newTenantState returns the state of a tenant seen for the first time
func newTenantState(cfg config.TenantConfig, creation status.CreationType, now time.Time) *status.TenantState {
	st := &status.TenantState{
		PausedAdapters: map[string]string{},
		Watermarks:     map[string]time.Time{},
	}
	applyConfig(st, cfg, creation, now)
	return st
}

// reconcile computes the changes Initialize applies to the persisted tenants
func reconcile(
	existing map[string]*status.TenantState,
	tenants []config.TenantConfig,
	now time.Time,
) (upserts []*status.TenantState, deletes []string) {
	configured := make(map[string]bool, len(tenants))
	for _, cfg := range tenants {
		configured[cfg.TenantID] = true

		current, ok := existing[cfg.TenantID]
		switch {
		case !ok:
			upserts = append(upserts, newTenantState(cfg, status.CreationTypeCONFIG, now))
		case current.CreationType == status.CreationTypeAPI:
			// the admin API owns this tenant now
		default:
			updated := current.Clone()
			applyConfig(updated, cfg, status.CreationTypeCONFIG, now)
			upserts = append(upserts, updated)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(existing)) {
		if !configured[id] && existing[id].CreationType != status.CreationTypeAPI {
			deletes = append(deletes, id)
		}
	}
	return upserts, deletes
}

func sortedStates(states map[string]*status.TenantState) []*status.TenantState {
	out := make([]*status.TenantState, 0, len(states))
	for _, id := range slices.Sorted(maps.Keys(states)) {
		out = append(out, states[id].Clone())
	}
	return out
}
