package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/status"
)

func tenantConfig(id string, adapters ...config.AdapterConfig) config.TenantConfig {
	return config.TenantConfig{
		TenantID:            id,
		ConflictPolicy:      "external-priority",
		SyncIntervalSeconds: 60,
		Adapters:            adapters,
	}
}

var (
	s1Bidirectional = config.AdapterConfig{Name: "S1", Direction: "bidirectional"}
	s2Pull          = config.AdapterConfig{Name: "S2", Direction: "pull"}
)

// testServiceContract exercises the behaviour every TenantStateService shares.
// newService must return an empty service.
func testServiceContract(t *testing.T, newService func(t *testing.T) TenantStateService) {
	t.Helper()

	t.Run("initialize creates config tenants", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		require.NoError(t, svc.Initialize(ctx, []config.TenantConfig{
			tenantConfig("globex", s2Pull),
			tenantConfig("acme", s1Bidirectional, s2Pull),
		}))

		tenants, err := svc.ListTenants(ctx)
		require.NoError(t, err)
		require.Len(t, tenants, 2)
		assert.Equal(t, "acme", tenants[0].TenantID, "ordered by id")
		assert.Equal(t, status.CreationTypeCONFIG, tenants[0].CreationType)
		assert.True(t, tenants[0].SyncEnabled)
		assert.Len(t, tenants[0].Adapters, 2)
		assert.Equal(t, 60, tenants[0].SyncIntervalSeconds)
	})

	t.Run("initialize keeps progress and api tenants", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		require.NoError(t, svc.Initialize(ctx, []config.TenantConfig{
			tenantConfig("acme", s1Bidirectional, s2Pull),
			tenantConfig("old", s2Pull),
		}))
		_, err := svc.UpsertTenant(ctx, tenantConfig("api-tenant", s2Pull), status.CreationTypeAPI)
		require.NoError(t, err)

		mark := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		_, err = AdvanceWatermark(ctx, svc, "acme", "S1", mark)
		require.NoError(t, err)
		_, err = PauseAdapter(ctx, svc, "acme", "S2", "unauthorized")
		require.NoError(t, err)

		// S2 removed from acme, old removed entirely
		changed := tenantConfig("acme", s1Bidirectional)
		changed.ConflictPolicy = "field-merge"
		require.NoError(t, svc.Initialize(ctx, []config.TenantConfig{changed}))

		acme, err := svc.GetTenant(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "field-merge", acme.ConflictPolicy)
		assert.True(t, mark.Equal(acme.Watermarks["S1"]))
		assert.Empty(t, acme.PausedAdapters, "removed adapter cannot stay paused")

		_, err = svc.GetTenant(ctx, "old")
		assert.ErrorIs(t, err, ErrTenantNotFound)

		apiTenant, err := svc.GetTenant(ctx, "api-tenant")
		require.NoError(t, err)
		assert.Equal(t, status.CreationTypeAPI, apiTenant.CreationType)
	})

	t.Run("config does not overwrite api tenants", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		apiCfg := tenantConfig("acme", s1Bidirectional)
		apiCfg.ConflictPolicy = "source-priority"
		_, err := svc.UpsertTenant(ctx, apiCfg, status.CreationTypeAPI)
		require.NoError(t, err)

		require.NoError(t, svc.Initialize(ctx, []config.TenantConfig{tenantConfig("acme", s2Pull)}))

		acme, err := svc.GetTenant(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "source-priority", acme.ConflictPolicy)
		assert.Equal(t, status.CreationTypeAPI, acme.CreationType)
	})

	t.Run("upsert and delete", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		created, err := svc.UpsertTenant(ctx, tenantConfig("acme", s1Bidirectional), status.CreationTypeAPI)
		require.NoError(t, err)
		assert.Equal(t, "acme", created.TenantID)
		assert.NotNil(t, created.Watermarks)

		_, err = PauseTenant(ctx, svc, "acme")
		require.NoError(t, err)

		updated, err := svc.UpsertTenant(ctx, tenantConfig("acme", s1Bidirectional, s2Pull), status.CreationTypeAPI)
		require.NoError(t, err)
		assert.Len(t, updated.Adapters, 2)
		assert.True(t, updated.Paused, "pause survives reconfiguration")

		require.NoError(t, svc.DeleteTenant(ctx, "acme"))
		assert.ErrorIs(t, svc.DeleteTenant(ctx, "acme"), ErrTenantNotFound)
		_, err = svc.GetTenant(ctx, "acme")
		assert.ErrorIs(t, err, ErrTenantNotFound)
		assert.False(t, svc.IsPaused("acme"))
	})

	t.Run("update atomically", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		_, err := svc.UpdateAtomically(ctx, "missing", func(*status.TenantState) bool { return true })
		assert.ErrorIs(t, err, ErrTenantNotFound)

		require.NoError(t, svc.Initialize(ctx, []config.TenantConfig{tenantConfig("acme", s1Bidirectional)}))

		updated, err := svc.UpdateAtomically(ctx, "acme", func(st *status.TenantState) bool {
			st.SyncEnabled = false
			return false
		})
		require.NoError(t, err)
		assert.False(t, updated)
		acme, err := svc.GetTenant(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, acme.SyncEnabled, "rejected update is not persisted")

		updated, err = svc.UpdateAtomically(ctx, "acme", func(st *status.TenantState) bool {
			st.SyncEnabled = false
			return true
		})
		require.NoError(t, err)
		assert.True(t, updated)
		acme, err = svc.GetTenant(ctx, "acme")
		require.NoError(t, err)
		assert.False(t, acme.SyncEnabled)
	})

	t.Run("pause and watermarks", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()
		require.NoError(t, svc.Initialize(ctx, []config.TenantConfig{tenantConfig("acme", s1Bidirectional, s2Pull)}))

		changed, err := PauseTenant(ctx, svc, "acme")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, svc.IsPaused("acme"))
		changed, err = PauseTenant(ctx, svc, "acme")
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = ResumeTenant(ctx, svc, "acme")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.False(t, svc.IsPaused("acme"))

		changed, err = PauseAdapter(ctx, svc, "acme", "S9", "unknown adapter")
		require.NoError(t, err)
		assert.False(t, changed)
		changed, err = PauseAdapter(ctx, svc, "acme", "S2", "unauthorized")
		require.NoError(t, err)
		assert.True(t, changed)

		acme, err := svc.GetTenant(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "unauthorized", acme.PausedAdapters["S2"])

		changed, err = ResumeAdapter(ctx, svc, "acme", "S2")
		require.NoError(t, err)
		assert.True(t, changed)
		changed, err = ResumeAdapter(ctx, svc, "acme", "S2")
		require.NoError(t, err)
		assert.False(t, changed)

		t1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		advanced, err := AdvanceWatermark(ctx, svc, "acme", "S1", t1)
		require.NoError(t, err)
		assert.True(t, advanced)
		advanced, err = AdvanceWatermark(ctx, svc, "acme", "S1", t1.Add(-time.Hour))
		require.NoError(t, err)
		assert.False(t, advanced, "watermarks never move backwards")

		require.NoError(t, MarkFullSync(ctx, svc, "acme", t1))
		acme, err = svc.GetTenant(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, t1.Equal(acme.Watermarks["S1"]))
		require.NotNil(t, acme.LastFullSyncAt)
		assert.True(t, t1.Equal(*acme.LastFullSyncAt))
	})
}
