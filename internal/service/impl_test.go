package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/entity"
	"github.com/stacklok/crmsync/internal/status"
	"github.com/stacklok/crmsync/internal/sync/coordinator"
	coordinatormocks "github.com/stacklok/crmsync/internal/sync/coordinator/mocks"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	stateSvc  state.TenantStateService
	store     records.Store
	queue     *queue.Queue
	scheduler *coordinatormocks.MockScheduler
	svc       SyncService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		stateSvc:  state.NewFileStateService(status.NewFileStatusPersistence(t.TempDir())),
		store:     records.NewMemoryStore(),
		queue:     queue.New(),
		scheduler: coordinatormocks.NewMockScheduler(ctrl),
	}
	require.NoError(t, f.stateSvc.Initialize(context.Background(), []config.TenantConfig{{
		TenantID:       "acme",
		ConflictPolicy: "source-priority",
		Adapters: []config.AdapterConfig{
			{Name: "S1", Direction: "bidirectional"},
			{Name: "S2", Direction: "push"},
		},
	}}))
	f.svc = New(f.stateSvc, f.store, f.queue, f.scheduler, opts...)
	return f
}

func apiTenant(id string) config.TenantConfig {
	return config.TenantConfig{
		TenantID:       id,
		ConflictPolicy: "field-merge",
		Adapters:       []config.AdapterConfig{{Name: "S1", Direction: "pull"}},
	}
}

// parkOne claims an operation and parks it behind adapter
func (f *fixture) parkOne(t *testing.T, tenantID, entityID, adapter string) {
	t.Helper()
	f.queue.Enqueue(&queue.Operation{
		TenantID: tenantID, Kind: entity.KindContact, EntityID: entityID,
		Direction: queue.DirectionPush, EnqueuedAt: epoch,
	})
	ops := f.queue.Withdraw(1)
	require.Len(t, ops, 1)
	f.queue.Park(ops[0], adapter)
}

func TestListTenants(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := state.PauseAdapter(ctx, f.stateSvc, "acme", "S1", "token revoked")
	require.NoError(t, err)

	tenants, err := f.svc.ListTenants(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 1)
	assert.Equal(t, "acme", tenants[0].TenantID)
	assert.True(t, tenants[0].SyncEnabled)
	assert.Equal(t, []string{"S1"}, tenants[0].PausedAdapters)
	assert.Equal(t, status.CreationTypeCONFIG, tenants[0].CreationType)
	assert.Len(t, tenants[0].Adapters, 2)
}

func TestGetStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.queue.Enqueue(&queue.Operation{
		TenantID: "acme", Kind: entity.KindContact, EntityID: "C1",
		Direction: queue.DirectionPush, EnqueuedAt: epoch,
	})
	f.parkOne(t, "acme", "C2", "S2")
	require.NoError(t, f.store.AppendConflict(ctx, &entity.ConflictRecord{
		ID: "c-1", TenantID: "acme", Kind: entity.KindContact, EntityID: "C1", System: "S1", CreatedAt: epoch,
	}))
	require.NoError(t, f.store.RecordFailure(ctx, &records.FailureRecord{
		OperationID: "op-1", TenantID: "acme", Kind: entity.KindContact, EntityID: "C3",
		Adapter: "S1", Reason: "rejected", Attempt: 1, FailedAt: epoch,
	}))

	st, err := f.svc.GetStatus(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, st.QueueDepth)
	assert.Equal(t, map[string]int{"S2": 1}, st.ParkedByAdapter)
	require.Len(t, st.RecentConflicts, 1)
	assert.Equal(t, "c-1", st.RecentConflicts[0].ID)
	assert.Equal(t, 1, st.FailureCount)
	require.Len(t, st.RecentFailures, 1)
	assert.Equal(t, "C3", st.RecentFailures[0].EntityID)

	_, err = f.svc.GetStatus(ctx, "initech")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestPutTenantConfig(t *testing.T) {
	t.Parallel()

	unknownAdapter := errors.New("connector S9 is not configured")
	tests := []struct {
		name       string
		cfg        config.TenantConfig
		wantErr    error
		wantEnsure bool
	}{
		{
			name:       "creates an api tenant",
			cfg:        apiTenant("initech"),
			wantEnsure: true,
		},
		{
			name: "invalid policy",
			cfg: config.TenantConfig{
				TenantID: "initech", ConflictPolicy: "newest-wins",
			},
			wantErr: ErrInvalidConfig,
		},
		{
			name: "adapter without connector",
			cfg: config.TenantConfig{
				TenantID: "initech", ConflictPolicy: "field-merge",
				Adapters: []config.AdapterConfig{{Name: "S9", Direction: "pull"}},
			},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "configuration file tenant",
			cfg:     apiTenant("acme"),
			wantErr: ErrConfigManaged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, WithAdapterValidator(func(cfg *config.TenantConfig) error {
				for _, a := range cfg.Adapters {
					if a.Name == "S9" {
						return unknownAdapter
					}
				}
				return nil
			}))
			if tt.wantEnsure {
				f.scheduler.EXPECT().EnsureTenant(tt.cfg.TenantID).Return(nil)
			}

			got, err := f.svc.PutTenantConfig(context.Background(), tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.TenantID, got.TenantID)
			assert.True(t, got.IsSyncEnabled())

			st, err := f.stateSvc.GetTenant(context.Background(), tt.cfg.TenantID)
			require.NoError(t, err)
			assert.Equal(t, status.CreationTypeAPI, st.CreationType)
		})
	}
}

func TestPutTenantConfig_PreservesProgress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.scheduler.EXPECT().EnsureTenant("initech").Return(coordinator.ErrNotRunning).Times(2)

	_, err := f.svc.PutTenantConfig(ctx, apiTenant("initech"))
	require.NoError(t, err)
	_, err = state.AdvanceWatermark(ctx, f.stateSvc, "initech", "S1", epoch)
	require.NoError(t, err)
	require.NoError(t, f.svc.PauseTenant(ctx, "initech"))

	updated := apiTenant("initech")
	updated.Adapters[0].Direction = "bidirectional"
	got, err := f.svc.PutTenantConfig(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, "bidirectional", got.Adapters[0].Direction)

	st, err := f.stateSvc.GetTenant(ctx, "initech")
	require.NoError(t, err)
	assert.True(t, st.Paused)
	assert.Equal(t, epoch, st.Watermarks["S1"])
}

func TestResumeTenant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		adapter       string
		wantErr       error
		wantTenant    bool
		wantResumed   []string
		wantUnparked  int
		stillParked   map[string]int
		stillAdapters []string
	}{
		{
			name:         "whole tenant",
			wantTenant:   true,
			wantResumed:  []string{"S1", "S2"},
			wantUnparked: 2,
			stillParked:  map[string]int{},
		},
		{
			name:          "single adapter",
			adapter:       "S2",
			wantResumed:   []string{"S2"},
			wantUnparked:  1,
			stillParked:   map[string]int{"S1": 1},
			stillAdapters: []string{"S1"},
		},
		{
			name:    "adapter not bound",
			adapter: "S9",
			wantErr: ErrAdapterNotEnabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()

			require.NoError(t, f.svc.PauseTenant(ctx, "acme"))
			for _, a := range []string{"S1", "S2"} {
				_, err := state.PauseAdapter(ctx, f.stateSvc, "acme", a, "unauthorized")
				require.NoError(t, err)
			}
			f.parkOne(t, "acme", "C1", "S1")
			f.parkOne(t, "acme", "C2", "S2")

			res, err := f.svc.ResumeTenant(ctx, "acme", tt.adapter)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTenant, res.TenantResumed)
			assert.Equal(t, tt.wantResumed, res.Resumed)
			assert.Equal(t, tt.wantUnparked, res.Unparked)
			assert.Equal(t, tt.wantUnparked, f.queue.Depth())
			assert.Equal(t, tt.stillParked, f.queue.Parked("acme"))

			st, err := f.stateSvc.GetTenant(ctx, "acme")
			require.NoError(t, err)
			assert.Equal(t, !tt.wantTenant, st.Paused)
			if tt.stillAdapters == nil {
				assert.Empty(t, st.PausedAdapterNames())
			} else {
				assert.Equal(t, tt.stillAdapters, st.PausedAdapterNames())
			}
		})
	}
}

func TestTriggerSync(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	want := &coordinator.SweepResult{TenantID: "acme", StartedAt: epoch, Enqueued: 3, Sources: []string{"ghl", "S1"}}
	f.scheduler.EXPECT().Sweep(gomock.Any(), "acme").Return(want, nil)
	f.scheduler.EXPECT().Sweep(gomock.Any(), "initech").Return(nil, ErrTenantNotFound)

	got, err := f.svc.TriggerSync(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = f.svc.TriggerSync(context.Background(), "initech")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestDeleteTenant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.scheduler.EXPECT().EnsureTenant("initech").Return(nil)

	_, err := f.svc.PutTenantConfig(ctx, apiTenant("initech"))
	require.NoError(t, err)
	require.NoError(t, f.store.SaveMapping(ctx, &entity.ExternalMapping{
		TenantID: "initech", Kind: entity.KindContact, EntityID: "C1", System: "S1", ExternalID: "ext-1",
	}))
	f.queue.Enqueue(&queue.Operation{
		TenantID: "initech", Kind: entity.KindContact, EntityID: "C1",
		Direction: queue.DirectionPush, EnqueuedAt: epoch,
	})
	f.parkOne(t, "initech", "C2", "S1")
	f.queue.Enqueue(&queue.Operation{
		TenantID: "acme", Kind: entity.KindContact, EntityID: "C1",
		Direction: queue.DirectionPush, EnqueuedAt: epoch,
	})

	res, err := f.svc.DeleteTenant(ctx, "initech")
	require.NoError(t, err)
	assert.Equal(t, 2, res.DroppedOperations)
	assert.Equal(t, 1, res.DeletedMappings)
	assert.Equal(t, 1, f.queue.Depth())

	_, err = f.stateSvc.GetTenant(ctx, "initech")
	assert.ErrorIs(t, err, state.ErrTenantNotFound)
	_, err = f.store.GetMapping(ctx, "initech", entity.KindContact, "C1", "S1")
	assert.ErrorIs(t, err, records.ErrNotFound)

	_, err = f.svc.DeleteTenant(ctx, "acme")
	assert.ErrorIs(t, err, ErrConfigManaged)
	_, err = f.svc.DeleteTenant(ctx, "initech")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestCheckReadiness(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	assert.NoError(t, f.svc.CheckReadiness(context.Background()))
}
