package coordinator

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/crmsync/internal/clock"
	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/connector/memory"
	connectormocks "github.com/stacklok/crmsync/internal/connector/mocks"
	"github.com/stacklok/crmsync/internal/entity"
	"github.com/stacklok/crmsync/internal/status"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
	statemocks "github.com/stacklok/crmsync/internal/sync/state/mocks"
)

const (
	testTenant = "acme"
	sorName    = "ghl"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clock    *clock.Manual
	sor      *memory.Adapter
	s1       *memory.Adapter
	s2       *memory.Adapter
	stateSvc state.TenantStateService
	store    records.Store
	queue    *queue.Queue
	sched    *scheduler
}

// newFixture wires a scheduler to in-memory systems. The tenant reads from S1
// (bidirectional) and only writes to S2 (push).
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{clock: clock.NewManual(epoch)}
	f.sor = memory.New(sorName, memory.AsSystemOfRecord(), memory.WithClock(f.clock))
	f.s1 = memory.New("S1", memory.WithClock(f.clock))
	f.s2 = memory.New("S2", memory.WithClock(f.clock))

	adapters, err := connector.NewRegistry(f.sor, f.s1, f.s2)
	require.NoError(t, err)

	f.stateSvc = state.NewFileStateService(status.NewFileStatusPersistence(t.TempDir()))
	require.NoError(t, f.stateSvc.Initialize(context.Background(), []config.TenantConfig{{
		TenantID:            testTenant,
		ConflictPolicy:      "external-priority",
		SyncIntervalSeconds: 60,
		Adapters: []config.AdapterConfig{
			{Name: "S1", Direction: "bidirectional"},
			{Name: "S2", Direction: "push"},
		},
	}}))

	f.store = records.NewMemoryStore()
	f.queue = queue.New(queue.WithClock(f.clock))

	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.sched = New(adapters, sorName, f.stateSvc, f.store, f.queue, opts...).(*scheduler)
	return f
}

func (f *fixture) tenant(t *testing.T) *status.TenantState {
	t.Helper()
	st, err := f.stateSvc.GetTenant(context.Background(), testTenant)
	require.NoError(t, err)
	return st
}

func contact(email string) *entity.Entity {
	return &entity.Entity{Kind: entity.KindContact, Fields: entity.Fields{"email": email}}
}

func TestScheduler_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.NoError(t, f.sched.Stop())
	assert.ErrorIs(t, f.sched.EnsureTenant(testTenant), ErrNotRunning)
}

func TestScheduler_SweepEnqueuesChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	local := f.sor.Put(testTenant, contact("a@acme.test"))
	mapped := f.s1.Put(testTenant, contact("b@acme.test"))
	unmapped := f.s1.Put(testTenant, contact("c@acme.test"))
	f.s2.Put(testTenant, contact("push-only@acme.test"))
	require.NoError(t, f.store.SaveMapping(ctx, &entity.ExternalMapping{
		TenantID: testTenant, Kind: entity.KindContact, EntityID: "canon-b",
		System: "S1", ExternalID: mapped.ExternalID,
	}))

	f.clock.Advance(time.Minute)
	result, err := f.sched.Sweep(ctx, testTenant)
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 3, result.Enqueued)
	assert.Equal(t, []string{sorName, "S1"}, result.Sources, "push-only adapters are not read")
	assert.Empty(t, result.FailedSources)

	ops := f.queue.Withdraw(10)
	require.Len(t, ops, 3)
	byKey := make(map[string]*queue.Operation)
	for _, op := range ops {
		byKey[op.Key().ID] = op
	}

	push := byKey[local.EntityID]
	require.NotNil(t, push)
	assert.Equal(t, queue.DirectionPush, push.Direction)
	assert.Equal(t, sorName, push.TriggeringSystem)

	pull := byKey["canon-b"]
	require.NotNil(t, pull, "mapped external records are addressed by canonical id")
	assert.Equal(t, queue.DirectionPull, pull.Direction)
	assert.Nil(t, pull.ExternalRef)

	ref := byKey["S1:"+unmapped.ExternalID]
	require.NotNil(t, ref, "unmapped external records carry an external reference")
	assert.Empty(t, ref.EntityID)
	assert.Equal(t, &queue.ExternalRef{System: "S1", ExternalID: unmapped.ExternalID}, ref.ExternalRef)

	st := f.tenant(t)
	assert.Equal(t, result.StartedAt, st.Watermarks[sorName])
	assert.Equal(t, result.StartedAt, st.Watermarks["S1"])
	_, hasS2 := st.Watermarks["S2"]
	assert.False(t, hasS2)
	require.NotNil(t, st.LastFullSyncAt)
	assert.Equal(t, result.StartedAt, *st.LastFullSyncAt)

	// nothing changed since the watermark
	result, err = f.sched.Sweep(ctx, testTenant)
	require.NoError(t, err)
	assert.Zero(t, result.Enqueued)
}

func TestScheduler_SweepSkips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(st *status.TenantState) bool
	}{
		{
			name: "sync disabled",
			mutate: func(st *status.TenantState) bool {
				st.SyncEnabled = false
				return true
			},
		},
		{
			name: "tenant paused",
			mutate: func(st *status.TenantState) bool {
				st.Paused = true
				return true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := newFixture(t)
			f.sor.Put(testTenant, contact("a@acme.test"))

			_, err := f.stateSvc.UpdateAtomically(ctx, testTenant, tt.mutate)
			require.NoError(t, err)

			result, err := f.sched.Sweep(ctx, testTenant)
			require.NoError(t, err)
			assert.True(t, result.Skipped)
			assert.Zero(t, f.queue.Depth())
			assert.Zero(t, f.sor.Calls(memory.OpFetchChanged))
			assert.Nil(t, f.tenant(t).LastFullSyncAt)
		})
	}
}

func TestScheduler_UnknownTenant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.sched.Sweep(context.Background(), "nobody")
	assert.ErrorIs(t, err, state.ErrTenantNotFound)
}

func TestScheduler_FailedSourceKeepsWatermark(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.sor.Put(testTenant, contact("a@acme.test"))
	f.s1.Put(testTenant, contact("b@acme.test"))
	f.s1.InjectError(memory.OpFetchChanged, connector.Transient("S1", errors.New("503")))

	f.clock.Advance(time.Minute)
	result, err := f.sched.Sweep(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, result.FailedSources)
	assert.Equal(t, 1, result.Enqueued)

	st := f.tenant(t)
	assert.Equal(t, result.StartedAt, st.Watermarks[sorName])
	_, hasS1 := st.Watermarks["S1"]
	assert.False(t, hasS1, "a failed source keeps its watermark")
	assert.Nil(t, st.LastFullSyncAt)
	assert.False(t, st.AdapterPaused("S1"), "transient errors do not pause")

	// the next sweep re-reads the window
	f.s1.ClearErrors()
	f.clock.Advance(time.Minute)
	result, err = f.sched.Sweep(ctx, testTenant)
	require.NoError(t, err)
	assert.Empty(t, result.FailedSources)
	assert.Equal(t, 1, result.Enqueued)
	assert.NotNil(t, f.tenant(t).LastFullSyncAt)
}

func TestScheduler_ErrorMidStreamKeepsWatermark(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	ctrl := gomock.NewController(t)
	s1 := connectormocks.NewMockAdapter(ctrl)
	s1.EXPECT().Name().Return("S1").AnyTimes()
	s1.EXPECT().FetchChangedSince(gomock.Any(), testTenant, entity.KindContact, time.Time{}).
		Return(iter.Seq2[*entity.Entity, error](func(yield func(*entity.Entity, error) bool) {
			if !yield(&entity.Entity{Kind: entity.KindContact, ExternalID: "s1-17"}, nil) {
				return
			}
			yield(nil, connector.Transient("S1", errors.New("connection reset")))
		}))

	adapters, err := connector.NewRegistry(f.sor, s1, f.s2)
	require.NoError(t, err)
	sched := New(adapters, sorName, f.stateSvc, f.store, f.queue, WithClock(f.clock))

	result, err := sched.Sweep(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, result.FailedSources)
	assert.Equal(t, 1, result.Enqueued, "changes read before the error stay queued")

	ops := f.queue.Withdraw(10)
	require.Len(t, ops, 1)
	require.NotNil(t, ops[0].ExternalRef)
	assert.Equal(t, "s1-17", ops[0].ExternalRef.ExternalID)

	_, hasS1 := f.tenant(t).Watermarks["S1"]
	assert.False(t, hasS1)
}

func TestScheduler_AuthErrorPausesAdapter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.s1.InjectError(memory.OpFetchChanged, connector.Auth("S1", errors.New("401 unauthorized")))

	result, err := f.sched.Sweep(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, result.FailedSources)

	st := f.tenant(t)
	require.True(t, st.AdapterPaused("S1"))
	assert.Contains(t, st.PausedAdapters["S1"], "401")

	calls := f.s1.Calls(memory.OpFetchChanged)
	result, err = f.sched.Sweep(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, []string{sorName}, result.Sources, "paused adapters are not read")
	assert.Equal(t, calls, f.s1.Calls(memory.OpFetchChanged))
	assert.NotNil(t, f.tenant(t).LastFullSyncAt, "all remaining sources succeeded")
}

func TestScheduler_RecoveryLookback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, WithRecoveryLookback(time.Hour))

	// a change older than the persisted watermark, lost with the queue on restart
	lost := contact("lost@acme.test")
	lost.LastModifiedAt = epoch.Add(-30 * time.Minute)
	f.sor.Put(testTenant, lost)
	_, err := state.AdvanceWatermark(ctx, f.stateSvc, testTenant, sorName, epoch)
	require.NoError(t, err)

	result, err := f.sched.Sweep(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Enqueued, "first sweep after start rewinds the watermark")

	f.clock.Advance(time.Minute)
	result, err = f.sched.Sweep(ctx, testTenant)
	require.NoError(t, err)
	assert.Zero(t, result.Enqueued, "later sweeps start at the watermark")
}

func TestScheduler_StateErrors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	stateSvc := statemocks.NewMockTenantStateService(ctrl)

	sor := memory.New(sorName, memory.AsSystemOfRecord())
	adapters, err := connector.NewRegistry(sor)
	require.NoError(t, err)
	sched := New(adapters, sorName, stateSvc, records.NewMemoryStore(), queue.New())

	stateSvc.EXPECT().ListTenants(gomock.Any()).Return(nil, errors.New("disk on fire"))
	err = sched.Start(context.Background())
	assert.ErrorContains(t, err, "failed to list tenants")

	stateSvc.EXPECT().GetTenant(gomock.Any(), testTenant).Return(&status.TenantState{
		TenantID:    testTenant,
		SyncEnabled: true,
	}, nil)
	stateSvc.EXPECT().UpdateAtomically(gomock.Any(), testTenant, gomock.Any()).
		Return(false, errors.New("disk on fire"))

	result, err := sched.Sweep(context.Background(), testTenant)
	require.NoError(t, err)
	assert.Equal(t, []string{sorName}, result.FailedSources)
}

func TestScheduler_Loop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.sor.Put(testTenant, contact("a@acme.test"))

	done := make(chan error, 1)
	go func() { done <- f.sched.Start(ctx) }()

	// the first sweep runs right away, then the loop waits for the interval
	require.True(t, f.clock.WaitForTimers(1, 5*time.Second))
	assert.Equal(t, 1, f.queue.Depth())

	f.clock.Advance(time.Second)
	f.sor.Put(testTenant, contact("b@acme.test"))
	f.clock.Advance(time.Minute)
	require.True(t, f.clock.WaitForTimers(1, 5*time.Second))
	require.Eventually(t, func() bool { return f.queue.Depth() == 2 }, 5*time.Second, 10*time.Millisecond)

	// loops of tenants created later are started on demand
	_, err := f.stateSvc.UpsertTenant(ctx, config.TenantConfig{
		TenantID: "globex", ConflictPolicy: "field-merge", SyncIntervalSeconds: 600,
	}, status.CreationTypeAPI)
	require.NoError(t, err)
	f.sor.Put("globex", contact("g@globex.test"))
	require.NoError(t, f.sched.EnsureTenant("globex"))
	require.NoError(t, f.sched.EnsureTenant("globex"))
	require.True(t, f.clock.WaitForTimers(2, 5*time.Second))
	require.Eventually(t, func() bool { return f.queue.TenantDepth("globex") == 1 }, 5*time.Second, 10*time.Millisecond)

	// deleting the tenant ends its loop at the next tick
	require.NoError(t, f.stateSvc.DeleteTenant(ctx, testTenant))
	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		f.sched.mu.Lock()
		defer f.sched.mu.Unlock()
		return !f.sched.loops[testTenant] && f.sched.loops["globex"]
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.sched.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.ErrorIs(t, f.sched.EnsureTenant(testTenant), ErrNotRunning)
}
