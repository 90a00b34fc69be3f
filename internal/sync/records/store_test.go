package records

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/crmsync/internal/entity"
)

func testMapping(tenantID, entityID, system, externalID string) *entity.ExternalMapping {
	return &entity.ExternalMapping{
		TenantID:        tenantID,
		Kind:            entity.KindContact,
		EntityID:        entityID,
		System:          system,
		ExternalID:      externalID,
		SourceVersion:   1,
		ExternalVersion: 1,
	}
}

func testConflict(tenantID string, at time.Time) *entity.ConflictRecord {
	local := &entity.Entity{
		EntityID: "C1", TenantID: tenantID, Kind: entity.KindContact,
		Fields: entity.Fields{"email": "a@x"}, Version: 3, SourceSystem: "ghl",
	}
	remote := local.Clone()
	remote.Fields["email"] = "b@x"
	remote.SourceSystem = "S1"
	return &entity.ConflictRecord{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Kind:      entity.KindContact,
		EntityID:  "C1",
		System:    "S1",
		Local:     local,
		Remote:    remote,
		Policy:    "external-priority",
		Winner:    remote.Clone(),
		CreatedAt: at,
	}
}

// testStoreContract exercises the behaviour every Store shares.
// newStore must return an empty store.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("mapping lookups", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.GetMapping(ctx, "acme", entity.KindContact, "C1", "S1")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, store.SaveMapping(ctx, testMapping("acme", "C1", "S1", "s1-100")))

		byEntity, err := store.GetMapping(ctx, "acme", entity.KindContact, "C1", "S1")
		require.NoError(t, err)
		assert.Equal(t, "s1-100", byEntity.ExternalID)
		assert.False(t, byEntity.CreatedAt.IsZero())

		byExternal, err := store.FindByExternalID(ctx, "acme", entity.KindContact, "S1", "s1-100")
		require.NoError(t, err)
		assert.Equal(t, "C1", byExternal.EntityID)

		_, err = store.FindByExternalID(ctx, "other", entity.KindContact, "S1", "s1-100")
		assert.ErrorIs(t, err, ErrNotFound, "mappings are tenant scoped")
		_, err = store.FindByExternalID(ctx, "acme", entity.KindOpportunity, "S1", "s1-100")
		assert.ErrorIs(t, err, ErrNotFound, "mappings are kind scoped")
	})

	t.Run("one mapping per entity and system", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := testMapping("acme", "C1", "S1", "s1-100")
		first.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.SaveMapping(ctx, first))

		update := testMapping("acme", "C1", "S1", "s1-100")
		update.SourceVersion = 4
		update.ExternalVersion = 7
		update.CreatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.SaveMapping(ctx, update))

		got, err := store.GetMapping(ctx, "acme", entity.KindContact, "C1", "S1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), got.SourceVersion)
		assert.Equal(t, int64(7), got.ExternalVersion)
		assert.True(t, first.CreatedAt.Equal(got.CreatedAt), "creation time is kept")

		err = store.SaveMapping(ctx, testMapping("acme", "C2", "S1", "s1-100"))
		assert.ErrorIs(t, err, ErrDuplicateExternalID)

		// the same external id in another system is a different record
		require.NoError(t, store.SaveMapping(ctx, testMapping("acme", "C2", "S2", "s1-100")))
	})

	t.Run("invalid mappings are rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		assert.Error(t, store.SaveMapping(ctx, testMapping("acme", "", "S1", "x")))
		assert.Error(t, store.SaveMapping(ctx, testMapping("acme", "C1", "S1", "")))
		bad := testMapping("acme", "C1", "S1", "x")
		bad.Kind = "invoice"
		assert.Error(t, store.SaveMapping(ctx, bad))
	})

	t.Run("conflicts newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
		for i := range 3 {
			require.NoError(t, store.AppendConflict(ctx, testConflict("acme", base.Add(time.Duration(i)*time.Minute))))
		}
		require.NoError(t, store.AppendConflict(ctx, testConflict("globex", base)))

		recent, err := store.RecentConflicts(ctx, "acme", 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.True(t, recent[0].CreatedAt.After(recent[1].CreatedAt))
		assert.Equal(t, "b@x", recent[0].Winner.Fields["email"])
		assert.Equal(t, "external-priority", recent[0].Policy)

		none, err := store.RecentConflicts(ctx, "nobody", 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("failures", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := range 3 {
			require.NoError(t, store.RecordFailure(ctx, &FailureRecord{
				OperationID: fmt.Sprintf("op-%d", i),
				TenantID:    "acme",
				Kind:        entity.KindContact,
				EntityID:    "C1",
				Adapter:     "S1",
				Reason:      "validation failed",
				Attempt:     1,
				FailedAt:    time.Date(2026, 4, 1, 9, i, 0, 0, time.UTC),
			}))
		}

		count, err := store.CountFailures(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		recent, err := store.RecentFailures(ctx, "acme", 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "op-2", recent[0].OperationID)

		count, err = store.CountFailures(ctx, "globex")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("delete tenant keeps audit trail", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.SaveMapping(ctx, testMapping("acme", "C1", "S1", "s1-1")))
		require.NoError(t, store.SaveMapping(ctx, testMapping("acme", "C1", "S2", "s2-1")))
		require.NoError(t, store.SaveMapping(ctx, testMapping("globex", "C1", "S1", "s1-1")))
		require.NoError(t, store.AppendConflict(ctx, testConflict("acme", time.Now().UTC())))

		n, err := store.DeleteTenant(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = store.GetMapping(ctx, "acme", entity.KindContact, "C1", "S1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetMapping(ctx, "globex", entity.KindContact, "C1", "S1")
		assert.NoError(t, err)

		conflicts, err := store.RecentConflicts(ctx, "acme", 0)
		require.NoError(t, err)
		assert.Len(t, conflicts, 1)

		n, err = store.DeleteTenant(ctx, "nobody")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	testStoreContract(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_RetentionCap(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	for i := range maxRetained + 5 {
		require.NoError(t, store.RecordFailure(ctx, &FailureRecord{OperationID: fmt.Sprint(i), TenantID: "acme"}))
	}

	count, err := store.CountFailures(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, maxRetained+5, count, "count includes evicted records")

	recent, err := store.RecentFailures(ctx, "acme", maxRetained*2)
	require.NoError(t, err)
	assert.Len(t, recent, maxRetained)
	assert.Equal(t, fmt.Sprint(maxRetained+4), recent[0].OperationID)
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	testStoreContract(t, func(t *testing.T) Store {
		t.Helper()
		store, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestFileStore_Reload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveMapping(ctx, testMapping("acme", "C1", "S1", "s1-100")))
	require.NoError(t, store.RecordFailure(ctx, &FailureRecord{OperationID: "op", TenantID: "acme"}))

	_, err = NewFileStore(dir)
	assert.ErrorContains(t, err, "in use by another process")
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	m, err := reopened.FindByExternalID(ctx, "acme", entity.KindContact, "S1", "s1-100")
	require.NoError(t, err)
	assert.Equal(t, "C1", m.EntityID)

	count, err := reopened.CountFailures(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
