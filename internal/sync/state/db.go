package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/status"
)

const tenantColumns = `tenant_id, sync_enabled, adapters, conflict_policy, sync_interval_seconds,
	last_full_sync_at, paused, paused_adapters, watermarks, creation_type, updated_at`

const upsertTenantSQL = `INSERT INTO tenant_sync_configs (` + tenantColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (tenant_id) DO UPDATE SET
	sync_enabled = EXCLUDED.sync_enabled,
	adapters = EXCLUDED.adapters,
	conflict_policy = EXCLUDED.conflict_policy,
	sync_interval_seconds = EXCLUDED.sync_interval_seconds,
	last_full_sync_at = EXCLUDED.last_full_sync_at,
	paused = EXCLUDED.paused,
	paused_adapters = EXCLUDED.paused_adapters,
	watermarks = EXCLUDED.watermarks,
	creation_type = EXCLUDED.creation_type,
	updated_at = EXCLUDED.updated_at`

type dbStateService struct {
	pool *pgxpool.Pool

	// paused mirrors the paused column so IsPaused never touches the database
	pausedMu sync.RWMutex
	paused   map[string]bool
}

// NewDBStateService creates a new database-backed tenant state service
func NewDBStateService(pool *pgxpool.Pool) TenantStateService {
	return &dbStateService{
		pool:   pool,
		paused: make(map[string]bool),
	}
}

func (d *dbStateService) Initialize(ctx context.Context, tenants []config.TenantConfig) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := listTenants(ctx, tx, " FOR UPDATE")
	if err != nil {
		return fmt.Errorf("failed to load tenants: %w", err)
	}

	upserts, deletes := reconcile(existing, tenants, time.Now().UTC())
	for _, st := range upserts {
		if err := saveTenant(ctx, tx, st); err != nil {
			return err
		}
		existing[st.TenantID] = st
	}
	for _, id := range deletes {
		slog.Info("Removing tenant no longer present in configuration", "tenant", id)
		if _, err := tx.Exec(ctx, `DELETE FROM tenant_sync_configs WHERE tenant_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete tenant %s: %w", id, err)
		}
		delete(existing, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	d.pausedMu.Lock()
	clear(d.paused)
	for id, st := range existing {
		d.paused[id] = st.Paused
	}
	d.pausedMu.Unlock()
	return nil
}

func (d *dbStateService) ListTenants(ctx context.Context) ([]*status.TenantState, error) {
	states, err := listTenants(ctx, d.pool, "")
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		d.remember(st)
	}
	return sortedStates(states), nil
}

func (d *dbStateService) GetTenant(ctx context.Context, tenantID string) (*status.TenantState, error) {
	st, err := getTenant(ctx, d.pool, tenantID, "")
	if err != nil {
		return nil, err
	}
	d.remember(st)
	return st, nil
}

func (d *dbStateService) UpsertTenant(
	ctx context.Context,
	tenant config.TenantConfig,
	creation status.CreationType,
) (*status.TenantState, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	st, err := getTenant(ctx, tx, tenant.TenantID, " FOR UPDATE")
	switch {
	case errors.Is(err, ErrTenantNotFound):
		st = newTenantState(tenant, creation, now)
	case err != nil:
		return nil, err
	default:
		applyConfig(st, tenant, creation, now)
	}

	if err := saveTenant(ctx, tx, st); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	d.remember(st)
	return st.Clone(), nil
}

func (d *dbStateService) DeleteTenant(ctx context.Context, tenantID string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM tenant_sync_configs WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}

	d.pausedMu.Lock()
	delete(d.paused, tenantID)
	d.pausedMu.Unlock()
	return nil
}

func (d *dbStateService) UpdateAtomically(
	ctx context.Context,
	tenantID string,
	testAndUpdateFn func(tenant *status.TenantState) bool,
) (bool, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	st, err := getTenant(ctx, tx, tenantID, " FOR UPDATE")
	if err != nil {
		return false, err
	}

	if !testAndUpdateFn(st) {
		return false, nil
	}
	st.UpdatedAt = time.Now().UTC()
	if err := saveTenant(ctx, tx, st); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	d.remember(st)
	return true, nil
}

func (d *dbStateService) IsPaused(tenantID string) bool {
	d.pausedMu.RLock()
	defer d.pausedMu.RUnlock()
	return d.paused[tenantID]
}

func (d *dbStateService) remember(st *status.TenantState) {
	d.pausedMu.Lock()
	d.paused[st.TenantID] = st.Paused
	d.pausedMu.Unlock()
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listTenants(ctx context.Context, q querier, lock string) (map[string]*status.TenantState, error) {
	rows, err := q.Query(ctx, `SELECT `+tenantColumns+` FROM tenant_sync_configs`+lock)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]*status.TenantState)
	for rows.Next() {
		st, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		result[st.TenantID] = st
	}
	return result, rows.Err()
}

func getTenant(ctx context.Context, q querier, tenantID, lock string) (*status.TenantState, error) {
	row := q.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenant_sync_configs WHERE tenant_id = $1`+lock, tenantID)
	st, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return st, nil
}

func scanTenant(row pgx.Row) (*status.TenantState, error) {
	var (
		st                                   status.TenantState
		adapters, pausedAdapters, watermarks []byte
		creationType                         string
	)
	err := row.Scan(
		&st.TenantID,
		&st.SyncEnabled,
		&adapters,
		&st.ConflictPolicy,
		&st.SyncIntervalSeconds,
		&st.LastFullSyncAt,
		&st.Paused,
		&pausedAdapters,
		&watermarks,
		&creationType,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.CreationType = status.CreationType(creationType)

	if err := json.Unmarshal(adapters, &st.Adapters); err != nil {
		return nil, fmt.Errorf("failed to decode adapters of tenant %s: %w", st.TenantID, err)
	}
	if err := json.Unmarshal(pausedAdapters, &st.PausedAdapters); err != nil {
		return nil, fmt.Errorf("failed to decode paused adapters of tenant %s: %w", st.TenantID, err)
	}
	if err := json.Unmarshal(watermarks, &st.Watermarks); err != nil {
		return nil, fmt.Errorf("failed to decode watermarks of tenant %s: %w", st.TenantID, err)
	}
	return &st, nil
}

func saveTenant(ctx context.Context, tx pgx.Tx, st *status.TenantState) error {
	adapters, err := json.Marshal(st.Adapters)
	if err != nil {
		return err
	}
	pausedAdapters, err := json.Marshal(nonNilMap(st.PausedAdapters))
	if err != nil {
		return err
	}
	watermarks, err := json.Marshal(nonNilMap(st.Watermarks))
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, upsertTenantSQL,
		st.TenantID,
		st.SyncEnabled,
		adapters,
		st.ConflictPolicy,
		st.SyncIntervalSeconds,
		st.LastFullSyncAt,
		st.Paused,
		pausedAdapters,
		watermarks,
		string(st.CreationType),
		st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant %s: %w", st.TenantID, err)
	}
	return nil
}

func nonNilMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
