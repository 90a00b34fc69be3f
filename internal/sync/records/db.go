package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/crmsync/internal/entity"
)

// pgUniqueViolation is the SQLSTATE of a unique constraint violation
const pgUniqueViolation = "23505"

const mappingColumns = `tenant_id, kind, entity_id, system, external_id,
	source_version, external_version, created_at, synced_at`

type dbStore struct {
	pool *pgxpool.Pool
}

// NewDBStore creates a Store backed by PostgreSQL
func NewDBStore(pool *pgxpool.Pool) Store {
	return &dbStore{pool: pool}
}

func (s *dbStore) GetMapping(
	ctx context.Context, tenantID string, kind entity.Kind, entityID, system string,
) (*entity.ExternalMapping, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+mappingColumns+` FROM external_mappings
		WHERE tenant_id = $1 AND kind = $2 AND entity_id = $3 AND system = $4`,
		tenantID, string(kind), entityID, system)
	return scanMapping(row)
}

func (s *dbStore) FindByExternalID(
	ctx context.Context, tenantID string, kind entity.Kind, system, externalID string,
) (*entity.ExternalMapping, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+mappingColumns+` FROM external_mappings
		WHERE tenant_id = $1 AND kind = $2 AND system = $3 AND external_id = $4`,
		tenantID, string(kind), system, externalID)
	return scanMapping(row)
}

func (s *dbStore) SaveMapping(ctx context.Context, m *entity.ExternalMapping) error {
	if err := validateMapping(m); err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt, syncedAt := m.CreatedAt, m.SyncedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if syncedAt.IsZero() {
		syncedAt = now
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO external_mappings (`+mappingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, kind, entity_id, system) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			source_version = EXCLUDED.source_version,
			external_version = EXCLUDED.external_version,
			synced_at = EXCLUDED.synced_at`,
		m.TenantID, string(m.Kind), m.EntityID, m.System, m.ExternalID,
		m.SourceVersion, m.ExternalVersion, createdAt, syncedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s/%s in %s", ErrDuplicateExternalID, m.Kind, m.ExternalID, m.System)
		}
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	return nil
}

func (s *dbStore) AppendConflict(ctx context.Context, rec *entity.ConflictRecord) error {
	if rec == nil || rec.TenantID == "" {
		return fmt.Errorf("conflict record requires a tenant")
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("invalid conflict record id: %w", err)
	}

	local, err := json.Marshal(rec.Local)
	if err != nil {
		return err
	}
	remote, err := json.Marshal(rec.Remote)
	if err != nil {
		return err
	}
	winner, err := json.Marshal(rec.Winner)
	if err != nil {
		return err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO conflict_records
		(id, tenant_id, kind, entity_id, system, local, remote, policy, winner, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, rec.TenantID, string(rec.Kind), rec.EntityID, rec.System,
		local, remote, rec.Policy, winner, createdAt)
	if err != nil {
		return fmt.Errorf("failed to append conflict record: %w", err)
	}
	return nil
}

func (s *dbStore) RecentConflicts(ctx context.Context, tenantID string, limit int) ([]*entity.ConflictRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, tenant_id, kind, entity_id, system, local, remote, policy, winner, created_at
		FROM conflict_records WHERE tenant_id = $1
		ORDER BY created_at DESC, id LIMIT $2`, tenantID, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.ConflictRecord
	for rows.Next() {
		var (
			rec                   entity.ConflictRecord
			id                    uuid.UUID
			kind                  string
			local, remote, winner []byte
		)
		if err := rows.Scan(&id, &rec.TenantID, &kind, &rec.EntityID, &rec.System,
			&local, &remote, &rec.Policy, &winner, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.ID = id.String()
		rec.Kind = entity.Kind(kind)
		for _, part := range []struct {
			data []byte
			dst  **entity.Entity
		}{{local, &rec.Local}, {remote, &rec.Remote}, {winner, &rec.Winner}} {
			if err := json.Unmarshal(part.data, part.dst); err != nil {
				return nil, fmt.Errorf("failed to decode conflict record %s: %w", rec.ID, err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *dbStore) RecordFailure(ctx context.Context, rec *FailureRecord) error {
	if rec == nil || rec.TenantID == "" {
		return fmt.Errorf("failure record requires a tenant")
	}
	failedAt := rec.FailedAt
	if failedAt.IsZero() {
		failedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO sync_failures
		(operation_id, tenant_id, kind, entity_id, adapter, reason, attempt, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.OperationID, rec.TenantID, string(rec.Kind), rec.EntityID, rec.Adapter,
		rec.Reason, rec.Attempt, failedAt)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

func (s *dbStore) RecentFailures(ctx context.Context, tenantID string, limit int) ([]*FailureRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT operation_id, tenant_id, kind, entity_id, adapter, reason, attempt, failed_at
		FROM sync_failures WHERE tenant_id = $1
		ORDER BY failed_at DESC LIMIT $2`, tenantID, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FailureRecord
	for rows.Next() {
		var (
			rec  FailureRecord
			kind string
		)
		if err := rows.Scan(&rec.OperationID, &rec.TenantID, &kind, &rec.EntityID, &rec.Adapter,
			&rec.Reason, &rec.Attempt, &rec.FailedAt); err != nil {
			return nil, err
		}
		rec.Kind = entity.Kind(kind)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *dbStore) CountFailures(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM sync_failures WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

func (s *dbStore) DeleteTenant(ctx context.Context, tenantID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM external_mappings WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete mappings of tenant %s: %w", tenantID, err)
	}
	return int(tag.RowsAffected()), nil
}

func scanMapping(row pgx.Row) (*entity.ExternalMapping, error) {
	var (
		m    entity.ExternalMapping
		kind string
	)
	err := row.Scan(&m.TenantID, &kind, &m.EntityID, &m.System, &m.ExternalID,
		&m.SourceVersion, &m.ExternalVersion, &m.CreatedAt, &m.SyncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.Kind = entity.Kind(kind)
	return &m, nil
}
