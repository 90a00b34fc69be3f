// Package records stores what the sync engine learns while processing
// operations: the mappings between canonical entities and their external
// identifiers, the audit trail of resolved conflicts and the operations that
// were given up.
package records

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/crmsync/internal/entity"
)

var (
	// ErrNotFound is returned when a mapping does not exist
	ErrNotFound = errors.New("mapping not found")

	// ErrDuplicateExternalID is returned when an external record is already
	// mapped to a different canonical entity
	ErrDuplicateExternalID = errors.New("external id is already mapped to another entity")
)

// DefaultRecentLimit bounds listings when the caller passes no limit
const DefaultRecentLimit = 20

// FailureRecord describes an operation that failed permanently
type FailureRecord struct {
	OperationID string      `json:"operationId"`
	TenantID    string      `json:"tenantId"`
	Kind        entity.Kind `json:"kind"`
	EntityID    string      `json:"entityId"`
	Adapter     string      `json:"adapter"`
	Reason      string      `json:"reason"`
	Attempt     int         `json:"attempt"`
	FailedAt    time.Time   `json:"failedAt"`
}

// Store persists mappings, conflict records and failure records
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/stacklok/crmsync/internal/sync/records Store
type Store interface {
	// GetMapping returns the mapping of a canonical entity in one system or ErrNotFound
	GetMapping(ctx context.Context, tenantID string, kind entity.Kind, entityID, system string) (*entity.ExternalMapping, error)

	// FindByExternalID returns the mapping of an external record or ErrNotFound
	FindByExternalID(
		ctx context.Context, tenantID string, kind entity.Kind, system, externalID string,
	) (*entity.ExternalMapping, error)

	// SaveMapping creates or updates a mapping. CreatedAt of an existing mapping is kept.
	// Returns ErrDuplicateExternalID if the external record is mapped to another entity.
	SaveMapping(ctx context.Context, m *entity.ExternalMapping) error

	// AppendConflict adds a conflict record to the audit trail
	AppendConflict(ctx context.Context, rec *entity.ConflictRecord) error

	// RecentConflicts returns the newest conflict records of a tenant, newest first
	RecentConflicts(ctx context.Context, tenantID string, limit int) ([]*entity.ConflictRecord, error)

	// RecordFailure adds a permanent failure
	RecordFailure(ctx context.Context, rec *FailureRecord) error

	// RecentFailures returns the newest failures of a tenant, newest first
	RecentFailures(ctx context.Context, tenantID string, limit int) ([]*FailureRecord, error)

	// CountFailures returns the number of permanent failures recorded for a tenant
	CountFailures(ctx context.Context, tenantID string) (int, error)

	// DeleteTenant removes every mapping of a tenant and returns how many were removed.
	// Conflict and failure records are kept for auditing.
	DeleteTenant(ctx context.Context, tenantID string) (int, error)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}
