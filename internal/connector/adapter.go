// Package connector defines the contract every external system integration
// implements, the error taxonomy the sync engine uses to decide between
// retrying, pausing and giving up, and a registry of configured adapters.
package connector

import (
	"context"
	"iter"
	"time"

	"github.com/stacklok/crmsync/internal/entity"
)

// Adapter moves canonical entities to and from one external system
//
//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks github.com/stacklok/crmsync/internal/connector Adapter
type Adapter interface {
	// Name returns the system name this adapter is registered under
	Name() string

	// Fetch returns the current state of a record by its identifier in this system.
	// Returns ErrNotFound if the record does not exist.
	Fetch(ctx context.Context, tenantID string, kind entity.Kind, externalID string) (*entity.Entity, error)

	// FetchChangedSince lazily yields every record modified strictly after the watermark.
	// The sequence is finite and can be restarted from any watermark.
	FetchChangedSince(
		ctx context.Context, tenantID string, kind entity.Kind, watermark time.Time,
	) iter.Seq2[*entity.Entity, error]

	// Upsert writes the entity to this system and returns the resulting mapping.
	// Calling Upsert twice with the same EntityID and unchanged fields must not
	// create a second record and must return the same mapping.
	Upsert(ctx context.Context, tenantID string, e *entity.Entity) (*entity.ExternalMapping, error)
}
