package queue

import (
	"fmt"
	"time"

	"github.com/stacklok/crmsync/internal/entity"
)

// Direction tells the orchestrator which side triggered an operation
type Direction string

const (
	// DirectionPull means the change originated in an external system
	DirectionPull Direction = "pull"

	// DirectionPush means the change originated in the system-of-record
	DirectionPush Direction = "push"
)

// MultiSource is the triggering system of an operation coalesced from
// notifications of more than one system
const MultiSource = "*multiple*"

// Outcome is the terminal state of one processing attempt
type Outcome string

const (
	// OutcomeApplied means changes were propagated without a conflict, or there was nothing to do
	OutcomeApplied Outcome = "applied"

	// OutcomeConflictResolved means both sides changed and the resolved entity was written
	OutcomeConflictResolved Outcome = "conflicted-resolved"

	// OutcomeFailedRetryable means the operation will be attempted again
	OutcomeFailedRetryable Outcome = "failed-retryable"

	// OutcomeFailedPermanent means the operation was given up and recorded as a failure
	OutcomeFailedPermanent Outcome = "failed-permanent"
)

// ExternalRef identifies a record in an external system that has no
// canonical id yet
type ExternalRef struct {
	System     string `json:"system"`
	ExternalID string `json:"externalId"`
}

// Operation is one unit of sync work.
// Only Attempt and NotBefore change after creation.
type Operation struct {
	ID       string      `json:"id"`
	TenantID string      `json:"tenantId"`
	Kind     entity.Kind `json:"kind"`

	// EntityID is the canonical id; empty when ExternalRef is set
	EntityID    string       `json:"entityId,omitempty"`
	ExternalRef *ExternalRef `json:"externalRef,omitempty"`

	Direction        Direction `json:"direction"`
	TriggeringSystem string    `json:"triggeringSystem"`
	EnqueuedAt       time.Time `json:"enqueuedAt"`

	// NotBefore delays a retried operation
	NotBefore time.Time `json:"notBefore,omitzero"`
	Attempt   int       `json:"attempt"`
}

// Key identifies the entity an operation is about
type Key struct {
	TenantID string
	Kind     entity.Kind
	ID       string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TenantID, k.Kind, k.ID)
}

// Key returns the coalescing key of the operation
func (o *Operation) Key() Key {
	if o.EntityID == "" && o.ExternalRef != nil {
		return Key{TenantID: o.TenantID, Kind: o.Kind, ID: o.ExternalRef.System + ":" + o.ExternalRef.ExternalID}
	}
	return Key{TenantID: o.TenantID, Kind: o.Kind, ID: o.EntityID}
}

// Clone returns a copy that shares nothing with o
func (o *Operation) Clone() *Operation {
	out := *o
	if o.ExternalRef != nil {
		ref := *o.ExternalRef
		out.ExternalRef = &ref
	}
	return &out
}

// Validate checks the operation is addressable
func (o *Operation) Validate() error {
	if o.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if _, err := entity.ParseKind(string(o.Kind)); err != nil {
		return err
	}
	if o.EntityID == "" && (o.ExternalRef == nil || o.ExternalRef.System == "" || o.ExternalRef.ExternalID == "") {
		return fmt.Errorf("either an entity id or an external reference is required")
	}
	switch o.Direction {
	case DirectionPull, DirectionPush:
	default:
		return fmt.Errorf("invalid direction %q", o.Direction)
	}
	return nil
}

// absorb merges a newer notification for the same key into o
func (o *Operation) absorb(other *Operation) {
	if other.EnqueuedAt.Before(o.EnqueuedAt) {
		o.EnqueuedAt = other.EnqueuedAt
	}
	if other.TriggeringSystem != o.TriggeringSystem {
		o.TriggeringSystem = MultiSource
	}
	if other.Direction != o.Direction {
		o.Direction = DirectionPull
	}
	if o.ExternalRef == nil && other.ExternalRef != nil {
		ref := *other.ExternalRef
		o.ExternalRef = &ref
	}
}
