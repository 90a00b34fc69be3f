// Package entity defines the canonical records moved by the sync engine:
// contacts, opportunities and campaigns, together with the mapping rows that
// bind them to external systems and the audit records produced when two
// systems disagree.
package entity

import (
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Kind identifies the type of a canonical entity
type Kind string

const (
	// KindContact is a CRM contact
	KindContact Kind = "contact"

	// KindOpportunity is a pipeline opportunity
	KindOpportunity Kind = "opportunity"

	// KindCampaign is a marketing campaign
	KindCampaign Kind = "campaign"
)

// Kinds lists every supported kind in a stable order
var Kinds = []Kind{KindContact, KindOpportunity, KindCampaign}

// ParseKind converts a string to a Kind, rejecting unknown values
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := schemas[k]; !ok {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// Fields holds the typed values of an entity keyed by field name.
// Iteration in schema order is available through Keys.
type Fields map[string]any

// Entity is the canonical representation of a record shared between systems
type Entity struct {
	// EntityID is the canonical identifier assigned by the system-of-record
	EntityID string `json:"entityId"`

	// ExternalID is the native identifier in the system the entity was read from.
	// For the system-of-record it equals EntityID.
	ExternalID string `json:"externalId,omitempty"`

	TenantID string `json:"tenantId"`
	Kind     Kind   `json:"kind"`
	Fields   Fields `json:"fields"`

	// FieldModifiedAt optionally records when each field last changed
	FieldModifiedAt map[string]time.Time `json:"fieldModifiedAt,omitempty"`

	// Version is a monotonic counter from the entity's source system
	Version int64 `json:"version"`

	SourceSystem   string    `json:"sourceSystem"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`
}

// Clone returns a deep copy of the entity
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	out.Fields = maps.Clone(e.Fields)
	out.FieldModifiedAt = maps.Clone(e.FieldModifiedAt)
	for k, v := range out.Fields {
		if list, ok := v.([]string); ok {
			out.Fields[k] = append([]string(nil), list...)
		}
	}
	return &out
}

// ModifiedAt returns the modification time of a single field, falling back to
// the entity-wide LastModifiedAt when no per-field time is known.
func (e *Entity) ModifiedAt(field string) time.Time {
	if ts, ok := e.FieldModifiedAt[field]; ok && !ts.IsZero() {
		return ts
	}
	return e.LastModifiedAt
}

// SameFields reports whether both entities carry identical field values.
// Nil and absent values are treated as equal.
func SameFields(a, b *Entity) bool {
	if a == nil || b == nil {
		return a == b
	}
	keys := make(map[string]struct{}, len(a.Fields)+len(b.Fields))
	for k := range a.Fields {
		keys[k] = struct{}{}
	}
	for k := range b.Fields {
		keys[k] = struct{}{}
	}
	for k := range keys {
		if !ValuesEqual(a.Fields[k], b.Fields[k]) {
			return false
		}
	}
	return true
}

// ValuesEqual compares two field values, treating numerics of any width and
// string lists of either representation as comparable
func ValuesEqual(a, b any) bool {
	an, aNum := toFloat(a)
	bn, bNum := toFloat(b)
	if aNum && bNum {
		return an == bn
	}
	al, aList := toStringList(a)
	bl, bList := toStringList(b)
	if aList && bList {
		return reflect.DeepEqual(al, bl)
	}
	return reflect.DeepEqual(a, b)
}

// ExternalMapping binds a canonical entity to its identifier in one external system
type ExternalMapping struct {
	TenantID   string `json:"tenantId"`
	Kind       Kind   `json:"kind"`
	EntityID   string `json:"entityId"`
	System     string `json:"system"`
	ExternalID string `json:"externalId"`

	// SourceVersion is the system-of-record version last reconciled with this system
	SourceVersion int64 `json:"sourceVersion"`

	// ExternalVersion is the external system's version last reconciled
	ExternalVersion int64 `json:"externalVersion"`

	CreatedAt time.Time `json:"createdAt"`
	SyncedAt  time.Time `json:"syncedAt"`
}

// ConflictRecord is the audit trail of an automatically resolved conflict.
// Records are append-only.
type ConflictRecord struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Kind      Kind      `json:"kind"`
	EntityID  string    `json:"entityId"`
	System    string    `json:"system"`
	Local     *Entity   `json:"local"`
	Remote    *Entity   `json:"remote"`
	Policy    string    `json:"policy"`
	Winner    *Entity   `json:"winner"`
	CreatedAt time.Time `json:"createdAt"`
}
