// Package memory provides a thread-safe in-memory connector.
//
// It backs the demo system-of-record and stands in for external systems in
// tests, where errors can be injected per operation.
package memory

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/crmsync/internal/clock"
	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/entity"
)

// Op names an adapter operation for error injection and call counting
type Op string

const (
	// OpFetch is Adapter.Fetch
	OpFetch Op = "fetch"
	// OpFetchChanged is Adapter.FetchChangedSince
	OpFetchChanged Op = "fetchChangedSince"
	// OpUpsert is Adapter.Upsert
	OpUpsert Op = "upsert"
)

type recordKey struct {
	tenantID   string
	kind       entity.Kind
	externalID string
}

type entityKey struct {
	tenantID string
	kind     entity.Kind
	entityID string
}

// Adapter is an in-memory connector.Adapter
type Adapter struct {
	name      string
	canonical bool
	clock     clock.Clock

	mu       sync.Mutex
	records  map[recordKey]*entity.Entity
	byEntity map[entityKey]string
	errs     map[Op]error
	calls    map[Op]int
}

// Option configures an Adapter
type Option func(*Adapter)

// WithClock sets the clock used to stamp modifications
func WithClock(c clock.Clock) Option {
	return func(a *Adapter) {
		a.clock = c
	}
}

// AsSystemOfRecord makes the adapter assign canonical ids: a record's
// identifier in this system is its EntityID.
func AsSystemOfRecord() Option {
	return func(a *Adapter) {
		a.canonical = true
	}
}

// New creates an empty in-memory adapter
func New(name string, opts ...Option) *Adapter {
	a := &Adapter{
		name:     name,
		clock:    clock.Real{},
		records:  make(map[recordKey]*entity.Entity),
		byEntity: make(map[entityKey]string),
		errs:     make(map[Op]error),
		calls:    make(map[Op]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the system name
func (a *Adapter) Name() string {
	return a.name
}

// Fetch returns a copy of the stored record
func (a *Adapter) Fetch(_ context.Context, tenantID string, kind entity.Kind, externalID string) (*entity.Entity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.enter(OpFetch); err != nil {
		return nil, err
	}
	rec, ok := a.records[recordKey{tenantID, kind, externalID}]
	if !ok {
		return nil, fmt.Errorf("%s %s/%s: %w", a.name, kind, externalID, connector.ErrNotFound)
	}
	return rec.Clone(), nil
}

// FetchChangedSince yields records modified strictly after watermark, oldest first.
// The set is snapshotted when iteration starts.
func (a *Adapter) FetchChangedSince(
	_ context.Context, tenantID string, kind entity.Kind, watermark time.Time,
) iter.Seq2[*entity.Entity, error] {
	return func(yield func(*entity.Entity, error) bool) {
		a.mu.Lock()
		if err := a.enter(OpFetchChanged); err != nil {
			a.mu.Unlock()
			yield(nil, err)
			return
		}
		var changed []*entity.Entity
		for key, rec := range a.records {
			if key.tenantID == tenantID && key.kind == kind && rec.LastModifiedAt.After(watermark) {
				changed = append(changed, rec.Clone())
			}
		}
		a.mu.Unlock()

		slices.SortFunc(changed, func(x, y *entity.Entity) int {
			if c := x.LastModifiedAt.Compare(y.LastModifiedAt); c != 0 {
				return c
			}
			switch {
			case x.ExternalID < y.ExternalID:
				return -1
			case x.ExternalID > y.ExternalID:
				return 1
			}
			return 0
		})
		for _, rec := range changed {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Upsert creates or updates the record for e. The existing record is found by
// e.ExternalID or by the canonical EntityID. Unchanged fields leave the record
// and its version untouched.
func (a *Adapter) Upsert(_ context.Context, tenantID string, e *entity.Entity) (*entity.ExternalMapping, error) {
	if e == nil {
		return nil, connector.Permanent(a.name, fmt.Errorf("entity cannot be nil"))
	}
	if err := entity.Validate(e); err != nil {
		return nil, connector.Permanent(a.name, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.enter(OpUpsert); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	rec := a.lookup(tenantID, e)
	if rec == nil {
		rec = a.create(tenantID, e, now)
		return a.mappingFor(rec, now), nil
	}

	if rec.EntityID == "" && e.EntityID != "" {
		rec.EntityID = e.EntityID
		a.byEntity[entityKey{tenantID, rec.Kind, e.EntityID}] = rec.ExternalID
	}
	if !entity.SameFields(rec, e) {
		a.applyFields(rec, e.Fields, now)
	}
	return a.mappingFor(rec, now), nil
}

// Put writes a record directly, as if edited by a user of this system.
// Zero Version and LastModifiedAt are filled from the stored record and the clock.
// Returns the stored copy.
func (a *Adapter) Put(tenantID string, e *entity.Entity) *entity.Entity {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := e.Clone()
	rec.TenantID = tenantID
	rec.SourceSystem = a.name
	if rec.ExternalID == "" {
		switch {
		case a.canonical && rec.EntityID != "":
			rec.ExternalID = rec.EntityID
		case a.canonical:
			rec.ExternalID = uuid.NewString()
			rec.EntityID = rec.ExternalID
		default:
			rec.ExternalID = a.name + "-" + uuid.NewString()
		}
	}
	key := recordKey{tenantID, rec.Kind, rec.ExternalID}
	prev := a.records[key]
	if rec.Version == 0 {
		rec.Version = 1
		if prev != nil {
			rec.Version = prev.Version + 1
		}
	}
	if rec.LastModifiedAt.IsZero() {
		rec.LastModifiedAt = a.clock.Now()
	}
	if rec.EntityID == "" && prev != nil {
		rec.EntityID = prev.EntityID
	}
	a.records[key] = rec
	if rec.EntityID != "" {
		a.byEntity[entityKey{tenantID, rec.Kind, rec.EntityID}] = rec.ExternalID
	}
	return rec.Clone()
}

// Get returns the stored record by its canonical id
func (a *Adapter) Get(tenantID string, kind entity.Kind, entityID string) (*entity.Entity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	externalID, ok := a.byEntity[entityKey{tenantID, kind, entityID}]
	if !ok {
		return nil, false
	}
	return a.records[recordKey{tenantID, kind, externalID}].Clone(), true
}

// Count returns the number of records stored for a tenant and kind
func (a *Adapter) Count(tenantID string, kind entity.Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for key := range a.records {
		if key.tenantID == tenantID && key.kind == kind {
			n++
		}
	}
	return n
}

// InjectError makes every subsequent call of op fail with err until cleared
func (a *Adapter) InjectError(op Op, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs[op] = err
}

// ClearErrors removes all injected errors
func (a *Adapter) ClearErrors() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.errs)
}

// Calls returns how many times op was invoked
func (a *Adapter) Calls(op Op) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// enter counts the call and returns the injected error. Caller must hold mu.
func (a *Adapter) enter(op Op) error {
	a.calls[op]++
	return a.errs[op]
}

func (a *Adapter) lookup(tenantID string, e *entity.Entity) *entity.Entity {
	if e.ExternalID != "" {
		if rec, ok := a.records[recordKey{tenantID, e.Kind, e.ExternalID}]; ok {
			return rec
		}
	}
	if e.EntityID != "" {
		if externalID, ok := a.byEntity[entityKey{tenantID, e.Kind, e.EntityID}]; ok {
			return a.records[recordKey{tenantID, e.Kind, externalID}]
		}
	}
	return nil
}

func (a *Adapter) create(tenantID string, e *entity.Entity, now time.Time) *entity.Entity {
	rec := &entity.Entity{
		EntityID:       e.EntityID,
		TenantID:       tenantID,
		Kind:           e.Kind,
		Version:        1,
		SourceSystem:   a.name,
		LastModifiedAt: now,
	}
	switch {
	case a.canonical && e.EntityID != "":
		rec.ExternalID = e.EntityID
	case a.canonical:
		rec.ExternalID = uuid.NewString()
		rec.EntityID = rec.ExternalID
	default:
		rec.ExternalID = a.name + "-" + uuid.NewString()
	}
	rec.Fields = e.Clone().Fields
	if rec.Fields == nil {
		rec.Fields = entity.Fields{}
	}
	rec.FieldModifiedAt = make(map[string]time.Time, len(rec.Fields))
	for name := range rec.Fields {
		rec.FieldModifiedAt[name] = now
	}

	a.records[recordKey{tenantID, rec.Kind, rec.ExternalID}] = rec
	if rec.EntityID != "" {
		a.byEntity[entityKey{tenantID, rec.Kind, rec.EntityID}] = rec.ExternalID
	}
	return rec
}

func (a *Adapter) applyFields(rec *entity.Entity, fields entity.Fields, now time.Time) {
	if rec.FieldModifiedAt == nil {
		rec.FieldModifiedAt = make(map[string]time.Time)
	}
	next := (&entity.Entity{Fields: fields}).Clone().Fields
	for name, value := range next {
		old, had := rec.Fields[name]
		if !had || !entity.ValuesEqual(old, value) {
			rec.FieldModifiedAt[name] = now
		}
	}
	for name := range rec.Fields {
		if _, keep := next[name]; !keep {
			rec.FieldModifiedAt[name] = now
		}
	}
	rec.Fields = next
	rec.Version++
	rec.LastModifiedAt = now
}

func (a *Adapter) mappingFor(rec *entity.Entity, now time.Time) *entity.ExternalMapping {
	return &entity.ExternalMapping{
		TenantID:        rec.TenantID,
		Kind:            rec.Kind,
		EntityID:        rec.EntityID,
		System:          a.name,
		ExternalID:      rec.ExternalID,
		ExternalVersion: rec.Version,
		SyncedAt:        now,
	}
}
