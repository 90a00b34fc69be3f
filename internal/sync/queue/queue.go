// Package queue implements the in-memory sync work queue.
//
// Operations are withdrawn oldest first. An operation enqueued while another
// one for the same entity is still queued and unclaimed is coalesced into it,
// and an entity with an operation in flight is never handed out twice.
package queue

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/crmsync/internal/clock"
	"github.com/stacklok/crmsync/internal/entity"
)

type parkKey struct {
	tenantID string
	adapter  string
}

// kindKey groups the operations of one tenant and kind
type kindKey struct {
	tenantID string
	kind     entity.Kind
}

type queued struct {
	op  *Operation
	seq uint64
}

// Queue is a coalescing FIFO of sync operations. It is safe for concurrent use.
type Queue struct {
	clock  clock.Clock
	paused func(tenantID string) bool

	mu       sync.Mutex
	seq      uint64
	order    []*queued
	pending  map[Key]*queued
	inFlight map[Key]*Operation
	parked   map[parkKey][]*Operation

	// aliases maps the key of an in-flight external operation to the
	// canonical key it resolved to; both stay busy until it is released
	aliases map[Key]Key
	// reserved holds in-flight operations creating a canonical record,
	// creating counts them per tenant and kind
	reserved map[Key]kindKey
	creating map[kindKey]int

	ready chan struct{}
}

// Option configures a Queue
type Option func(*Queue)

// WithClock sets the clock used for enqueue times and retry delays
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithPauseCheck excludes tenants for which paused returns true from withdrawals
func WithPauseCheck(paused func(tenantID string) bool) Option {
	return func(q *Queue) {
		q.paused = paused
	}
}

// New creates an empty queue
func New(opts ...Option) *Queue {
	q := &Queue{
		clock:    clock.Real{},
		paused:   func(string) bool { return false },
		pending:  make(map[Key]*queued),
		inFlight: make(map[Key]*Operation),
		parked:   make(map[parkKey][]*Operation),
		aliases:  make(map[Key]Key),
		reserved: make(map[Key]kindKey),
		creating: make(map[kindKey]int),
		ready:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds op to the queue. When an unclaimed operation for the same
// entity is already queued, op is merged into it and coalesced is true.
// The returned operation is a copy of what is queued.
func (q *Queue) Enqueue(op *Operation) (*Operation, bool) {
	op = op.Clone()
	if op.ID == "" {
		op.ID = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = q.clock.Now()
	}
	queuedOp, coalesced := q.insertLocked(op)
	q.signal()
	return queuedOp.Clone(), coalesced
}

// Withdraw claims up to n due operations, oldest first. Paused tenants,
// entities already in flight and operations waiting out a retry delay are skipped.
// Claimed operations stay in flight until Complete, Requeue or Park.
func (q *Queue) Withdraw(n int) []*Operation {
	if n <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	pausedCache := make(map[string]bool)
	var out []*Operation
	kept := q.order[:0]
	for _, item := range q.order {
		op := item.op
		if len(out) >= n || !q.claimable(op, now, pausedCache) {
			kept = append(kept, item)
			continue
		}
		key := op.Key()
		delete(q.pending, key)
		q.inFlight[key] = op
		out = append(out, op.Clone())
	}
	clear(q.order[len(kept):])
	q.order = kept
	return out
}

func (q *Queue) claimable(op *Operation, now time.Time, pausedCache map[string]bool) bool {
	if _, busy := q.inFlight[op.Key()]; busy {
		return false
	}
	// the entity may be the one being created right now
	if op.EntityID != "" && q.creating[kindKey{tenantID: op.TenantID, kind: op.Kind}] > 0 {
		return false
	}
	if op.NotBefore.After(now) {
		return false
	}
	paused, ok := pausedCache[op.TenantID]
	if !ok {
		paused = q.paused(op.TenantID)
		pausedCache[op.TenantID] = paused
	}
	return !paused
}

// Complete releases a claimed operation after it reached a terminal state
func (q *Queue) Complete(op *Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.releaseLocked(op.Key())
	q.signal()
}

// Reserve marks a claimed operation as creating the canonical record of its
// entity. Until the operation is bound or released, no operation addressed by
// a canonical id of the same tenant and kind is handed out.
func (q *Queue) Reserve(op *Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := op.Key()
	if _, ok := q.reserved[key]; ok {
		return
	}
	kk := kindKey{tenantID: op.TenantID, kind: op.Kind}
	q.reserved[key] = kk
	q.creating[kk]++
}

// Bind records the canonical id a claimed external operation resolved to.
// The canonical key stays in flight together with the operation's own key
// until it is released. Bind reports false when another operation for the
// same entity is already in flight.
func (q *Queue) Bind(op *Operation, entityID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := op.Key()
	q.unreserveLocked(key)
	q.signal()

	canonical := Key{TenantID: op.TenantID, Kind: op.Kind, ID: entityID}
	if canonical == key {
		return true
	}
	if holder, busy := q.inFlight[canonical]; busy {
		return holder.ID == op.ID
	}
	q.inFlight[canonical] = op
	q.aliases[key] = canonical
	return true
}

// Requeue releases a claimed operation and schedules it again after delay,
// keeping its identity. If a newer notification for the same entity arrived
// meanwhile, it is merged into the retried operation.
func (q *Queue) Requeue(op *Operation, delay time.Duration) {
	op = op.Clone()

	q.mu.Lock()
	defer q.mu.Unlock()

	key := op.Key()
	q.releaseLocked(key)
	op.NotBefore = q.clock.Now().Add(delay)

	if existing, ok := q.pending[key]; ok {
		op.absorb(existing.op)
		existing.op = op
		q.resort()
	} else {
		q.appendLocked(op)
	}
	q.signal()
}

// Park releases a claimed operation and holds it until the adapter is
// resumed for the tenant
func (q *Queue) Park(op *Operation, adapter string) {
	op = op.Clone()
	op.NotBefore = time.Time{}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := op.Key()
	q.releaseLocked(key)

	pk := parkKey{tenantID: op.TenantID, adapter: adapter}
	for _, held := range q.parked[pk] {
		if held.Key() == key {
			held.absorb(op)
			q.signal()
			return
		}
	}
	q.parked[pk] = append(q.parked[pk], op)
	q.signal()
}

// Unpark moves the operations held for a tenant's adapter back into the
// queue and returns how many were released
func (q *Queue) Unpark(tenantID, adapter string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	pk := parkKey{tenantID: tenantID, adapter: adapter}
	held := q.parked[pk]
	delete(q.parked, pk)
	for _, op := range held {
		q.insertLocked(op)
	}
	if len(held) > 0 {
		q.signal()
	}
	return len(held)
}

// Drop discards every queued and parked operation of a tenant.
// In-flight operations are left to finish.
func (q *Queue) Drop(tenantID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	kept := q.order[:0]
	for _, item := range q.order {
		if item.op.TenantID == tenantID {
			delete(q.pending, item.op.Key())
			dropped++
			continue
		}
		kept = append(kept, item)
	}
	clear(q.order[len(kept):])
	q.order = kept

	for pk, held := range q.parked {
		if pk.tenantID == tenantID {
			dropped += len(held)
			delete(q.parked, pk)
		}
	}
	return dropped
}

// Depth returns the number of queued operations across all tenants
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// TenantDepth returns the number of queued operations of a tenant
func (q *Queue) TenantDepth(tenantID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, item := range q.order {
		if item.op.TenantID == tenantID {
			n++
		}
	}
	return n
}

// Parked returns the number of operations held for each paused adapter of a tenant
func (q *Queue) Parked(tenantID string) map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]int)
	for pk, held := range q.parked {
		if pk.tenantID == tenantID {
			out[pk.adapter] = len(held)
		}
	}
	return out
}

// InFlight returns the number of claimed operations
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight) - len(q.aliases)
}

// Ready is signalled whenever work may have become available
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// releaseLocked frees the key of a claimed operation and everything it holds
func (q *Queue) releaseLocked(key Key) {
	delete(q.inFlight, key)
	if canonical, ok := q.aliases[key]; ok {
		delete(q.inFlight, canonical)
		delete(q.aliases, key)
	}
	q.unreserveLocked(key)
}

func (q *Queue) unreserveLocked(key Key) {
	kk, ok := q.reserved[key]
	if !ok {
		return
	}
	delete(q.reserved, key)
	q.creating[kk]--
	if q.creating[kk] <= 0 {
		delete(q.creating, kk)
	}
}

func (q *Queue) insertLocked(op *Operation) (*Operation, bool) {
	key := op.Key()
	if existing, ok := q.pending[key]; ok {
		before := existing.op.EnqueuedAt
		existing.op.absorb(op)
		if existing.op.EnqueuedAt.Before(before) {
			q.resort()
		}
		return existing.op, true
	}
	q.appendLocked(op)
	return op, false
}

func (q *Queue) appendLocked(op *Operation) {
	q.seq++
	item := &queued{op: op, seq: q.seq}
	q.pending[op.Key()] = item

	idx, _ := slices.BinarySearchFunc(q.order, item, compareQueued)
	q.order = slices.Insert(q.order, idx, item)
}

func (q *Queue) resort() {
	slices.SortStableFunc(q.order, compareQueued)
}

func compareQueued(a, b *queued) int {
	if c := a.op.EnqueuedAt.Compare(b.op.EnqueuedAt); c != 0 {
		return c
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
