package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/crmsync/internal/conflict"
	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/entity"
	"github.com/stacklok/crmsync/internal/otel"
	"github.com/stacklok/crmsync/internal/status"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
)

var (
	errTenantPaused = errors.New("tenant is paused")
	// errEntityBusy means another worker holds the entity an external
	// reference resolved to
	errEntityBusy = errors.New("entity is being synced by another operation")
)

// parkedError stops an operation until an adapter of the tenant is resumed
type parkedError struct {
	adapter string
}

func (e *parkedError) Error() string {
	return fmt.Sprintf("adapter %s is paused", e.adapter)
}

// systemError attributes an adapter failure to the system that returned it
type systemError struct {
	system string
	err    error
}

func (e *systemError) Error() string {
	return fmt.Sprintf("%s: %v", e.system, e.err)
}

func (e *systemError) Unwrap() error {
	return e.err
}

// storageError marks a failure of the engine's own state or records storage
type storageError struct {
	err error
}

func (e *storageError) Error() string {
	return e.err.Error()
}

func (e *storageError) Unwrap() error {
	return e.err
}

// Process handles one claimed operation and releases it from the queue:
// completed, requeued with a delay, or parked behind a paused adapter.
func (o *Orchestrator) Process(ctx context.Context, op *queue.Operation) queue.Outcome {
	// a claimed operation always runs to the end
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	ctx, span := otel.StartSpan(ctx, o.tracer, "sync.process",
		trace.WithAttributes(
			otel.AttrOperationID.String(op.ID),
			otel.AttrTenantID.String(op.TenantID),
			otel.AttrEntityKind.String(string(op.Kind)),
			otel.AttrEntityID.String(op.Key().ID),
			otel.AttrDirection.String(string(op.Direction)),
			otel.AttrSystem.String(op.TriggeringSystem),
			otel.AttrAttempt.Int(op.Attempt),
		))
	defer span.End()

	outcome, err := o.reconcile(ctx, op)
	outcome = o.release(ctx, op, outcome, err)

	otel.RecordOutcome(span, string(outcome), err, outcome == queue.OutcomeFailedPermanent)
	o.syncMetrics.RecordOperation(ctx, op.TenantID, string(outcome), time.Since(start))

	slog.Debug("Operation processed",
		"operation", op.ID,
		"key", op.Key().String(),
		"direction", op.Direction,
		"outcome", outcome)
	return outcome
}

// release hands the operation back to the queue according to how it ended
func (o *Orchestrator) release(ctx context.Context, op *queue.Operation, outcome queue.Outcome, err error) queue.Outcome {
	if err == nil {
		o.queue.Complete(op)
		return outcome
	}

	var parked *parkedError
	if errors.As(err, &parked) {
		slog.Info("Parking operation behind paused adapter",
			"operation", op.ID, "tenant", op.TenantID, "adapter", parked.adapter)
		o.queue.Park(op, parked.adapter)
		return queue.OutcomeFailedRetryable
	}
	if errors.Is(err, errTenantPaused) {
		o.queue.Requeue(op, 0)
		return queue.OutcomeFailedRetryable
	}
	if errors.Is(err, errEntityBusy) {
		slog.Debug("Entity busy, requeueing operation", "operation", op.ID, "tenant", op.TenantID)
		o.queue.Requeue(op, o.backoffInitial)
		return queue.OutcomeFailedRetryable
	}

	var storeErr *storageError
	if errors.As(err, &storeErr) {
		return o.retry(ctx, op, "", err)
	}

	system := systemOf(err)
	switch connector.Classify(err) {
	case connector.ClassAuth:
		return o.pauseOnAuth(ctx, op, system, err)
	case connector.ClassTransient:
		return o.retry(ctx, op, system, err)
	default:
		return o.fail(ctx, op, system, err.Error())
	}
}

func systemOf(err error) string {
	var sysErr *systemError
	if errors.As(err, &sysErr) {
		return sysErr.system
	}
	return ""
}

// pauseOnAuth stops all work that needs rejected credentials. An external
// adapter is paused for the tenant and the operation parked behind it; the
// system-of-record pauses the whole tenant.
func (o *Orchestrator) pauseOnAuth(ctx context.Context, op *queue.Operation, system string, err error) queue.Outcome {
	if system == "" || system == o.systemOfRecord {
		if _, pauseErr := state.PauseTenant(ctx, o.stateSvc, op.TenantID); pauseErr != nil {
			slog.Error("Failed to pause tenant", "tenant", op.TenantID, "error", pauseErr)
		}
		slog.Warn("Tenant paused after system-of-record authentication failure",
			"tenant", op.TenantID, "error", err)
		o.queue.Requeue(op, 0)
		return queue.OutcomeFailedRetryable
	}

	if _, pauseErr := state.PauseAdapter(ctx, o.stateSvc, op.TenantID, system, err.Error()); pauseErr != nil {
		slog.Error("Failed to pause adapter", "tenant", op.TenantID, "adapter", system, "error", pauseErr)
	}
	slog.Warn("Adapter paused after authentication failure",
		"tenant", op.TenantID, "adapter", system, "error", err)
	o.queue.Park(op, system)
	return queue.OutcomeFailedRetryable
}

// reconcile brings the entity of an operation in line across the
// system-of-record and every relevant adapter of the tenant
func (o *Orchestrator) reconcile(ctx context.Context, op *queue.Operation) (queue.Outcome, error) {
	st, err := o.stateSvc.GetTenant(ctx, op.TenantID)
	if errors.Is(err, state.ErrTenantNotFound) {
		slog.Debug("Dropping operation of unknown tenant", "tenant", op.TenantID, "operation", op.ID)
		return queue.OutcomeApplied, nil
	}
	if err != nil {
		return "", &storageError{fmt.Errorf("failed to load tenant: %w", err)}
	}
	if st.Paused {
		return "", errTenantPaused
	}
	if !st.SyncEnabled {
		return queue.OutcomeApplied, nil
	}

	policy, err := conflict.ParsePolicy(st.ConflictPolicy)
	if err != nil {
		return "", connector.Permanent("", err)
	}
	sor, ok := o.adapters.Get(o.systemOfRecord)
	if !ok {
		return "", connector.Permanent(o.systemOfRecord, fmt.Errorf("system-of-record adapter is not registered"))
	}

	entityID := op.EntityID
	if entityID == "" {
		entityID, err = o.resolveExternal(ctx, st, sor, op)
		if err != nil || entityID == "" {
			return queue.OutcomeApplied, err
		}
	}

	local, err := o.fetch(ctx, sor, op.TenantID, op.Kind, entityID)
	if errors.Is(err, connector.ErrNotFound) {
		slog.Info("Entity no longer exists in the system-of-record",
			"tenant", op.TenantID, "kind", op.Kind, "entity", entityID)
		return queue.OutcomeApplied, nil
	}
	if err != nil {
		return "", err
	}

	outcome := queue.OutcomeApplied
	parkOn := ""
	for _, binding := range relevantBindings(st, op) {
		if st.AdapterPaused(binding.Name) {
			if parkOn == "" {
				parkOn = binding.Name
			}
			continue
		}
		adapter, ok := o.adapters.Get(binding.Name)
		if !ok {
			return "", connector.Permanent(binding.Name, fmt.Errorf("adapter is not registered"))
		}

		var conflicted bool
		local, conflicted, err = o.reconcileAdapter(ctx, policy, sor, adapter, binding, local)
		if err != nil {
			return "", err
		}
		if conflicted {
			outcome = queue.OutcomeConflictResolved
		}
	}

	if parkOn != "" {
		return "", &parkedError{adapter: parkOn}
	}
	return outcome, nil
}

// relevantBindings returns the adapters an operation touches: the systems
// that reported the change first, followed by every adapter the tenant writes to
func relevantBindings(st *status.TenantState, op *queue.Operation) []status.AdapterBinding {
	var triggering, writers []status.AdapterBinding
	for _, b := range st.Adapters {
		triggered := b.Reads() && op.Direction == queue.DirectionPull &&
			(op.TriggeringSystem == b.Name || op.TriggeringSystem == queue.MultiSource)
		if op.ExternalRef != nil && op.ExternalRef.System == b.Name && b.Reads() {
			triggered = true
		}

		switch {
		case triggered:
			triggering = append(triggering, b)
		case b.Writes():
			writers = append(writers, b)
		}
	}
	return append(triggering, writers...)
}

// resolveExternal returns the canonical id of an operation that only carries
// an external reference. An external record seen for the first time is created
// in the system-of-record and both mappings are recorded. An empty id means
// there is nothing to do.
func (o *Orchestrator) resolveExternal(
	ctx context.Context,
	st *status.TenantState,
	sor connector.Adapter,
	op *queue.Operation,
) (string, error) {
	ref := op.ExternalRef
	if ref == nil {
		return "", connector.Permanent("", fmt.Errorf("operation has neither an entity id nor an external reference"))
	}

	m, err := o.store.FindByExternalID(ctx, op.TenantID, op.Kind, ref.System, ref.ExternalID)
	if err == nil {
		return o.bind(op, m.EntityID)
	}
	if !errors.Is(err, records.ErrNotFound) {
		return "", &storageError{fmt.Errorf("failed to look up mapping: %w", err)}
	}

	binding, ok := st.Adapter(ref.System)
	if !ok || !binding.Reads() {
		slog.Warn("Ignoring change from a system the tenant does not pull from",
			"tenant", op.TenantID, "system", ref.System, "external_id", ref.ExternalID)
		return "", nil
	}
	if st.AdapterPaused(ref.System) {
		return "", &parkedError{adapter: ref.System}
	}
	adapter, ok := o.adapters.Get(ref.System)
	if !ok {
		return "", connector.Permanent(ref.System, fmt.Errorf("adapter is not registered"))
	}

	remote, err := o.fetch(ctx, adapter, op.TenantID, op.Kind, ref.ExternalID)
	if errors.Is(err, connector.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	now := o.clock.Now()
	if remote.EntityID != "" {
		// the external system already knows the canonical id; zero versions
		// make the first reconciliation compare both sides
		err := o.saveMapping(ctx, &entity.ExternalMapping{
			TenantID:   op.TenantID,
			Kind:       op.Kind,
			EntityID:   remote.EntityID,
			System:     ref.System,
			ExternalID: ref.ExternalID,
			CreatedAt:  now,
			SyncedAt:   now,
		})
		if err != nil {
			return "", err
		}
		return o.bind(op, remote.EntityID)
	}

	created := remote.Clone()
	created.EntityID = ""
	created.ExternalID = ""
	created.TenantID = op.TenantID
	// operations addressed by canonical id wait until the new id is bound
	o.queue.Reserve(op)
	sorMapping, err := o.upsert(ctx, sor, op.TenantID, created)
	if err != nil {
		return "", err
	}
	entityID := sorMapping.EntityID
	if entityID == "" {
		entityID = sorMapping.ExternalID
	}
	slog.Info("Created entity from external record",
		"tenant", op.TenantID,
		"kind", op.Kind,
		"entity", entityID,
		"system", ref.System,
		"external_id", ref.ExternalID)

	sorMapping.TenantID = op.TenantID
	sorMapping.Kind = op.Kind
	sorMapping.EntityID = entityID
	sorMapping.System = o.systemOfRecord
	sorMapping.SourceVersion = sorMapping.ExternalVersion
	sorMapping.CreatedAt = now
	sorMapping.SyncedAt = now

	// the external mapping goes first so a retry finds the created entity
	err = o.saveMapping(ctx, &entity.ExternalMapping{
		TenantID:        op.TenantID,
		Kind:            op.Kind,
		EntityID:        entityID,
		System:          ref.System,
		ExternalID:      ref.ExternalID,
		SourceVersion:   sorMapping.ExternalVersion,
		ExternalVersion: remote.Version,
		CreatedAt:       now,
		SyncedAt:        now,
	})
	if err != nil {
		return "", err
	}
	if err := o.saveMapping(ctx, sorMapping); err != nil {
		return "", err
	}
	return o.bind(op, entityID)
}

// bind keeps the canonical entity busy for as long as op is in flight
func (o *Orchestrator) bind(op *queue.Operation, entityID string) (string, error) {
	if !o.queue.Bind(op, entityID) {
		return "", errEntityBusy
	}
	return entityID, nil
}

// reconcileAdapter compares the entity in the system-of-record and in one
// adapter against the versions last reconciled between them and propagates
// whatever changed. It returns the system-of-record entity as it is afterwards.
func (o *Orchestrator) reconcileAdapter(
	ctx context.Context,
	policy conflict.Policy,
	sor, adapter connector.Adapter,
	binding status.AdapterBinding,
	local *entity.Entity,
) (*entity.Entity, bool, error) {
	tenantID, kind := local.TenantID, local.Kind

	mapping, err := o.store.GetMapping(ctx, tenantID, kind, local.EntityID, binding.Name)
	switch {
	case errors.Is(err, records.ErrNotFound):
		mapping = nil
	case err != nil:
		return local, false, &storageError{fmt.Errorf("failed to load mapping: %w", err)}
	}

	var remote *entity.Entity
	if mapping != nil && binding.Reads() {
		remote, err = o.fetch(ctx, adapter, tenantID, kind, mapping.ExternalID)
		switch {
		case errors.Is(err, connector.ErrNotFound):
			remote = nil
		case err != nil:
			return local, false, err
		}
	}

	if remote == nil {
		if !binding.Writes() {
			return local, false, nil
		}
		if mapping != nil && !binding.Reads() && mapping.SourceVersion == local.Version {
			return local, false, nil
		}
		// unknown to the adapter, or deleted there: write the local state
		target := mapping
		if binding.Reads() {
			target = nil
		}
		written, err := o.upsert(ctx, adapter, tenantID, outbound(local, target, ""))
		if err != nil {
			return local, false, err
		}
		return local, false, o.saveMapping(ctx, o.nextMapping(mapping, local, binding.Name, written.ExternalID, local.Version, written.ExternalVersion))
	}

	localChanged := local.Version != mapping.SourceVersion
	remoteChanged := remote.Version != mapping.ExternalVersion
	externalVersion := remote.Version
	conflicted := false

	switch {
	case !localChanged && !remoteChanged:
		return local, false, nil

	case localChanged && !remoteChanged:
		if binding.Writes() && !entity.SameFields(local, remote) {
			written, err := o.upsert(ctx, adapter, tenantID, outbound(local, mapping, ""))
			if err != nil {
				return local, false, err
			}
			externalVersion = written.ExternalVersion
		}

	case !localChanged && remoteChanged:
		if !entity.SameFields(local, remote) {
			local, err = o.writeLocal(ctx, sor, local, remote)
			if err != nil {
				return local, false, err
			}
		}

	default:
		if entity.SameFields(local, remote) {
			break
		}
		local, externalVersion, conflicted, err = o.resolveConflict(ctx, policy, sor, adapter, binding, local, remote, mapping)
		if err != nil {
			return local, false, err
		}
	}

	return local, conflicted, o.saveMapping(ctx,
		o.nextMapping(mapping, local, binding.Name, mapping.ExternalID, local.Version, externalVersion))
}

// resolveConflict applies the tenant's policy to an entity changed on both
// sides, records the decision and writes the winner where it is missing
func (o *Orchestrator) resolveConflict(
	ctx context.Context,
	policy conflict.Policy,
	sor, adapter connector.Adapter,
	binding status.AdapterBinding,
	local, remote *entity.Entity,
	mapping *entity.ExternalMapping,
) (*entity.Entity, int64, bool, error) {
	decision, err := conflict.Decide(local, remote, policy)
	if err != nil {
		return local, remote.Version, false, connector.Permanent(binding.Name, err)
	}

	rec := &entity.ConflictRecord{
		ID:        uuid.NewString(),
		TenantID:  local.TenantID,
		Kind:      local.Kind,
		EntityID:  local.EntityID,
		System:    binding.Name,
		Local:     local.Clone(),
		Remote:    remote.Clone(),
		Policy:    string(policy),
		Winner:    decision.Winner.Clone(),
		CreatedAt: o.clock.Now(),
	}
	if err := o.store.AppendConflict(ctx, rec); err != nil {
		return local, remote.Version, false, &storageError{fmt.Errorf("failed to record conflict: %w", err)}
	}
	o.syncMetrics.RecordConflict(ctx, local.TenantID, binding.Name, string(policy))
	slog.Info("Resolved conflict",
		"tenant", local.TenantID,
		"kind", local.Kind,
		"entity", local.EntityID,
		"system", binding.Name,
		"policy", policy,
		"update_local", decision.UpdateLocal,
		"update_remote", decision.UpdateRemote)

	if decision.UpdateLocal {
		local, err = o.writeLocal(ctx, sor, local, decision.Winner)
		if err != nil {
			return local, remote.Version, true, err
		}
	}

	externalVersion := remote.Version
	if decision.UpdateRemote && binding.Writes() {
		written, err := o.upsert(ctx, adapter, local.TenantID, outbound(decision.Winner, mapping, local.EntityID))
		if err != nil {
			return local, externalVersion, true, err
		}
		externalVersion = written.ExternalVersion
	}
	return local, externalVersion, true, nil
}

// writeLocal stores the fields of source in the system-of-record under the
// canonical id of local and returns the updated entity
func (o *Orchestrator) writeLocal(ctx context.Context, sor connector.Adapter, local, source *entity.Entity) (*entity.Entity, error) {
	next := source.Clone()
	next.EntityID = local.EntityID
	next.ExternalID = local.EntityID
	next.TenantID = local.TenantID
	next.Kind = local.Kind

	m, err := o.upsert(ctx, sor, local.TenantID, next)
	if err != nil {
		return local, err
	}
	next.Version = m.ExternalVersion
	next.SourceSystem = o.systemOfRecord
	next.LastModifiedAt = o.clock.Now()
	return next, nil
}

// outbound prepares an entity for an adapter write, addressed by the
// adapter's own identifier when one is known
func outbound(e *entity.Entity, mapping *entity.ExternalMapping, entityID string) *entity.Entity {
	out := e.Clone()
	if entityID != "" {
		out.EntityID = entityID
	}
	out.ExternalID = ""
	if mapping != nil {
		out.ExternalID = mapping.ExternalID
	}
	return out
}

func (o *Orchestrator) nextMapping(
	prev *entity.ExternalMapping,
	local *entity.Entity,
	system, externalID string,
	sourceVersion, externalVersion int64,
) *entity.ExternalMapping {
	now := o.clock.Now()
	m := &entity.ExternalMapping{
		TenantID:        local.TenantID,
		Kind:            local.Kind,
		EntityID:        local.EntityID,
		System:          system,
		ExternalID:      externalID,
		SourceVersion:   sourceVersion,
		ExternalVersion: externalVersion,
		CreatedAt:       now,
		SyncedAt:        now,
	}
	if prev != nil {
		m.CreatedAt = prev.CreatedAt
		if m.ExternalID == "" {
			m.ExternalID = prev.ExternalID
		}
	}
	return m
}

func (o *Orchestrator) saveMapping(ctx context.Context, m *entity.ExternalMapping) error {
	err := o.store.SaveMapping(ctx, m)
	switch {
	case errors.Is(err, records.ErrDuplicateExternalID):
		return connector.Permanent(m.System, err)
	case err != nil:
		return &storageError{fmt.Errorf("failed to save mapping: %w", err)}
	}
	return nil
}

func (o *Orchestrator) fetch(
	ctx context.Context, a connector.Adapter, tenantID string, kind entity.Kind, id string,
) (*entity.Entity, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.adapterTimeout)
	defer cancel()

	e, err := a.Fetch(callCtx, tenantID, kind, id)
	if err != nil {
		return nil, &systemError{system: a.Name(), err: err}
	}
	return e, nil
}

func (o *Orchestrator) upsert(
	ctx context.Context, a connector.Adapter, tenantID string, e *entity.Entity,
) (*entity.ExternalMapping, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.adapterTimeout)
	defer cancel()

	m, err := a.Upsert(callCtx, tenantID, e)
	if err != nil {
		return nil, &systemError{system: a.Name(), err: err}
	}
	return m, nil
}
