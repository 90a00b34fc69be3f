package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/entity"
	"github.com/stacklok/crmsync/internal/status"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
)

// SweepResult summarizes one sweep of a tenant
type SweepResult struct {
	TenantID string `json:"tenantId"`

	// Skipped is set when sync is disabled or the tenant is paused
	Skipped bool `json:"skipped"`

	StartedAt time.Time `json:"startedAt"`
	Enqueued  int       `json:"enqueued"`

	// Sources lists the systems that were read, FailedSources those that returned an error
	Sources       []string `json:"sources"`
	FailedSources []string `json:"failedSources,omitempty"`
}

// Sweep reads every change since the last watermark from each source of the
// tenant and enqueues one operation per changed entity
func (s *scheduler) Sweep(ctx context.Context, tenantID string) (*SweepResult, error) {
	mu := s.tenantSweepLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	st, err := s.stateSvc.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{TenantID: tenantID}
	if !st.SyncEnabled || st.Paused {
		slog.Debug("Skipping sweep", "tenant", tenantID, "sync_enabled", st.SyncEnabled, "paused", st.Paused)
		result.Skipped = true
		return result, nil
	}

	startedAt := s.clock.Now()
	result.StartedAt = startedAt

	for _, source := range s.sources(st) {
		result.Sources = append(result.Sources, source)

		enqueued, err := s.sweepSource(ctx, st, source, startedAt)
		result.Enqueued += enqueued
		if err != nil {
			result.FailedSources = append(result.FailedSources, source)
			s.handleSourceError(ctx, tenantID, source, err)
			continue
		}

		if _, err := state.AdvanceWatermark(ctx, s.stateSvc, tenantID, source, startedAt); err != nil {
			// the next sweep re-reads the window, which is safe
			result.FailedSources = append(result.FailedSources, source)
			slog.Error("Failed to advance watermark", "tenant", tenantID, "source", source, "error", err)
			continue
		}
		s.markRecovered(tenantID, source)
	}

	success := len(result.FailedSources) == 0
	if success {
		if err := state.MarkFullSync(ctx, s.stateSvc, tenantID, startedAt); err != nil {
			slog.Error("Failed to record full sync", "tenant", tenantID, "error", err)
			success = false
		}
	}

	duration := s.clock.Now().Sub(startedAt)
	s.syncMetrics.RecordSweep(ctx, tenantID, duration, result.Enqueued, success)
	slog.Info("Sweep completed",
		"tenant", tenantID,
		"enqueued", result.Enqueued,
		"sources", len(result.Sources),
		"failed_sources", result.FailedSources,
		"duration", duration)

	return result, nil
}

// sources returns the systems a sweep reads from: the system-of-record first,
// then every adapter the tenant pulls from and that is not paused
func (s *scheduler) sources(st *status.TenantState) []string {
	out := []string{s.systemOfRecord}
	for _, binding := range st.Adapters {
		if !binding.Reads() || st.AdapterPaused(binding.Name) {
			continue
		}
		out = append(out, binding.Name)
	}
	return out
}

// sweepSource enqueues the changes of every kind in one source and returns how
// many operations were enqueued
func (s *scheduler) sweepSource(ctx context.Context, st *status.TenantState, source string, startedAt time.Time) (int, error) {
	adapter, ok := s.adapters.Get(source)
	if !ok {
		return 0, fmt.Errorf("no adapter registered for system %s", source)
	}

	watermark := st.Watermarks[source]
	if !watermark.IsZero() && s.needsRecovery(st.TenantID, source) {
		watermark = watermark.Add(-s.recoveryLookback)
	}

	enqueued := 0
	for _, kind := range entity.Kinds {
		for e, err := range adapter.FetchChangedSince(ctx, st.TenantID, kind, watermark) {
			if err != nil {
				return enqueued, fmt.Errorf("failed to fetch %s changes: %w", kind, err)
			}
			op, err := s.operationFor(ctx, st.TenantID, kind, source, e, startedAt)
			if err != nil {
				return enqueued, err
			}
			if op == nil {
				continue
			}
			s.queue.Enqueue(op)
			enqueued++
		}
	}
	return enqueued, nil
}

// operationFor builds the operation for one changed entity. Changes in the
// system-of-record are pushed; external changes are pulled, addressed by the
// canonical id when a mapping exists and by the external reference otherwise.
func (s *scheduler) operationFor(
	ctx context.Context,
	tenantID string,
	kind entity.Kind,
	source string,
	e *entity.Entity,
	startedAt time.Time,
) (*queue.Operation, error) {
	op := &queue.Operation{
		TenantID:         tenantID,
		Kind:             kind,
		TriggeringSystem: source,
		EnqueuedAt:       startedAt,
	}

	if source == s.systemOfRecord {
		if e.EntityID == "" {
			slog.Warn("Skipping system-of-record entity without id", "tenant", tenantID, "kind", kind)
			return nil, nil
		}
		op.EntityID = e.EntityID
		op.Direction = queue.DirectionPush
		return op, nil
	}

	if e.ExternalID == "" {
		slog.Warn("Skipping external entity without id", "tenant", tenantID, "kind", kind, "system", source)
		return nil, nil
	}
	op.Direction = queue.DirectionPull

	mapping, err := s.store.FindByExternalID(ctx, tenantID, kind, source, e.ExternalID)
	switch {
	case err == nil:
		op.EntityID = mapping.EntityID
	case errors.Is(err, records.ErrNotFound) && e.EntityID != "":
		// the external system already carries the canonical id
		op.EntityID = e.EntityID
	case errors.Is(err, records.ErrNotFound):
		op.ExternalRef = &queue.ExternalRef{System: source, ExternalID: e.ExternalID}
	default:
		return nil, fmt.Errorf("failed to look up mapping: %w", err)
	}
	return op, nil
}

// handleSourceError logs a failed source and pauses adapters that rejected
// their credentials. The watermark of the source is left untouched.
func (s *scheduler) handleSourceError(ctx context.Context, tenantID, source string, err error) {
	class := connector.Classify(err)
	slog.Error("Sweep source failed",
		"tenant", tenantID,
		"source", source,
		"class", class.String(),
		"error", err)

	if class != connector.ClassAuth || source == s.systemOfRecord {
		return
	}
	paused, pauseErr := state.PauseAdapter(ctx, s.stateSvc, tenantID, source, err.Error())
	if pauseErr != nil {
		slog.Error("Failed to pause adapter", "tenant", tenantID, "adapter", source, "error", pauseErr)
		return
	}
	if paused {
		slog.Warn("Adapter paused after authentication failure", "tenant", tenantID, "adapter", source)
	}
}
