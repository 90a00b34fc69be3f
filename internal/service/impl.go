package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/otel"
	"github.com/stacklok/crmsync/internal/status"
	"github.com/stacklok/crmsync/internal/sync/coordinator"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
)

const (
	// ServiceTracerName is the name used for the admin service tracer
	ServiceTracerName = "github.com/stacklok/crmsync/service"

	recentLimit = records.DefaultRecentLimit
)

// options holds configuration options for the sync service
type options struct {
	tracer           trace.Tracer
	validateAdapters func(*config.TenantConfig) error
}

// Option is a functional option for configuring the sync service
type Option func(*options)

// WithTracer sets the tracer for admin operation spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithAdapterValidator sets the check that adapters of an API supplied
// configuration name configured connectors
func WithAdapterValidator(fn func(*config.TenantConfig) error) Option {
	return func(o *options) {
		o.validateAdapters = fn
	}
}

// syncService is the default implementation of SyncService
type syncService struct {
	stateSvc  state.TenantStateService
	store     records.Store
	queue     *queue.Queue
	scheduler coordinator.Scheduler
	opts      options
}

// New creates the admin service over the running sync components
func New(
	stateSvc state.TenantStateService,
	store records.Store,
	q *queue.Queue,
	scheduler coordinator.Scheduler,
	opts ...Option,
) SyncService {
	s := &syncService{
		stateSvc:  stateSvc,
		store:     store,
		queue:     q,
		scheduler: scheduler,
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

func (s *syncService) startSpan(ctx context.Context, name, tenantID string) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, s.opts.tracer, name, trace.WithAttributes(otel.AttrTenantID.String(tenantID)))
}

// CheckReadiness implements SyncService.CheckReadiness
func (s *syncService) CheckReadiness(ctx context.Context) error {
	if _, err := s.stateSvc.ListTenants(ctx); err != nil {
		return fmt.Errorf("tenant registry unavailable: %w", err)
	}
	return nil
}

// ListTenants implements SyncService.ListTenants
func (s *syncService) ListTenants(ctx context.Context) ([]*TenantSummary, error) {
	ctx, span := otel.StartSpan(ctx, s.opts.tracer, "SyncService.ListTenants")
	defer span.End()

	tenants, err := s.stateSvc.ListTenants(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	out := make([]*TenantSummary, 0, len(tenants))
	for _, st := range tenants {
		out = append(out, &TenantSummary{
			TenantID:       st.TenantID,
			SyncEnabled:    st.SyncEnabled,
			Paused:         st.Paused,
			PausedAdapters: st.PausedAdapterNames(),
			Adapters:       st.Adapters,
			CreationType:   st.CreationType,
			LastFullSyncAt: st.LastFullSyncAt,
		})
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(out)))
	return out, nil
}

// GetStatus implements SyncService.GetStatus
func (s *syncService) GetStatus(ctx context.Context, tenantID string) (*TenantStatus, error) {
	ctx, span := s.startSpan(ctx, "SyncService.GetStatus", tenantID)
	defer span.End()

	st, err := s.stateSvc.GetTenant(ctx, tenantID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	conflicts, err := s.store.RecentConflicts(ctx, tenantID, recentLimit)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	failures, err := s.store.RecentFailures(ctx, tenantID, recentLimit)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	failureCount, err := s.store.CountFailures(ctx, tenantID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to count failures: %w", err)
	}

	return &TenantStatus{
		TenantID:        st.TenantID,
		SyncEnabled:     st.SyncEnabled,
		Paused:          st.Paused,
		PausedAdapters:  st.PausedAdapters,
		QueueDepth:      s.queue.TenantDepth(tenantID),
		ParkedByAdapter: s.queue.Parked(tenantID),
		LastFullSyncAt:  st.LastFullSyncAt,
		Watermarks:      st.Watermarks,
		RecentConflicts: conflicts,
		FailureCount:    failureCount,
		RecentFailures:  failures,
	}, nil
}

// GetTenantConfig implements SyncService.GetTenantConfig
func (s *syncService) GetTenantConfig(ctx context.Context, tenantID string) (*config.TenantConfig, error) {
	st, err := s.stateSvc.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg := config.TenantConfigFromState(st)
	return &cfg, nil
}

// PutTenantConfig implements SyncService.PutTenantConfig
func (s *syncService) PutTenantConfig(ctx context.Context, cfg config.TenantConfig) (*config.TenantConfig, error) {
	ctx, span := s.startSpan(ctx, "SyncService.PutTenantConfig", cfg.TenantID)
	defer span.End()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if s.opts.validateAdapters != nil {
		if err := s.opts.validateAdapters(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if err := s.ensureAPIManaged(ctx, cfg.TenantID, true); err != nil {
		return nil, err
	}

	st, err := s.stateSvc.UpsertTenant(ctx, cfg, status.CreationTypeAPI)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to store tenant configuration: %w", err)
	}
	slog.Info("Tenant configuration updated", "tenant", cfg.TenantID, "adapters", len(cfg.Adapters))

	if err := s.scheduler.EnsureTenant(cfg.TenantID); err != nil && !errors.Is(err, coordinator.ErrNotRunning) {
		slog.Error("Failed to start sweep loop", "tenant", cfg.TenantID, "error", err)
	}

	out := config.TenantConfigFromState(st)
	return &out, nil
}

// ensureAPIManaged rejects changes to tenants owned by the configuration file.
// A missing tenant is accepted when allowMissing is set.
func (s *syncService) ensureAPIManaged(ctx context.Context, tenantID string, allowMissing bool) error {
	st, err := s.stateSvc.GetTenant(ctx, tenantID)
	switch {
	case errors.Is(err, state.ErrTenantNotFound) && allowMissing:
		return nil
	case err != nil:
		return err
	case st.CreationType == status.CreationTypeCONFIG:
		return fmt.Errorf("%w: %s", ErrConfigManaged, tenantID)
	}
	return nil
}

// PauseTenant implements SyncService.PauseTenant
func (s *syncService) PauseTenant(ctx context.Context, tenantID string) error {
	ctx, span := s.startSpan(ctx, "SyncService.PauseTenant", tenantID)
	defer span.End()

	changed, err := state.PauseTenant(ctx, s.stateSvc, tenantID)
	if err != nil {
		otel.RecordError(span, err)
		return err
	}
	if changed {
		slog.Info("Tenant paused", "tenant", tenantID)
	}
	return nil
}

// ResumeTenant implements SyncService.ResumeTenant
func (s *syncService) ResumeTenant(ctx context.Context, tenantID, adapter string) (*ResumeResult, error) {
	ctx, span := s.startSpan(ctx, "SyncService.ResumeTenant", tenantID)
	defer span.End()

	st, err := s.stateSvc.GetTenant(ctx, tenantID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	result := &ResumeResult{TenantID: tenantID, Resumed: []string{}}
	adapters := st.PausedAdapterNames()
	if adapter != "" {
		if _, ok := st.Adapter(adapter); !ok {
			return nil, fmt.Errorf("%w: %s", ErrAdapterNotEnabled, adapter)
		}
		adapters = []string{adapter}
	} else {
		result.TenantResumed, err = state.ResumeTenant(ctx, s.stateSvc, tenantID)
		if err != nil {
			otel.RecordError(span, err)
			return nil, err
		}
	}

	for _, name := range adapters {
		resumed, err := state.ResumeAdapter(ctx, s.stateSvc, tenantID, name)
		if err != nil {
			otel.RecordError(span, err)
			return nil, err
		}
		if resumed {
			result.Resumed = append(result.Resumed, name)
		}
		// parked work is released even if the pause was already lifted
		result.Unparked += s.queue.Unpark(tenantID, name)
	}

	slog.Info("Tenant resumed",
		"tenant", tenantID,
		"tenant_resumed", result.TenantResumed,
		"adapters", result.Resumed,
		"unparked", result.Unparked)
	return result, nil
}

// TriggerSync implements SyncService.TriggerSync
func (s *syncService) TriggerSync(ctx context.Context, tenantID string) (*coordinator.SweepResult, error) {
	ctx, span := s.startSpan(ctx, "SyncService.TriggerSync", tenantID)
	defer span.End()

	result, err := s.scheduler.Sweep(ctx, tenantID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(otel.AttrResultCount.Int(result.Enqueued))
	return result, nil
}

// DeleteTenant implements SyncService.DeleteTenant
func (s *syncService) DeleteTenant(ctx context.Context, tenantID string) (*DeleteResult, error) {
	ctx, span := s.startSpan(ctx, "SyncService.DeleteTenant", tenantID)
	defer span.End()

	if err := s.ensureAPIManaged(ctx, tenantID, false); err != nil {
		return nil, err
	}

	// removing the registry entry first makes in-flight operations and the
	// sweep loop of the tenant wind down on their own
	if err := s.stateSvc.DeleteTenant(ctx, tenantID); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	result := &DeleteResult{TenantID: tenantID}
	result.DroppedOperations = s.queue.Drop(tenantID)

	deleted, err := s.store.DeleteTenant(ctx, tenantID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to delete mappings: %w", err)
	}
	result.DeletedMappings = deleted

	slog.Info("Tenant disconnected",
		"tenant", tenantID,
		"dropped_operations", result.DroppedOperations,
		"deleted_mappings", result.DeletedMappings)
	return result, nil
}
