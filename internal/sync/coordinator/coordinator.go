package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/crmsync/internal/clock"
	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
	"github.com/stacklok/crmsync/internal/telemetry"
)

// ErrNotRunning is returned by EnsureTenant before Start or after Stop
var ErrNotRunning = errors.New("scheduler is not running")

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/stacklok/crmsync/internal/sync/coordinator Scheduler

// Scheduler runs one periodic sweep loop per tenant
type Scheduler interface {
	// Start begins a sweep loop for every known tenant.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler and all tenant loops
	Stop() error

	// EnsureTenant starts the loop of a tenant that was created after Start.
	// It is a no-op when the loop is already running.
	EnsureTenant(tenantID string) error

	// Sweep runs one sweep for a tenant right away
	Sweep(ctx context.Context, tenantID string) (*SweepResult, error)
}

// scheduler is the default implementation of Scheduler
type scheduler struct {
	adapters       *connector.Registry
	systemOfRecord string
	stateSvc       state.TenantStateService
	store          records.Store
	queue          *queue.Queue

	clock            clock.Clock
	recoveryLookback time.Duration
	syncMetrics      *telemetry.SyncMetrics

	// Lifecycle management
	mu         sync.Mutex
	loopCtx    context.Context
	cancelFunc context.CancelFunc
	loops      map[string]bool
	wg         sync.WaitGroup
	done       chan struct{}

	// sweeps of one tenant never overlap
	sweepMu    sync.Mutex
	sweepLocks map[string]*sync.Mutex

	// recovered tracks the tenant sources read successfully since start
	recoveredMu sync.Mutex
	recovered   map[string]bool
}

// New creates a new scheduler with injected dependencies
func New(
	adapters *connector.Registry,
	systemOfRecord string,
	stateSvc state.TenantStateService,
	store records.Store,
	q *queue.Queue,
	opts ...Option,
) Scheduler {
	s := &scheduler{
		adapters:         adapters,
		systemOfRecord:   systemOfRecord,
		stateSvc:         stateSvc,
		store:            store,
		queue:            q,
		clock:            clock.Real{},
		recoveryLookback: defaultRecoveryLookback,
		loops:            make(map[string]bool),
		sweepLocks:       make(map[string]*sync.Mutex),
		recovered:        make(map[string]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins a sweep loop for every known tenant
func (s *scheduler) Start(ctx context.Context) error {
	tenants, err := s.stateSvc.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	s.mu.Lock()
	if s.cancelFunc != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.loopCtx = loopCtx
	s.cancelFunc = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	slog.Info("Starting sync scheduler", "tenant_count", len(tenants))
	for _, st := range tenants {
		if err := s.EnsureTenant(st.TenantID); err != nil {
			cancel()
			close(done)
			return err
		}
	}

	<-loopCtx.Done()
	s.wg.Wait()
	close(done)
	slog.Info("Sync scheduler shutting down")
	return nil
}

// Stop gracefully stops the scheduler
func (s *scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancelFunc, s.done
	s.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync scheduler")
		cancel()
		<-done
	}
	return nil
}

// EnsureTenant starts the loop of a tenant unless it is already running
func (s *scheduler) EnsureTenant(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loopCtx == nil || s.loopCtx.Err() != nil {
		return ErrNotRunning
	}
	if s.loops[tenantID] {
		return nil
	}
	s.loops[tenantID] = true
	s.wg.Add(1)
	go s.runTenant(s.loopCtx, tenantID)
	return nil
}

// runTenant sweeps a tenant once right away and then after every interval.
// It returns when the context is cancelled or the tenant no longer exists.
func (s *scheduler) runTenant(ctx context.Context, tenantID string) {
	defer func() {
		s.mu.Lock()
		delete(s.loops, tenantID)
		s.mu.Unlock()
		s.wg.Done()
	}()

	for {
		if _, err := s.Sweep(ctx, tenantID); err != nil {
			if errors.Is(err, state.ErrTenantNotFound) {
				slog.Info("Tenant removed, stopping sweep loop", "tenant", tenantID)
				return
			}
			if ctx.Err() != nil {
				return
			}
			slog.Error("Sweep failed", "tenant", tenantID, "error", err)
		}

		st, err := s.stateSvc.GetTenant(ctx, tenantID)
		if errors.Is(err, state.ErrTenantNotFound) {
			slog.Info("Tenant removed, stopping sweep loop", "tenant", tenantID)
			return
		}
		interval := defaultInterval
		if err == nil {
			interval = st.Interval()
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
		}
	}
}

// tenantSweepLock returns the mutex serializing sweeps of one tenant
func (s *scheduler) tenantSweepLock(tenantID string) *sync.Mutex {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	mu, ok := s.sweepLocks[tenantID]
	if !ok {
		mu = &sync.Mutex{}
		s.sweepLocks[tenantID] = mu
	}
	return mu
}

// needsRecovery reports whether a source has not been read successfully for the
// tenant since the scheduler was created
func (s *scheduler) needsRecovery(tenantID, source string) bool {
	s.recoveredMu.Lock()
	defer s.recoveredMu.Unlock()
	return !s.recovered[tenantID+"/"+source]
}

func (s *scheduler) markRecovered(tenantID, source string) {
	s.recoveredMu.Lock()
	defer s.recoveredMu.Unlock()
	s.recovered[tenantID+"/"+source] = true
}
