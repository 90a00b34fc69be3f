package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/crmsync/internal/clock"
	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
	"github.com/stacklok/crmsync/internal/telemetry"
)

const (
	defaultWorkers               = 4
	defaultBatchSize             = 16
	defaultMaxAttempts           = 5
	defaultBackoffInitial        = time.Second
	defaultBackoffMax            = time.Minute
	defaultPollInterval          = time.Second
	defaultAdapterTimeout        = 30 * time.Second
	defaultFailureBurstThreshold = 10
)

// Orchestrator drains the sync queue with a pool of workers
type Orchestrator struct {
	adapters       *connector.Registry
	systemOfRecord string
	stateSvc       state.TenantStateService
	store          records.Store
	queue          *queue.Queue

	clock          clock.Clock
	workers        int
	batchSize      int
	maxAttempts    int
	backoffInitial time.Duration
	backoffMax     time.Duration
	pollInterval   time.Duration
	adapterTimeout time.Duration

	syncMetrics *telemetry.SyncMetrics
	tracer      trace.Tracer
	bursts      *burstTracker

	// Lifecycle management
	mu         gosync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the orchestrator
type Option func(*Orchestrator)

// WithClock sets the clock used for retry delays and timestamps
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithWorkers sets the number of concurrent workers
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithBatchSize sets how many operations the dispatcher withdraws at once
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithMaxAttempts sets the number of attempts before a transient failure becomes permanent
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackoff sets the first and the largest retry delay
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(o *Orchestrator) {
		if initial > 0 {
			o.backoffInitial = initial
		}
		if maxDelay > 0 {
			o.backoffMax = maxDelay
		}
	}
}

// WithPollInterval sets how often the dispatcher checks for delayed retries
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithAdapterTimeout bounds every single adapter call
func WithAdapterTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.adapterTimeout = d
		}
	}
}

// WithFailureBurstThreshold sets the number of permanent failures per tenant
// and minute above which an aggregate warning is logged
func WithFailureBurstThreshold(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.bursts.threshold = n
		}
	}
}

// WithSyncMetrics sets the sync metrics for the orchestrator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(o *Orchestrator) {
		o.syncMetrics = metrics
	}
}

// WithTracer sets the tracer used for per-operation spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// New creates an orchestrator with injected dependencies
func New(
	adapters *connector.Registry,
	systemOfRecord string,
	stateSvc state.TenantStateService,
	store records.Store,
	q *queue.Queue,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		adapters:       adapters,
		systemOfRecord: systemOfRecord,
		stateSvc:       stateSvc,
		store:          store,
		queue:          q,
		clock:          clock.Real{},
		workers:        defaultWorkers,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		backoffInitial: defaultBackoffInitial,
		backoffMax:     defaultBackoffMax,
		pollInterval:   defaultPollInterval,
		adapterTimeout: defaultAdapterTimeout,
		bursts:         newBurstTracker(defaultFailureBurstThreshold),
	}

	for _, opt := range opts {
		opt(o)
	}
	o.bursts.clock = o.clock

	return o
}

// Start runs the dispatcher and the worker pool.
// Blocks until the context is cancelled or Stop is called; operations being
// processed at that point are finished first.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.cancelFunc != nil {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()
	defer close(done)

	slog.Info("Starting sync orchestrator", "workers", o.workers, "batch_size", o.batchSize)

	jobs := make(chan *queue.Operation)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer close(jobs)
		return o.dispatch(gctx, jobs)
	})
	for range o.workers {
		g.Go(func() error {
			for op := range jobs {
				o.Process(gctx, op)
			}
			return nil
		})
	}

	err := g.Wait()
	slog.Info("Sync orchestrator stopped")
	return err
}

// Stop gracefully stops the orchestrator
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	cancel, done := o.cancelFunc, o.done
	o.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync orchestrator")
		cancel()
		<-done
	}
	return nil
}

// dispatch hands due operations to the workers until ctx is cancelled
func (o *Orchestrator) dispatch(ctx context.Context, jobs chan<- *queue.Operation) error {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		for _, op := range o.queue.Withdraw(o.batchSize) {
			select {
			case jobs <- op:
			case <-ctx.Done():
				// hand the claimed operation back untouched
				o.queue.Requeue(op, 0)
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-o.queue.Ready():
		case <-ticker.C:
		}
	}
}
