package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/crmsync/internal/clock"
	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
)

const burstWindow = time.Minute

// retryDelay returns the delay before the given attempt: the initial backoff
// doubled for every previous attempt, never above the maximum
func (o *Orchestrator) retryDelay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     o.backoffInitial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         o.backoffMax,
	}
	b.Reset()

	delay := o.backoffInitial
	for range max(attempt, 1) {
		delay = b.NextBackOff()
	}
	return min(delay, o.backoffMax)
}

// retry requeues an operation after a transient failure, or gives it up once
// the attempts are exhausted
func (o *Orchestrator) retry(ctx context.Context, op *queue.Operation, system string, err error) queue.Outcome {
	attempt := op.Attempt + 1
	if attempt >= o.maxAttempts {
		return o.fail(ctx, op, system,
			fmt.Sprintf("giving up after %d attempts: %v", attempt, err))
	}

	delay := max(o.retryDelay(attempt), connector.RetryAfter(err))
	delay = min(delay, o.backoffMax)

	op.Attempt = attempt
	slog.Warn("Retrying operation after transient failure",
		"operation", op.ID,
		"tenant", op.TenantID,
		"key", op.Key().String(),
		"system", system,
		"attempt", attempt,
		"delay", delay,
		"error", err)
	o.queue.Requeue(op, delay)
	return queue.OutcomeFailedRetryable
}

// fail records a permanent failure and completes the operation
func (o *Orchestrator) fail(ctx context.Context, op *queue.Operation, system, reason string) queue.Outcome {
	rec := &records.FailureRecord{
		OperationID: op.ID,
		TenantID:    op.TenantID,
		Kind:        op.Kind,
		EntityID:    op.Key().ID,
		Adapter:     system,
		Reason:      reason,
		Attempt:     op.Attempt + 1,
		FailedAt:    o.clock.Now(),
	}
	slog.Error("Operation failed permanently",
		"operation", op.ID,
		"tenant", op.TenantID,
		"key", op.Key().String(),
		"system", system,
		"reason", reason)

	if err := o.store.RecordFailure(ctx, rec); err != nil {
		slog.Error("Failed to record failure", "operation", op.ID, "error", err)
	}
	if count, burst := o.bursts.record(op.TenantID); burst {
		slog.Warn("Burst of permanent sync failures",
			"tenant", op.TenantID,
			"failures", count,
			"window", burstWindow)
	}

	o.queue.Complete(op)
	return queue.OutcomeFailedPermanent
}

// burstTracker counts permanent failures per tenant over a sliding window
// and reports a burst at most once per window
type burstTracker struct {
	mu        gosync.Mutex
	clock     clock.Clock
	threshold int
	failures  map[string][]time.Time
	warned    map[string]time.Time
}

func newBurstTracker(threshold int) *burstTracker {
	return &burstTracker{
		clock:     clock.Real{},
		threshold: threshold,
		failures:  make(map[string][]time.Time),
		warned:    make(map[string]time.Time),
	}
}

// record adds a failure and returns the failures inside the window and
// whether a warning is due
func (b *burstTracker) record(tenantID string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	cutoff := now.Add(-burstWindow)

	kept := b.failures[tenantID][:0]
	for _, t := range b.failures[tenantID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	b.failures[tenantID] = kept

	if len(kept) <= b.threshold {
		return len(kept), false
	}
	if last, ok := b.warned[tenantID]; ok && now.Sub(last) < burstWindow {
		return len(kept), false
	}
	b.warned[tenantID] = now
	return len(kept), true
}
