// Package telemetry provides OpenTelemetry instrumentation for the sync server.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync engine meter
	SyncMetricsMeterName = "github.com/stacklok/crmsync/sync"

	// WebhookMetricsMeterName is the name used for the webhook ingestion meter
	WebhookMetricsMeterName = "github.com/stacklok/crmsync/webhook"
)

// SyncMetrics holds the OpenTelemetry instruments of the sync engine
type SyncMetrics struct {
	operations        metric.Int64Counter
	operationDuration metric.Float64Histogram
	conflicts         metric.Int64Counter
	sweepDuration     metric.Float64Histogram
	sweepEnqueued     metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	operations, err := meter.Int64Counter(
		"crmsync_operations_total",
		metric.WithDescription("Sync operations processed, by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram(
		"crmsync_operation_duration_seconds",
		metric.WithDescription("Duration of one sync operation attempt in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"crmsync_conflicts_total",
		metric.WithDescription("Conflicts resolved automatically"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	sweepDuration, err := meter.Float64Histogram(
		"crmsync_sweep_duration_seconds",
		metric.WithDescription("Duration of periodic sweeps in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	sweepEnqueued, err := meter.Int64Counter(
		"crmsync_sweep_enqueued_total",
		metric.WithDescription("Operations enqueued by periodic sweeps"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		operations:        operations,
		operationDuration: operationDuration,
		conflicts:         conflicts,
		sweepDuration:     sweepDuration,
		sweepEnqueued:     sweepEnqueued,
	}, nil
}

// RecordOperation records the outcome and duration of one processing attempt
func (m *SyncMetrics) RecordOperation(ctx context.Context, tenantID, outcome string, duration time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("tenant", tenantID),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordConflict records an automatically resolved conflict
func (m *SyncMetrics) RecordConflict(ctx context.Context, tenantID, system, policy string) {
	if m == nil {
		return
	}

	m.conflicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant", tenantID),
		attribute.String("system", system),
		attribute.String("policy", policy),
	))
}

// RecordSweep records the duration of a sweep and the number of operations it enqueued
func (m *SyncMetrics) RecordSweep(ctx context.Context, tenantID string, duration time.Duration, enqueued int, success bool) {
	if m == nil {
		return
	}

	m.sweepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tenant", tenantID),
		attribute.Bool("success", success),
	))
	m.sweepEnqueued.Add(ctx, int64(enqueued), metric.WithAttributes(attribute.String("tenant", tenantID)))
}

// RegisterQueueDepth publishes the queue depth as an observable gauge.
// depth is called on every collection.
func RegisterQueueDepth(provider metric.MeterProvider, depth func() int) error {
	if provider == nil {
		return nil
	}

	meter := provider.Meter(SyncMetricsMeterName)
	_, err := meter.Int64ObservableGauge(
		"crmsync_queue_depth",
		metric.WithDescription("Operations waiting in the sync queue"),
		metric.WithUnit("{operation}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(depth()))
			return nil
		}),
	)
	return err
}

// WebhookMetrics holds the OpenTelemetry instruments of webhook ingestion
type WebhookMetrics struct {
	deliveries metric.Int64Counter
}

// NewWebhookMetrics creates a new WebhookMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewWebhookMetrics(provider metric.MeterProvider) (*WebhookMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	deliveries, err := provider.Meter(WebhookMetricsMeterName).Int64Counter(
		"crmsync_webhook_deliveries_total",
		metric.WithDescription("Webhook deliveries received, by result"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, err
	}
	return &WebhookMetrics{deliveries: deliveries}, nil
}

// RecordDelivery records one webhook delivery. result is accepted, coalesced or rejected.
func (m *WebhookMetrics) RecordDelivery(ctx context.Context, system, result string) {
	if m == nil {
		return
	}

	m.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("system", system),
		attribute.String("result", result),
	))
}
