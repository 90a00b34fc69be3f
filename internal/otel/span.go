// Package otel provides OpenTelemetry instrumentation utilities for the sync server.
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for business context used across the application.
// Using shared keys ensures consistent attribute naming in traces.
const (
	AttrTenantID    = attribute.Key("tenant.id")
	AttrEntityKind  = attribute.Key("entity.kind")
	AttrEntityID    = attribute.Key("entity.id")
	AttrSystem      = attribute.Key("sync.system")
	AttrDirection   = attribute.Key("sync.direction")
	AttrAttempt     = attribute.Key("sync.attempt")
	AttrOutcome     = attribute.Key("sync.outcome")
	AttrResultCount = attribute.Key("result.count")
	AttrOperationID = attribute.Key("sync.operation_id")
	AttrErrorType   = attribute.Key("error.type")
)

// RetryEvent is added to spans whose operation failed but will run again
const RetryEvent = "sync.retry"

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
// This provides graceful degradation when tracing is disabled.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
// Note: The status description is intentionally generic to prevent sensitive
// information (e.g., SQL queries, connection strings) from appearing in trace
// status. The full error details are still available via span events for debugging.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// RecordOutcome tags the span with how a sync operation ended. A failed
// operation marks the span as an error. Otherwise a non-nil err, such as a
// transient connector failure, adds a RetryEvent and leaves the status unset.
func RecordOutcome(span trace.Span, outcome string, err error, failed bool) {
	if span == nil {
		return
	}
	span.SetAttributes(AttrOutcome.String(outcome))
	switch {
	case err == nil:
	case failed:
		RecordError(span, err)
	default:
		span.AddEvent(RetryEvent, trace.WithAttributes(AttrErrorType.String(fmt.Sprintf("%T", err))))
	}
}
