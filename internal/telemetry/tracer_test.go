package telemetry

import (
	"context"
	"testing"

	"github.com/aws/smithy-go/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]*TracingConfig{
		"no config": nil,
		"disabled":  {Enabled: false, Sampling: ptr.Float64(1)},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			tp, err := NewTracerProvider(context.Background(), WithTracingConfig(tc))
			require.NoError(t, err)
			_, ok := tp.(noop.TracerProvider)
			assert.True(t, ok, "expected no-op tracer provider")
		})
	}
}

// inMemoryTracer returns an SDK provider exporting into memory
func inMemoryTracer(t *testing.T, sampling float64) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(context.Background(),
		WithTracerService("crmsync-test", "v1.2.3"),
		WithTracerAttributes(DeploymentAttributes("ghl", []string{"S1", "S2"})...),
		WithTracingConfig(&TracingConfig{Enabled: true, Sampling: ptr.Float64(sampling)}),
		WithSpanExporter(exporter),
	)
	require.NoError(t, err)

	sdkTP, ok := tp.(*sdktrace.TracerProvider)
	require.True(t, ok, "expected SDK tracer provider")
	t.Cleanup(func() { _ = sdkTP.Shutdown(context.Background()) })
	return sdkTP, exporter
}

func TestNewTracerProvider_DeploymentResource(t *testing.T) {
	t.Parallel()

	tp, exporter := inMemoryTracer(t, 1)
	_, span := tp.Tracer("test").Start(context.Background(), "sync.process")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	res := spans[0].Resource.Set()

	sor, ok := res.Value(SystemOfRecordKey)
	require.True(t, ok)
	assert.Equal(t, "ghl", sor.AsString())

	connectors, ok := res.Value(ConnectorsKey)
	require.True(t, ok)
	assert.Equal(t, []string{"S1", "S2"}, connectors.AsStringSlice())

	service, ok := res.Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "crmsync-test", service.AsString())
}

func TestNewTracerProvider_SamplingFollowsRemoteParent(t *testing.T) {
	t.Parallel()

	tp, exporter := inMemoryTracer(t, 0)
	tracer := tp.Tracer("test")

	_, root := tracer.Start(context.Background(), "sync.reconcile")
	root.End()

	remote := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x04, 0x05},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), remote)
	_, webhook := tracer.Start(ctx, "sync.webhook")
	webhook.End()

	unsampled := trace.ContextWithRemoteSpanContext(context.Background(), remote.WithTraceFlags(0))
	_, dropped := tracer.Start(unsampled, "sync.webhook")
	dropped.End()

	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1, "only the span with a sampled parent is recorded")
	assert.Equal(t, "sync.webhook", spans[0].Name)
	assert.Equal(t, remote.TraceID(), spans[0].SpanContext.TraceID())
}

func TestNewSampler(t *testing.T) {
	t.Parallel()

	assert.Contains(t, newSampler(nil).Description(), "root:TraceIDRatioBased{0.05}")
	assert.Contains(t, newSampler(&TracingConfig{Sampling: ptr.Float64(0)}).Description(), "root:TraceIDRatioBased{0}")
	assert.Contains(t, newSampler(&TracingConfig{Sampling: ptr.Float64(1)}).Description(), "root:AlwaysOnSampler")
}
