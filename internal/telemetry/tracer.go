package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProviderOption configures NewTracerProvider
type TracerProviderOption func(*tracerProviderConfig)

type tracerProviderConfig struct {
	serviceName    string
	serviceVersion string
	attributes     []attribute.KeyValue
	tracingConfig  *TracingConfig
	endpoint       string
	insecure       bool
	exporter       sdktrace.SpanExporter
}

// WithTracerService names the service in the exported resource
func WithTracerService(name, version string) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.serviceName = name
		cfg.serviceVersion = version
	}
}

// WithTracerAttributes adds resource attributes, see DeploymentAttributes
func WithTracerAttributes(attrs ...attribute.KeyValue) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.attributes = append(cfg.attributes, attrs...)
	}
}

// WithTracingConfig sets the tracing configuration
func WithTracingConfig(tc *TracingConfig) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.tracingConfig = tc
	}
}

// WithTracerEndpoint sets the OTLP collector endpoint and whether plain HTTP is used
func WithTracerEndpoint(endpoint string, insecure bool) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.endpoint = endpoint
		cfg.insecure = insecure
	}
}

// WithSpanExporter replaces the OTLP exporter
func WithSpanExporter(exporter sdktrace.SpanExporter) TracerProviderOption {
	return func(cfg *tracerProviderConfig) {
		cfg.exporter = exporter
	}
}

// NewTracerProvider creates the process tracer provider and installs it, with
// W3C trace context propagation, as the global one. Tracing disabled yields a
// no-op provider. The caller shuts the returned provider down.
func NewTracerProvider(ctx context.Context, opts ...TracerProviderOption) (trace.TracerProvider, error) {
	cfg := &tracerProviderConfig{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
		endpoint:       DefaultEndpoint,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.tracingConfig == nil || !cfg.tracingConfig.Enabled {
		slog.Info("Tracing disabled, using no-op tracer provider")
		return noop.NewTracerProvider(), nil
	}

	res, err := newResource(ctx, cfg.serviceName, cfg.serviceVersion, cfg.attributes)
	if err != nil {
		return nil, err
	}

	exporter := cfg.exporter
	if exporter == nil {
		exporter, err = newOTLPSpanExporter(ctx, cfg.endpoint, cfg.insecure)
		if err != nil {
			return nil, err
		}
		if cfg.insecure {
			slog.Warn("Tracing configured with insecure connection - telemetry data will be transmitted over unencrypted HTTP. This should only be used in development/testing environments.")
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(newSampler(cfg.tracingConfig)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("Tracing initialized",
		"endpoint", cfg.endpoint,
		"sampling_ratio", cfg.tracingConfig.GetSampling(),
		"insecure", cfg.insecure,
	)
	return tp, nil
}

// newSampler samples new traces at the configured ratio and otherwise
// follows the decision of the parent, including a remote one.
func newSampler(tc *TracingConfig) sdktrace.Sampler {
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.GetSampling()))
}

func newOTLPSpanExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP tracing exporter: %w", err)
	}
	return exporter, nil
}
