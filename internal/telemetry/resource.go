package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource attributes describing the sync deployment
const (
	SystemOfRecordKey = attribute.Key("crmsync.system_of_record")
	ConnectorsKey     = attribute.Key("crmsync.connectors")
)

// DeploymentAttributes describes which systems this process synchronizes.
// They are attached to every span and metric it exports.
func DeploymentAttributes(systemOfRecord string, connectors []string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if systemOfRecord != "" {
		attrs = append(attrs, SystemOfRecordKey.String(systemOfRecord))
	}
	if len(connectors) > 0 {
		attrs = append(attrs, ConnectorsKey.StringSlice(connectors))
	}
	return attrs
}

// newResource builds the resource shared by the tracer and meter providers.
// resource.New keeps the schema URL from conflicting with resource.Default().
func newResource(ctx context.Context, serviceName, serviceVersion string, attrs []attribute.KeyValue) (*resource.Resource, error) {
	all := append([]attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	}, attrs...)

	res, err := resource.New(ctx,
		resource.WithAttributes(all...),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
