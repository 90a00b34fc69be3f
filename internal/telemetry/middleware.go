package telemetry

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// HTTPMetricsMeterName is the name used for the HTTP metrics meter
	HTTPMetricsMeterName = "github.com/stacklok/crmsync/http"

	// unknownRoute replaces paths no route matched
	unknownRoute = "unknown_route"
)

// API surfaces a request can belong to
const (
	SurfaceWebhook = "webhook"
	SurfaceAdmin   = "admin"
	SurfaceHealth  = "health"
)

// HTTPMetrics holds the OpenTelemetry instruments for HTTP metrics
type HTTPMetrics struct {
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the HTTP instruments on provider.
// A nil provider yields nil, whose Middleware passes requests through.
func NewHTTPMetrics(provider metric.MeterProvider) (*HTTPMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(HTTPMetricsMeterName)

	requestDuration, err := meter.Float64Histogram(
		"crmsync_http_request_duration_seconds",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"crmsync_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"crmsync_http_active_requests",
		metric.WithDescription("Number of HTTP requests being served, by API surface"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requestDuration: requestDuration,
		requestsTotal:   requestsTotal,
		activeRequests:  activeRequests,
	}, nil
}

// Middleware records duration and count of each request by method, route
// pattern, status, API surface and, for accepted webhooks, sending system.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the request context may be cancelled once ServeHTTP returns
		ctx := r.Context()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		surface := surfaceOf(r.URL.Path)
		inFlight := metric.WithAttributes(attribute.String("surface", surface))
		m.activeRequests.Add(ctx, 1, inFlight)
		next.ServeHTTP(ww, r)
		m.activeRequests.Add(ctx, -1, inFlight)

		attrs := []attribute.KeyValue{
			attribute.String("method", r.Method),
			attribute.String("route", getRoutePattern(r)),
			attribute.String("status_code", strconv.Itoa(ww.Status())),
			attribute.String("surface", surface),
		}
		// systems are only labelled once the webhook was accepted, unknown
		// names in the path would otherwise grow the label set
		if surface == SurfaceWebhook && ww.Status() < http.StatusBadRequest {
			if system := chi.URLParam(r, "system"); system != "" {
				attrs = append(attrs, attribute.String("system", system))
			}
		}

		opt := metric.WithAttributes(attrs...)
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), opt)
		m.requestsTotal.Add(ctx, 1, opt)
	})
}

// getRoutePattern returns the chi route pattern, such as
// "/sync/status/{tenantId}", or unknownRoute when nothing matched.
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unknownRoute
}

func surfaceOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/sync/webhook/"):
		return SurfaceWebhook
	case path == "/sync" || strings.HasPrefix(path, "/sync/"):
		return SurfaceAdmin
	default:
		return SurfaceHealth
	}
}

// MetricsMiddleware creates the HTTP metrics middleware from a MeterProvider
func MetricsMiddleware(provider metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	metrics, err := NewHTTPMetrics(provider)
	if err != nil {
		return nil, err
	}
	return metrics.Middleware, nil
}
