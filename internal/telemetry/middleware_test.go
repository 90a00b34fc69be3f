package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// syncRouter mimics the server layout: health at the root, signed webhooks
// per system and the admin API, all behind the metrics middleware
func syncRouter(t *testing.T, mw func(http.Handler) http.Handler) http.Handler {
	t.Helper()

	webhooks := chi.NewRouter()
	webhooks.Post("/{system}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "system") != "S1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	admin := chi.NewRouter()
	admin.Get("/status/{tenantId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	admin.Post("/tenant/{tenantId}/sync", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Mount("/sync/webhook", webhooks)
	r.Mount("/sync", admin)
	return r
}

// collect returns the data points of a metric keyed by their encoded attributes
func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	points := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != HTTPMetricsMeterName {
			continue
		}
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				points[dp.Attributes.Encoded(attribute.DefaultEncoder())] = dp.Value
			}
		}
	}
	return points
}

func TestHTTPMetrics_SyncRoutes(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	mw, err := MetricsMiddleware(mp)
	require.NoError(t, err)
	router := syncRouter(t, mw)

	requests := []struct {
		method, path string
		wantStatus   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/sync/webhook/S1", http.StatusAccepted},
		{http.MethodPost, "/sync/webhook/S1", http.StatusAccepted},
		{http.MethodPost, "/sync/webhook/not-configured", http.StatusNotFound},
		{http.MethodGet, "/sync/status/acme", http.StatusOK},
		{http.MethodGet, "/sync/status/globex", http.StatusOK},
		{http.MethodPost, "/sync/tenant/acme/sync", http.StatusServiceUnavailable},
	}
	for _, req := range requests {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(req.method, req.path, nil))
		require.Equal(t, req.wantStatus, rr.Code, req.path)
	}

	totals := collect(t, reader, "crmsync_http_requests_total")
	assert.Equal(t, map[string]int64{
		"method=GET,route=/health,status_code=200,surface=health":                            1,
		"method=POST,route=/sync/webhook/{system},status_code=202,surface=webhook,system=S1": 2,
		"method=POST,route=/sync/webhook/{system},status_code=404,surface=webhook":           1,
		"method=GET,route=/sync/status/{tenantId},status_code=200,surface=admin":             2,
		"method=POST,route=/sync/tenant/{tenantId}/sync,status_code=503,surface=admin":       1,
	}, totals)

	for key := range totals {
		assert.False(t, strings.Contains(key, "acme"), "tenant ids stay out of labels")
		assert.False(t, strings.Contains(key, "not-configured"), "unknown systems stay out of labels")
	}

	active := collect(t, reader, "crmsync_http_active_requests")
	assert.Equal(t, map[string]int64{
		"surface=health":  0,
		"surface=webhook": 0,
		"surface=admin":   0,
	}, active)
}

func TestHTTPMetrics_Disabled(t *testing.T) {
	t.Parallel()

	metrics, err := NewHTTPMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	providers := map[string]metric.MeterProvider{
		"nil provider":  nil,
		"noop provider": noop.NewMeterProvider(),
	}
	for name, provider := range providers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			mw, err := MetricsMiddleware(provider)
			require.NoError(t, err)

			rr := httptest.NewRecorder()
			syncRouter(t, mw).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sync/webhook/S1", nil))
			assert.Equal(t, http.StatusAccepted, rr.Code)
		})
	}
}

func TestSurfaceOf(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/sync/webhook/S1":        SurfaceWebhook,
		"/sync/tenants":           SurfaceAdmin,
		"/sync/tenant/acme/pause": SurfaceAdmin,
		"/sync":                   SurfaceAdmin,
		"/synchronize":            SurfaceHealth,
		"/readiness":              SurfaceHealth,
		"/":                       SurfaceHealth,
	}
	for path, want := range tests {
		assert.Equal(t, want, surfaceOf(path), path)
	}
}

func TestGetRoutePattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, unknownRoute, getRoutePattern(httptest.NewRequest(http.MethodGet, "/sync/status/acme", nil)))

	var got string
	r := chi.NewRouter()
	r.Get("/sync/status/{tenantId}", func(_ http.ResponseWriter, r *http.Request) {
		got = getRoutePattern(r)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sync/status/acme", nil))
	assert.Equal(t, "/sync/status/{tenantId}", got)
}
