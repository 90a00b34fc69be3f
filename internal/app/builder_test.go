package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/crmsync/internal/app/storage/mocks"
	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/status"
	"github.com/stacklok/crmsync/internal/sync/state"
)

func TestWithAddress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		address string
		want    string
		wantErr bool
	}{
		{name: "valid address", address: ":9999", want: ":9999"},
		{name: "valid address with host", address: "127.0.0.1:9999", want: "127.0.0.1:9999"},
		{name: "valid address with host and port", address: "localhost:9999", want: "localhost:9999"},
		{name: "invalid empty address", address: "", wantErr: true},
		{name: "invalid empty port", address: ":", wantErr: true},
		{name: "missing port", address: "localhost", wantErr: true},
		{name: "invalid address with host and port", address: "localhost:999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &syncAppConfig{}
			err := WithAddress(tt.address)(cfg)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.address)
		})
	}
}

func TestBaseConfig(t *testing.T) {
	t.Parallel()

	_, err := baseConfig()
	require.ErrorContains(t, err, "config is required")

	cfg, err := baseConfig(WithConfig(&config.Config{}))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.address)
	assert.Equal(t, defaultRequestTimeout, cfg.requestTimeout)

	cfg, err = baseConfig(WithConfig(&config.Config{Server: config.ServerConfig{Address: ":9090"}}), WithAddress(":7070"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.address)
}

func TestNewSyncApp(t *testing.T) {
	t.Parallel()

	secretFile := filepath.Join(t.TempDir(), "jwt")
	require.NoError(t, os.WriteFile(secretFile, []byte("admin-secret"), 0o600))

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{
			name:   "memory connectors",
			mutate: func(*config.Config) {},
		},
		{
			name: "unsupported connector type",
			mutate: func(cfg *config.Config) {
				cfg.Connectors[1].Type = "soap"
			},
			wantErr: `unsupported type "soap"`,
		},
		{
			name: "rest connector without settings",
			mutate: func(cfg *config.Config) {
				cfg.Connectors[0].Type = config.ConnectorTypeREST
			},
			wantErr: "rest settings are required",
		},
		{
			name: "webhook without secret",
			mutate: func(cfg *config.Config) {
				cfg.Webhooks = []config.WebhookConfig{{System: "S1", SecretEnv: "CRMSYNC_TEST_UNSET_WEBHOOK_SECRET"}}
			},
			wantErr: "webhook S1",
		},
		{
			name: "unsupported auth mode",
			mutate: func(cfg *config.Config) {
				cfg.Auth = &config.AuthConfig{Mode: "oauth"}
			},
			wantErr: "unsupported auth mode",
		},
		{
			name: "jwt with authorization",
			mutate: func(cfg *config.Config) {
				cfg.Auth = &config.AuthConfig{
					Mode:          config.AuthModeJWT,
					JWT:           &config.JWTConfig{SecretFile: secretFile},
					Authorization: &config.AuthorizationConfig{},
				}
			},
		},
		{
			name: "missing policy file",
			mutate: func(cfg *config.Config) {
				cfg.Auth = &config.AuthConfig{
					Mode:          config.AuthModeJWT,
					JWT:           &config.JWTConfig{SecretFile: secretFile},
					Authorization: &config.AuthorizationConfig{PolicyFile: secretFile + ".cedar"},
				}
			},
			wantErr: "failed to build authorization middleware",
		},
		{
			name: "unknown storage type",
			mutate: func(cfg *config.Config) {
				cfg.Storage.Type = "s3"
			},
			wantErr: "unknown storage type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testAppConfig(t.TempDir())
			tt.mutate(cfg)

			syncApp, err := NewSyncApp(context.Background(), WithConfig(cfg))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, syncApp)
				return
			}
			require.NoError(t, err)
			t.Cleanup(syncApp.storageFactory.Cleanup)

			components := syncApp.Components()
			assert.Equal(t, []string{"S1", "S2", "SoR"}, components.Connectors.Names())
			assert.NotNil(t, components.Ingestor)
			assert.NotNil(t, components.SyncService)
			assert.Equal(t, "127.0.0.1:0", syncApp.GetHTTPServer().Addr)

			tenants, err := components.StateService.ListTenants(context.Background())
			require.NoError(t, err)
			require.Len(t, tenants, 1)
			assert.Equal(t, "acme", tenants[0].TenantID)
		})
	}
}

func TestNewSyncApp_StorageFailureCleansUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(f *mocks.MockFactory, dir string)
		wantErr string
	}{
		{
			name: "state service",
			setup: func(f *mocks.MockFactory, _ string) {
				f.EXPECT().CreateStateService(gomock.Any()).Return(nil, assert.AnError)
			},
			wantErr: "failed to create state service",
		},
		{
			name: "record store",
			setup: func(f *mocks.MockFactory, dir string) {
				f.EXPECT().CreateStateService(gomock.Any()).Return(state.NewFileStateService(status.NewFileStatusPersistence(dir)), nil)
				f.EXPECT().CreateRecordStore(gomock.Any()).Return(nil, assert.AnError)
			},
			wantErr: "failed to create record store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			factory := mocks.NewMockFactory(ctrl)
			tt.setup(factory, t.TempDir())
			factory.EXPECT().Cleanup().Times(1)

			syncApp, err := NewSyncApp(context.Background(),
				WithConfig(testAppConfig(t.TempDir())),
				WithStorageFactory(factory),
			)
			require.ErrorContains(t, err, tt.wantErr)
			require.ErrorIs(t, err, assert.AnError)
			assert.Nil(t, syncApp)
		})
	}
}

func TestBuildHTTPServer_Routes(t *testing.T) {
	t.Parallel()

	registry, _, _ := memoryConnectors(t)
	denyAll := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}

	syncApp, err := NewSyncApp(context.Background(),
		WithConfig(testAppConfig(t.TempDir())),
		WithConnectors(registry),
		WithAuthMiddleware(denyAll),
	)
	require.NoError(t, err)
	t.Cleanup(syncApp.storageFactory.Cleanup)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "health is public", method: "GET", path: "/health", wantStatus: http.StatusOK},
		{name: "readiness is public", method: "GET", path: "/readiness", wantStatus: http.StatusOK},
		{name: "admin requires auth", method: "GET", path: "/sync/tenants", wantStatus: http.StatusUnauthorized},
		{name: "webhook bypasses admin auth", method: "POST", path: "/sync/webhook/S9", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := httptest.NewRecorder()
			syncApp.GetHTTPServer().Handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
