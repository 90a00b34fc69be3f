package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/status"
	statusmocks "github.com/stacklok/crmsync/internal/status/mocks"
)

func TestFileStateService(t *testing.T) {
	t.Parallel()

	testServiceContract(t, func(t *testing.T) TenantStateService {
		t.Helper()
		return NewFileStateService(status.NewFileStatusPersistence(t.TempDir()))
	})
}

func TestFileStateService_SurvivesRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	first := NewFileStateService(status.NewFileStatusPersistence(dir))
	require.NoError(t, first.Initialize(ctx, []config.TenantConfig{tenantConfig("acme", s1Bidirectional)}))
	_, err := PauseTenant(ctx, first, "acme")
	require.NoError(t, err)

	second := NewFileStateService(status.NewFileStatusPersistence(dir))
	require.NoError(t, second.Initialize(ctx, []config.TenantConfig{tenantConfig("acme", s1Bidirectional)}))
	assert.True(t, second.IsPaused("acme"))
}

func TestFileStateService_SaveFailureKeepsCache(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	persistence := statusmocks.NewMockStatusPersistence(ctrl)
	ctx := context.Background()

	persistence.EXPECT().LoadAllStates(gomock.Any()).Return(map[string]*status.TenantState{}, nil)
	persistence.EXPECT().SaveState(gomock.Any(), "acme", gomock.Any()).Return(nil)

	svc := NewFileStateService(persistence)
	require.NoError(t, svc.Initialize(ctx, []config.TenantConfig{tenantConfig("acme", s1Bidirectional)}))

	persistence.EXPECT().SaveState(gomock.Any(), "acme", gomock.Any()).Return(errors.New("disk full"))
	_, err := PauseTenant(ctx, svc, "acme")
	require.Error(t, err)
	assert.False(t, svc.IsPaused("acme"))
}

func TestFileStateService_InitializeLoadError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	persistence := statusmocks.NewMockStatusPersistence(ctrl)
	persistence.EXPECT().LoadAllStates(gomock.Any()).Return(nil, errors.New("permission denied"))

	svc := NewFileStateService(persistence)
	assert.Error(t, svc.Initialize(context.Background(), nil))
}

func TestNewStateService(t *testing.T) {
	t.Parallel()

	persistence := status.NewFileStatusPersistence(t.TempDir())

	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr string
	}{
		{name: "file by default", cfg: &config.Config{}},
		{name: "file", cfg: &config.Config{Storage: config.StorageConfig{Type: config.StorageTypeFile}}},
		{
			name:    "database without pool",
			cfg:     &config.Config{Storage: config.StorageConfig{Type: config.StorageTypeDatabase}},
			wantErr: "database pool is required",
		},
		{
			name:    "unknown",
			cfg:     &config.Config{Storage: config.StorageConfig{Type: "s3"}},
			wantErr: "unknown storage type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, err := NewStateService(tt.cfg, persistence, nil)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}
