package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `systemOfRecord:
  name: ghl
  type: memory
`

func TestNewConfigManager(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content *string
		errMsg  string
	}{
		{name: "valid_config", content: ptr(validYAML)},
		{name: "invalid_config", content: ptr("connectors: []\n"), errMsg: "invalid configuration"},
		{name: "invalid_yaml_syntax", content: ptr("invalid: [yaml"), errMsg: "failed to load initial configuration"},
		{name: "nonexistent_config", errMsg: "failed to load initial configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "config.yaml")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0600))
			}

			manager, err := NewConfigManager(path)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, manager.GetConfig())
			assert.NoError(t, manager.Close())
		})
	}
}

func TestConfigManager_ReloadKeepsLastGoodConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validYAML)
	manager, err := NewConfigManager(path)
	require.NoError(t, err)

	var reloaded []*Config
	manager.OnReload(func(c *Config) { reloaded = append(reloaded, c) })

	require.NoError(t, os.WriteFile(path, []byte("connectors: []\n"), 0600))
	err = manager.ReloadConfig()
	require.Error(t, err)
	assert.Len(t, manager.GetConfig().Tenants, 1, "previous configuration stays active")
	assert.Empty(t, reloaded)

	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0600))
	require.NoError(t, manager.ReloadConfig())
	assert.Empty(t, manager.GetConfig().Tenants)
	require.Len(t, reloaded, 1)
	assert.Equal(t, "ghl", reloaded[0].SystemOfRecord.Name)
}

func TestConfigManager_WatchConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, minimalYAML)
	manager, err := NewConfigManager(path)
	require.NoError(t, err)
	defer manager.Close()

	var mu sync.Mutex
	var tenants int
	manager.OnReload(func(c *Config) {
		mu.Lock()
		defer mu.Unlock()
		tenants = len(c.Tenants)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.WatchConfig(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return tenants == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func ptr[T any](v T) *T {
	return &v
}
