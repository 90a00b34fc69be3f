package config

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ConfigManager provides thread-safe, read-only configuration management.
// The file is never written by the server; updates come from outside
// (ConfigMap swaps, volume mounts, editors) and are validated before use.
//
//nolint:revive // This name is fine
type ConfigManager interface {
	// GetConfig safely retrieves the current configuration
	GetConfig() *Config

	// ReloadConfig reads the latest configuration from disk and applies it if valid.
	// Returns error if the new config is invalid; the previous one stays active.
	ReloadConfig() error

	// OnReload registers fn to be called with every newly applied configuration
	OnReload(fn func(*Config))

	// WatchConfig observes the configuration file and reloads it on change.
	// Blocks until ctx is cancelled.
	WatchConfig(ctx context.Context) error

	// Close releases the file watcher resources
	Close() error
}

// ConfigValidator validates a configuration before it is applied
//
//nolint:revive // This name is fine
type ConfigValidator interface {
	Validate(config *Config) error
}

// ConfigLoader reads a configuration file without validating it
//
//nolint:revive // This name is fine
type ConfigLoader interface {
	LoadConfig(path string) (*Config, error)
}

type defaultValidator struct{}

func (*defaultValidator) Validate(config *Config) error {
	return config.Validate()
}

type yamlLoader struct{}

func (yamlLoader) LoadConfig(path string) (*Config, error) {
	return readConfigFile(path)
}

// NewConfigLoader returns a loader reading YAML files
func NewConfigLoader() ConfigLoader {
	return yamlLoader{}
}

type configManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	loader     ConfigLoader
	validator  ConfigValidator
	listeners  []func(*Config)
	watcher    *fsnotify.Watcher
	watcherMu  sync.Mutex
}

// ConfigManagerOption allows customizing ConfigManager behavior
//
//nolint:revive // This name is fine
type ConfigManagerOption func(*configManager)

// WithValidator sets a custom validator for the config manager
func WithValidator(validator ConfigValidator) ConfigManagerOption {
	return func(cm *configManager) {
		cm.validator = validator
	}
}

// WithLoader sets a custom config loader for the config manager
func WithLoader(loader ConfigLoader) ConfigManagerOption {
	return func(cm *configManager) {
		cm.loader = loader
	}
}

// NewConfigManager creates a ConfigManager for the given file and loads it.
// Returns error if initial load or validation fails.
func NewConfigManager(configPath string, opts ...ConfigManagerOption) (ConfigManager, error) {
	cm := &configManager{
		configPath: configPath,
		loader:     NewConfigLoader(),
		validator:  &defaultValidator{},
	}
	for _, opt := range opts {
		opt(cm)
	}

	if err := cm.ReloadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load initial configuration: %w", err)
	}
	return cm, nil
}

// GetConfig returns a shallow copy of the active configuration
func (cm *configManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	configCopy := *cm.config
	return &configCopy
}

func (cm *configManager) OnReload(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.listeners = append(cm.listeners, fn)
}

// ReloadConfig reads the configuration file and applies it if valid
func (cm *configManager) ReloadConfig() error {
	newConfig, err := cm.loader.LoadConfig(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cm.validator.Validate(newConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cm.mu.Lock()
	initial := cm.config == nil
	cm.config = newConfig
	listeners := slices.Clone(cm.listeners)
	cm.mu.Unlock()

	slog.Info("Configuration loaded", "path", cm.configPath, "tenants", len(newConfig.Tenants))
	if !initial {
		for _, fn := range listeners {
			configCopy := *newConfig
			fn(&configCopy)
		}
	}
	return nil
}

// WatchConfig observes the configuration file for external changes.
// This method blocks until the context is cancelled.
func (cm *configManager) WatchConfig(ctx context.Context) error {
	cm.watcherMu.Lock()
	if cm.watcher != nil {
		cm.watcherMu.Unlock()
		return fmt.Errorf("config watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cm.watcherMu.Unlock()
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	cm.watcher = watcher
	cm.watcherMu.Unlock()

	if err := watcher.Add(cm.configPath); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", cm.configPath, err)
	}

	slog.Info("Started watching configuration file", "path", cm.configPath)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Stopping config file watcher")
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				slog.Info("External config update detected, reloading", "path", cm.configPath)
				if err := cm.ReloadConfig(); err != nil {
					slog.Error("Failed to reload config, keeping previous configuration", "error", err)
				}
			}

			// atomic replacements remove the watched inode
			if event.Has(fsnotify.Remove) {
				slog.Debug("Config file removed, re-watching", "path", cm.configPath)
				_ = watcher.Add(cm.configPath)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

// Close closes the file watcher if active
func (cm *configManager) Close() error {
	cm.watcherMu.Lock()
	defer cm.watcherMu.Unlock()

	if cm.watcher != nil {
		if err := cm.watcher.Close(); err != nil {
			return fmt.Errorf("failed to close file watcher: %w", err)
		}
		cm.watcher = nil
		slog.Info("Config watcher closed")
	}
	return nil
}
