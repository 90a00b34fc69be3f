package config

import (
	"fmt"

	"github.com/stacklok/crmsync/internal/conflict"
	"github.com/stacklok/crmsync/internal/status"
)

const maxSyncIntervalSeconds = 7 * 24 * 60 * 60

// TenantConfig is the administrative sync configuration of one tenant.
// It is read from the configuration file and accepted by the admin API.
type TenantConfig struct {
	TenantID string `yaml:"tenantId" json:"tenantId"`

	// SyncEnabled defaults to true when omitted
	SyncEnabled *bool `yaml:"syncEnabled,omitempty" json:"syncEnabled,omitempty"`

	Adapters []AdapterConfig `yaml:"adapters" json:"adapters"`

	// ConflictPolicy is required; there is no implicit default
	ConflictPolicy string `yaml:"conflictPolicy" json:"conflictPolicy"`

	SyncIntervalSeconds int `yaml:"syncIntervalSeconds,omitempty" json:"syncIntervalSeconds,omitempty"`
}

// AdapterConfig enables a connector for a tenant
type AdapterConfig struct {
	Name      string `yaml:"name" json:"name"`
	Direction string `yaml:"direction" json:"direction"`
}

// IsSyncEnabled reports whether periodic and webhook driven sync is on
func (t *TenantConfig) IsSyncEnabled() bool {
	return t.SyncEnabled == nil || *t.SyncEnabled
}

// GetSyncIntervalSeconds returns the sweep interval in seconds
func (t *TenantConfig) GetSyncIntervalSeconds() int {
	if t.SyncIntervalSeconds <= 0 {
		return status.DefaultSyncIntervalSeconds
	}
	return t.SyncIntervalSeconds
}

// Bindings converts the adapter list to state bindings
func (t *TenantConfig) Bindings() []status.AdapterBinding {
	out := make([]status.AdapterBinding, 0, len(t.Adapters))
	for _, a := range t.Adapters {
		out = append(out, status.AdapterBinding{Name: a.Name, Direction: status.Direction(a.Direction)})
	}
	return out
}

// Validate checks the tenant configuration on its own.
// Whether adapters name existing connectors is checked by the caller.
func (t *TenantConfig) Validate() error {
	if !status.ValidTenantID(t.TenantID) {
		return fmt.Errorf("tenantId %q is invalid", t.TenantID)
	}
	if t.ConflictPolicy == "" {
		return fmt.Errorf("conflictPolicy is required")
	}
	if _, err := conflict.ParsePolicy(t.ConflictPolicy); err != nil {
		return err
	}
	if t.SyncIntervalSeconds < 0 || t.SyncIntervalSeconds > maxSyncIntervalSeconds {
		return fmt.Errorf("syncIntervalSeconds must be between 0 and %d", maxSyncIntervalSeconds)
	}

	seen := make(map[string]bool)
	for i, a := range t.Adapters {
		if a.Name == "" {
			return fmt.Errorf("adapters[%d]: name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("adapters[%d]: duplicate adapter '%s'", i, a.Name)
		}
		seen[a.Name] = true

		switch status.Direction(a.Direction) {
		case status.DirectionPull, status.DirectionPush, status.DirectionBidirectional:
		default:
			return fmt.Errorf("adapters[%d] (%s): direction must be one of pull, push, bidirectional", i, a.Name)
		}
	}
	return nil
}

// TenantConfigFromState returns the administrative part of a tenant state
func TenantConfigFromState(st *status.TenantState) TenantConfig {
	enabled := st.SyncEnabled
	cfg := TenantConfig{
		TenantID:            st.TenantID,
		SyncEnabled:         &enabled,
		ConflictPolicy:      st.ConflictPolicy,
		SyncIntervalSeconds: st.SyncIntervalSeconds,
		Adapters:            make([]AdapterConfig, 0, len(st.Adapters)),
	}
	for _, b := range st.Adapters {
		cfg.Adapters = append(cfg.Adapters, AdapterConfig{Name: b.Name, Direction: string(b.Direction)})
	}
	return cfg
}
