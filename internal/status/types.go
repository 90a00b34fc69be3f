package status

import (
	"maps"
	"slices"
	"time"
)

// Direction restricts which way records flow between the system-of-record and an adapter
type Direction string

const (
	// DirectionPull only copies external changes into the system-of-record
	DirectionPull Direction = "pull"

	// DirectionPush only copies system-of-record changes to the external system
	DirectionPush Direction = "push"

	// DirectionBidirectional copies changes both ways
	DirectionBidirectional Direction = "bidirectional"
)

// CreationType represents how a tenant was created
type CreationType string

const (
	// CreationTypeAPI means the tenant was created or last configured via the API
	CreationTypeAPI CreationType = "API"

	// CreationTypeCONFIG means the tenant was created from the configuration file
	CreationTypeCONFIG CreationType = "CONFIG"
)

// DefaultSyncIntervalSeconds applies when a tenant does not set an interval
const DefaultSyncIntervalSeconds = 300

// AdapterBinding enables one adapter for a tenant
type AdapterBinding struct {
	Name      string    `json:"name" yaml:"name"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// Reads reports whether changes made in the adapter's system are pulled
func (b AdapterBinding) Reads() bool {
	return b.Direction == DirectionPull || b.Direction == DirectionBidirectional
}

// Writes reports whether system-of-record changes are pushed to the adapter
func (b AdapterBinding) Writes() bool {
	return b.Direction == DirectionPush || b.Direction == DirectionBidirectional
}

// TenantState is the persisted sync configuration and progress of one tenant
type TenantState struct {
	TenantID            string           `json:"tenantId" yaml:"tenantId"`
	SyncEnabled         bool             `json:"syncEnabled" yaml:"syncEnabled"`
	Adapters            []AdapterBinding `json:"adapters" yaml:"adapters"`
	ConflictPolicy      string           `json:"conflictPolicy" yaml:"conflictPolicy"`
	SyncIntervalSeconds int              `json:"syncIntervalSeconds" yaml:"syncIntervalSeconds"`

	// LastFullSyncAt is set when a sweep read every source successfully
	LastFullSyncAt *time.Time `json:"lastFullSyncAt,omitempty" yaml:"lastFullSyncAt,omitempty"`

	// Paused excludes the tenant from queue withdrawals and sweeps
	Paused bool `json:"paused" yaml:"paused"`

	// PausedAdapters maps adapter names to the reason they were paused
	PausedAdapters map[string]string `json:"pausedAdapters,omitempty" yaml:"pausedAdapters,omitempty"`

	// Watermarks maps each source system to the point its changes were read up to
	Watermarks map[string]time.Time `json:"watermarks,omitempty" yaml:"watermarks,omitempty"`

	// CreationType prevents config reloads from overwriting API-managed tenants
	CreationType CreationType `json:"creationType,omitempty" yaml:"creationType,omitempty"`

	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Clone returns a deep copy of the state
func (s *TenantState) Clone() *TenantState {
	if s == nil {
		return nil
	}
	out := *s
	out.Adapters = slices.Clone(s.Adapters)
	out.PausedAdapters = maps.Clone(s.PausedAdapters)
	out.Watermarks = maps.Clone(s.Watermarks)
	if s.LastFullSyncAt != nil {
		ts := *s.LastFullSyncAt
		out.LastFullSyncAt = &ts
	}
	return &out
}

// Adapter returns the binding of the named adapter
func (s *TenantState) Adapter(name string) (AdapterBinding, bool) {
	for _, b := range s.Adapters {
		if b.Name == name {
			return b, true
		}
	}
	return AdapterBinding{}, false
}

// AdapterPaused reports whether the named adapter is paused for the tenant
func (s *TenantState) AdapterPaused(name string) bool {
	_, paused := s.PausedAdapters[name]
	return paused
}

// Interval returns the sweep interval
func (s *TenantState) Interval() time.Duration {
	if s.SyncIntervalSeconds <= 0 {
		return DefaultSyncIntervalSeconds * time.Second
	}
	return time.Duration(s.SyncIntervalSeconds) * time.Second
}

// PausedAdapterNames returns the paused adapters in sorted order
func (s *TenantState) PausedAdapterNames() []string {
	return slices.Sorted(maps.Keys(s.PausedAdapters))
}
