// Package service provides the administrative operations of the sync server:
// tenant status, configuration, pause and resume, manual sweeps and disconnects.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/crmsync/internal/config"
	"github.com/stacklok/crmsync/internal/entity"
	"github.com/stacklok/crmsync/internal/status"
	"github.com/stacklok/crmsync/internal/sync/coordinator"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
)

var (
	// ErrTenantNotFound is returned when a tenant does not exist
	ErrTenantNotFound = state.ErrTenantNotFound

	// ErrInvalidConfig is returned when a tenant configuration is rejected
	ErrInvalidConfig = errors.New("invalid tenant configuration")

	// ErrAdapterNotEnabled is returned when an operation names an adapter the tenant does not use
	ErrAdapterNotEnabled = errors.New("adapter is not enabled for tenant")

	// ErrConfigManaged is returned when the API tries to change or delete a
	// tenant owned by the configuration file
	ErrConfigManaged = errors.New("tenant is managed by the configuration file")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go SyncService

// SyncService defines the administrative operations of the sync server
type SyncService interface {
	// CheckReadiness checks if the service is ready to serve requests
	CheckReadiness(ctx context.Context) error

	// ListTenants returns a summary of every tenant ordered by id
	ListTenants(ctx context.Context) ([]*TenantSummary, error)

	// GetStatus returns queue and progress information of one tenant
	GetStatus(ctx context.Context, tenantID string) (*TenantStatus, error)

	// GetTenantConfig returns the administrative configuration of a tenant
	GetTenantConfig(ctx context.Context, tenantID string) (*config.TenantConfig, error)

	// PutTenantConfig creates a tenant or replaces its configuration.
	// Watermarks and pause state of an existing tenant are preserved.
	PutTenantConfig(ctx context.Context, cfg config.TenantConfig) (*config.TenantConfig, error)

	// PauseTenant stops all sync work of a tenant until it is resumed
	PauseTenant(ctx context.Context, tenantID string) error

	// ResumeTenant resumes a paused tenant, or only the named adapter when adapter is set.
	// Operations parked behind a resumed adapter are queued again.
	ResumeTenant(ctx context.Context, tenantID, adapter string) (*ResumeResult, error)

	// TriggerSync runs a sweep of the tenant right away
	TriggerSync(ctx context.Context, tenantID string) (*coordinator.SweepResult, error)

	// DeleteTenant disconnects a tenant: queued work, mappings and configuration are removed
	DeleteTenant(ctx context.Context, tenantID string) (*DeleteResult, error)
}

// TenantSummary is one entry of the tenant list
type TenantSummary struct {
	TenantID       string                  `json:"tenantId"`
	SyncEnabled    bool                    `json:"syncEnabled"`
	Paused         bool                    `json:"paused"`
	PausedAdapters []string                `json:"pausedAdapters,omitempty"`
	Adapters       []status.AdapterBinding `json:"adapters"`
	CreationType   status.CreationType     `json:"creationType"`
	LastFullSyncAt *time.Time              `json:"lastFullSyncAt,omitempty"`
}

// TenantStatus describes the sync progress of one tenant
type TenantStatus struct {
	TenantID        string               `json:"tenantId"`
	SyncEnabled     bool                 `json:"syncEnabled"`
	Paused          bool                 `json:"paused"`
	PausedAdapters  map[string]string    `json:"pausedAdapters,omitempty"`
	QueueDepth      int                  `json:"queueDepth"`
	ParkedByAdapter map[string]int       `json:"parkedByAdapter,omitempty"`
	LastFullSyncAt  *time.Time           `json:"lastFullSyncAt,omitempty"`
	Watermarks      map[string]time.Time `json:"watermarks,omitempty"`

	RecentConflicts []*entity.ConflictRecord `json:"recentConflicts"`
	FailureCount    int                      `json:"failureCount"`
	RecentFailures  []*records.FailureRecord `json:"recentFailures"`
}

// ResumeResult reports what a resume released
type ResumeResult struct {
	TenantID      string   `json:"tenantId"`
	TenantResumed bool     `json:"tenantResumed"`
	Resumed       []string `json:"resumedAdapters"`
	Unparked      int      `json:"unparked"`
}

// DeleteResult reports what a disconnect removed
type DeleteResult struct {
	TenantID          string `json:"tenantId"`
	DroppedOperations int    `json:"droppedOperations"`
	DeletedMappings   int    `json:"deletedMappings"`
}
