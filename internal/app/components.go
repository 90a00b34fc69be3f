package app

import (
	"context"

	"github.com/stacklok/crmsync/internal/connector"
	"github.com/stacklok/crmsync/internal/service"
	"github.com/stacklok/crmsync/internal/sync/coordinator"
	"github.com/stacklok/crmsync/internal/sync/queue"
	"github.com/stacklok/crmsync/internal/sync/records"
	"github.com/stacklok/crmsync/internal/sync/state"
	"github.com/stacklok/crmsync/internal/webhook"
)

// worker is a background component whose Start blocks until it is stopped
type worker interface {
	Start(ctx context.Context) error
	Stop() error
}

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	StateService state.TenantStateService
	Store        records.Store
	Queue        *queue.Queue
	Connectors   *connector.Registry

	// Orchestrator drains the queue with the worker pool
	Orchestrator worker

	// Scheduler runs the periodic sweeps
	Scheduler coordinator.Scheduler

	Ingestor    webhook.Ingestor
	SyncService service.SyncService
}
