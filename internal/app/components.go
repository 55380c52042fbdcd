package app

import (
	"github.com/stacklok/repo-activity-sync/internal/app/storage"
	"github.com/stacklok/repo-activity-sync/internal/status"
	"github.com/stacklok/repo-activity-sync/internal/sync/coordinator"
	"github.com/stacklok/repo-activity-sync/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator runs scheduled and manual sync batches
	SyncCoordinator coordinator.Coordinator

	// StorageFactory owns the connection pool shared by all storage components
	StorageFactory storage.Factory

	// Tracker exposes the scheduler state to the status endpoint
	Tracker *status.Tracker

	// Telemetry holds the tracer and meter providers (optional)
	Telemetry *telemetry.Telemetry
}
