// Package storage provides factory functions for creating storage-dependent components.
// All components created by one factory share a single PostgreSQL connection pool.
package storage

import (
	"context"

	"github.com/stacklok/repo-activity-sync/internal/credentials"
	"github.com/stacklok/repo-activity-sync/internal/registry"
	"github.com/stacklok/repo-activity-sync/internal/sync/writer"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks github.com/stacklok/repo-activity-sync/internal/app/storage Factory

// Factory creates storage-dependent components as a family.
//
// The factory encapsulates the creation of:
// - registry.Store: tracked repositories and their fetch times
// - credentials.Resolver: access tokens associated with repositories
// - writer.SyncWriter: the append-only activity record store
//
// It also owns the lifecycle of the underlying connection pool.
type Factory interface {
	// CreateRepositoryStore creates the tracked repository store
	CreateRepositoryStore(ctx context.Context) (registry.Store, error)

	// CreateCredentialResolver creates the credential resolver
	CreateCredentialResolver(ctx context.Context) (credentials.Resolver, error)

	// CreateSyncWriter creates the writer storing activity records
	CreateSyncWriter(ctx context.Context) (writer.SyncWriter, error)

	// Ping verifies the storage backend is reachable
	Ping(ctx context.Context) error

	// Cleanup releases any resources held by this factory.
	// Should be called when the application shuts down.
	Cleanup()
}
