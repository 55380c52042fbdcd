// Package registry manages the set of tracked repositories and their
// staleness state.
//
// A TrackedRepository is created once per canonical link and is never deleted
// here. Its LastFetchedAt timestamp is advanced only through Store.MarkFetched,
// which the batch coordinator calls after a successful per-repository pass.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/stacklok/repo-activity-sync/internal/registry Store

var (
	// ErrRepositoryNotFound is returned when a repository is not tracked
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrInvalidRepositoryLink is returned when a repository link cannot be canonicalized
	ErrInvalidRepositoryLink = errors.New("invalid repository link")
)

// TrackedRepository is a source-code repository registered for activity ingestion
type TrackedRepository struct {
	ID            uuid.UUID
	CanonicalLink string
	CreatedAt     time.Time
	LastFetchedAt *time.Time
}

// IsDue reports whether the repository should be fetched at now given the staleness cutoff.
// A zero cutoff disables the staleness filter.
func (r *TrackedRepository) IsDue(now time.Time, cutoff time.Duration) bool {
	if cutoff <= 0 || r.LastFetchedAt == nil {
		return true
	}
	return r.LastFetchedAt.Before(now.Add(-cutoff))
}

// Store provides access to tracked repositories
type Store interface {
	// SelectDue lists repositories never fetched or last fetched before now-cutoff,
	// never-fetched and stalest first.
	SelectDue(ctx context.Context, now time.Time, cutoff time.Duration) ([]TrackedRepository, error)
	// SelectAll lists every tracked repository in the same order as SelectDue.
	SelectAll(ctx context.Context) ([]TrackedRepository, error)
	// Get returns the repository with the given id.
	Get(ctx context.Context, id uuid.UUID) (*TrackedRepository, error)
	// GetByLink returns the repository with the given link, canonicalizing it first.
	GetByLink(ctx context.Context, link string) (*TrackedRepository, error)
	// MarkFetched records that the repository was successfully fetched at the given time.
	MarkFetched(ctx context.Context, id uuid.UUID, at time.Time) error
	// RegisterOrGet creates the repository for link unless it already exists, and returns it.
	RegisterOrGet(ctx context.Context, link string) (*TrackedRepository, error)
	// AssociateCredential stores token and grants it access to the repository.
	AssociateCredential(ctx context.Context, token string, repoID uuid.UUID) error
}
