// Package writer persists normalized activity events, deduplicating them on
// their natural key.
package writer

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/stacklok/repo-activity-sync/internal/activity"
)

//go:generate mockgen -destination=mocks/mock_sync_writer.go -package=mocks github.com/stacklok/repo-activity-sync/internal/sync/writer SyncWriter

// UpsertOutcome reports what an Upsert did with an event
type UpsertOutcome string

const (
	// Inserted means a new activity record was created
	Inserted UpsertOutcome = "inserted"

	// AlreadyExists means a record with the same natural key was already stored
	AlreadyExists UpsertOutcome = "already_exists"
)

var (
	// ErrInvalidEvent is returned when an event fails validation before any write
	ErrInvalidEvent = errors.New("invalid activity event")

	// ErrInvariantViolation is returned when storage reports a state that the
	// natural key constraint should make impossible. It is fatal for the batch.
	ErrInvariantViolation = errors.New("activity storage invariant violated")

	// ErrRecordNotFound is returned by Get when no record has the requested key
	ErrRecordNotFound = errors.New("activity record not found")
)

// SyncWriter defines the interface needed to persist synced activity.
type SyncWriter interface {
	// Upsert stores the event for the repository unless a record with the same
	// natural key exists. Existing records are never modified.
	Upsert(ctx context.Context, repoID uuid.UUID, ev activity.RawEvent) (UpsertOutcome, error)

	// Get returns the stored record for the natural key
	Get(ctx context.Context, key activity.NaturalKey) (*activity.Record, error)
}
