package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgsync "github.com/stacklok/repo-activity-sync/internal/sync"
)

var (
	// ErrBatchTimedOut is recorded for repositories that did not finish before the batch deadline
	ErrBatchTimedOut = errors.New("batch timed out before repository was processed")

	// ErrEnumerationFailed is returned when the candidate repositories cannot be listed
	ErrEnumerationFailed = errors.New("failed to enumerate repositories")
)

// Scope selects the repositories of a batch
type Scope struct {
	id   uuid.UUID
	link string
	all  bool
}

// All selects every repository that is due for a sync pass
func All() Scope {
	return Scope{all: true}
}

// Single selects one repository by id, regardless of staleness
func Single(id uuid.UUID) Scope {
	return Scope{id: id}
}

// SingleByLink selects one repository by its link, regardless of staleness
func SingleByLink(link string) Scope {
	return Scope{link: link}
}

// IsAll reports whether the scope selects all due repositories
func (s Scope) IsAll() bool {
	return s.all
}

// String renders the scope for logs and spans
func (s Scope) String() string {
	switch {
	case s.all:
		return "all"
	case s.link != "":
		return "single:" + s.link
	default:
		return "single:" + s.id.String()
	}
}

// RepositoryError is one per-repository failure recorded in a batch result
type RepositoryError struct {
	Repository string `json:"repository"`
	Stage      string `json:"stage"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// BatchResult aggregates the outcome of one batch
type BatchResult struct {
	TriggeredAt              time.Time
	RepositoriesProcessed    int
	ContributionsFetched     int
	ContributionsUpserted    int
	ContributionsExisting    int
	ProcessedRepositoryLinks []string
	Errors                   []RepositoryError
	// ProcessingTime is measured around the whole batch
	ProcessingTime time.Duration
}

// Message summarizes the result in one line
func (r *BatchResult) Message() string {
	if len(r.Errors) == 0 {
		return fmt.Sprintf("Sync completed: %d repositories processed", r.RepositoriesProcessed)
	}
	return fmt.Sprintf("Sync completed with %d error(s): %d repositories processed",
		len(r.Errors), r.RepositoriesProcessed)
}

func newRepositoryError(link string, err *pkgsync.Error) RepositoryError {
	return RepositoryError{
		Repository: link,
		Stage:      string(err.Stage),
		Kind:       err.Kind,
		Message:    err.Message,
	}
}

func timedOutError(link string) RepositoryError {
	return RepositoryError{
		Repository: link,
		Stage:      string(pkgsync.StageTimeout),
		Kind:       pkgsync.KindTimedOut,
		Message:    ErrBatchTimedOut.Error(),
	}
}

// passCompleted reports whether a per-repository pass got far enough for its
// staleness timestamp to advance. Events rejected as invalid will never be
// storable, so they do not hold the repository back; any other failure does.
func passCompleted(err *pkgsync.Error) bool {
	if err == nil {
		return true
	}
	return err.Stage == pkgsync.StageUpsert && err.Kind == pkgsync.KindInvalidEvent
}
