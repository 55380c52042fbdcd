package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/repo-activity-sync/internal/activity"
	"github.com/stacklok/repo-activity-sync/internal/credentials"
	"github.com/stacklok/repo-activity-sync/internal/otel"
	"github.com/stacklok/repo-activity-sync/internal/provider"
	"github.com/stacklok/repo-activity-sync/internal/registry"
	"github.com/stacklok/repo-activity-sync/internal/sync/writer"
)

// TracerName is the name used for the per-repository sync tracer
const TracerName = "github.com/stacklok/repo-activity-sync/sync"

// Stage names the step of a per-repository pass that failed
type Stage string

const (
	// StageResolveCredential is the credential lookup
	StageResolveCredential Stage = "resolve_credential"
	// StageFetch is the provider fetch
	StageFetch Stage = "fetch"
	// StageUpsert is the dedup/upsert of fetched events
	StageUpsert Stage = "upsert"
	// StageMarkFetched is the staleness timestamp update
	StageMarkFetched Stage = "mark_fetched"
	// StageTimeout marks a repository that did not finish before the batch deadline
	StageTimeout Stage = "timeout"
	// StageInternal marks a pass that ended on an unexpected panic
	StageInternal Stage = "internal"
)

// Error kinds that are not provider.ErrorKind values
const (
	KindNotFound           = "not_found"
	KindInvalidEvent       = "invalid_event"
	KindStorage            = "storage"
	KindTimedOut           = "timed_out"
	KindInvariantViolation = "invariant_violation"
	KindInternal           = "internal"
)

// Result contains the counters of a per-repository pass
type Result struct {
	// Fetched is the number of events returned by the provider
	Fetched int
	// Inserted is the number of new activity records
	Inserted int
	// AlreadyExisted is the number of events whose natural key was already stored
	AlreadyExisted int
}

// Error represents a structured per-repository failure
type Error struct {
	Err     error
	Message string
	Stage   Stage
	Kind    string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the failure must abort the whole batch
func (e *Error) Fatal() bool {
	return errors.Is(e.Err, writer.ErrInvariantViolation)
}

// NewError builds an Error for the given stage, deriving its kind from err
func NewError(stage Stage, err error) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("%s failed: %v", stage, err),
		Stage:   stage,
		Kind:    kindOf(err),
	}
}

func kindOf(err error) string {
	var fetchErr *provider.FetchError
	switch {
	case errors.As(err, &fetchErr):
		return string(fetchErr.Kind)
	case errors.Is(err, credentials.ErrCredentialNotFound), errors.Is(err, registry.ErrRepositoryNotFound):
		return KindNotFound
	case errors.Is(err, writer.ErrInvariantViolation):
		return KindInvariantViolation
	case errors.Is(err, writer.ErrInvalidEvent):
		return KindInvalidEvent
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimedOut
	default:
		return KindStorage
	}
}

// Manager runs the per-repository part of a sync batch
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/repo-activity-sync/internal/sync Manager
type Manager interface {
	// PerformSync resolves a credential, fetches the repository's activity and
	// upserts every event. The Result is never nil and holds the counters
	// reached so far, even when an Error is returned.
	PerformSync(ctx context.Context, repo registry.TrackedRepository) (*Result, *Error)
}

type defaultSyncManager struct {
	resolver credentials.Resolver
	fetcher  provider.Fetcher
	writer   writer.SyncWriter
	tracer   trace.Tracer
}

// Option configures the sync manager
type Option func(*defaultSyncManager)

// WithTracer sets the tracer used for per-repository spans
func WithTracer(tracer trace.Tracer) Option {
	return func(m *defaultSyncManager) {
		m.tracer = tracer
	}
}

// NewDefaultSyncManager creates a new defaultSyncManager
func NewDefaultSyncManager(
	resolver credentials.Resolver,
	fetcher provider.Fetcher,
	syncWriter writer.SyncWriter,
	opts ...Option,
) Manager {
	m := &defaultSyncManager{
		resolver: resolver,
		fetcher:  fetcher,
		writer:   syncWriter,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *defaultSyncManager) PerformSync(ctx context.Context, repo registry.TrackedRepository) (*Result, *Error) {
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.PerformSync",
		trace.WithAttributes(
			otel.AttrRepositoryID.String(repo.ID.String()),
			otel.AttrRepositoryLink.String(repo.CanonicalLink),
		),
	)
	defer span.End()

	result := &Result{}
	start := time.Now()

	cred, err := m.resolver.Resolve(ctx, repo.ID)
	if err != nil {
		otel.RecordError(span, err)
		return result, NewError(StageResolveCredential, err)
	}

	// A truncated fetch still stores what was read, but the pass is reported
	// as failed so the repository stays due.
	var truncated *Error
	events, err := m.fetcher.Fetch(ctx, repo, cred, repo.LastFetchedAt)
	if err != nil {
		otel.RecordError(span, err)
		if !errors.Is(err, provider.ErrTruncated) {
			return result, NewError(StageFetch, err)
		}
		truncated = NewError(StageFetch, err)
	}
	result.Fetched = len(events)
	events = dedupe(events)

	var firstErr *Error
	for _, ev := range events {
		outcome, err := m.writer.Upsert(ctx, repo.ID, ev)
		if err != nil {
			syncErr := NewError(StageUpsert, fmt.Errorf("%s: %w", ev.Key(), err))
			if syncErr.Fatal() || ctx.Err() != nil {
				otel.RecordError(span, err)
				return result, syncErr
			}
			slog.WarnContext(ctx, "Failed to store activity event",
				"repository", repo.CanonicalLink,
				"key", ev.Key().String(),
				"error", err)
			if firstErr == nil {
				firstErr = syncErr
			}
			continue
		}

		switch outcome {
		case writer.Inserted:
			result.Inserted++
		case writer.AlreadyExists:
			result.AlreadyExisted++
		}
	}

	span.SetAttributes(otel.AttrResultCount.Int(result.Inserted))
	if truncated != nil {
		return result, truncated
	}
	if firstErr != nil {
		otel.RecordError(span, firstErr)
		return result, firstErr
	}

	slog.InfoContext(ctx, "Repository sync pass completed",
		"repository", repo.CanonicalLink,
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"already_existed", result.AlreadyExisted,
		"duration", time.Since(start))

	return result, nil
}

// dedupe drops events whose natural key already appeared earlier in the slice
func dedupe(events []activity.RawEvent) []activity.RawEvent {
	seen := make(map[activity.NaturalKey]struct{}, len(events))
	out := events[:0]
	for _, ev := range events {
		if _, ok := seen[ev.Key()]; ok {
			continue
		}
		seen[ev.Key()] = struct{}{}
		out = append(out, ev)
	}
	return out
}
