package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/repo-activity-sync/internal/activity"
	"github.com/stacklok/repo-activity-sync/internal/otel"
)

const (
	// TracerName is the name used for the writer tracer
	TracerName = "github.com/stacklok/repo-activity-sync/sync/writer"

	pgUniqueViolation = "23505"

	insertActivityQuery = `INSERT INTO activity_record
    (kind, external_id, repository_id, actor_username, summary_text, is_selected, created_at, details)
VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
ON CONFLICT (kind, external_id) DO NOTHING`

	getActivityQuery = `SELECT kind, external_id, repository_id, actor_username, summary_text,
    is_selected, created_at, details
FROM activity_record
WHERE kind = $1 AND external_id = $2`
)

// dbSyncWriter is a SyncWriter implementation that persists data to a database
type dbSyncWriter struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures the database writer
type Option func(*dbSyncWriter)

// WithTracer sets the tracer used for upsert spans
func WithTracer(tracer trace.Tracer) Option {
	return func(d *dbSyncWriter) {
		d.tracer = tracer
	}
}

// NewDBSyncWriter creates a new dbSyncWriter with the given connection pool.
// The caller is responsible for closing the pool when done.
func NewDBSyncWriter(pool *pgxpool.Pool, opts ...Option) (SyncWriter, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	d := &dbSyncWriter{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Upsert relies on the (kind, external_id) primary key: the insert either
// creates the row or does nothing. Concurrent writers for the same key race
// on the constraint and exactly one of them observes Inserted.
func (d *dbSyncWriter) Upsert(ctx context.Context, repoID uuid.UUID, ev activity.RawEvent) (UpsertOutcome, error) {
	key := ev.Key()
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	ctx, span := otel.StartDBSpan(ctx, d.tracer, "writer.Upsert",
		trace.WithAttributes(
			otel.AttrActivityKind.String(string(key.Kind)),
			otel.AttrRepositoryID.String(repoID.String()),
		),
	)
	defer span.End()

	details := ev.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	tag, err := d.pool.Exec(ctx, insertActivityQuery,
		string(key.Kind),
		key.ExternalID,
		repoID,
		ev.ActorUsername,
		ev.SummaryText,
		d.now().UTC(),
		details,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			span.SetAttributes(otel.AttrUpsertOutcome.String(string(AlreadyExists)))
			return AlreadyExists, nil
		}
		otel.RecordError(span, err)
		return "", fmt.Errorf("failed to upsert activity %s: %w", key, err)
	}

	var outcome UpsertOutcome
	switch tag.RowsAffected() {
	case 0:
		outcome = AlreadyExists
	case 1:
		outcome = Inserted
	default:
		err := fmt.Errorf("%w: upsert of %s affected %d rows", ErrInvariantViolation, key, tag.RowsAffected())
		otel.RecordError(span, err)
		return "", err
	}

	span.SetAttributes(otel.AttrUpsertOutcome.String(string(outcome)))
	return outcome, nil
}

func (d *dbSyncWriter) Get(ctx context.Context, key activity.NaturalKey) (*activity.Record, error) {
	var (
		rec  activity.Record
		kind string
	)
	err := d.pool.QueryRow(ctx, getActivityQuery, string(key.Kind), key.ExternalID).Scan(
		&kind,
		&rec.Key.ExternalID,
		&rec.RepositoryID,
		&rec.ActorUsername,
		&rec.SummaryText,
		&rec.IsSelected,
		&rec.CreatedAt,
		&rec.Details,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
		}
		return nil, fmt.Errorf("failed to get activity %s: %w", key, err)
	}
	rec.Key.Kind = activity.Kind(kind)
	return &rec, nil
}
