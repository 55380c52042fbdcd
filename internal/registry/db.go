package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	repositoryColumns = `id, canonical_link, created_at, last_fetched_at`

	selectDueQuery = `SELECT ` + repositoryColumns + `
FROM tracked_repository
WHERE last_fetched_at IS NULL OR last_fetched_at < $1
ORDER BY last_fetched_at ASC NULLS FIRST, created_at ASC, id ASC`

	selectAllQuery = `SELECT ` + repositoryColumns + `
FROM tracked_repository
ORDER BY last_fetched_at ASC NULLS FIRST, created_at ASC, id ASC`

	getByIDQuery = `SELECT ` + repositoryColumns + ` FROM tracked_repository WHERE id = $1`

	getByLinkQuery = `SELECT ` + repositoryColumns + ` FROM tracked_repository WHERE canonical_link = $1`

	markFetchedQuery = `UPDATE tracked_repository SET last_fetched_at = $2 WHERE id = $1`

	insertRepositoryQuery = `INSERT INTO tracked_repository (id, canonical_link, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (canonical_link) DO NOTHING
RETURNING ` + repositoryColumns

	insertCredentialQuery = `INSERT INTO access_credential (token, created_at)
VALUES ($1, $2)
ON CONFLICT (token) DO NOTHING`

	insertAssociationQuery = `INSERT INTO credential_repository (token, repository_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`
)

type dbStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewDBStore creates a Store backed by the given connection pool.
// The caller is responsible for closing the pool when done.
func NewDBStore(pool *pgxpool.Pool) (Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &dbStore{pool: pool, now: time.Now}, nil
}

func (d *dbStore) SelectDue(ctx context.Context, now time.Time, cutoff time.Duration) ([]TrackedRepository, error) {
	if cutoff <= 0 {
		return d.SelectAll(ctx)
	}
	rows, err := d.pool.Query(ctx, selectDueQuery, now.Add(-cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to select due repositories: %w", err)
	}
	repos, err := pgx.CollectRows(rows, pgx.RowToStructByPos[TrackedRepository])
	if err != nil {
		return nil, fmt.Errorf("failed to scan due repositories: %w", err)
	}
	return repos, nil
}

func (d *dbStore) SelectAll(ctx context.Context) ([]TrackedRepository, error) {
	rows, err := d.pool.Query(ctx, selectAllQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to select repositories: %w", err)
	}
	repos, err := pgx.CollectRows(rows, pgx.RowToStructByPos[TrackedRepository])
	if err != nil {
		return nil, fmt.Errorf("failed to scan repositories: %w", err)
	}
	return repos, nil
}

func (d *dbStore) Get(ctx context.Context, id uuid.UUID) (*TrackedRepository, error) {
	return d.getOne(ctx, getByIDQuery, id)
}

func (d *dbStore) GetByLink(ctx context.Context, link string) (*TrackedRepository, error) {
	canonical, err := CanonicalizeLink(link)
	if err != nil {
		return nil, err
	}
	return d.getOne(ctx, getByLinkQuery, canonical)
}

func (d *dbStore) MarkFetched(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := d.pool.Exec(ctx, markFetchedQuery, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark repository %s fetched: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRepositoryNotFound, id)
	}
	return nil
}

// RegisterOrGet is safe to call concurrently for the same link: the insert
// loses the race silently and the existing row is read back.
func (d *dbStore) RegisterOrGet(ctx context.Context, link string) (*TrackedRepository, error) {
	canonical, err := CanonicalizeLink(link)
	if err != nil {
		return nil, err
	}

	rows, err := d.pool.Query(ctx, insertRepositoryQuery, uuid.New(), canonical, d.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to register repository: %w", err)
	}
	repo, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[TrackedRepository])
	switch {
	case err == nil:
		return &repo, nil
	case errors.Is(err, pgx.ErrNoRows):
		return d.getOne(ctx, getByLinkQuery, canonical)
	default:
		return nil, fmt.Errorf("failed to register repository: %w", err)
	}
}

func (d *dbStore) AssociateCredential(ctx context.Context, token string, repoID uuid.UUID) error {
	if token == "" {
		return fmt.Errorf("credential token is required")
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, insertCredentialQuery, token, d.now().UTC()); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	if _, err := tx.Exec(ctx, insertAssociationQuery, token, repoID); err != nil {
		return fmt.Errorf("failed to associate credential with repository %s: %w", repoID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *dbStore) getOne(ctx context.Context, query string, arg any) (*TrackedRepository, error) {
	rows, err := d.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	repo, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[TrackedRepository])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %v", ErrRepositoryNotFound, arg)
		}
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}
	return &repo, nil
}
