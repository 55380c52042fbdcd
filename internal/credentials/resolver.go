// Package credentials resolves the access credential used to fetch activity
// for a tracked repository.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks github.com/stacklok/repo-activity-sync/internal/credentials Resolver

// ErrCredentialNotFound is returned when no credential is associated with a repository
var ErrCredentialNotFound = errors.New("no credential associated with repository")

// Credential is an access token able to read a repository's activity
type Credential struct {
	Token     string
	CreatedAt time.Time
}

// String redacts the token so credentials can be logged safely
func (c Credential) String() string {
	if len(c.Token) <= 4 {
		return "****"
	}
	return "****" + c.Token[len(c.Token)-4:]
}

// Resolver selects the credential used for a repository
type Resolver interface {
	// Resolve returns exactly one credential for the repository.
	// When several are eligible the earliest created one wins, ties broken by token.
	Resolve(ctx context.Context, repoID uuid.UUID) (Credential, error)
}

const resolveQuery = `SELECT c.token, c.created_at
FROM access_credential c
JOIN credential_repository cr ON cr.token = c.token
WHERE cr.repository_id = $1
ORDER BY c.created_at ASC, c.token ASC
LIMIT 1`

type dbResolver struct {
	pool *pgxpool.Pool
}

// NewDBResolver creates a Resolver backed by the given connection pool
func NewDBResolver(pool *pgxpool.Pool) (Resolver, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &dbResolver{pool: pool}, nil
}

func (d *dbResolver) Resolve(ctx context.Context, repoID uuid.UUID) (Credential, error) {
	var cred Credential
	err := d.pool.QueryRow(ctx, resolveQuery, repoID).Scan(&cred.Token, &cred.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, fmt.Errorf("%w: %s", ErrCredentialNotFound, repoID)
		}
		return Credential{}, fmt.Errorf("failed to resolve credential for repository %s: %w", repoID, err)
	}
	return cred, nil
}
