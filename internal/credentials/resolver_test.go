package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/repo-activity-sync/database"
)

func TestCredential_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "****cdef", Credential{Token: "ghp_abcdef"}.String())
	assert.Equal(t, "****", Credential{Token: "abc"}.String())
}

func TestNewDBResolver_NilPool(t *testing.T) {
	t.Parallel()

	r, err := NewDBResolver(nil)
	require.Error(t, err)
	assert.Nil(t, r)
}

func TestDBResolver_Resolve(t *testing.T) {
	t.Parallel()

	pool, cleanup := database.SetupTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	resolver, err := NewDBResolver(pool)
	require.NoError(t, err)

	repoID := uuid.New()
	otherID := uuid.New()
	for _, id := range []uuid.UUID{repoID, otherID} {
		_, err := pool.Exec(ctx,
			`INSERT INTO tracked_repository (id, canonical_link) VALUES ($1, $2)`,
			id, "https://github.com/acme/"+id.String())
		require.NoError(t, err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	credentials := []struct {
		token     string
		createdAt time.Time
		repo      uuid.UUID
	}{
		{token: "zz-late", createdAt: base.Add(time.Hour), repo: repoID},
		{token: "bb-early", createdAt: base, repo: repoID},
		{token: "aa-early", createdAt: base, repo: repoID},
		{token: "00-other", createdAt: base.Add(-time.Hour), repo: otherID},
	}
	for _, c := range credentials {
		_, err := pool.Exec(ctx, `INSERT INTO access_credential (token, created_at) VALUES ($1, $2)`, c.token, c.createdAt)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `INSERT INTO credential_repository (token, repository_id) VALUES ($1, $2)`, c.token, c.repo)
		require.NoError(t, err)
	}

	t.Run("earliest credential wins with token tie-break", func(t *testing.T) {
		t.Parallel()
		for range 3 {
			cred, err := resolver.Resolve(ctx, repoID)
			require.NoError(t, err)
			assert.Equal(t, "aa-early", cred.Token)
		}
	})

	t.Run("only associated credentials are eligible", func(t *testing.T) {
		t.Parallel()
		cred, err := resolver.Resolve(ctx, otherID)
		require.NoError(t, err)
		assert.Equal(t, "00-other", cred.Token)
	})

	t.Run("missing association", func(t *testing.T) {
		t.Parallel()
		_, err := resolver.Resolve(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrCredentialNotFound)
	})
}
