package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/repo-activity-sync/database"
	"github.com/stacklok/repo-activity-sync/internal/activity"
	"github.com/stacklok/repo-activity-sync/internal/credentials"
	"github.com/stacklok/repo-activity-sync/internal/provider"
	providermocks "github.com/stacklok/repo-activity-sync/internal/provider/mocks"
	"github.com/stacklok/repo-activity-sync/internal/registry"
	pkgsync "github.com/stacklok/repo-activity-sync/internal/sync"
	"github.com/stacklok/repo-activity-sync/internal/sync/writer"
)

type pipeline struct {
	store   registry.Store
	fetcher *providermocks.MockFetcher
	coord   *defaultCoordinator
}

func newPipeline(t *testing.T, cfg Config) *pipeline {
	t.Helper()

	pool, cleanup := database.SetupTestDB(t)
	t.Cleanup(cleanup)

	store, err := registry.NewDBStore(pool)
	require.NoError(t, err)
	resolver, err := credentials.NewDBResolver(pool)
	require.NoError(t, err)
	syncWriter, err := writer.NewDBSyncWriter(pool)
	require.NoError(t, err)

	fetcher := providermocks.NewMockFetcher(gomock.NewController(t))
	manager := pkgsync.NewDefaultSyncManager(resolver, fetcher, syncWriter)

	return &pipeline{
		store:   store,
		fetcher: fetcher,
		coord:   New(store, manager, cfg).(*defaultCoordinator),
	}
}

func scenarioEvents() []activity.RawEvent {
	return []activity.RawEvent{
		{Kind: activity.KindCommit, ExternalID: "a1b2c3", ActorUsername: "octocat", SummaryText: "Fix parser"},
		{Kind: activity.KindCommit, ExternalID: "d4e5f6", ActorUsername: "hubot", SummaryText: "Add tests"},
		{Kind: activity.KindIssue, ExternalID: "1001", ActorUsername: "octocat", SummaryText: "Crash on start"},
	}
}

func TestIntegration_SingleRepositoryScenario(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Config{})
	ctx := context.Background()

	repo, err := p.store.RegisterOrGet(ctx, "acme/widgets")
	require.NoError(t, err)
	require.Nil(t, repo.LastFetchedAt)
	require.NoError(t, p.store.AssociateCredential(ctx, "ghp_scenario", repo.ID))

	p.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(scenarioEvents(), nil).Times(2)

	before := time.Now()
	result, err := p.coord.RunBatch(ctx, Single(repo.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, result.RepositoriesProcessed)
	assert.Equal(t, 3, result.ContributionsFetched)
	assert.Equal(t, 3, result.ContributionsUpserted)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{repo.CanonicalLink}, result.ProcessedRepositoryLinks)

	updated, err := p.store.Get(ctx, repo.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastFetchedAt)
	assert.WithinDuration(t, before, *updated.LastFetchedAt, 5*time.Second)

	// Immediate re-run with the same provider response stores nothing new
	again, err := p.coord.RunBatch(ctx, Single(repo.ID))
	require.NoError(t, err)
	assert.Equal(t, 3, again.ContributionsFetched)
	assert.Equal(t, 0, again.ContributionsUpserted)
	assert.Equal(t, 3, again.ContributionsExisting)
	assert.Empty(t, again.Errors)
}

func TestIntegration_PartialFailureAndStaleness(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Config{StalenessCutoff: 2 * time.Hour})
	ctx := context.Background()

	a, err := p.store.RegisterOrGet(ctx, "acme/a")
	require.NoError(t, err)
	b, err := p.store.RegisterOrGet(ctx, "acme/b")
	require.NoError(t, err)
	c, err := p.store.RegisterOrGet(ctx, "acme/c")
	require.NoError(t, err)

	// b has no credential
	require.NoError(t, p.store.AssociateCredential(ctx, "ghp_shared", a.ID))
	require.NoError(t, p.store.AssociateCredential(ctx, "ghp_shared", c.ID))

	p.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, repo registry.TrackedRepository, _ credentials.Credential, _ *time.Time) ([]activity.RawEvent, error) {
			return []activity.RawEvent{{
				Kind:          activity.KindCommit,
				ExternalID:    "sha-" + repo.CanonicalLink,
				ActorUsername: "dev",
				SummaryText:   "work",
			}}, nil
		}).Times(2)

	result, err := p.coord.RunBatch(ctx, All())
	require.NoError(t, err)
	assert.Equal(t, 3, result.RepositoriesProcessed)
	assert.Equal(t, 2, result.ContributionsUpserted)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, b.CanonicalLink, result.Errors[0].Repository)
	assert.Equal(t, pkgsync.KindNotFound, result.Errors[0].Kind)

	// b stays due, a and c are fresh
	due, err := p.store.SelectDue(ctx, time.Now(), 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, b.ID, due[0].ID)
}

func TestIntegration_FetchFailureKeepsRepositoryDue(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Config{StalenessCutoff: time.Hour})
	ctx := context.Background()

	repo, err := p.store.RegisterOrGet(ctx, "acme/widgets")
	require.NoError(t, err)
	require.NoError(t, p.store.AssociateCredential(ctx, "ghp_token", repo.ID))

	p.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &provider.FetchError{Kind: provider.KindRateLimited, RetryAfter: time.Minute})

	result, err := p.coord.RunBatch(ctx, All())
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "rate_limited", result.Errors[0].Kind)

	unchanged, err := p.store.Get(ctx, repo.ID)
	require.NoError(t, err)
	assert.Nil(t, unchanged.LastFetchedAt)
}
