// Package provider fetches repository activity from the source-code host and
// normalizes it into activity.RawEvent values.
//
// Requests are throttled client-side, transient failures are retried a bounded
// number of times and every failure surfaces as a *FetchError whose Kind tells
// the caller whether the repository was rate limited, rejected, returned an
// unexpected payload or kept failing transiently.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stacklok/repo-activity-sync/internal/activity"
	"github.com/stacklok/repo-activity-sync/internal/credentials"
	"github.com/stacklok/repo-activity-sync/internal/httpclient"
	"github.com/stacklok/repo-activity-sync/internal/registry"
)

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks github.com/stacklok/repo-activity-sync/internal/provider Fetcher

// Fetcher retrieves the activity of a single repository
type Fetcher interface {
	// Fetch returns every event of the repository at or after since (minus the
	// configured overlap), or the full history when since is nil. The returned
	// slice may contain events that were already stored by a previous pass.
	// When a stream has more pages than the page limit, the events fetched
	// so far are returned together with a KindTruncated *FetchError.
	Fetch(
		ctx context.Context,
		repo registry.TrackedRepository,
		cred credentials.Credential,
		since *time.Time,
	) ([]activity.RawEvent, error)
}

type gitHubFetcher struct {
	cfg    Config
	client *apiClient
}

// NewGitHubFetcher creates a Fetcher for the GitHub REST API.
// If client is nil a default HTTP client is used.
func NewGitHubFetcher(cfg Config, client httpclient.Client) Fetcher {
	cfg = cfg.withDefaults()
	if client == nil {
		client = httpclient.NewDefaultClient(0)
	}
	return &gitHubFetcher{
		cfg:    cfg,
		client: newAPIClient(cfg, client),
	}
}

func (g *gitHubFetcher) Fetch(
	ctx context.Context,
	repo registry.TrackedRepository,
	cred credentials.Credential,
	since *time.Time,
) ([]activity.RawEvent, error) {
	host, owner, name, err := registry.SplitLink(repo.CanonicalLink)
	if err != nil {
		return nil, &FetchError{Kind: KindRejected, URL: repo.CanonicalLink, Err: err}
	}
	if host != g.cfg.Host {
		return nil, &FetchError{
			Kind: KindRejected,
			URL:  repo.CanonicalLink,
			Err:  fmt.Errorf("%w: %s is not %s", ErrUnsupportedHost, host, g.cfg.Host),
		}
	}

	var sinceAt time.Time
	if since != nil {
		sinceAt = since.Add(-g.cfg.SinceOverlap).UTC()
	}

	repoURL := fmt.Sprintf("%s/repos/%s/%s",
		strings.TrimSuffix(g.cfg.BaseURL, "/"), url.PathEscape(owner), url.PathEscape(name))

	var truncated error
	absorb := func(err error) error {
		if errors.Is(err, ErrTruncated) {
			if truncated == nil {
				truncated = err
			}
			return nil
		}
		return err
	}

	commits, err := g.fetchCommits(ctx, repoURL, cred.Token, sinceAt)
	if err = absorb(err); err != nil {
		return nil, err
	}
	issues, err := g.fetchIssues(ctx, repoURL, cred.Token, sinceAt)
	if err = absorb(err); err != nil {
		return nil, err
	}
	pulls, refs, err := g.fetchPullRequests(ctx, repoURL, cred.Token, sinceAt)
	if err = absorb(err); err != nil {
		return nil, err
	}
	reviews, err := g.fetchReviews(ctx, repoURL, cred.Token, refs)
	if err = absorb(err); err != nil {
		return nil, err
	}

	events := make([]activity.RawEvent, 0, len(commits)+len(issues)+len(pulls)+len(reviews))
	events = append(events, commits...)
	events = append(events, issues...)
	events = append(events, pulls...)
	events = append(events, reviews...)

	slog.DebugContext(ctx, "Fetched repository activity",
		"repository", repo.CanonicalLink,
		"commits", len(commits),
		"issues", len(issues),
		"pull_requests", len(pulls),
		"reviews", len(reviews))

	if truncated != nil {
		slog.WarnContext(ctx, "Page limit reached, repository stays due until the limit is raised",
			"repository", repo.CanonicalLink,
			"max_pages", g.cfg.MaxPages,
			"error", truncated)
		return events, truncated
	}
	return events, nil
}

func (g *gitHubFetcher) fetchCommits(
	ctx context.Context, repoURL, token string, since time.Time,
) ([]activity.RawEvent, error) {
	query := g.pageQuery()
	if !since.IsZero() {
		query.Set("since", since.Format(time.RFC3339))
	}

	var events []activity.RawEvent
	err := g.paginate(ctx, repoURL+"/commits?"+query.Encode(), token, func(item gjson.Result) (bool, error) {
		ev, err := normalizeCommit(item)
		if err != nil {
			return false, err
		}
		events = append(events, ev)
		return true, nil
	})
	return events, err
}

func (g *gitHubFetcher) fetchIssues(
	ctx context.Context, repoURL, token string, since time.Time,
) ([]activity.RawEvent, error) {
	query := g.pageQuery()
	query.Set("state", "all")
	if !since.IsZero() {
		query.Set("since", since.Format(time.RFC3339))
	}

	var events []activity.RawEvent
	err := g.paginate(ctx, repoURL+"/issues?"+query.Encode(), token, func(item gjson.Result) (bool, error) {
		ev, ok, err := normalizeIssue(item)
		if err != nil {
			return false, err
		}
		if ok {
			events = append(events, ev)
		}
		return true, nil
	})
	return events, err
}

// fetchPullRequests lists pull requests most recently updated first and stops
// at the first one last updated before since, as the endpoint has no since filter.
func (g *gitHubFetcher) fetchPullRequests(
	ctx context.Context, repoURL, token string, since time.Time,
) ([]activity.RawEvent, []pullRequestRef, error) {
	query := g.pageQuery()
	query.Set("state", "all")
	query.Set("sort", "updated")
	query.Set("direction", "desc")

	var events []activity.RawEvent
	var refs []pullRequestRef
	err := g.paginate(ctx, repoURL+"/pulls?"+query.Encode(), token, func(item gjson.Result) (bool, error) {
		ev, ref, err := normalizePullRequest(item)
		if err != nil {
			return false, err
		}
		if !since.IsZero() && ref.UpdatedAt != "" {
			if updated, perr := time.Parse(time.RFC3339, ref.UpdatedAt); perr == nil && updated.Before(since) {
				return false, nil
			}
		}
		events = append(events, ev)
		refs = append(refs, ref)
		return true, nil
	})
	return events, refs, err
}

func (g *gitHubFetcher) fetchReviews(
	ctx context.Context, repoURL, token string, refs []pullRequestRef,
) ([]activity.RawEvent, error) {
	var events []activity.RawEvent
	var truncated error
	for _, ref := range refs {
		pageURL := repoURL + "/pulls/" + strconv.FormatInt(ref.Number, 10) + "/reviews?" + g.pageQuery().Encode()
		err := g.paginate(ctx, pageURL, token, func(item gjson.Result) (bool, error) {
			ev, err := normalizeReview(item, ref.Number)
			if err != nil {
				return false, err
			}
			events = append(events, ev)
			return true, nil
		})
		if errors.Is(err, ErrTruncated) {
			if truncated == nil {
				truncated = err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return events, truncated
}

func (g *gitHubFetcher) pageQuery() url.Values {
	query := url.Values{}
	query.Set("per_page", strconv.Itoa(g.cfg.PageSize))
	return query
}

// paginate walks the pages starting at pageURL, calling visit for every item.
// visit returns false to stop paging. A next page beyond MaxPages ends paging
// with a KindTruncated error.
func (g *gitHubFetcher) paginate(
	ctx context.Context,
	pageURL, token string,
	visit func(item gjson.Result) (bool, error),
) error {
	for page := 1; pageURL != ""; page++ {
		if page > g.cfg.MaxPages {
			return newFetchError(KindTruncated, pageURL,
				fmt.Errorf("more than %d pages available", g.cfg.MaxPages))
		}

		resp, err := g.client.get(ctx, pageURL, token)
		if err != nil {
			return err
		}

		items, err := parsePage(resp.Body)
		if err != nil {
			return &FetchError{Kind: KindMalformed, URL: pageURL, StatusCode: resp.StatusCode, Err: err}
		}
		for _, item := range items {
			more, err := visit(item)
			if err != nil {
				return &FetchError{Kind: KindMalformed, URL: pageURL, StatusCode: resp.StatusCode, Err: err}
			}
			if !more {
				return nil
			}
		}

		pageURL = nextPageURL(resp.Header.Get("Link"))
	}
	return nil
}

// nextPageURL extracts the rel="next" target from an RFC 8288 Link header
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || strings.TrimSpace(key) != "rel" {
				continue
			}
			for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
				if rel == "next" {
					return target[1 : len(target)-1]
				}
			}
		}
	}
	return ""
}
