package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/repo-activity-sync/internal/activity"
	"github.com/stacklok/repo-activity-sync/internal/credentials"
	"github.com/stacklok/repo-activity-sync/internal/registry"
)

const testToken = "ghp_testtoken"

func testRepo() registry.TrackedRepository {
	return registry.TrackedRepository{ID: uuid.New(), CanonicalLink: "https://github.com/acme/widgets"}
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		PageSize:          2,
		MaxPages:          5,
		RequestsPerSecond: 1000,
		Burst:             100,
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func newFakeGitHub(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, h)
	}
	server := httptest.NewServer(mux)
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func emptyList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, `[]`)
}

func TestNextPageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "empty", header: "", want: ""},
		{
			name:   "next and last",
			header: `<https://api.github.com/repos/a/b/commits?page=2>; rel="next", <https://api.github.com/repos/a/b/commits?page=5>; rel="last"`,
			want:   "https://api.github.com/repos/a/b/commits?page=2",
		},
		{
			name:   "only prev and first",
			header: `<https://api.github.com/x?page=1>; rel="prev", <https://api.github.com/x?page=1>; rel="first"`,
			want:   "",
		},
		{
			name:   "unquoted rel",
			header: `<https://example.com/p2>; rel=next`,
			want:   "https://example.com/p2",
		},
		{
			name:   "malformed target",
			header: `https://example.com/p2; rel="next"`,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, nextPageURL(tt.header))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)

	h := http.Header{}
	h.Set("Retry-After", "30")
	assert.Equal(t, 30*time.Second, retryAfter(h, now))

	h = http.Header{}
	h.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(90*time.Second).Unix(), 10))
	assert.Equal(t, 90*time.Second, retryAfter(h, now))

	assert.Zero(t, retryAfter(http.Header{}, now))
	assert.Zero(t, retryAfter(nil, now))
}

func TestGitHubFetcher_Fetch(t *testing.T) {
	t.Parallel()

	var authHeaders atomic.Value
	var commitsSince atomic.Value
	var server *httptest.Server
	server = newFakeGitHub(t, map[string]http.HandlerFunc{
		"/repos/acme/widgets/commits": func(w http.ResponseWriter, r *http.Request) {
			authHeaders.Store(r.Header.Get("Authorization"))
			if r.URL.Query().Get("page") == "2" {
				writeJSON(w, `[{"sha":"c3","author":{"login":"dev"},"commit":{"message":"third"}}]`)
				return
			}
			commitsSince.Store(r.URL.Query().Get("since"))
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/commits?page=2>; rel="next"`, server.URL))
			writeJSON(w, `[
				{"sha":"c1","author":{"login":"dev"},"commit":{"message":"first"}},
				{"sha":"c2","author":null,"commit":{"author":{"name":"Anon"},"message":"second"}}
			]`)
		},
		"/repos/acme/widgets/issues": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "all", r.URL.Query().Get("state"))
			writeJSON(w, `[
				{"id":11,"number":1,"title":"Bug","user":{"login":"reporter"}},
				{"id":12,"number":2,"title":"PR as issue","user":{"login":"dev"},"pull_request":{}}
			]`)
		},
		"/repos/acme/widgets/pulls": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, `[{"id":21,"number":2,"title":"Feature","user":{"login":"dev"},"updated_at":"2024-05-01T00:00:00Z"}]`)
		},
		"/repos/acme/widgets/pulls/2/reviews": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, `[{"id":31,"user":{"login":"reviewer"},"state":"APPROVED"}]`)
		},
	})

	fetcher := NewGitHubFetcher(testConfig(server.URL), nil)
	since := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	events, err := fetcher.Fetch(context.Background(), testRepo(), credentials.Credential{Token: testToken}, &since)
	require.NoError(t, err)

	keys := make([]activity.NaturalKey, 0, len(events))
	for _, ev := range events {
		keys = append(keys, ev.Key())
	}
	assert.Equal(t, []activity.NaturalKey{
		{Kind: activity.KindCommit, ExternalID: "c1"},
		{Kind: activity.KindCommit, ExternalID: "c2"},
		{Kind: activity.KindCommit, ExternalID: "c3"},
		{Kind: activity.KindIssue, ExternalID: "11"},
		{Kind: activity.KindPullRequest, ExternalID: "21"},
		{Kind: activity.KindReview, ExternalID: "31"},
	}, keys)

	assert.Equal(t, "Anon", events[1].ActorUsername)
	assert.Equal(t, "approved review on #2", events[5].SummaryText)
	assert.Equal(t, "Bearer "+testToken, authHeaders.Load())
	assert.Equal(t, "2024-04-01T12:00:00Z", commitsSince.Load())
}

func TestGitHubFetcher_Fetch_SinceOverlap(t *testing.T) {
	t.Parallel()

	var issuesSince atomic.Value
	server := newFakeGitHub(t, map[string]http.HandlerFunc{
		"/repos/acme/widgets/commits": emptyList,
		"/repos/acme/widgets/issues": func(w http.ResponseWriter, r *http.Request) {
			issuesSince.Store(r.URL.Query().Get("since"))
			writeJSON(w, `[]`)
		},
		"/repos/acme/widgets/pulls": emptyList,
	})

	cfg := testConfig(server.URL)
	cfg.SinceOverlap = 10 * time.Minute
	fetcher := NewGitHubFetcher(cfg, nil)

	since := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	_, err := fetcher.Fetch(context.Background(), testRepo(), credentials.Credential{Token: testToken}, &since)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01T11:50:00Z", issuesSince.Load())
}

func TestGitHubFetcher_Fetch_PullRequestsStopAtSince(t *testing.T) {
	t.Parallel()

	var reviewCalls atomic.Int32
	server := newFakeGitHub(t, map[string]http.HandlerFunc{
		"/repos/acme/widgets/commits": emptyList,
		"/repos/acme/widgets/issues":  emptyList,
		"/repos/acme/widgets/pulls": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, `[
				{"id":21,"number":5,"title":"new","user":{"login":"dev"},"updated_at":"2024-05-02T00:00:00Z"},
				{"id":22,"number":4,"title":"old","user":{"login":"dev"},"updated_at":"2024-01-01T00:00:00Z"}
			]`)
		},
		"/repos/acme/widgets/pulls/5/reviews": func(w http.ResponseWriter, _ *http.Request) {
			reviewCalls.Add(1)
			writeJSON(w, `[]`)
		},
		"/repos/acme/widgets/pulls/4/reviews": func(w http.ResponseWriter, _ *http.Request) {
			reviewCalls.Add(100)
			writeJSON(w, `[]`)
		},
	})

	fetcher := NewGitHubFetcher(testConfig(server.URL), nil)
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	events, err := fetcher.Fetch(context.Background(), testRepo(), credentials.Credential{Token: testToken}, &since)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "21", events[0].ExternalID)
	assert.Equal(t, int32(1), reviewCalls.Load())
}

func TestGitHubFetcher_Fetch_MaxPages(t *testing.T) {
	t.Parallel()

	var commitCalls atomic.Int32
	var server *httptest.Server
	server = newFakeGitHub(t, map[string]http.HandlerFunc{
		"/repos/acme/widgets/commits": func(w http.ResponseWriter, _ *http.Request) {
			n := commitCalls.Add(1)
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/commits?page=%d>; rel="next"`, server.URL, n+1))
			writeJSON(w, fmt.Sprintf(`[{"sha":"c%d","commit":{"message":"m"}}]`, n))
		},
		"/repos/acme/widgets/issues": emptyList,
		"/repos/acme/widgets/pulls":  emptyList,
	})

	cfg := testConfig(server.URL)
	cfg.MaxPages = 3
	events, err := NewGitHubFetcher(cfg, nil).Fetch(context.Background(), testRepo(), credentials.Credential{}, nil)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTruncated, fetchErr.Kind)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Contains(t, fetchErr.URL, "page=4")

	// The pages read before the limit are still handed back
	assert.Len(t, events, 3)
	assert.Equal(t, int32(3), commitCalls.Load())
}

func TestGitHubFetcher_Fetch_MaxPagesExactFit(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = newFakeGitHub(t, map[string]http.HandlerFunc{
		"/repos/acme/widgets/commits": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") == "2" {
				writeJSON(w, `[{"sha":"c2","commit":{"message":"m"}}]`)
				return
			}
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/commits?page=2>; rel="next"`, server.URL))
			writeJSON(w, `[{"sha":"c1","commit":{"message":"m"}}]`)
		},
		"/repos/acme/widgets/issues": emptyList,
		"/repos/acme/widgets/pulls":  emptyList,
	})

	cfg := testConfig(server.URL)
	cfg.MaxPages = 2
	events, err := NewGitHubFetcher(cfg, nil).Fetch(context.Background(), testRepo(), credentials.Credential{}, nil)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestGitHubFetcher_Fetch_TruncatedReviewsKeepOtherStreams(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = newFakeGitHub(t, map[string]http.HandlerFunc{
		"/repos/acme/widgets/commits": emptyList,
		"/repos/acme/widgets/issues":  emptyList,
		"/repos/acme/widgets/pulls": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, `[
				{"id":21,"number":1,"title":"One","user":{"login":"dev"}},
				{"id":22,"number":2,"title":"Two","user":{"login":"dev"}}
			]`)
		},
		"/repos/acme/widgets/pulls/1/reviews": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/pulls/1/reviews?page=2>; rel="next"`, server.URL))
			writeJSON(w, `[{"id":31,"user":{"login":"reviewer"},"state":"APPROVED"}]`)
		},
		"/repos/acme/widgets/pulls/2/reviews": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, `[{"id":32,"user":{"login":"reviewer"},"state":"COMMENTED"}]`)
		},
	})

	cfg := testConfig(server.URL)
	cfg.MaxPages = 1
	events, err := NewGitHubFetcher(cfg, nil).Fetch(context.Background(), testRepo(), credentials.Credential{}, nil)
	require.ErrorIs(t, err, ErrTruncated)

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ExternalID)
	}
	assert.Equal(t, []string{"21", "22", "31", "32"}, ids)
}

func TestGitHubFetcher_Fetch_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		handler      http.HandlerFunc
		wantKind     ErrorKind
		wantSentinel error
		wantCalls    int32
		wantRetry    time.Duration
	}{
		{
			name: "429 is rate limited without retry",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantKind:     KindRateLimited,
			wantSentinel: ErrRateLimited,
			wantCalls:    1,
			wantRetry:    time.Minute,
		},
		{
			name: "403 with exhausted quota is rate limited",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusForbidden)
			},
			wantKind:     KindRateLimited,
			wantSentinel: ErrRateLimited,
			wantCalls:    1,
		},
		{
			name: "persistent 503 is transient after bounded retries",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantKind:     KindTransient,
			wantSentinel: ErrTransient,
			wantCalls:    3,
		},
		{
			name: "404 is rejected without retry",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantKind:     KindRejected,
			wantSentinel: ErrRejected,
			wantCalls:    1,
		},
		{
			name: "object payload is malformed",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, `{"message":"unexpected"}`)
			},
			wantKind:     KindMalformed,
			wantSentinel: ErrMalformed,
			wantCalls:    1,
		},
		{
			name: "commit without sha is malformed",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, `[{"commit":{"message":"m"}}]`)
			},
			wantKind:     KindMalformed,
			wantSentinel: ErrMalformed,
			wantCalls:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			server := newFakeGitHub(t, map[string]http.HandlerFunc{
				"/repos/acme/widgets/commits": func(w http.ResponseWriter, r *http.Request) {
					calls.Add(1)
					tt.handler(w, r)
				},
			})

			_, err := NewGitHubFetcher(testConfig(server.URL), nil).
				Fetch(context.Background(), testRepo(), credentials.Credential{Token: testToken}, nil)
			require.Error(t, err)

			var fetchErr *FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, tt.wantKind, fetchErr.Kind)
			assert.ErrorIs(t, err, tt.wantSentinel)
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantRetry > 0 {
				assert.Equal(t, tt.wantRetry, fetchErr.RetryAfter)
			}
		})
	}
}

func TestGitHubFetcher_Fetch_RecoversFromTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newFakeGitHub(t, map[string]http.HandlerFunc{
		"/repos/acme/widgets/commits": func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			writeJSON(w, `[{"sha":"c1","commit":{"message":"m"}}]`)
		},
		"/repos/acme/widgets/issues": emptyList,
		"/repos/acme/widgets/pulls":  emptyList,
	})

	events, err := NewGitHubFetcher(testConfig(server.URL), nil).
		Fetch(context.Background(), testRepo(), credentials.Credential{Token: testToken}, nil)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGitHubFetcher_Fetch_InvalidLink(t *testing.T) {
	t.Parallel()

	repo := registry.TrackedRepository{ID: uuid.New(), CanonicalLink: "https://github.com/only-owner"}
	_, err := NewGitHubFetcher(testConfig("http://127.0.0.1:1"), nil).
		Fetch(context.Background(), repo, credentials.Credential{}, nil)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestGitHubFetcher_Fetch_RepositoryHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		host     string
		link     string
		rejected bool
	}{
		{name: "default host", link: "https://github.com/acme/widgets"},
		{name: "other forge", link: "https://gitlab.com/acme/widgets", rejected: true},
		{name: "bitbucket", link: "https://bitbucket.org/acme/widgets", rejected: true},
		{name: "enterprise host", host: "GHE.example.com", link: "https://ghe.example.com/acme/widgets"},
		{name: "public host on enterprise provider", host: "ghe.example.com", link: "https://github.com/acme/widgets", rejected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			counted := func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				emptyList(w, r)
			}
			server := newFakeGitHub(t, map[string]http.HandlerFunc{
				"/repos/acme/widgets/commits": counted,
				"/repos/acme/widgets/issues":  counted,
				"/repos/acme/widgets/pulls":   counted,
			})

			cfg := testConfig(server.URL)
			cfg.Host = tt.host
			repo := registry.TrackedRepository{ID: uuid.New(), CanonicalLink: tt.link}

			events, err := NewGitHubFetcher(cfg, nil).Fetch(context.Background(), repo, credentials.Credential{Token: testToken}, nil)
			if !tt.rejected {
				require.NoError(t, err)
				assert.Empty(t, events)
				assert.Equal(t, int32(3), calls.Load())
				return
			}

			var fetchErr *FetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, KindRejected, fetchErr.Kind)
			assert.Equal(t, tt.link, fetchErr.URL)
			assert.ErrorIs(t, err, ErrRejected)
			assert.ErrorIs(t, err, ErrUnsupportedHost)
			assert.Zero(t, calls.Load(), "no request is made for a repository on another host")
		})
	}
}
