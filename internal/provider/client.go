package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/stacklok/repo-activity-sync/internal/httpclient"
)

const (
	// DefaultBaseURL is the GitHub REST API root
	DefaultBaseURL = "https://api.github.com"

	// DefaultHost is the web host of the repositories DefaultBaseURL serves
	DefaultHost = "github.com"

	defaultPageSize          = 100
	defaultMaxPages          = 10
	defaultRequestsPerSecond = 5.0
	defaultBurst             = 5
	defaultMaxAttempts       = 3
	defaultInitialBackoff    = 500 * time.Millisecond
	defaultMaxBackoff        = 5 * time.Second

	apiVersion = "2022-11-28"
)

// Config holds the provider fetch settings
type Config struct {
	// BaseURL is the REST API root and Host the web host of the repositories
	// it serves, such as github.com. Repositories on any other host are rejected.
	BaseURL           string
	Host              string
	PageSize          int
	MaxPages          int
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       uint
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	// SinceOverlap is subtracted from a repository's last fetch time so that
	// events landing around the previous pass boundary are fetched again.
	SinceOverlap time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	c.Host = strings.ToLower(c.Host)
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = defaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaultRequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.SinceOverlap < 0 {
		c.SinceOverlap = 0
	}
	return c
}

// apiClient performs throttled, retried GET requests against the provider
type apiClient struct {
	http        httpclient.Client
	limiter     *rate.Limiter
	maxAttempts uint
	newBackOff  func() backoff.BackOff
}

func newAPIClient(cfg Config, client httpclient.Client) *apiClient {
	return &apiClient{
		http:        client,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxAttempts: cfg.MaxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.InitialBackoff
			b.MaxInterval = cfg.MaxBackoff
			return b
		},
	}
}

// get fetches url with the token. Transient failures are retried up to
// maxAttempts; every other failure is returned immediately as a *FetchError.
func (c *apiClient) get(ctx context.Context, url, token string) (*httpclient.Response, error) {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	header.Set("X-GitHub-Api-Version", apiVersion)
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	attempt := 0
	operation := func() (*httpclient.Response, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(newFetchError(KindTransient, url, err))
		}

		resp, err := c.http.Get(ctx, url, header)
		if err == nil {
			return resp, nil
		}

		fetchErr := classify(url, err)
		if ctx.Err() != nil {
			fetchErr.Err = ctx.Err()
			return nil, backoff.Permanent(fetchErr)
		}
		if fetchErr.Kind != KindTransient {
			return nil, backoff.Permanent(fetchErr)
		}
		return nil, fetchErr
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.WarnContext(ctx, "Retrying provider request after transient failure",
				"url", url,
				"attempt", attempt,
				"backoff", wait,
				"error", err)
		}),
	)
	if err != nil {
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			fetchErr = newFetchError(KindTransient, url, err)
		}
		if fetchErr.Kind == KindTransient {
			slog.ErrorContext(ctx, "Provider request failed after retries",
				"url", url,
				"attempts", attempt,
				"error", fetchErr.Err)
		}
		return nil, fetchErr
	}
	return resp, nil
}

// classify maps an httpclient error to a FetchError
func classify(url string, err error) *FetchError {
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		return newFetchError(KindTransient, url, err)
	}

	fetchErr := newFetchError(KindRejected, url, err)
	fetchErr.StatusCode = httpErr.StatusCode

	switch code := httpErr.StatusCode; {
	case code == http.StatusTooManyRequests,
		code == http.StatusForbidden && httpErr.Header.Get("X-RateLimit-Remaining") == "0":
		fetchErr.Kind = KindRateLimited
		fetchErr.RetryAfter = retryAfter(httpErr.Header, time.Now())
	case code == http.StatusRequestTimeout, code >= http.StatusInternalServerError:
		fetchErr.Kind = KindTransient
	}
	return fetchErr
}

// retryAfter reads the provider's back-off hint from Retry-After (seconds)
// or X-RateLimit-Reset (unix epoch seconds).
func retryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	if ra := header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	if reset := header.Get("X-RateLimit-Reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d.Round(time.Second)
			}
		}
	}
	return 0
}
