package helpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// RepositoryActivity is the activity the fake GitHub API serves for one repository
type RepositoryActivity struct {
	Commits []string
	Issues  []int64
	// Pulls maps a pull request id to the ids of its reviews
	Pulls map[int64][]int64
}

// EventCount returns the number of events a full fetch of the repository yields
func (a RepositoryActivity) EventCount() int {
	count := len(a.Commits) + len(a.Issues) + len(a.Pulls)
	for _, reviews := range a.Pulls {
		count += len(reviews)
	}
	return count
}

// MockGitHubBuilder provides a fluent interface for building a fake GitHub REST API
type MockGitHubBuilder struct {
	repositories map[string]RepositoryActivity
	rateLimited  map[string]bool
	tokens       map[string]string
}

// NewMockGitHubBuilder creates a new fake GitHub API builder
func NewMockGitHubBuilder() *MockGitHubBuilder {
	return &MockGitHubBuilder{
		repositories: make(map[string]RepositoryActivity),
		rateLimited:  make(map[string]bool),
		tokens:       make(map[string]string),
	}
}

// WithRepository serves the given activity for owner/name
func (b *MockGitHubBuilder) WithRepository(fullName string, activity RepositoryActivity) *MockGitHubBuilder {
	b.repositories[fullName] = activity
	return b
}

// WithRateLimitedRepository answers every request for owner/name with an exhausted rate limit
func (b *MockGitHubBuilder) WithRateLimitedRepository(fullName string) *MockGitHubBuilder {
	b.rateLimited[fullName] = true
	return b
}

// WithRequiredToken rejects requests for owner/name that do not carry the token
func (b *MockGitHubBuilder) WithRequiredToken(fullName, token string) *MockGitHubBuilder {
	b.tokens[fullName] = token
	return b
}

// MockGitHub is a running fake GitHub API
type MockGitHub struct {
	*httptest.Server

	mu       sync.Mutex
	requests map[string]int
}

// Requests returns how many requests were made for owner/name
func (m *MockGitHub) Requests(fullName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[fullName]
}

// Build creates and starts the fake API
func (b *MockGitHubBuilder) Build() *MockGitHub {
	mock := &MockGitHub{requests: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{name}/{resource...}", func(w http.ResponseWriter, r *http.Request) {
		fullName := r.PathValue("owner") + "/" + r.PathValue("name")

		mock.mu.Lock()
		mock.requests[fullName]++
		mock.mu.Unlock()

		if b.rateLimited[fullName] {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "60")
			http.Error(w, `{"message":"API rate limit exceeded"}`, http.StatusForbidden)
			return
		}
		if token, ok := b.tokens[fullName]; ok && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
			return
		}

		activity, ok := b.repositories[fullName]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}

		body, ok := activity.render(r.PathValue("resource"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	mock.Server = httptest.NewServer(mux)
	return mock
}

// render returns the JSON page for a repository resource such as "commits" or "pulls/7/reviews"
func (a RepositoryActivity) render(resource string) (string, bool) {
	var items []string
	switch {
	case resource == "commits":
		for _, sha := range a.Commits {
			items = append(items, fmt.Sprintf(
				`{"sha":%q,"author":{"login":"dev"},"commit":{"message":"change %s"}}`, sha, sha))
		}
	case resource == "issues":
		for _, id := range a.Issues {
			items = append(items, fmt.Sprintf(
				`{"id":%d,"number":%d,"title":"Issue %d","user":{"login":"reporter"}}`, id, id, id))
		}
	case resource == "pulls":
		for id := range a.Pulls {
			items = append(items, fmt.Sprintf(
				`{"id":%d,"number":%d,"title":"Pull request %d","user":{"login":"dev"}}`, id, id, id))
		}
	case strings.HasPrefix(resource, "pulls/") && strings.HasSuffix(resource, "/reviews"):
		var number int64
		if _, err := fmt.Sscanf(resource, "pulls/%d/reviews", &number); err != nil {
			return "", false
		}
		for _, id := range a.Pulls[number] {
			items = append(items, fmt.Sprintf(
				`{"id":%d,"user":{"login":"reviewer"},"state":"APPROVED"}`, id))
		}
	default:
		return "", false
	}
	return "[" + strings.Join(items, ",") + "]", true
}
