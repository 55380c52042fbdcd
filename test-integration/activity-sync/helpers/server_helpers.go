package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/onsi/gomega"

	"github.com/stacklok/repo-activity-sync/internal/api/trigger"
	"github.com/stacklok/repo-activity-sync/internal/app"
	"github.com/stacklok/repo-activity-sync/internal/app/storage"
	"github.com/stacklok/repo-activity-sync/internal/config"
	"github.com/stacklok/repo-activity-sync/internal/status"
)

// ServerTestHelper manages the activity sync server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	httpClient *http.Client
	app        *app.ActivitySyncApp
	cfg        *config.Config
	port       int
}

// NewServerTestHelper creates a new server test helper listening on a free loopback port
func NewServerTestHelper(ctx context.Context, configPath string) *ServerTestHelper {
	port := freePort()
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		port: port,
	}
}

// StartServer starts the activity sync server programmatically
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	s.cfg = cfg

	syncApp, err := app.NewActivitySyncApp(s.ctx,
		app.WithConfig(cfg),
		app.WithAddress(fmt.Sprintf("127.0.0.1:%d", s.port)),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = syncApp

	go func() {
		if err := syncApp.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the activity sync server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits until the server reports it can reach the database
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 250*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// RegisterRepository tracks link with an access token and returns its id.
// An empty token registers the repository without a credential.
func (s *ServerTestHelper) RegisterRepository(link, token string) uuid.UUID {
	gomega.Expect(s.cfg).NotTo(gomega.BeNil(), "server must be started before registering repositories")

	factory, err := storage.NewDatabaseFactory(s.ctx, s.cfg.Database)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer factory.Cleanup()

	store, err := factory.CreateRepositoryStore(s.ctx)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	repo, err := store.RegisterOrGet(s.ctx, link)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	if token != "" {
		gomega.Expect(store.AssociateCredential(s.ctx, token, repo.ID)).To(gomega.Succeed())
	}
	return repo.ID
}

// TriggerAll makes a POST request to /sync/trigger
func (s *ServerTestHelper) TriggerAll() (*http.Response, error) {
	return s.httpClient.Post(s.baseURL+"/sync/trigger", "application/json", nil)
}

// TriggerRepository makes a POST request to /sync/trigger/{identifier}
func (s *ServerTestHelper) TriggerRepository(identifier string) (*http.Response, error) {
	return s.httpClient.Post(s.baseURL+"/sync/trigger/"+url.PathEscape(identifier), "application/json", nil)
}

// GetStatus makes a GET request to /sync/status
func (s *ServerTestHelper) GetStatus() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/sync/status")
}

// GetMetrics makes a GET request to /metrics
func (s *ServerTestHelper) GetMetrics() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/metrics")
}

// GetBaseURL returns the base URL of the server
func (s *ServerTestHelper) GetBaseURL() string {
	return s.baseURL
}

// DecodeTriggerResponse reads a trigger response body, expecting 200 OK
func DecodeTriggerResponse(resp *http.Response, err error) trigger.Response {
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = resp.Body.Close()
	}()
	gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK))

	var body trigger.Response
	gomega.Expect(json.NewDecoder(resp.Body).Decode(&body)).To(gomega.Succeed())
	return body
}

// DecodeStatus reads a /sync/status response body
func DecodeStatus(resp *http.Response, err error) status.Snapshot {
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = resp.Body.Close()
	}()
	gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK))

	var snapshot status.Snapshot
	gomega.Expect(json.NewDecoder(resp.Body).Decode(&snapshot)).To(gomega.Succeed())
	return snapshot
}

// ConfigOptions holds the settings written by WriteConfigYAML
type ConfigOptions struct {
	// DatabaseYAML is the database section, see PostgresHelper.DatabaseYAML
	DatabaseYAML string
	// ProviderURL is the base URL of the fake GitHub API
	ProviderURL string
	// StalenessCutoff is written to sync.stalenessCutoff when set
	StalenessCutoff string
	// StatusDir is written to sync.statusDir when set
	StatusDir string
	// PrometheusMetrics enables the /metrics endpoint
	PrometheusMetrics bool
}

// WriteConfigYAML writes a YAML configuration file for testing
func WriteConfigYAML(dir string, opts ConfigOptions) string {
	configContent := opts.DatabaseYAML + `
sync:
  interval: 1h
  concurrency: 2
  batchTimeout: 1m
`
	if opts.StalenessCutoff != "" {
		configContent += fmt.Sprintf("  stalenessCutoff: %s\n", opts.StalenessCutoff)
	}
	if opts.StatusDir != "" {
		configContent += fmt.Sprintf("  statusDir: %s\n", opts.StatusDir)
	}

	configContent += fmt.Sprintf(`
provider:
  baseURL: %s
  requestsPerSecond: 100
  burst: 100
  maxAttempts: 1
  requestTimeout: 5s
`, opts.ProviderURL)

	if opts.PrometheusMetrics {
		configContent += `
telemetry:
  enabled: true
  serviceName: activity-sync-integration
  metrics:
    enabled: true
    exporter: prometheus
`
	}

	configPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configPath, []byte(configContent), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return configPath
}

// freePort returns a loopback port that was free a moment ago
func freePort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = listener.Close()
	}()
	return listener.Addr().(*net.TCPAddr).Port
}
