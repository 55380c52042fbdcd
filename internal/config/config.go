// Package config provides configuration loading and management for the activity sync server.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/repo-activity-sync/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of every environment variable read by the server
	EnvPrefix = "ACTIVITY_SYNC"

	// PasswordEnvVar holds the database password when no password file is configured
	PasswordEnvVar = EnvPrefix + "_DATABASE_PASSWORD"
)

const (
	defaultDatabasePort = 5432
	defaultSSLMode      = "require"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Database  *DatabaseConfig   `yaml:"database"`
	Sync      *SyncConfig       `yaml:"sync,omitempty"`
	Provider  *ProviderConfig   `yaml:"provider,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port. Defaults to 5432.
	Port int `yaml:"port,omitempty"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxConns is the maximum number of connections in the pool
	MaxConns int32 `yaml:"maxConns,omitempty"`

	// MinConns is the number of connections kept open when idle
	MinConns int32 `yaml:"minConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// SyncConfig defines batch scheduling settings
type SyncConfig struct {
	// Interval is the time between scheduled batches (e.g., "2m")
	Interval string `yaml:"interval,omitempty"`

	// Jitter is the maximum random offset applied to every interval
	Jitter string `yaml:"jitter,omitempty"`

	// StalenessCutoff is the minimum age of a repository's last fetch before it is due again.
	// Empty or "0" syncs every repository on every batch.
	StalenessCutoff string `yaml:"stalenessCutoff,omitempty"`

	// BatchTimeout bounds a whole batch
	BatchTimeout string `yaml:"batchTimeout,omitempty"`

	// Concurrency is the number of repositories processed in parallel
	Concurrency int `yaml:"concurrency,omitempty"`

	// RunOnStart runs a batch as soon as the server starts
	RunOnStart bool `yaml:"runOnStart,omitempty"`

	// StatusDir is where the last batch summary is persisted. Empty keeps it in memory only.
	StatusDir string `yaml:"statusDir,omitempty"`
}

// ProviderConfig defines the external provider API settings
type ProviderConfig struct {
	// BaseURL is the provider API root. Defaults to https://api.github.com.
	BaseURL string `yaml:"baseURL,omitempty"`

	// Host is the web host of the tracked repositories. Defaults to github.com.
	// Repositories registered under any other host fail with a rejected error.
	Host string `yaml:"host,omitempty"`

	// PageSize is the number of items requested per page (at most 100)
	PageSize int `yaml:"pageSize,omitempty"`

	// MaxPages bounds the pages followed per activity stream
	MaxPages int `yaml:"maxPages,omitempty"`

	// RequestsPerSecond throttles requests to the provider
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`

	// Burst is the number of requests allowed above the rate
	Burst int `yaml:"burst,omitempty"`

	// MaxAttempts bounds the attempts of a transiently failing request
	MaxAttempts uint `yaml:"maxAttempts,omitempty"`

	// RequestTimeout bounds a single HTTP request (e.g., "30s")
	RequestTimeout string `yaml:"requestTimeout,omitempty"`

	// SinceOverlap re-fetches events slightly older than the last fetch time (e.g., "5m")
	SinceOverlap string `yaml:"sinceOverlap,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the ACTIVITY_SYNC_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(PasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", PasswordEnvVar,
	)
}

// GetPort returns the port, using 5432 if not specified
func (d *DatabaseConfig) GetPort() int {
	if d.Port == 0 {
		return defaultDatabasePort
	}
	return d.Port
}

// GetSSLMode returns the SSL mode, using "require" if not specified
func (d *DatabaseConfig) GetSSLMode() string {
	if d.SSLMode == "" {
		return defaultSSLMode
	}
	return d.SSLMode
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The user and password are URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.GetPort()),
		Path:     "/" + d.Database,
		RawQuery: url.Values{"sslmode": []string{d.GetSSLMode()}}.Encode(),
	}
	return u.String(), nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetSync returns the sync configuration, never nil
func (c *Config) GetSync() *SyncConfig {
	if c.Sync == nil {
		return &SyncConfig{}
	}
	return c.Sync
}

// GetProvider returns the provider configuration, never nil
func (c *Config) GetProvider() *ProviderConfig {
	if c.Provider == nil {
		return &ProviderConfig{}
	}
	return c.Provider
}

// validate performs validation on the configuration
// Validate checks the whole configuration and reports every problem found
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if err := c.Database.validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if c.Sync != nil {
		if err := c.Sync.validate(); err != nil {
			errs = append(errs, fmt.Errorf("sync: %w", err))
		}
	}
	if c.Provider != nil {
		if err := c.Provider.validate(); err != nil {
			errs = append(errs, fmt.Errorf("provider: %w", err))
		}
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (d *DatabaseConfig) validate() error {
	if d == nil {
		return fmt.Errorf("configuration is required")
	}

	var errs []error
	if d.Host == "" {
		errs = append(errs, fmt.Errorf("host is required"))
	}
	if d.User == "" {
		errs = append(errs, fmt.Errorf("user is required"))
	}
	if d.Database == "" {
		errs = append(errs, fmt.Errorf("database is required"))
	}
	if d.Port < 0 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 0 and 65535, got %d", d.Port))
	}
	switch d.GetSSLMode() {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		errs = append(errs, fmt.Errorf("unsupported sslMode %q", d.SSLMode))
	}
	if d.MaxConns < 0 || d.MinConns < 0 {
		errs = append(errs, fmt.Errorf("pool sizes must not be negative"))
	}
	if d.MaxConns > 0 && d.MinConns > d.MaxConns {
		errs = append(errs, fmt.Errorf("minConns (%d) must not exceed maxConns (%d)", d.MinConns, d.MaxConns))
	}
	if err := validateDuration("connMaxLifetime", d.ConnMaxLifetime); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *SyncConfig) validate() error {
	var errs []error
	for _, field := range []struct {
		name  string
		value string
	}{
		{"interval", s.Interval},
		{"jitter", s.Jitter},
		{"stalenessCutoff", s.StalenessCutoff},
		{"batchTimeout", s.BatchTimeout},
	} {
		if err := validateDuration(field.name, field.value); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", s.Concurrency))
	}
	return errors.Join(errs...)
}

func (p *ProviderConfig) validate() error {
	var errs []error
	if p.BaseURL != "" {
		u, err := url.Parse(p.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("baseURL must be an absolute http(s) URL, got %q", p.BaseURL))
		}
	}
	if strings.ContainsAny(p.Host, "/ ") {
		errs = append(errs, fmt.Errorf("host must be a bare host name such as github.com, got %q", p.Host))
	}
	if p.PageSize < 0 || p.PageSize > 100 {
		errs = append(errs, fmt.Errorf("pageSize must be between 1 and 100, got %d", p.PageSize))
	}
	if p.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("maxPages must not be negative, got %d", p.MaxPages))
	}
	if p.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requestsPerSecond must not be negative, got %v", p.RequestsPerSecond))
	}
	if p.Burst < 0 {
		errs = append(errs, fmt.Errorf("burst must not be negative, got %d", p.Burst))
	}
	if p.MaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("maxAttempts must be at most 10, got %d", p.MaxAttempts))
	}
	if err := validateDuration("requestTimeout", p.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := validateDuration("sinceOverlap", p.SinceOverlap); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// validateDuration accepts empty values and non-negative Go durations
func validateDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30s', '2m'): %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative, got %s", name, value)
	}
	return nil
}

// ParseDuration parses an optional duration, returning zero for empty values.
// Values are expected to have passed validation.
func ParseDuration(value string) time.Duration {
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
