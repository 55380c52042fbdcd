package coordinator

import (
	"log/slog"
	"time"
)

const (
	// DefaultInterval is the scheduler interval used when none is configured
	DefaultInterval = 2 * time.Minute
	// DefaultBatchTimeout bounds a whole batch
	DefaultBatchTimeout = 10 * time.Minute
	// DefaultConcurrency is the number of repositories processed in parallel
	DefaultConcurrency = 4
)

// Config holds the batch and scheduling settings of the coordinator
type Config struct {
	// Interval is the time between scheduled batches
	Interval time.Duration
	// Jitter is the maximum random offset applied to each interval, in both directions
	Jitter time.Duration
	// StalenessCutoff is the minimum age of last_fetched_at for a repository to be due.
	// Zero selects every repository.
	StalenessCutoff time.Duration
	// BatchTimeout bounds a whole batch
	BatchTimeout time.Duration
	// Concurrency is the number of repositories processed in parallel
	Concurrency int
	// RunOnStart runs a batch as soon as the scheduler starts
	RunOnStart bool
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Jitter < 0 {
		slog.Warn("Negative sync jitter, disabling jitter", "jitter", c.Jitter)
		c.Jitter = 0
	}
	if c.Jitter >= c.Interval {
		slog.Warn("Sync jitter must be smaller than the interval, disabling jitter",
			"jitter", c.Jitter,
			"interval", c.Interval)
		c.Jitter = 0
	}
	if c.StalenessCutoff < 0 {
		c.StalenessCutoff = 0
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}
