package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/stacklok/repo-activity-sync/internal/registry"
	"github.com/stacklok/repo-activity-sync/internal/status"
	pkgsync "github.com/stacklok/repo-activity-sync/internal/sync"
	"github.com/stacklok/repo-activity-sync/internal/telemetry"
)

// TracerName is the name used for the batch tracer
const TracerName = "github.com/stacklok/repo-activity-sync/coordinator"

// BatchRunner runs sync batches on demand
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/stacklok/repo-activity-sync/internal/sync/coordinator BatchRunner
type BatchRunner interface {
	// RunBatch runs one batch for the given scope and blocks until it finishes.
	// If another batch is in flight, it waits for it first, bounded by ctx.
	RunBatch(ctx context.Context, scope Scope) (*BatchResult, error)
}

// Coordinator runs sync batches on a fixed interval and on demand
type Coordinator interface {
	BatchRunner

	// Start begins the interval scheduler.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler and waits for the running tick to finish
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	store   registry.Store
	manager pkgsync.Manager
	config  Config

	// gate admits one batch at a time
	gate *semaphore.Weighted

	// Lifecycle management
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}

	tracker *status.Tracker
	metrics *telemetry.BatchMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithBatchMetrics sets the batch metrics for the coordinator
func WithBatchMetrics(metrics *telemetry.BatchMetrics) Option {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// WithTracker sets the status tracker updated around every batch
func WithTracker(tracker *status.Tracker) Option {
	return func(c *defaultCoordinator) {
		c.tracker = tracker
	}
}

// WithTracer sets the tracer used for batch spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *defaultCoordinator) {
		c.tracer = tracer
	}
}

// New creates a new coordinator with injected dependencies
func New(
	store registry.Store,
	manager pkgsync.Manager,
	cfg Config,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		store:   store,
		manager: manager,
		config:  cfg.withDefaults(),
		gate:    semaphore.NewWeighted(1),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.tracker == nil {
		c.tracker = status.NewTracker(context.Background())
	}

	return c
}

// nextInterval returns the configured interval with a random jitter applied
func (c *defaultCoordinator) nextInterval() time.Duration {
	if c.config.Jitter <= 0 {
		return c.config.Interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
	offset := time.Duration(rand.Int64N(int64(2*c.config.Jitter))) - c.config.Jitter
	return c.config.Interval + offset
}

// Start begins the interval scheduler
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already started")
	}
	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.cancelFunc = nil
		c.mu.Unlock()
		close(done)
		slog.Info("Background sync scheduler shutting down")
	}()

	interval := c.nextInterval()
	slog.Info("Starting background sync scheduler",
		"interval", c.config.Interval,
		"first_interval", interval,
		"staleness_cutoff", c.config.StalenessCutoff,
		"concurrency", c.config.Concurrency,
		"run_on_start", c.config.RunOnStart)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if c.config.RunOnStart {
		c.tick(coordCtx)
	}

	for {
		select {
		case <-ticker.C:
			c.tick(coordCtx)
			ticker.Reset(c.nextInterval())
		case <-coordCtx.Done():
			slog.Info("Sync scheduler stopping")
			return nil
		}
	}
}

// Stop gracefully stops the scheduler
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync scheduler")
		cancel()
		<-done
	}
	return nil
}

// RunBatch runs a manually triggered batch, waiting for any in-flight batch first
func (c *defaultCoordinator) RunBatch(ctx context.Context, scope Scope) (*BatchResult, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for running batch: %w", err)
	}
	defer c.gate.Release(1)

	return c.runBatch(ctx, scope, status.TriggerManual)
}

// tick runs one scheduled batch unless another batch holds the gate.
// Errors and panics are logged and never escape the scheduler loop.
func (c *defaultCoordinator) tick(ctx context.Context) {
	if !c.gate.TryAcquire(1) {
		slog.Info("Skipping scheduled sync, a batch is already running")
		c.metrics.RecordBatchSkipped(ctx)
		return
	}
	defer c.gate.Release(1)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduled sync panicked", "panic", r)
			now := c.now()
			c.tracker.End(ctx, status.BatchSummary{
				Trigger:    status.TriggerScheduled,
				Outcome:    status.OutcomeFailed,
				Message:    fmt.Sprintf("panic: %v", r),
				StartedAt:  now,
				FinishedAt: now,
			})
		}
	}()

	result, err := c.runBatch(ctx, All(), status.TriggerScheduled)
	if err != nil {
		slog.Error("Scheduled sync failed", "error", err)
		return
	}
	slog.Info("Scheduled sync finished",
		"repositories_processed", result.RepositoriesProcessed,
		"contributions_fetched", result.ContributionsFetched,
		"contributions_upserted", result.ContributionsUpserted,
		"errors", len(result.Errors),
		"processing_time", result.ProcessingTime)
}
