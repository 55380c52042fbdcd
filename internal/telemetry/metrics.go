// Package telemetry provides OpenTelemetry instrumentation for the activity sync server.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// BatchMetricsMeterName is the name used for the batch metrics meter
	BatchMetricsMeterName = "github.com/stacklok/repo-activity-sync/sync"
)

// BatchMetrics holds the OpenTelemetry instruments for sync batch metrics
type BatchMetrics struct {
	batchDuration         metric.Float64Histogram
	contributionsFetched  metric.Int64Counter
	contributionsUpserted metric.Int64Counter
	repositoryErrors      metric.Int64Counter
	batchesSkipped        metric.Int64Counter
}

// NewBatchMetrics creates a new BatchMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewBatchMetrics(provider metric.MeterProvider) (*BatchMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(BatchMetricsMeterName)

	batchDuration, err := meter.Float64Histogram(
		"activity_sync_batch_duration_seconds",
		metric.WithDescription("Duration of sync batches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	contributionsFetched, err := meter.Int64Counter(
		"activity_sync_contributions_fetched_total",
		metric.WithDescription("Number of raw activity events returned by the provider"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	contributionsUpserted, err := meter.Int64Counter(
		"activity_sync_contributions_upserted_total",
		metric.WithDescription("Number of newly stored activity records"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	repositoryErrors, err := meter.Int64Counter(
		"activity_sync_repository_errors_total",
		metric.WithDescription("Number of per-repository sync failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	batchesSkipped, err := meter.Int64Counter(
		"activity_sync_batches_skipped_total",
		metric.WithDescription("Number of scheduled batches skipped because another batch was running"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, err
	}

	return &BatchMetrics{
		batchDuration:         batchDuration,
		contributionsFetched:  contributionsFetched,
		contributionsUpserted: contributionsUpserted,
		repositoryErrors:      repositoryErrors,
		batchesSkipped:        batchesSkipped,
	}, nil
}

// RecordBatch records the duration and counters of a finished batch
func (m *BatchMetrics) RecordBatch(
	ctx context.Context,
	trigger string,
	duration time.Duration,
	fetched, upserted int,
	success bool,
) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("trigger", trigger))

	m.batchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	))
	m.contributionsFetched.Add(ctx, int64(fetched), attrs)
	m.contributionsUpserted.Add(ctx, int64(upserted), attrs)
}

// RecordRepositoryError records one per-repository failure
func (m *BatchMetrics) RecordRepositoryError(ctx context.Context, stage, kind string) {
	if m == nil {
		return
	}

	m.repositoryErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("kind", kind),
	))
}

// RecordBatchSkipped records a scheduled tick that found a batch already running
func (m *BatchMetrics) RecordBatchSkipped(ctx context.Context) {
	if m == nil {
		return
	}

	m.batchesSkipped.Add(ctx, 1)
}
