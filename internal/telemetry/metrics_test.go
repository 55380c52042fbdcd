package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collectBatchMetrics returns the metrics of the batch meter scope, keyed by name
func collectBatchMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != BatchMetricsMeterName {
			continue
		}
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum for %s", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewBatchMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewBatchMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("creates metrics with SDK provider", func(t *testing.T) {
		t.Parallel()

		mp := sdkmetric.NewMeterProvider()
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewBatchMetrics(mp)
		require.NoError(t, err)
		require.NotNil(t, metrics)
		assert.NotNil(t, metrics.batchDuration)
		assert.NotNil(t, metrics.contributionsFetched)
		assert.NotNil(t, metrics.contributionsUpserted)
		assert.NotNil(t, metrics.repositoryErrors)
		assert.NotNil(t, metrics.batchesSkipped)
	})
}

func TestBatchMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *BatchMetrics
	ctx := context.Background()

	// Should not panic
	metrics.RecordBatch(ctx, "manual", time.Second, 3, 2, true)
	metrics.RecordRepositoryError(ctx, "fetch", "rate_limited")
	metrics.RecordBatchSkipped(ctx)
}

func TestBatchMetrics_RecordBatch(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewBatchMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordBatch(ctx, "scheduled", 1500*time.Millisecond, 10, 4, true)
	metrics.RecordBatch(ctx, "manual", 500*time.Millisecond, 3, 3, false)

	collected := collectBatchMetrics(t, reader)

	hist, ok := collected["activity_sync_batch_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected histogram data type")
	require.Len(t, hist.DataPoints, 2)
	var total float64
	for _, dp := range hist.DataPoints {
		total += dp.Sum
		_, hasTrigger := dp.Attributes.Value(attribute.Key("trigger"))
		assert.True(t, hasTrigger)
	}
	assert.InDelta(t, 2.0, total, 0.001)

	assert.Equal(t, int64(13), sumOf(t, collected["activity_sync_contributions_fetched_total"]))
	assert.Equal(t, int64(7), sumOf(t, collected["activity_sync_contributions_upserted_total"]))
}

func TestBatchMetrics_Counters(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewBatchMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordRepositoryError(ctx, "resolve_credential", "not_found")
	metrics.RecordRepositoryError(ctx, "fetch", "rate_limited")
	metrics.RecordRepositoryError(ctx, "fetch", "rate_limited")
	metrics.RecordBatchSkipped(ctx)

	collected := collectBatchMetrics(t, reader)

	errorsMetric := collected["activity_sync_repository_errors_total"]
	assert.Equal(t, int64(3), sumOf(t, errorsMetric))
	sum := errorsMetric.Data.(metricdata.Sum[int64])
	assert.Len(t, sum.DataPoints, 2, "one data point per stage/kind pair")

	assert.Equal(t, int64(1), sumOf(t, collected["activity_sync_batches_skipped_total"]))
}
