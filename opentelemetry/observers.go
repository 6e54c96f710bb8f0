package opentelemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/get-eventually/go-projections/polling"
	"github.com/get-eventually/go-projections/stats"
)

// CacheStatsProvider exposes the usage of a commit-page cache.
// It is implemented by *polling.Adapter.
type CacheStatsProvider interface {
	CacheStats() polling.CacheStats
}

// RegisterStatsObservers registers observable gauges reporting the last
// checkpoint and the estimated speed of every projector tracked in the
// ProjectionStats.
func RegisterStatsObservers(projectionStats *stats.ProjectionStats, options ...Option) error {
	cfg := newConfig(options...)
	meter := cfg.meter()

	checkpointGauge, err := meter.Int64ObservableGauge(
		"projections.projector.checkpoint",
		metric.WithUnit("{checkpoint}"),
		metric.WithDescription("Last checkpoint dispatched by the projector."),
	)
	if err != nil {
		return fmt.Errorf("opentelemetry.RegisterStatsObservers: failed to register metric, %w", err)
	}

	speedGauge, err := meter.Float64ObservableGauge(
		"projections.projector.speed",
		metric.WithUnit("{checkpoint}/s"),
		metric.WithDescription("Estimated number of checkpoints dispatched per second by the projector."),
	)
	if err != nil {
		return fmt.Errorf("opentelemetry.RegisterStatsObservers: failed to register metric, %w", err)
	}

	if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, snapshot := range projectionStats.All() {
			attributes := metric.WithAttributes(cfg.attributes(ProjectorKey.String(snapshot.ID))...)

			o.ObserveInt64(checkpointGauge, snapshot.Checkpoint, attributes)

			if snapshot.HasSpeed {
				o.ObserveFloat64(speedGauge, snapshot.Speed, attributes)
			}
		}

		return nil
	}, checkpointGauge, speedGauge); err != nil {
		return fmt.Errorf("opentelemetry.RegisterStatsObservers: failed to register callback, %w", err)
	}

	return nil
}

// RegisterCacheObservers registers observable gauges reporting the size
// and the hit and miss counts of a commit-page cache.
func RegisterCacheObservers(provider CacheStatsProvider, options ...Option) error {
	cfg := newConfig(options...)
	meter := cfg.meter()

	if _, err := meter.Int64ObservableGauge(
		"projections.cache.size",
		metric.WithUnit("{page}"),
		metric.WithDescription("Number of pages held in the commit-page cache."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(provider.CacheStats().Size), metric.WithAttributes(cfg.Attributes...))
			return nil
		}),
	); err != nil {
		return fmt.Errorf("opentelemetry.RegisterCacheObservers: failed to register metric, %w", err)
	}

	if _, err := meter.Int64ObservableGauge(
		"projections.cache.requests",
		metric.WithUnit("{request}"),
		metric.WithDescription("Number of commit-page cache lookups, by result."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			cacheStats := provider.CacheStats()

			o.Observe(cacheStats.Hits, metric.WithAttributes(cfg.attributes(CacheResultKey.String("hit"))...))
			o.Observe(cacheStats.Misses, metric.WithAttributes(cfg.attributes(CacheResultKey.String("miss"))...))

			return nil
		}),
	); err != nil {
		return fmt.Errorf("opentelemetry.RegisterCacheObservers: failed to register metric, %w", err)
	}

	return nil
}
