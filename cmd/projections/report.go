package main

import (
	"context"
	"time"

	"github.com/get-eventually/go-projections/eventsource"
	"github.com/get-eventually/go-projections/logger"
	"github.com/get-eventually/go-projections/stats"
)

// statsReporter periodically logs the progress of a projector, together
// with the estimated time needed to catch up with the Event Store.
type statsReporter struct {
	name   string
	stats  *stats.ProjectionStats
	source eventsource.LatestCheckpointGetter
	logger logger.Logger
}

func (r statsReporter) report(ctx context.Context) {
	latest, err := r.source.LatestCheckpoint(ctx)
	if err != nil {
		logger.Error(r.logger, "Failed to get the latest checkpoint", logger.Err(err))
		return
	}

	snapshot, ok := r.stats.Get(r.name)
	if !ok {
		logger.Info(r.logger, "No progress yet", logger.With("latest", latest.String()))
		return
	}

	fields := []logger.Field{
		logger.With("checkpoint", snapshot.Checkpoint),
		logger.With("latest", latest.String()),
		logger.With("lastUpdate", snapshot.LastUpdate),
	}

	if snapshot.HasSpeed {
		fields = append(fields, logger.With("speed", snapshot.Speed))
	}

	if target, ok := latest.Int64(); ok {
		if eta, ok := r.stats.GetTimeToReach(r.name, target); ok {
			fields = append(fields, logger.With("eta", eta.Round(time.Second).String()))
		}
	}

	logger.Info(r.logger, "Projector progress", fields...)
}

func (r statsReporter) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.report(ctx)
		}
	}
}
