package opentelemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/eventsource"
)

var (
	_ eventsource.Source                 = new(InstrumentedSource)
	_ eventsource.LatestCheckpointGetter = new(InstrumentedSource)
)

// InstrumentedSource is a wrapper type over an eventsource.Source
// instance to provide instrumentation, in the form of metrics and traces
// using OpenTelemetry.
//
// Use NewInstrumentedSource for constructing a new instance of this type.
type InstrumentedSource struct {
	source eventsource.Source
	cfg    config

	tracer          trace.Tracer
	getFromDuration metric.Float64Histogram
	commitsFetched  metric.Int64Counter
}

func (is *InstrumentedSource) registerMetrics(meter metric.Meter) error {
	var err error

	if is.getFromDuration, err = meter.Float64Histogram(
		"projections.event_source.get_from.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration in seconds of eventsource.Source.GetFrom operations performed."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedSource: failed to register metric, %w", err)
	}

	if is.commitsFetched, err = meter.Int64Counter(
		"projections.event_source.commits",
		metric.WithUnit("{commit}"),
		metric.WithDescription("Number of commits fetched from the Event Store."),
	); err != nil {
		return fmt.Errorf("opentelemetry.InstrumentedSource: failed to register metric, %w", err)
	}

	return nil
}

// NewInstrumentedSource returns a wrapper type to provide OpenTelemetry
// instrumentation (metrics and traces) around an eventsource.Source.
//
// An error is returned if metrics could not be registered.
func NewInstrumentedSource(source eventsource.Source, options ...Option) (*InstrumentedSource, error) {
	cfg := newConfig(options...)

	is := &InstrumentedSource{
		source: source,
		cfg:    cfg,
		tracer: cfg.tracer(),
	}

	if err := is.registerMetrics(cfg.meter()); err != nil {
		return nil, err
	}

	return is, nil
}

// GetFrom calls the wrapped eventsource.Source.GetFrom method and records metrics and traces around it.
func (is *InstrumentedSource) GetFrom(
	ctx context.Context,
	from checkpoint.Token,
	limit int,
) (commits []eventsource.Commit, err error) {
	ctx, span := is.tracer.Start(ctx, "eventsource.Source.GetFrom", trace.WithAttributes(
		is.cfg.attributes(
			CheckpointKey.String(from.String()),
			LimitKey.Int(limit),
		)...,
	))
	start := time.Now()

	defer func() {
		is.getFromDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(is.cfg.attributes(ErrorKey.Bool(err != nil))...))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(CommitsCountKey.Int(len(commits)))
			is.commitsFetched.Add(ctx, int64(len(commits)), metric.WithAttributes(is.cfg.Attributes...))
		}

		span.End()
	}()

	commits, err = is.source.GetFrom(ctx, from, limit)

	return
}

// CompareCheckpoints implements the eventsource.Source interface.
func (is *InstrumentedSource) CompareCheckpoints(x, y checkpoint.Token) int {
	return is.source.CompareCheckpoints(x, y)
}

// LatestCheckpoint calls the wrapped eventsource.LatestCheckpointGetter, if supported.
func (is *InstrumentedSource) LatestCheckpoint(ctx context.Context) (checkpoint.Token, error) {
	getter, ok := is.source.(eventsource.LatestCheckpointGetter)
	if !ok {
		return checkpoint.Beginning, fmt.Errorf("opentelemetry.InstrumentedSource: %T, %w", is.source, errors.ErrUnsupported)
	}

	ctx, span := is.tracer.Start(ctx, "eventsource.Source.LatestCheckpoint", trace.WithAttributes(is.cfg.Attributes...))
	defer span.End()

	token, err := getter.LatestCheckpoint(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return token, err
}
