package opentelemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/get-eventually/go-projections"
)

var _ projections.Dispatcher = new(InstrumentedDispatcher)

// InstrumentedDispatcher is a wrapper type over a projections.Dispatcher
// to provide OpenTelemetry instrumentation around each dispatch.
//
// Use NewInstrumentedDispatcher for constructing a new instance of this type.
type InstrumentedDispatcher struct {
	dispatcher projections.Dispatcher
	cfg        config

	tracer           trace.Tracer
	dispatchDuration metric.Float64Histogram
	eventsDispatched metric.Int64Counter
}

// NewInstrumentedDispatcher returns a wrapper type to provide OpenTelemetry
// instrumentation (metrics and traces) around a projections.Dispatcher.
func NewInstrumentedDispatcher(dispatcher projections.Dispatcher, options ...Option) (*InstrumentedDispatcher, error) {
	cfg := newConfig(options...)
	meter := cfg.meter()

	id := &InstrumentedDispatcher{
		dispatcher: dispatcher,
		cfg:        cfg,
		tracer:     cfg.tracer(),
	}

	var err error

	if id.dispatchDuration, err = meter.Float64Histogram(
		"projections.dispatcher.dispatch.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration in seconds of the dispatch of a Transaction."),
	); err != nil {
		return nil, fmt.Errorf("opentelemetry.InstrumentedDispatcher: failed to register metric, %w", err)
	}

	if id.eventsDispatched, err = meter.Int64Counter(
		"projections.dispatcher.events",
		metric.WithUnit("{event}"),
		metric.WithDescription("Number of events in the Transactions dispatched."),
	); err != nil {
		return nil, fmt.Errorf("opentelemetry.InstrumentedDispatcher: failed to register metric, %w", err)
	}

	return id, nil
}

// Dispatch calls the wrapped projections.Dispatcher and records metrics and traces around it.
func (id *InstrumentedDispatcher) Dispatch(ctx context.Context, tx projections.Transaction) (err error) {
	ctx, span := id.tracer.Start(ctx, "projections.Dispatcher.Dispatch", trace.WithAttributes(
		id.cfg.attributes(
			TransactionIDKey.String(tx.ID),
			StreamIDKey.String(tx.StreamID),
			CheckpointKey.String(tx.Checkpoint.String()),
			EventsCountKey.Int(len(tx.Events)),
		)...,
	))
	start := time.Now()

	defer func() {
		attributes := metric.WithAttributes(id.cfg.attributes(ErrorKey.Bool(err != nil))...)

		id.dispatchDuration.Record(ctx, time.Since(start).Seconds(), attributes)
		id.eventsDispatched.Add(ctx, int64(len(tx.Events)), attributes)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	err = id.dispatcher.Dispatch(ctx, tx)

	return
}
