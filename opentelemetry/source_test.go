package opentelemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/eventsource"
	"github.com/get-eventually/go-projections/opentelemetry"
)

type telemetry struct {
	reader   *sdkmetric.ManualReader
	exporter *tracetest.InMemoryExporter
	options  []opentelemetry.Option
}

func newTelemetry(t *testing.T) telemetry {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exporter := tracetest.NewInMemoryExporter()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() {
		_ = meterProvider.Shutdown(context.Background())
		_ = tracerProvider.Shutdown(context.Background())
	})

	return telemetry{
		reader:   reader,
		exporter: exporter,
		options: []opentelemetry.Option{
			opentelemetry.WithMeterProvider(meterProvider),
			opentelemetry.WithTracerProvider(tracerProvider),
			opentelemetry.WithAttributes(attribute.String("component", "test")),
		},
	}
}

func (tm telemetry) collect(t *testing.T) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, tm.reader.Collect(context.Background(), &rm))

	metrics := make(map[string]metricdata.Metrics)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metrics[m.Name] = m
		}
	}

	return metrics
}

type failingSource struct {
	eventsource.Source
	err error
}

func (s failingSource) GetFrom(context.Context, checkpoint.Token, int) ([]eventsource.Commit, error) {
	return nil, s.err
}

func TestInstrumentedSource(t *testing.T) {
	ctx := context.Background()

	t.Run("records a span and the number of commits fetched", func(t *testing.T) {
		tm := newTelemetry(t)

		source := eventsource.NewInMemory()
		for i := 0; i < 5; i++ {
			source.AppendBodies("stream", i)
		}

		instrumented, err := opentelemetry.NewInstrumentedSource(source, tm.options...)
		require.NoError(t, err)

		commits, err := instrumented.GetFrom(ctx, checkpoint.Token("1"), 10)
		require.NoError(t, err)
		assert.Len(t, commits, 4)

		spans := tm.exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "eventsource.Source.GetFrom", spans[0].Name)
		assert.Contains(t, spans[0].Attributes, opentelemetry.CommitsCountKey.Int(4))
		assert.Contains(t, spans[0].Attributes, opentelemetry.CheckpointKey.String("1"))

		metrics := tm.collect(t)

		counter, ok := metrics["projections.event_source.commits"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, counter.DataPoints, 1)
		assert.Equal(t, int64(4), counter.DataPoints[0].Value)

		histogram, ok := metrics["projections.event_source.get_from.duration"].Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		require.Len(t, histogram.DataPoints, 1)
		assert.Equal(t, uint64(1), histogram.DataPoints[0].Count)

		latest, err := instrumented.LatestCheckpoint(ctx)
		require.NoError(t, err)
		assert.Equal(t, checkpoint.Token("5"), latest)
	})

	t.Run("records the error on the span", func(t *testing.T) {
		tm := newTelemetry(t)
		expected := errors.New("connection refused")

		instrumented, err := opentelemetry.NewInstrumentedSource(failingSource{err: expected}, tm.options...)
		require.NoError(t, err)

		_, err = instrumented.GetFrom(ctx, checkpoint.Beginning, 10)
		assert.ErrorIs(t, err, expected)

		spans := tm.exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Len(t, spans[0].Events, 1)

		histogram, ok := tm.collect(t)["projections.event_source.get_from.duration"].Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		require.Len(t, histogram.DataPoints, 1)

		value, ok := histogram.DataPoints[0].Attributes.Value(opentelemetry.ErrorKey)
		require.True(t, ok)
		assert.True(t, value.AsBool())
	})

	t.Run("latest checkpoint is unsupported by plain sources", func(t *testing.T) {
		tm := newTelemetry(t)

		instrumented, err := opentelemetry.NewInstrumentedSource(failingSource{}, tm.options...)
		require.NoError(t, err)

		_, err = instrumented.LatestCheckpoint(ctx)
		assert.ErrorIs(t, err, errors.ErrUnsupported)
	})
}
