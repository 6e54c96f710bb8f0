package opentelemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/opentelemetry"
)

func TestInstrumentedDispatcher(t *testing.T) {
	ctx := context.Background()
	tx := projections.Transaction{
		ID:         "tx-1",
		StreamID:   "order-42",
		Checkpoint: checkpoint.Token("7"),
		Events: []projections.Envelope{
			{Body: "created"},
			{Body: "paid"},
		},
	}

	t.Run("successful dispatch", func(t *testing.T) {
		tm := newTelemetry(t)

		var received projections.Transaction

		instrumented, err := opentelemetry.NewInstrumentedDispatcher(
			projections.DispatcherFunc(func(_ context.Context, tx projections.Transaction) error {
				received = tx
				return nil
			}),
			tm.options...,
		)
		require.NoError(t, err)

		require.NoError(t, instrumented.Dispatch(ctx, tx))
		assert.Equal(t, tx.ID, received.ID)

		spans := tm.exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "projections.Dispatcher.Dispatch", spans[0].Name)
		assert.Contains(t, spans[0].Attributes, opentelemetry.StreamIDKey.String("order-42"))
		assert.Contains(t, spans[0].Attributes, opentelemetry.EventsCountKey.Int(2))
		assert.NotEqual(t, codes.Error, spans[0].Status.Code)

		counter, ok := tm.collect(t)["projections.dispatcher.events"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, counter.DataPoints, 1)
		assert.Equal(t, int64(2), counter.DataPoints[0].Value)
	})

	t.Run("failed dispatch", func(t *testing.T) {
		tm := newTelemetry(t)
		expected := errors.New("projector failed")

		instrumented, err := opentelemetry.NewInstrumentedDispatcher(
			projections.DispatcherFunc(func(context.Context, projections.Transaction) error {
				return expected
			}),
			tm.options...,
		)
		require.NoError(t, err)

		assert.ErrorIs(t, instrumented.Dispatch(ctx, tx), expected)

		spans := tm.exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, expected.Error(), spans[0].Status.Description)
	})
}
