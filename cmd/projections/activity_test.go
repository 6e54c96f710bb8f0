package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/correlation"
	"github.com/get-eventually/go-projections/projection"
	"github.com/get-eventually/go-projections/serde"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

type orderPlaced struct{}

func TestStreamActivity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.May, 4, 10, 0, 0, 0, time.UTC)
	pctx := projection.Context{
		TransactionID: "tx-1",
		StreamID:      "order-1",
		Checkpoint:    checkpoint.Token("17"),
		TimeStamp:     now,
	}

	t.Run("upserts the stream row with the event type", func(t *testing.T) {
		db := new(fakeExecer)
		projector := streamActivity{db: db}

		correlationID := "checkout-9"

		require.NoError(t, projector.Handle(ctx, orderPlaced{}, pctx))
		require.NoError(t, projector.Handle(
			correlation.WithCorrelationID(ctx, correlationID),
			serde.Payload{Type: "order.shipped"},
			pctx,
		))

		require.Len(t, db.calls, 2)
		assert.Equal(t, []any{"order-1", int64(17), "main.orderPlaced", (*string)(nil), now}, db.calls[0].args)
		assert.Equal(t, []any{"order-1", int64(17), "order.shipped", &correlationID, now}, db.calls[1].args)
	})

	t.Run("non-numeric checkpoints are rejected", func(t *testing.T) {
		db := new(fakeExecer)
		projector := streamActivity{db: db}

		invalid := pctx
		invalid.Checkpoint = checkpoint.Token("abc")

		assert.Error(t, projector.Handle(ctx, orderPlaced{}, invalid))
		assert.Empty(t, db.calls)
	})

	t.Run("database errors are returned", func(t *testing.T) {
		expected := errors.New("deadlock detected")
		projector := streamActivity{db: &fakeExecer{err: expected}}

		assert.ErrorIs(t, projector.Handle(ctx, orderPlaced{}, pctx), expected)
	})

	t.Run("requires a postgres unit of work", func(t *testing.T) {
		_, err := newStreamActivity(projection.NopUnitOfWork{})
		assert.Error(t, err)
	})
}

func TestNewRegistry(t *testing.T) {
	registry, err := newRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{streamActivityProjector}, registry.Match(orderPlaced{}))
	assert.Equal(t, []string{streamActivityProjector}, registry.Match(serde.Payload{}))
}
