package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/logger"
	"github.com/get-eventually/go-projections/retry"
)

var errFailed = errors.New("operation failed")

func failing(attempts *int, successAfter int) func(context.Context) error {
	return func(context.Context) error {
		*attempts++
		if successAfter > 0 && *attempts > successAfter {
			return nil
		}

		return errFailed
	}
}

func TestPolicy_Do(t *testing.T) {
	ctx := context.Background()

	t.Run("none runs the operation once", func(t *testing.T) {
		var attempts int

		err := retry.None.Do(ctx, logger.NewTest(t), failing(&attempts, 0))
		assert.ErrorIs(t, err, errFailed)
		assert.Equal(t, 1, attempts)
	})

	t.Run("succeeds as soon as an attempt does", func(t *testing.T) {
		var attempts int

		err := retry.For(time.Millisecond, time.Minute).Do(ctx, logger.NewTest(t), failing(&attempts, 2))
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("returns the last error once the max duration has elapsed", func(t *testing.T) {
		var attempts int

		started := time.Now()
		err := retry.For(10*time.Millisecond, 100*time.Millisecond).Do(ctx, logger.NewTest(t), failing(&attempts, 0))

		assert.Same(t, errFailed, err)
		assert.Greater(t, attempts, 1)
		assert.Less(t, time.Since(started), 2*time.Second)
	})

	t.Run("retries once when the interval equals the max duration", func(t *testing.T) {
		var attempts int

		err := retry.For(100*time.Millisecond, 100*time.Millisecond).Do(ctx, logger.NewTest(t), failing(&attempts, 0))

		assert.ErrorIs(t, err, errFailed)
		assert.Equal(t, 2, attempts)
	})

	t.Run("keeps retrying until the max duration has elapsed", func(t *testing.T) {
		var attempts int

		started := time.Now()
		err := retry.For(100*time.Millisecond, 250*time.Millisecond).Do(ctx, logger.NewTest(t), failing(&attempts, 0))

		assert.ErrorIs(t, err, errFailed)
		assert.GreaterOrEqual(t, attempts, 3)
		assert.GreaterOrEqual(t, time.Since(started), 250*time.Millisecond)
	})

	t.Run("canceling the context stops the retries", func(t *testing.T) {
		var attempts int

		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		started := time.Now()
		err := retry.Indefinitely(time.Hour).Do(ctx, logger.NewTest(t), failing(&attempts, 0))

		assert.ErrorIs(t, err, errFailed)
		assert.Equal(t, 1, attempts)
		assert.Less(t, time.Since(started), 5*time.Second)
	})
}

func TestDispatcher(t *testing.T) {
	var attempts int

	tx := projections.Transaction{ID: "tx-1", Checkpoint: "1"}

	d := retry.Dispatcher{
		Policy: retry.For(time.Millisecond, time.Minute),
		Logger: logger.NewTest(t),
		Dispatcher: projections.DispatcherFunc(func(_ context.Context, received projections.Transaction) error {
			assert.Equal(t, tx.ID, received.ID)

			attempts++
			if attempts < 3 {
				return errFailed
			}

			return nil
		}),
	}

	assert.NoError(t, d.Dispatch(context.Background(), tx))
	assert.Equal(t, 3, attempts)
}
