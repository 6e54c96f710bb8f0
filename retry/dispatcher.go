package retry

import (
	"context"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/logger"
)

var _ projections.Dispatcher = Dispatcher{}

// Dispatcher applies a retry Policy around the dispatch of each Transaction
// to the wrapped projections.Dispatcher.
type Dispatcher struct {
	Dispatcher projections.Dispatcher
	Policy     Policy
	Logger     logger.Logger
}

// Dispatch implements the projections.Dispatcher interface.
func (d Dispatcher) Dispatch(ctx context.Context, tx projections.Transaction) error {
	return d.Policy.Do(ctx, d.Logger, func(ctx context.Context) error {
		return d.Dispatcher.Dispatch(ctx, tx)
	})
}
