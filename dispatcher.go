package projections

import "context"

// Dispatcher delivers a single Transaction to its downstream processing logic.
//
// Dispatch should return only when the Transaction has been fully handled,
// or with an error if that was not possible. Implementations should honor
// context cancellation at least between each event handled.
type Dispatcher interface {
	Dispatch(ctx context.Context, tx Transaction) error
}

// DispatcherFunc is a functional implementation of the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, tx Transaction) error

// Dispatch implements the projections.Dispatcher interface.
func (fn DispatcherFunc) Dispatch(ctx context.Context, tx Transaction) error {
	return fn(ctx, tx)
}
