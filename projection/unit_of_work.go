package projection

import "context"

// UnitOfWork is a scoped resource, such as a database transaction,
// used to apply the effects of all the Projectors of a single Transaction.
//
// Commit is called only when all the events have been handled successfully.
// Close is always called, and should discard any uncommitted effect.
type UnitOfWork interface {
	Commit(ctx context.Context) error
	Close(ctx context.Context) error
}

// UnitOfWorkFactory opens a new UnitOfWork.
type UnitOfWorkFactory func(ctx context.Context) (UnitOfWork, error)

var _ UnitOfWork = NopUnitOfWork{}

// NopUnitOfWork is a UnitOfWork with no effects, for Projectors
// managing their own storage.
type NopUnitOfWork struct{}

// Commit is a no-op.
func (NopUnitOfWork) Commit(context.Context) error { return nil }

// Close is a no-op.
func (NopUnitOfWork) Close(context.Context) error { return nil }

// NewNopUnitOfWork is a UnitOfWorkFactory returning NopUnitOfWork instances.
func NewNopUnitOfWork(context.Context) (UnitOfWork, error) {
	return NopUnitOfWork{}, nil
}
