package projection

import (
	"context"
	"time"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/checkpoint"
)

// Context carries the information about the Transaction and the event
// being projected.
type Context struct {
	TransactionID      string
	StreamID           string
	Checkpoint         checkpoint.Token
	TimeStamp          time.Time
	TransactionHeaders projections.Headers
	EventHeaders       projections.Headers
}

// Projector applies the events it is capable of handling to a read model.
type Projector interface {
	Handle(ctx context.Context, event any, pctx Context) error
}

// ProjectorFunc is a functional implementation of the Projector interface.
type ProjectorFunc func(ctx context.Context, event any, pctx Context) error

// Handle implements the projection.Projector interface.
func (fn ProjectorFunc) Handle(ctx context.Context, event any, pctx Context) error {
	return fn(ctx, event, pctx)
}

// Factory creates a Projector instance bound to the specified UnitOfWork.
type Factory func(uow UnitOfWork) (Projector, error)

// Singleton returns a Factory always returning the same Projector,
// for Projectors that do not use the UnitOfWork.
func Singleton(projector Projector) Factory {
	return func(UnitOfWork) (Projector, error) { return projector, nil }
}
