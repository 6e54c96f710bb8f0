package correlation

import (
	"context"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/projection"
)

var _ projection.Projector = ProjectorWrapper{}

// ProjectorWrapper adds Correlation and Causation ids to the context
// of the underlying projection.Projector, if found in the headers
// of the event handled.
//
// Event headers take precedence over the headers of the Transaction.
type ProjectorWrapper struct {
	Projector projection.Projector
}

func lookup(key string, headers ...projections.Headers) (string, bool) {
	for _, h := range headers {
		if id, ok := h[key].(string); ok && id != "" {
			return id, true
		}
	}

	return "", false
}

// Handle implements the projection.Projector interface.
func (pw ProjectorWrapper) Handle(ctx context.Context, event any, pctx projection.Context) error {
	if id, ok := lookup(CorrelationIDKey, pctx.EventHeaders, pctx.TransactionHeaders); ok {
		ctx = WithCorrelationID(ctx, id)
	}

	// Actions taken by the Projector are caused by the event handled.
	if id, ok := lookup(EventIDKey, pctx.EventHeaders); ok {
		ctx = WithCausationID(ctx, id)
	}

	return pw.Projector.Handle(ctx, event, pctx)
}

// WrapFactory returns a projection.Factory wrapping every Projector
// produced by the specified one with a ProjectorWrapper.
func WrapFactory(factory projection.Factory) projection.Factory {
	return func(uow projection.UnitOfWork) (projection.Projector, error) {
		projector, err := factory(uow)
		if err != nil {
			return nil, err
		}

		return ProjectorWrapper{Projector: projector}, nil
	}
}
