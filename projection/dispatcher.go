package projection

import (
	"context"
	"fmt"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/logger"
)

var _ projections.Dispatcher = new(Dispatcher)

// Option can be used to change the configuration of a Dispatcher.
type Option interface {
	apply(*Dispatcher)
}

type option func(*Dispatcher)

func (fn option) apply(d *Dispatcher) { fn(d) }

// WithLogger sets the Logger used by the Dispatcher.
func WithLogger(l logger.Logger) Option {
	return option(func(d *Dispatcher) {
		d.logger = l
	})
}

// Dispatcher dispatches each event of a Transaction to all the Projectors
// of a Registry capable of handling it, within a single UnitOfWork.
type Dispatcher struct {
	registry      *Registry
	newUnitOfWork UnitOfWorkFactory
	logger        logger.Logger
}

// NewDispatcher returns a new Dispatcher for the Projectors in the Registry.
//
// If no UnitOfWorkFactory is specified, NewNopUnitOfWork is used.
func NewDispatcher(registry *Registry, newUnitOfWork UnitOfWorkFactory, options ...Option) *Dispatcher {
	if newUnitOfWork == nil {
		newUnitOfWork = NewNopUnitOfWork
	}

	d := &Dispatcher{
		registry:      registry,
		newUnitOfWork: newUnitOfWork,
	}

	for _, opt := range options {
		opt.apply(d)
	}

	return d
}

// Dispatch handles all the events of the Transaction, in order, and
// commits the UnitOfWork once all of them have been handled.
//
// The context is checked before each Projector invocation: a canceled
// context aborts the dispatch, leaving the UnitOfWork uncommitted.
func (d *Dispatcher) Dispatch(ctx context.Context, tx projections.Transaction) error {
	if err := d.dispatch(ctx, tx); err != nil {
		logger.Error(d.logger, "failed to dispatch transaction",
			logger.With("severity", "fatal"),
			logger.With("transactionId", tx.ID),
			logger.With("streamId", tx.StreamID),
			logger.With("checkpoint", tx.Checkpoint),
			logger.Err(err),
		)

		return err
	}

	logger.Debug(d.logger, "transaction dispatched",
		logger.With("transactionId", tx.ID),
		logger.With("checkpoint", tx.Checkpoint),
		logger.With("events", len(tx.Events)),
	)

	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, tx projections.Transaction) error {
	uow, err := d.newUnitOfWork(ctx)
	if err != nil {
		return fmt.Errorf("projection.Dispatcher: failed to open unit of work, %w", err)
	}

	defer func() {
		if err := uow.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Error(d.logger, "failed to close unit of work",
				logger.With("transactionId", tx.ID),
				logger.Err(err),
			)
		}
	}()

	projectors := make(map[string]Projector)

	for i, envelope := range tx.Events {
		pctx := Context{
			TransactionID:      tx.ID,
			StreamID:           tx.StreamID,
			Checkpoint:         tx.Checkpoint,
			TimeStamp:          tx.TimeStamp,
			TransactionHeaders: tx.Headers,
			EventHeaders:       envelope.Headers,
		}

		for _, reg := range d.registry.match(envelope.Body) {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("projection.Dispatcher: dispatch interrupted, %w", err)
			}

			projector, ok := projectors[reg.name]
			if !ok {
				if projector, err = reg.factory(uow); err != nil {
					return fmt.Errorf("projection.Dispatcher: failed to create projector '%s', %w", reg.name, err)
				}

				projectors[reg.name] = projector
			}

			if err := projector.Handle(ctx, envelope.Body, pctx); err != nil {
				return fmt.Errorf("projection.Dispatcher: projector '%s' failed on event %d (%T), %w",
					reg.name, i, envelope.Body, err)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("projection.Dispatcher: dispatch interrupted, %w", err)
	}

	if err := uow.Commit(ctx); err != nil {
		return fmt.Errorf("projection.Dispatcher: failed to commit unit of work, %w", err)
	}

	return nil
}
