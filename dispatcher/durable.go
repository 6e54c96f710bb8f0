package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/internal/broadcast"
	"github.com/get-eventually/go-projections/logger"
	"github.com/get-eventually/go-projections/polling"
	"github.com/get-eventually/go-projections/stats"
)

var (
	// ErrNotStarted is returned by WaitForDispatchOf when the Durable
	// dispatcher has not been started yet.
	ErrNotStarted = errors.New("dispatcher: not started")

	// ErrDisposed is returned when using a Durable dispatcher that has been closed.
	ErrDisposed = errors.New("dispatcher: disposed")
)

const finalPersistTimeout = 10 * time.Second

// Adapter is the source of Transactions of a Durable dispatcher.
//
// It is implemented by *polling.Adapter.
type Adapter interface {
	Subscribe(from checkpoint.Token, handler polling.Handler) (*polling.Subscription, error)
	RetrieveNow()
	CompareCheckpoints(x, y checkpoint.Token) int
}

var _ Adapter = new(polling.Adapter)

// Dispatched is published on the DispatchedCommits listeners after each
// dispatch attempt: Err is set if the dispatch failed.
type Dispatched struct {
	Transaction projections.Transaction
	Err         error
}

type state int32

const (
	created state = iota
	started
	disposed
)

// Durable dispatches the Transactions of an Adapter to a projections.Dispatcher,
// keeping track of the last checkpoint dispatched and persisting it
// in a checkpoint.Store under its name.
//
// Use New to create a new instance, Start to begin dispatching and Close to stop.
type Durable struct {
	name            string
	adapter         Adapter
	dispatcher      projections.Dispatcher
	store           checkpoint.Store
	logger          logger.Logger
	stats           *stats.ProjectionStats
	persistInterval time.Duration
	listenerBuffer  int

	state atomic.Int32
	mx    sync.Mutex // Serializes Start and Close.

	ctx    context.Context //nolint:containedctx // Canceled on Close, aborts in-flight dispatches.
	cancel context.CancelFunc

	checkpointMx sync.RWMutex
	last         checkpoint.Token
	persisted    checkpoint.Token

	subscription *polling.Subscription
	dispatched   *broadcast.Broadcaster[Dispatched]
	stop         chan struct{}
	done         chan struct{}
	closeErr     error
}

// New creates a new Durable dispatcher, identified by name in the checkpoint.Store.
func New(
	name string,
	adapter Adapter,
	dispatcher projections.Dispatcher,
	store checkpoint.Store,
	options ...Option,
) (*Durable, error) {
	name, err := checkpoint.ValidateName(name)
	if err != nil {
		return nil, fmt.Errorf("dispatcher.New: invalid name, %w", err)
	}

	if adapter == nil || dispatcher == nil || store == nil {
		return nil, fmt.Errorf("dispatcher.New: adapter, dispatcher and checkpoint store are required")
	}

	d := &Durable{
		name:            name,
		adapter:         adapter,
		dispatcher:      dispatcher,
		store:           store,
		persistInterval: DefaultPersistInterval,
		listenerBuffer:  DefaultListenerBuffer,
		dispatched:      broadcast.New[Dispatched](),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}

	for _, opt := range options {
		opt.apply(d)
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Name returns the name of the Durable dispatcher.
func (d *Durable) Name() string { return d.name }

// Start loads the last persisted checkpoint, subscribes to the Adapter
// from there and starts persisting the checkpoint periodically.
//
// Calling Start on a started Durable dispatcher is a no-op.
func (d *Durable) Start(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()

	switch state(d.state.Load()) {
	case started:
		return nil
	case disposed:
		return ErrDisposed
	case created:
	}

	from, err := d.store.Get(ctx, d.name)
	if err != nil {
		return fmt.Errorf("dispatcher.Durable: failed to load checkpoint of '%s', %w", d.name, err)
	}

	d.checkpointMx.Lock()
	d.last, d.persisted = from, from
	d.checkpointMx.Unlock()

	subscription, err := d.adapter.Subscribe(from, d.HandleCommit)
	if err != nil {
		return fmt.Errorf("dispatcher.Durable: failed to subscribe '%s', %w", d.name, err)
	}

	d.subscription = subscription
	d.state.Store(int32(started))

	go d.persistLoop()

	if d.stats != nil {
		d.stats.StoreProperty(d.name, "startedFrom", from.String())
		d.stats.LogEvent(d.name, "started")
	}

	logger.Info(d.logger, "durable dispatcher started",
		logger.With("name", d.name),
		logger.With("checkpoint", from),
	)

	return nil
}

// HandleCommit dispatches the Transaction, advancing the checkpoint
// on success. The outcome is published to the DispatchedCommits listeners.
//
// The dispatch context is canceled when either ctx is done or the
// Durable dispatcher is closed.
func (d *Durable) HandleCommit(ctx context.Context, tx projections.Transaction) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	if err := d.dispatcher.Dispatch(ctx, tx); err != nil {
		d.dispatched.Publish(Dispatched{Transaction: tx, Err: err})

		if d.stats != nil {
			d.stats.LogEvent(d.name, fmt.Sprintf("dispatch of checkpoint %s failed: %v", tx.Checkpoint, err))
		}

		return fmt.Errorf("dispatcher.Durable: failed to dispatch transaction '%s', %w", tx.ID, err)
	}

	d.checkpointMx.Lock()
	if d.last.IsBeginning() || d.adapter.CompareCheckpoints(tx.Checkpoint, d.last) > 0 {
		d.last = tx.Checkpoint
	}
	d.checkpointMx.Unlock()

	if n, ok := tx.Checkpoint.Int64(); ok && d.stats != nil {
		d.stats.TrackProgress(d.name, n)
	}

	d.dispatched.Publish(Dispatched{Transaction: tx})

	return nil
}

// Checkpoint returns the checkpoint of the last Transaction dispatched successfully.
func (d *Durable) Checkpoint() checkpoint.Token {
	d.checkpointMx.RLock()
	defer d.checkpointMx.RUnlock()

	return d.last
}

// DispatchedCommits returns a new listener of the outcome of each dispatch,
// with the specified buffer size, and the function to detach it.
//
// Dispatch outcomes are dropped for listeners with a full buffer.
// The listener is closed when the Durable dispatcher is closed.
func (d *Durable) DispatchedCommits(buffer int) (<-chan Dispatched, func()) {
	return d.dispatched.Subscribe(buffer)
}

// PollNow asks the Adapter to look for new Transactions immediately.
func (d *Durable) PollNow() {
	d.adapter.RetrieveNow()
}

func (d *Durable) reached(target checkpoint.Token) bool {
	if target.IsBeginning() {
		return true
	}

	last := d.Checkpoint()
	if last.IsBeginning() {
		return false
	}

	return d.adapter.CompareCheckpoints(last, target) >= 0
}

// WaitForDispatchOf waits until a Transaction at or after the target
// checkpoint has been dispatched successfully, returning true,
// or until the timeout expires, returning false.
//
// A non-positive timeout waits until ctx is done.
func (d *Durable) WaitForDispatchOf(ctx context.Context, target checkpoint.Token, timeout time.Duration) (bool, error) {
	switch state(d.state.Load()) {
	case created:
		return false, ErrNotStarted
	case disposed:
		return false, ErrDisposed
	case started:
	}

	if d.reached(target) {
		return true, nil
	}

	notifications, unsubscribe := d.dispatched.Subscribe(d.listenerBuffer)
	defer unsubscribe()

	// Transactions dispatched before subscribing are not notified.
	if d.reached(target) {
		return true, nil
	}

	var expired <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		expired = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("dispatcher.Durable: stopped waiting for '%s', %w", target, ctx.Err())

		case <-expired:
			return false, nil

		case _, ok := <-notifications:
			// Notifications might be dropped: always check the latest checkpoint.
			if d.reached(target) {
				return true, nil
			}

			if !ok {
				return false, ErrDisposed
			}
		}
	}
}

func (d *Durable) persistLoop() {
	defer close(d.done)

	ticker := time.NewTicker(d.persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			ctx, cancel := context.WithTimeout(context.Background(), finalPersistTimeout)
			d.closeErr = d.persist(ctx)
			cancel()

			return

		case <-ticker.C:
			_ = d.persist(d.ctx)
		}
	}
}

func (d *Durable) persist(ctx context.Context) error {
	d.checkpointMx.RLock()
	last, persisted := d.last, d.persisted
	d.checkpointMx.RUnlock()

	if last == persisted {
		return nil
	}

	if err := d.store.Put(ctx, d.name, last); err != nil {
		logger.Error(d.logger, "failed to persist checkpoint",
			logger.With("name", d.name),
			logger.With("checkpoint", last),
			logger.Err(err),
		)

		return fmt.Errorf("dispatcher.Durable: failed to persist checkpoint of '%s', %w", d.name, err)
	}

	d.checkpointMx.Lock()
	d.persisted = last
	d.checkpointMx.Unlock()

	logger.Debug(d.logger, "checkpoint persisted",
		logger.With("name", d.name),
		logger.With("checkpoint", last),
	)

	return nil
}

// Close stops the Durable dispatcher: in-flight dispatches are canceled,
// the Adapter subscription is closed and the last checkpoint dispatched is
// persisted one last time.
//
// Calling Close more than once is a no-op.
func (d *Durable) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()

	previous := state(d.state.Swap(int32(disposed)))
	if previous == disposed {
		return nil
	}

	d.cancel()

	if previous == started {
		if err := d.subscription.Close(); err != nil {
			logger.Error(d.logger, "failed to close subscription", logger.With("name", d.name), logger.Err(err))
		}

		close(d.stop)
		<-d.done
	}

	d.dispatched.Close()

	logger.Info(d.logger, "durable dispatcher closed",
		logger.With("name", d.name),
		logger.With("checkpoint", d.Checkpoint()),
	)

	return d.closeErr
}
