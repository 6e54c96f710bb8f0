package polling

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/logger"
)

// subscriber owns the delivery queue and the cursor of a single Subscription.
type subscriber struct {
	id      string
	adapter *Adapter
	handler Handler

	mx      sync.Mutex
	queue   []projections.Transaction
	cursor  checkpoint.Token // Last checkpoint enqueued.
	handled checkpoint.Token // Last checkpoint handled successfully.

	// inflight is held for the whole duration of a handler call.
	inflight sync.Mutex

	pushing atomic.Bool
	halted  atomic.Bool
	closed  atomic.Bool
}

func (s *subscriber) currentCursor() checkpoint.Token {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.cursor
}

func (s *subscriber) lastHandled() checkpoint.Token {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.handled
}

func (s *subscriber) pending() int {
	s.mx.Lock()
	defer s.mx.Unlock()

	return len(s.queue)
}

// enqueue appends the Transaction to the delivery queue and advances the cursor.
// Transactions at or before the cursor have been enqueued already, and are skipped.
func (s *subscriber) enqueue(tx projections.Transaction) {
	s.mx.Lock()

	if !s.cursor.IsBeginning() && s.adapter.source.CompareCheckpoints(tx.Checkpoint, s.cursor) <= 0 {
		s.mx.Unlock()
		return
	}

	s.queue = append(s.queue, tx)
	s.cursor = tx.Checkpoint
	s.mx.Unlock()

	s.push()
}

func (s *subscriber) peek() (projections.Transaction, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if len(s.queue) == 0 {
		return projections.Transaction{}, false
	}

	return s.queue[0], true
}

// pop removes the head of the queue, once handled, and reports whether
// the queue needs replenishing: that is when the pending Transactions
// just dropped below a page, or the queue has been drained.
func (s *subscriber) pop(pageSize int) bool {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.handled = s.queue[0].Checkpoint
	s.queue[0] = projections.Transaction{}
	s.queue = s.queue[1:]

	remaining := len(s.queue)

	return remaining == 0 || remaining == pageSize-1
}

// push starts the push loop, unless one is running already.
func (s *subscriber) push() {
	if s.closed.Load() || s.halted.Load() {
		return
	}

	if !s.pushing.CompareAndSwap(false, true) {
		return
	}

	if !s.adapter.spawn(s.pushLoop) {
		s.pushing.Store(false)
	}
}

// resume restarts a push loop halted by a handler failure.
func (s *subscriber) resume() {
	s.halted.Store(false)
	s.push()
}

func (s *subscriber) pushLoop() {
	for {
		s.drain()
		s.pushing.Store(false)

		if s.closed.Load() || s.halted.Load() || s.pending() == 0 {
			return
		}

		if !s.pushing.CompareAndSwap(false, true) {
			return
		}
	}
}

func (s *subscriber) drain() {
	ctx := s.adapter.ctx

	for ctx.Err() == nil {
		tx, ok := s.peek()
		if !ok {
			return
		}

		if err := s.handle(tx); err != nil {
			if errors.Is(err, errSubscriptionClosed) || ctx.Err() != nil {
				return
			}

			s.halted.Store(true)

			logger.Error(s.adapter.logger, "subscription handler failed, delivery halted until next retrieval",
				logger.With("subscriptionId", s.id),
				logger.With("checkpoint", tx.Checkpoint),
				logger.Err(err),
			)

			return
		}

		if s.pop(s.adapter.pageSize) {
			s.adapter.RetrieveNow()
		}
	}
}

func (s *subscriber) handle(tx projections.Transaction) error {
	s.inflight.Lock()
	defer s.inflight.Unlock()

	if s.closed.Load() {
		return errSubscriptionClosed
	}

	return s.handler(s.adapter.ctx, tx)
}

// Subscription is the handle returned by Adapter.Subscribe.
type Subscription struct {
	s    *subscriber
	once sync.Once
}

// ID returns the unique identifier of the Subscription.
func (sub *Subscription) ID() string { return sub.s.id }

// Checkpoint returns the checkpoint of the last Transaction handled successfully.
func (sub *Subscription) Checkpoint() checkpoint.Token { return sub.s.lastHandled() }

// Close detaches the Subscription from its Adapter. Once Close returns,
// the handler will not be invoked anymore.
//
// Close waits for an in-flight handler call to return,
// so it must not be called from within the handler itself.
func (sub *Subscription) Close() error {
	sub.once.Do(func() {
		sub.s.closed.Store(true)
		sub.s.adapter.subscribers.Delete(sub.s.id)

		sub.s.inflight.Lock()
		sub.s.inflight.Unlock() //nolint:staticcheck // Waiting for the in-flight handler only.

		logger.Info(sub.s.adapter.logger, "subscription closed", logger.With("subscriptionId", sub.s.id))
	})

	return nil
}
