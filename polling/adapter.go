package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/eventsource"
	"github.com/get-eventually/go-projections/logger"
)

// ErrClosed is returned when subscribing to an Adapter that has been closed.
var ErrClosed = errors.New("polling: adapter is closed")

// Handler handles a single Transaction delivered to a Subscription.
//
// A Handler returning an error stops the delivery of that Subscription:
// the same Transaction is delivered again on the next retrieval pass.
type Handler func(ctx context.Context, tx projections.Transaction) error

// Adapter polls an eventsource.Source on a recurring interval, or on demand
// through RetrieveNow, and feeds the Transactions to its Subscriptions.
//
// Use NewAdapter to create a new instance, and Close to stop it.
type Adapter struct {
	source       eventsource.Source
	logger       logger.Logger
	pollInterval time.Duration
	pageSize     int
	cacheSize    int
	cache        *pageCache

	subscribers sync.Map // subscription id -> *subscriber

	retrieving atomic.Bool
	rerun      atomic.Bool

	ctx    context.Context //nolint:containedctx // Lifetime of the background workers.
	cancel context.CancelFunc

	mx      sync.Mutex
	closed  bool
	workers sync.WaitGroup
}

// NewAdapter creates a new Adapter over the specified Source and starts
// its recurring polling timer.
func NewAdapter(source eventsource.Source, options ...Option) (*Adapter, error) {
	if source == nil {
		return nil, fmt.Errorf("polling.NewAdapter: source is required")
	}

	a := &Adapter{
		source:       source,
		pollInterval: DefaultPollInterval,
		pageSize:     DefaultPageSize,
		cacheSize:    DefaultCacheSize,
	}

	for _, opt := range options {
		opt.apply(a)
	}

	cache, err := newPageCache(a.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("polling.NewAdapter: failed to create cache, %w", err)
	}

	a.cache = cache
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.spawn(a.poll)

	return a, nil
}

// spawn runs fn in a tracked goroutine, unless the Adapter has been closed.
func (a *Adapter) spawn(fn func()) bool {
	a.mx.Lock()
	defer a.mx.Unlock()

	if a.closed {
		return false
	}

	a.workers.Add(1)

	go func() {
		defer a.workers.Done()
		fn()
	}()

	return true
}

func (a *Adapter) poll() {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.RetrieveNow()
		}
	}
}

// Subscribe registers a new Subscription starting strictly after the
// specified checkpoint, and immediately triggers a retrieval pass.
//
// Use checkpoint.Beginning to receive all the Transactions in the Event Store.
func (a *Adapter) Subscribe(from checkpoint.Token, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("polling.Adapter.Subscribe: handler is required")
	}

	a.mx.Lock()
	closed := a.closed
	a.mx.Unlock()

	if closed {
		return nil, ErrClosed
	}

	s := &subscriber{
		id:      uuid.NewString(),
		adapter: a,
		handler: handler,
		cursor:  from,
		handled: from,
	}

	a.subscribers.Store(s.id, s)

	logger.Info(a.logger, "subscription started",
		logger.With("subscriptionId", s.id),
		logger.With("checkpoint", from),
	)

	a.RetrieveNow()

	return &Subscription{s: s}, nil
}

// RetrieveNow triggers a retrieval pass in the background.
//
// If a pass is already running, no new pass is started: the running one
// goes through the Subscriptions once more before finishing instead.
func (a *Adapter) RetrieveNow() {
	a.rerun.Store(true)

	if !a.retrieving.CompareAndSwap(false, true) {
		return
	}

	if !a.spawn(a.retrieveLoop) {
		a.retrieving.Store(false)
	}
}

func (a *Adapter) retrieveLoop() {
	for {
		for a.rerun.Swap(false) {
			if err := a.retrieve(a.ctx); err != nil {
				// Wait for the next tick before hitting the Event Store again.
				a.rerun.Store(false)
				break
			}
		}

		a.retrieving.Store(false)

		// A request might have come in after the last pass and before the
		// guard was released: pick it up, unless someone else already did.
		if !a.rerun.Load() || !a.retrieving.CompareAndSwap(false, true) {
			return
		}
	}
}

func (a *Adapter) retrieve(ctx context.Context) error {
	var subscribers []*subscriber

	a.subscribers.Range(func(_, value any) bool {
		subscribers = append(subscribers, value.(*subscriber)) //nolint:forcetypeassert // Only subscribers are stored.
		return true
	})

	for _, s := range subscribers {
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.closed.Load() {
			continue
		}

		s.resume()

		if s.pending() >= a.pageSize {
			continue
		}

		from := s.currentCursor()

		page, err := a.fetchPage(ctx, from)
		if err != nil {
			logger.Error(a.logger, "failed to retrieve commits from event store",
				logger.With("subscriptionId", s.id),
				logger.With("checkpoint", from),
				logger.Err(err),
			)

			return err
		}

		for _, commit := range page {
			s.enqueue(toTransaction(commit))
		}
	}

	return nil
}

func (a *Adapter) fetchPage(ctx context.Context, from checkpoint.Token) ([]eventsource.Commit, error) {
	if page, ok := a.cache.TryGet(from); ok {
		return page, nil
	}

	page, err := a.source.GetFrom(ctx, from, a.pageSize)
	if err != nil {
		return nil, fmt.Errorf("polling.Adapter: failed to get commits from '%s', %w", from, err)
	}

	if len(page) > a.pageSize {
		page = page[:a.pageSize]
	}

	// Short pages are the tail of the Event Store: a later query from the
	// same checkpoint might return more commits.
	if len(page) == a.pageSize {
		a.cache.Set(from, page)
	}

	logger.Debug(a.logger, "commits retrieved from event store",
		logger.With("checkpoint", from),
		logger.With("count", len(page)),
	)

	return page, nil
}

// CompareCheckpoints compares two checkpoints using the Event Store comparator.
func (a *Adapter) CompareCheckpoints(x, y checkpoint.Token) int {
	return a.source.CompareCheckpoints(x, y)
}

// CacheStats returns the current usage of the commit-page cache.
func (a *Adapter) CacheStats() CacheStats {
	return a.cache.Stats()
}

// Close stops the polling timer and waits for the running retrieval pass
// and handler invocations to return.
//
// Handlers receive a canceled context once Close has been called.
func (a *Adapter) Close() error {
	a.mx.Lock()
	if a.closed {
		a.mx.Unlock()
		return nil
	}

	a.closed = true
	a.mx.Unlock()

	a.cancel()
	a.workers.Wait()

	a.subscribers.Range(func(key, value any) bool {
		value.(*subscriber).closed.Store(true) //nolint:forcetypeassert // Only subscribers are stored.
		a.subscribers.Delete(key)

		return true
	})

	return nil
}

func toTransaction(commit eventsource.Commit) projections.Transaction {
	events := make([]projections.Envelope, 0, len(commit.Events))
	for _, evt := range commit.Events {
		events = append(events, projections.Envelope{
			Body:    evt.Body,
			Headers: projections.Headers(evt.Headers),
		})
	}

	return projections.Transaction{
		ID:         commit.ID,
		StreamID:   commit.StreamID,
		Checkpoint: commit.Checkpoint,
		TimeStamp:  commit.Timestamp,
		Headers:    projections.Headers(commit.Headers),
		Events:     events,
	}
}

var errSubscriptionClosed = errors.New("polling: subscription is closed")
