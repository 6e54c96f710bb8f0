package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-projections"
	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/dispatcher"
	"github.com/get-eventually/go-projections/eventsource"
	"github.com/get-eventually/go-projections/logger"
	"github.com/get-eventually/go-projections/polling"
	"github.com/get-eventually/go-projections/stats"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
	name    = "test-dispatcher"
)

var errDispatch = errors.New("dispatch failed")

type countingSource struct {
	*eventsource.InMemory
	calls atomic.Int64
}

func (s *countingSource) GetFrom(ctx context.Context, from checkpoint.Token, limit int) ([]eventsource.Commit, error) {
	s.calls.Add(1)
	return s.InMemory.GetFrom(ctx, from, limit)
}

// recordingDispatcher records the checkpoints dispatched,
// failing once on the checkpoints listed in failOnce.
type recordingDispatcher struct {
	mx         sync.Mutex
	dispatched []checkpoint.Token
	failOnce   map[checkpoint.Token]bool
}

func (r *recordingDispatcher) Dispatch(_ context.Context, tx projections.Transaction) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	if r.failOnce[tx.Checkpoint] {
		delete(r.failOnce, tx.Checkpoint)
		return errDispatch
	}

	r.dispatched = append(r.dispatched, tx.Checkpoint)

	return nil
}

func (r *recordingDispatcher) received() []checkpoint.Token {
	r.mx.Lock()
	defer r.mx.Unlock()

	result := make([]checkpoint.Token, len(r.dispatched))
	copy(result, r.dispatched)

	return result
}

type fixture struct {
	source  *countingSource
	adapter *polling.Adapter
	store   *checkpoint.InMemory
}

func newFixture(t *testing.T, commits int, pollInterval time.Duration) *fixture {
	t.Helper()

	source := &countingSource{InMemory: eventsource.NewInMemory()}
	for i := 0; i < commits; i++ {
		source.AppendBodies("stream", i)
	}

	adapter, err := polling.NewAdapter(source,
		polling.WithPollInterval(pollInterval),
		polling.WithLogger(logger.NewTest(t)),
	)
	require.NoError(t, err)

	t.Cleanup(func() { assert.NoError(t, adapter.Close()) })

	return &fixture{source: source, adapter: adapter, store: checkpoint.NewInMemory()}
}

func (f *fixture) durable(t *testing.T, d projections.Dispatcher, options ...dispatcher.Option) *dispatcher.Durable {
	t.Helper()

	options = append([]dispatcher.Option{dispatcher.WithLogger(logger.NewTest(t))}, options...)

	durable, err := dispatcher.New(name, f.adapter, d, f.store, options...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = durable.Close() })

	return durable
}

func tokens(values ...string) []checkpoint.Token {
	result := make([]checkpoint.Token, 0, len(values))
	for _, v := range values {
		result = append(result, checkpoint.Token(v))
	}

	return result
}

func TestNew(t *testing.T) {
	f := newFixture(t, 0, time.Minute)

	_, err := dispatcher.New(" ", f.adapter, new(recordingDispatcher), f.store)
	assert.ErrorIs(t, err, checkpoint.ErrInvalidName)

	_, err = dispatcher.New(name, nil, new(recordingDispatcher), f.store)
	assert.Error(t, err)
}

func TestDurable_ResumesFromPersistedCheckpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5, time.Minute)

	require.NoError(t, f.store.Put(ctx, name, "2"))

	rec := new(recordingDispatcher)
	durable := f.durable(t, rec)

	require.NoError(t, durable.Start(ctx))
	require.NoError(t, durable.Start(ctx), "start should be idempotent")

	ok, err := durable.WaitForDispatchOf(ctx, "5", waitFor)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, tokens("3", "4", "5"), rec.received())
	assert.Equal(t, checkpoint.Token("5"), durable.Checkpoint())

	require.NoError(t, durable.Close())
	require.NoError(t, durable.Close())

	persisted, err := f.store.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Token("5"), persisted)

	assert.ErrorIs(t, durable.Start(ctx), dispatcher.ErrDisposed)
}

func TestDurable_PersistsPeriodically(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, time.Minute)

	durable := f.durable(t, new(recordingDispatcher), dispatcher.WithPersistInterval(20*time.Millisecond))
	require.NoError(t, durable.Start(ctx))

	assert.Eventually(t, func() bool {
		persisted, err := f.store.Get(ctx, name)
		return err == nil && persisted == "3"
	}, waitFor, tick)
}

type flakyStore struct {
	*checkpoint.InMemory
	failures atomic.Int64
}

func (s *flakyStore) Put(ctx context.Context, name string, token checkpoint.Token) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("checkpoint store unavailable")
	}

	return s.InMemory.Put(ctx, name, token)
}

func TestDurable_PersistenceErrorsDoNotStopDispatching(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, 20*time.Millisecond)

	store := &flakyStore{InMemory: checkpoint.NewInMemory()}
	store.failures.Store(2)

	durable, err := dispatcher.New(name, f.adapter, new(recordingDispatcher), store,
		dispatcher.WithPersistInterval(20*time.Millisecond),
		dispatcher.WithLogger(logger.NewTest(t)),
	)
	require.NoError(t, err)

	require.NoError(t, durable.Start(ctx))

	f.source.AppendBodies("stream", "late")

	ok, err := durable.WaitForDispatchOf(ctx, "3", waitFor)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		persisted, err := store.Get(ctx, name)
		return err == nil && persisted == "3"
	}, waitFor, tick)

	assert.NoError(t, durable.Close())
}

func TestDurable_WaitForDispatchOf(t *testing.T) {
	ctx := context.Background()

	t.Run("fails before start and after close", func(t *testing.T) {
		f := newFixture(t, 0, time.Minute)
		durable := f.durable(t, new(recordingDispatcher))

		_, err := durable.WaitForDispatchOf(ctx, "1", time.Second)
		assert.ErrorIs(t, err, dispatcher.ErrNotStarted)

		require.NoError(t, durable.Start(ctx))
		require.NoError(t, durable.Close())

		_, err = durable.WaitForDispatchOf(ctx, "1", time.Second)
		assert.ErrorIs(t, err, dispatcher.ErrDisposed)
	})

	t.Run("returns immediately for checkpoints already dispatched", func(t *testing.T) {
		f := newFixture(t, 3, time.Minute)
		durable := f.durable(t, new(recordingDispatcher))
		require.NoError(t, durable.Start(ctx))

		ok, err := durable.WaitForDispatchOf(ctx, "3", waitFor)
		require.NoError(t, err)
		require.True(t, ok)

		started := time.Now()
		ok, err = durable.WaitForDispatchOf(ctx, "2", waitFor)

		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Less(t, time.Since(started), 100*time.Millisecond)
	})

	t.Run("times out on unreachable checkpoints", func(t *testing.T) {
		f := newFixture(t, 1, time.Minute)
		durable := f.durable(t, new(recordingDispatcher))
		require.NoError(t, durable.Start(ctx))

		started := time.Now()
		ok, err := durable.WaitForDispatchOf(ctx, "1000", 2*time.Second)
		elapsed := time.Since(started)

		assert.NoError(t, err)
		assert.False(t, ok)
		assert.GreaterOrEqual(t, elapsed, 2*time.Second)
		assert.Less(t, elapsed, 4*time.Second)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		f := newFixture(t, 0, time.Minute)
		durable := f.durable(t, new(recordingDispatcher))
		require.NoError(t, durable.Start(ctx))

		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		ok, err := durable.WaitForDispatchOf(ctx, "1", time.Minute)
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("confirms new commits after poll now", func(t *testing.T) {
		f := newFixture(t, 0, time.Minute)
		durable := f.durable(t, new(recordingDispatcher))
		require.NoError(t, durable.Start(ctx))

		commit := f.source.AppendBodies("stream", "new")
		durable.PollNow()

		ok, err := durable.WaitForDispatchOf(ctx, commit.Checkpoint, waitFor)
		assert.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestDurable_DispatchFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, 20*time.Millisecond)

	rec := &recordingDispatcher{failOnce: map[checkpoint.Token]bool{"2": true}}
	durable := f.durable(t, rec)

	notifications, unsubscribe := durable.DispatchedCommits(16)
	defer unsubscribe()

	require.NoError(t, durable.Start(ctx))

	var outcomes []dispatcher.Dispatched

	for len(outcomes) < 4 {
		select {
		case n := <-notifications:
			outcomes = append(outcomes, n)
		case <-time.After(waitFor):
			t.Fatalf("timed out waiting for dispatch outcomes, received: %v", outcomes)
		}
	}

	assert.Equal(t, checkpoint.Token("1"), outcomes[0].Transaction.Checkpoint)
	assert.NoError(t, outcomes[0].Err)

	assert.Equal(t, checkpoint.Token("2"), outcomes[1].Transaction.Checkpoint)
	assert.ErrorIs(t, outcomes[1].Err, errDispatch)

	assert.Equal(t, checkpoint.Token("2"), outcomes[2].Transaction.Checkpoint)
	assert.NoError(t, outcomes[2].Err)

	assert.Equal(t, checkpoint.Token("3"), outcomes[3].Transaction.Checkpoint)
	assert.Equal(t, tokens("1", "2", "3"), rec.received())
}

func TestDurable_HandleCommitKeepsCheckpointOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, time.Minute)

	failing := projections.DispatcherFunc(func(context.Context, projections.Transaction) error {
		return errDispatch
	})

	durable := f.durable(t, failing)

	err := durable.HandleCommit(ctx, projections.Transaction{ID: "tx", Checkpoint: "7"})
	assert.ErrorIs(t, err, errDispatch)
	assert.Equal(t, checkpoint.Beginning, durable.Checkpoint())
}

func TestDurable_TracksStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4, time.Minute)

	projectionStats := stats.New()
	durable := f.durable(t, new(recordingDispatcher), dispatcher.WithStats(projectionStats))
	require.NoError(t, durable.Start(ctx))

	ok, err := durable.WaitForDispatchOf(ctx, "4", waitFor)
	require.NoError(t, err)
	require.True(t, ok)

	snapshot, found := projectionStats.Get(name)
	require.True(t, found)
	assert.Equal(t, int64(4), snapshot.Checkpoint)
	assert.Equal(t, "", snapshot.Properties["startedFrom"])
}

func TestDurable_Close(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, 500*time.Millisecond)

	inflight := make(chan struct{})
	canceled := make(chan struct{})

	blocking := projections.DispatcherFunc(func(ctx context.Context, tx projections.Transaction) error {
		if tx.Checkpoint != "2" {
			return nil
		}

		close(inflight)
		<-ctx.Done()
		close(canceled)

		return ctx.Err()
	})

	durable := f.durable(t, blocking)
	require.NoError(t, durable.Start(ctx))

	ok, err := durable.WaitForDispatchOf(ctx, "1", waitFor)
	require.NoError(t, err)
	require.True(t, ok)

	notifications, _ := durable.DispatchedCommits(4)

	f.source.AppendBodies("stream", "blocking")
	durable.PollNow()

	select {
	case <-inflight:
	case <-time.After(waitFor):
		t.Fatal("dispatch of the second commit never started")
	}

	closed := make(chan error, 1)
	go func() { closed <- durable.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("durable dispatcher did not close in time")
	}

	<-canceled

	// The listener receives the failed dispatch, then gets closed.
	for range notifications { //nolint:revive // Draining.
	}

	calls := f.source.calls.Load()
	<-time.After(1200 * time.Millisecond)
	assert.Equal(t, calls, f.source.calls.Load(), "adapter polled for a closed subscription")

	persisted, err := f.store.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Token("1"), persisted)
}
