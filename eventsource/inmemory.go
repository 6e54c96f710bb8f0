package eventsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/get-eventually/go-projections/checkpoint"
)

var (
	_ Source                 = new(InMemory)
	_ LatestCheckpointGetter = new(InMemory)
)

// InMemory is a thread-safe, in-memory Source implementation,
// using a global sequence number, starting from 1, as checkpoint.
type InMemory struct {
	mx      sync.RWMutex
	commits []Commit
	now     func() time.Time
}

// NewInMemory creates a new, empty eventsource.InMemory instance.
func NewInMemory() *InMemory {
	return &InMemory{now: time.Now}
}

// Append commits the specified events to the Event Stream,
// returning the new Commit.
func (s *InMemory) Append(streamID string, headers map[string]any, events ...Event) Commit {
	s.mx.Lock()
	defer s.mx.Unlock()

	commit := Commit{
		ID:         uuid.NewString(),
		StreamID:   streamID,
		Checkpoint: checkpoint.FromInt64(int64(len(s.commits) + 1)),
		Timestamp:  s.now().UTC(),
		Headers:    headers,
		Events:     events,
	}

	s.commits = append(s.commits, commit)

	return commit
}

// AppendBodies is a shorthand to commit header-less events with the specified bodies.
func (s *InMemory) AppendBodies(streamID string, bodies ...any) Commit {
	events := make([]Event, 0, len(bodies))
	for _, body := range bodies {
		events = append(events, Event{Body: body})
	}

	return s.Append(streamID, nil, events...)
}

// GetFrom implements the eventsource.Source interface.
func (s *InMemory) GetFrom(ctx context.Context, from checkpoint.Token, limit int) ([]Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("eventsource.InMemory: context error, %w", err)
	}

	after, ok := from.Int64()
	if !ok {
		return nil, fmt.Errorf("eventsource.InMemory: invalid checkpoint '%s'", from)
	}

	s.mx.RLock()
	defer s.mx.RUnlock()

	if after < 0 {
		after = 0
	}

	if after >= int64(len(s.commits)) {
		return nil, nil
	}

	page := s.commits[after:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}

	result := make([]Commit, len(page))
	copy(result, page)

	return result, nil
}

// CompareCheckpoints implements the eventsource.Source interface.
func (*InMemory) CompareCheckpoints(a, b checkpoint.Token) int {
	return checkpoint.CompareInt64(a, b)
}

// LatestCheckpoint returns the checkpoint of the last Commit appended,
// or checkpoint.Beginning if the Source is empty.
func (s *InMemory) LatestCheckpoint(context.Context) (checkpoint.Token, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	if len(s.commits) == 0 {
		return checkpoint.Beginning, nil
	}

	return s.commits[len(s.commits)-1].Checkpoint, nil
}
