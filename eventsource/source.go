// Package eventsource contains the contract the projection pipeline expects
// from an Event Store: reading pages of committed transactions starting
// from a checkpoint, and ordering checkpoints.
package eventsource

import (
	"context"
	"time"

	"github.com/get-eventually/go-projections/checkpoint"
)

// Event is a single event committed to the Event Store,
// with an opaque Body and optional Headers.
type Event struct {
	Body    any
	Headers map[string]any
}

// Commit represents a set of Events atomically committed to an Event Stream,
// and positioned in the global order of the Event Store by its Checkpoint.
type Commit struct {
	ID         string
	StreamID   string
	Checkpoint checkpoint.Token
	Timestamp  time.Time
	Headers    map[string]any
	Events     []Event
}

// Source is the read side of an Event Store, as used by the projection pipeline.
type Source interface {
	// GetFrom returns, in checkpoint order, up to limit Commits positioned
	// strictly after the specified checkpoint.
	// checkpoint.Beginning returns Commits from the start of the Event Store.
	GetFrom(ctx context.Context, from checkpoint.Token, limit int) ([]Commit, error)

	// CompareCheckpoints returns a negative number when a < b,
	// zero when a == b and a positive number when a > b.
	CompareCheckpoints(a, b checkpoint.Token) int
}

// LatestCheckpointGetter is implemented by Sources able to tell the
// checkpoint of the most recent Commit, useful to estimate how far behind
// a Projector is.
type LatestCheckpointGetter interface {
	LatestCheckpoint(ctx context.Context) (checkpoint.Token, error)
}
