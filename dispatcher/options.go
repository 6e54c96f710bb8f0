package dispatcher

import (
	"time"

	"github.com/get-eventually/go-projections/logger"
	"github.com/get-eventually/go-projections/stats"
)

// Default values used by a Durable dispatcher.
const (
	DefaultPersistInterval = 10 * time.Second
	DefaultListenerBuffer  = 64
)

// Option can be used to change the configuration of a Durable dispatcher.
type Option interface {
	apply(*Durable)
}

type option func(*Durable)

func (fn option) apply(d *Durable) { fn(d) }

// WithPersistInterval sets the interval between each attempt to persist
// the checkpoint, if it has advanced since the last one persisted.
//
// Defaults to DefaultPersistInterval if unspecified or a non-positive value has been provided.
func WithPersistInterval(interval time.Duration) Option {
	return option(func(d *Durable) {
		if interval > 0 {
			d.persistInterval = interval
		}
	})
}

// WithLogger sets the Logger used by the Durable dispatcher.
func WithLogger(l logger.Logger) Option {
	return option(func(d *Durable) {
		d.logger = l
	})
}

// WithStats makes the Durable dispatcher track its progress,
// under its name, in the specified ProjectionStats.
//
// Only sequence-numbered checkpoints are tracked.
func WithStats(s *stats.ProjectionStats) Option {
	return option(func(d *Durable) {
		d.stats = s
	})
}

// WithListenerBuffer sets the buffer size of the listeners used by
// WaitForDispatchOf.
//
// Defaults to DefaultListenerBuffer if unspecified or a non-positive value has been provided.
func WithListenerBuffer(size int) Option {
	return option(func(d *Durable) {
		if size > 0 {
			d.listenerBuffer = size
		}
	})
}
