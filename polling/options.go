package polling

import (
	"time"

	"github.com/get-eventually/go-projections/logger"
)

// Default values used by an Adapter.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPageSize     = 100
	DefaultCacheSize    = 10000
)

// Option can be used to change the configuration of an Adapter.
type Option interface {
	apply(*Adapter)
}

type option func(*Adapter)

func (fn option) apply(a *Adapter) { fn(a) }

// WithPollInterval sets the interval between each scheduled poll of the Event Store.
//
// Defaults to DefaultPollInterval if unspecified or a non-positive value has been provided.
func WithPollInterval(interval time.Duration) Option {
	return option(func(a *Adapter) {
		if interval > 0 {
			a.pollInterval = interval
		}
	})
}

// WithPageSize sets the maximum number of Commits fetched in one Event Store query,
// and the number of pending Transactions under which a Subscription gets replenished.
//
// Defaults to DefaultPageSize if unspecified or a non-positive value has been provided.
func WithPageSize(size int) Option {
	return option(func(a *Adapter) {
		if size > 0 {
			a.pageSize = size
		}
	})
}

// WithCacheSize sets the maximum number of pages kept in the commit-page cache.
//
// Defaults to DefaultCacheSize. Values lower than 10 are rejected by NewAdapter.
func WithCacheSize(size int) Option {
	return option(func(a *Adapter) {
		a.cacheSize = size
	})
}

// WithLogger sets the Logger used by the Adapter and its Subscriptions.
func WithLogger(l logger.Logger) Option {
	return option(func(a *Adapter) {
		a.logger = l
	})
}
