package polling

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/eventsource"
)

const minCacheSize = 10

// ErrCacheTooSmall is returned by NewAdapter when the configured cache size
// is lower than the allowed minimum.
var ErrCacheTooSmall = errors.New("polling: cache size is too small")

// CacheStats reports the usage of the commit-page cache of an Adapter.
type CacheStats struct {
	Size   int
	Hits   int64
	Misses int64
}

type pageEntry struct {
	page       []eventsource.Commit
	lastAccess atomic.Int64
}

// pageCache is a bounded cache of full pages of Commits, keyed by the
// checkpoint the page has been fetched from.
//
// Entries are never mutated in place, only replaced.
type pageCache struct {
	capacity int

	mx      sync.RWMutex
	entries map[checkpoint.Token]*pageEntry

	tick   atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
}

func newPageCache(capacity int) (*pageCache, error) {
	if capacity < minCacheSize {
		return nil, fmt.Errorf("%w: %d, minimum is %d", ErrCacheTooSmall, capacity, minCacheSize)
	}

	return &pageCache{
		capacity: capacity,
		entries:  make(map[checkpoint.Token]*pageEntry),
	}, nil
}

// TryGet returns the page cached for the specified checkpoint, if any,
// and marks it as the most recently used.
func (c *pageCache) TryGet(key checkpoint.Token) ([]eventsource.Commit, bool) {
	c.mx.RLock()
	entry, ok := c.entries[key]
	c.mx.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	entry.lastAccess.Store(c.tick.Add(1))
	c.hits.Add(1)

	return entry.page, true
}

// Set caches the page fetched from the specified checkpoint.
//
// When the cache grows over capacity, the least recently used 10% of the
// entries are evicted in one go.
func (c *pageCache) Set(key checkpoint.Token, page []eventsource.Commit) {
	entry := &pageEntry{page: page}
	entry.lastAccess.Store(c.tick.Add(1))

	c.mx.Lock()
	defer c.mx.Unlock()

	c.entries[key] = entry

	if len(c.entries) > c.capacity {
		c.evictLocked()
	}
}

func (c *pageCache) evictLocked() {
	type candidate struct {
		key        checkpoint.Token
		lastAccess int64
	}

	candidates := make([]candidate, 0, len(c.entries))
	for key, entry := range c.entries {
		candidates = append(candidates, candidate{key: key, lastAccess: entry.lastAccess.Load()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess < candidates[j].lastAccess
	})

	evict := max(len(candidates)/10, 1)
	for _, candidate := range candidates[:evict] {
		delete(c.entries, candidate.key)
	}
}

func (c *pageCache) Stats() CacheStats {
	c.mx.RLock()
	size := len(c.entries)
	c.mx.RUnlock()

	return CacheStats{
		Size:   size,
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
