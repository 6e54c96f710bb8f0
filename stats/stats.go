package stats

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Sampling parameters of the per-projector speed calculators.
const (
	FineSamples          = 12
	FineMinInterval      = 5 * time.Second
	CoarseSamples        = 9
	CoarseMinInterval    = time.Minute
	DefaultEventLogLimit = 100
)

// Event is an entry of the event log of a projector.
type Event struct {
	Timestamp time.Time
	Body      any
}

// Snapshot is a point-in-time copy of the statistics of a projector.
type Snapshot struct {
	ID         string
	Checkpoint int64
	LastUpdate time.Time
	Speed      float64
	HasSpeed   bool
	Properties map[string]any
	Events     []Event
}

// ProjectorStats holds the statistics of a single projector.
type ProjectorStats struct {
	id string

	mx         sync.Mutex
	tracked    bool
	checkpoint int64
	lastUpdate time.Time
	fine       *WeightedSpeedCalculator
	coarse     *WeightedSpeedCalculator
	properties map[string]any
	events     []Event
	eventLimit int
}

func newProjectorStats(id string, eventLimit int) *ProjectorStats {
	return &ProjectorStats{
		id:         id,
		fine:       NewWeightedSpeedCalculator(FineSamples, FineMinInterval),
		coarse:     NewWeightedSpeedCalculator(CoarseSamples, CoarseMinInterval),
		properties: make(map[string]any),
		eventLimit: eventLimit,
	}
}

func (ps *ProjectorStats) track(checkpoint int64, at time.Time) {
	ps.mx.Lock()
	defer ps.mx.Unlock()

	// Late updates must not move the checkpoint backwards.
	if ps.tracked && checkpoint < ps.checkpoint {
		return
	}

	ps.fine.Record(checkpoint, at)
	ps.coarse.Record(checkpoint, at)

	ps.tracked = true
	ps.checkpoint = checkpoint
	ps.lastUpdate = at
}

// speedLocked blends the fine-grained speed into the coarse-grained one,
// as its newest sample. Falls back to the coarse-grained speed alone.
func (ps *ProjectorStats) speedLocked() (float64, bool) {
	if fine, ok := ps.fine.WeightedSpeed(); ok {
		return ps.coarse.WeightedSpeedIncluding(fine), true
	}

	return ps.coarse.WeightedSpeed()
}

// Speed returns the estimated speed of the projector, in checkpoints per second.
func (ps *ProjectorStats) Speed() (float64, bool) {
	ps.mx.Lock()
	defer ps.mx.Unlock()

	return ps.speedLocked()
}

// TimeToReach estimates how long the projector needs to reach the target checkpoint.
//
// Returns zero if the target has been reached already, and false if no estimate
// can be made: no speed samples, a non-positive speed, or a duration
// too large to be represented.
func (ps *ProjectorStats) TimeToReach(target int64) (time.Duration, bool) {
	ps.mx.Lock()
	defer ps.mx.Unlock()

	if ps.tracked && ps.checkpoint >= target {
		return 0, true
	}

	speed, ok := ps.speedLocked()
	if !ok || speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0, false
	}

	seconds := float64(target-ps.checkpoint) / speed
	if seconds >= float64(math.MaxInt64)/float64(time.Second) {
		return 0, false
	}

	return time.Duration(seconds * float64(time.Second)), true
}

func (ps *ProjectorStats) storeProperty(key string, value any) {
	ps.mx.Lock()
	defer ps.mx.Unlock()

	ps.properties[key] = value
}

func (ps *ProjectorStats) logEvent(at time.Time, body any) {
	ps.mx.Lock()
	defer ps.mx.Unlock()

	ps.events = append(ps.events, Event{Timestamp: at, Body: body})

	if ps.eventLimit > 0 {
		if overflow := len(ps.events) - ps.eventLimit; overflow > 0 {
			ps.events = append(ps.events[:0], ps.events[overflow:]...)
		}
	}
}

// Snapshot returns a point-in-time copy of the statistics.
func (ps *ProjectorStats) Snapshot() Snapshot {
	ps.mx.Lock()
	defer ps.mx.Unlock()

	speed, hasSpeed := ps.speedLocked()

	properties := make(map[string]any, len(ps.properties))
	for key, value := range ps.properties {
		properties[key] = value
	}

	events := make([]Event, len(ps.events))
	copy(events, ps.events)

	return Snapshot{
		ID:         ps.id,
		Checkpoint: ps.checkpoint,
		LastUpdate: ps.lastUpdate,
		Speed:      speed,
		HasSpeed:   hasSpeed,
		Properties: properties,
		Events:     events,
	}
}

// Option can be used to change the configuration of ProjectionStats.
type Option interface {
	apply(*ProjectionStats)
}

type option func(*ProjectionStats)

func (fn option) apply(ps *ProjectionStats) { fn(ps) }

// WithClock sets the function used to timestamp progress and events.
// Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return option(func(ps *ProjectionStats) {
		if now != nil {
			ps.now = now
		}
	})
}

// WithEventLogLimit sets how many entries each projector event log keeps.
// A non-positive value keeps the log unbounded.
//
// Defaults to DefaultEventLogLimit.
func WithEventLogLimit(limit int) Option {
	return option(func(ps *ProjectionStats) {
		ps.eventLimit = limit
	})
}

// ProjectionStats collects the statistics of all the projectors, by id.
//
// All methods are safe for concurrent use.
type ProjectionStats struct {
	now        func() time.Time
	eventLimit int

	mx         sync.RWMutex
	projectors map[string]*ProjectorStats
}

// New returns an empty ProjectionStats instance.
func New(options ...Option) *ProjectionStats {
	ps := &ProjectionStats{
		now:        time.Now,
		eventLimit: DefaultEventLogLimit,
		projectors: make(map[string]*ProjectorStats),
	}

	for _, opt := range options {
		opt.apply(ps)
	}

	return ps
}

func (ps *ProjectionStats) lookup(id string) (*ProjectorStats, bool) {
	ps.mx.RLock()
	defer ps.mx.RUnlock()

	projector, ok := ps.projectors[id]

	return projector, ok
}

func (ps *ProjectionStats) getOrCreate(id string) *ProjectorStats {
	if projector, ok := ps.lookup(id); ok {
		return projector
	}

	ps.mx.Lock()
	defer ps.mx.Unlock()

	if projector, ok := ps.projectors[id]; ok {
		return projector
	}

	projector := newProjectorStats(id, ps.eventLimit)
	ps.projectors[id] = projector

	return projector
}

// TrackProgress records the checkpoint reached by the projector now.
func (ps *ProjectionStats) TrackProgress(id string, checkpoint int64) {
	ps.TrackProgressAt(id, checkpoint, ps.now())
}

// TrackProgressAt records the checkpoint reached by the projector at the specified time.
func (ps *ProjectionStats) TrackProgressAt(id string, checkpoint int64, at time.Time) {
	ps.getOrCreate(id).track(checkpoint, at.UTC())
}

// StoreProperty sets a property of the projector, replacing any previous value.
func (ps *ProjectionStats) StoreProperty(id, key string, value any) {
	ps.getOrCreate(id).storeProperty(key, value)
}

// LogEvent appends an entry to the event log of the projector.
func (ps *ProjectionStats) LogEvent(id string, body any) {
	ps.getOrCreate(id).logEvent(ps.now().UTC(), body)
}

// Get returns a snapshot of the statistics of the projector,
// or false if nothing has been recorded for it.
func (ps *ProjectionStats) Get(id string) (Snapshot, bool) {
	projector, ok := ps.lookup(id)
	if !ok {
		return Snapshot{}, false
	}

	return projector.Snapshot(), true
}

// All returns a snapshot of the statistics of every projector, sorted by id.
func (ps *ProjectionStats) All() []Snapshot {
	ps.mx.RLock()
	projectors := make([]*ProjectorStats, 0, len(ps.projectors))
	for _, projector := range ps.projectors {
		projectors = append(projectors, projector)
	}
	ps.mx.RUnlock()

	snapshots := make([]Snapshot, 0, len(projectors))
	for _, projector := range projectors {
		snapshots = append(snapshots, projector.Snapshot())
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })

	return snapshots
}

// GetSpeed returns the estimated speed of the projector, in checkpoints per second.
func (ps *ProjectionStats) GetSpeed(id string) (float64, bool) {
	projector, ok := ps.lookup(id)
	if !ok {
		return 0, false
	}

	return projector.Speed()
}

// GetTimeToReach estimates how long the projector needs to reach the target checkpoint.
func (ps *ProjectionStats) GetTimeToReach(id string, target int64) (time.Duration, bool) {
	projector, ok := ps.lookup(id)
	if !ok {
		return 0, false
	}

	return projector.TimeToReach(target)
}
