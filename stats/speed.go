package stats

import "time"

// WeightedSpeedCalculator computes the speed of a projector, in checkpoints
// per second, as the weighted average of a bounded queue of samples.
//
// Samples are weighted by their position in the queue: the oldest one
// weighs 1, the newest one weighs n.
//
// WeightedSpeedCalculator is not safe for concurrent use.
type WeightedSpeedCalculator struct {
	capacity    int
	minInterval time.Duration

	samples []float64

	hasBaseline    bool
	lastCheckpoint int64
	lastRecorded   time.Time
}

// NewWeightedSpeedCalculator returns a calculator keeping at most capacity
// samples, each computed over an interval longer than minInterval.
func NewWeightedSpeedCalculator(capacity int, minInterval time.Duration) *WeightedSpeedCalculator {
	return &WeightedSpeedCalculator{
		capacity:    max(capacity, 1),
		minInterval: minInterval,
	}
}

// Record registers the checkpoint reached at the specified time.
//
// The first call only establishes the baseline. Subsequent calls produce
// a new sample once more than the minimum interval has passed since the
// previous sample, dropping the oldest samples beyond capacity.
func (c *WeightedSpeedCalculator) Record(checkpoint int64, at time.Time) {
	if !c.hasBaseline {
		c.hasBaseline = true
		c.lastCheckpoint = checkpoint
		c.lastRecorded = at

		return
	}

	elapsed := at.Sub(c.lastRecorded)
	if elapsed <= c.minInterval || elapsed <= 0 {
		return
	}

	sample := float64(checkpoint-c.lastCheckpoint) / elapsed.Seconds()

	c.samples = append(c.samples, sample)
	if overflow := len(c.samples) - c.capacity; overflow > 0 {
		c.samples = append(c.samples[:0], c.samples[overflow:]...)
	}

	c.lastCheckpoint = checkpoint
	c.lastRecorded = at
}

// Len returns the number of samples currently held.
func (c *WeightedSpeedCalculator) Len() int { return len(c.samples) }

// WeightedSpeed returns the weighted average of the samples,
// or false if no sample has been recorded yet.
func (c *WeightedSpeedCalculator) WeightedSpeed() (float64, bool) {
	return weightedAverage(c.samples, nil)
}

// WeightedSpeedIncluding returns the weighted average of the samples
// plus the specified one, considered the newest of all.
func (c *WeightedSpeedCalculator) WeightedSpeedIncluding(sample float64) float64 {
	speed, _ := weightedAverage(c.samples, &sample)
	return speed
}

func weightedAverage(samples []float64, extra *float64) (float64, bool) {
	var sum, weights float64

	for i, sample := range samples {
		weight := float64(i + 1)
		sum += sample * weight
		weights += weight
	}

	if extra != nil {
		weight := float64(len(samples) + 1)
		sum += *extra * weight
		weights += weight
	}

	if weights == 0 {
		return 0, false
	}

	return sum / weights, true
}
