// Package stats tracks the progress of projectors over the checkpoint
// stream, and estimates their throughput and the time they need to
// reach a target checkpoint.
//
// Speed estimates are computed by two WeightedSpeedCalculator instances
// per projector: a fine-grained one, reacting quickly to bursts, and
// a coarse-grained one, keeping the estimate stable when recent samples
// are sparse.
package stats
