// Package retry contains the Retry Policy applied around failing operations,
// such as the dispatch of a Transaction to its projectors.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/get-eventually/go-projections/logger"
)

// DefaultInterval is the delay between attempts used by a Policy
// with a positive MaxDuration and no Interval.
const DefaultInterval = time.Second

// Forever is the MaxDuration of a Policy that never stops retrying.
const Forever time.Duration = math.MaxInt64

// None is the Policy that never retries.
var None = Policy{}

// Policy retries a failing operation on a fixed interval, until it succeeds
// or MaxDuration has elapsed since the first attempt.
type Policy struct {
	Interval    time.Duration
	MaxDuration time.Duration
}

// Indefinitely returns a Policy retrying on the specified interval
// until the operation succeeds or the context is canceled.
func Indefinitely(interval time.Duration) Policy {
	return Policy{Interval: interval, MaxDuration: Forever}
}

// For returns a Policy retrying on the specified interval for at most
// maxDuration since the first attempt.
func For(interval, maxDuration time.Duration) Policy {
	return Policy{Interval: interval, MaxDuration: maxDuration}
}

func (p Policy) backOff() backoff.BackOff {
	if p.MaxDuration <= 0 {
		return &backoff.StopBackOff{}
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return backoff.NewConstantBackOff(interval)
}

// expired reports whether no more attempts are allowed after the
// specified time has elapsed since the first one.
func (p Policy) expired(elapsed time.Duration) bool {
	return p.MaxDuration != Forever && elapsed >= p.MaxDuration
}

// Do runs the operation until it succeeds. A failed attempt is retried
// after one Interval as long as less than MaxDuration has elapsed since
// the first attempt.
//
// Once the Policy gives up, or the context is canceled while waiting for
// the next attempt, the error returned by the last attempt is returned as-is.
func (p Policy) Do(ctx context.Context, l logger.Logger, op func(ctx context.Context) error) error {
	b := p.backOff()
	started := time.Now()

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		next := b.NextBackOff()
		if next == backoff.Stop || p.expired(time.Since(started)) {
			if attempt > 1 {
				logger.Error(l, "operation failed, giving up",
					logger.With("attempts", attempt),
					logger.Err(err),
				)
			}

			return err
		}

		logger.Info(l, "operation failed, retrying",
			logger.With("attempt", attempt),
			logger.With("retryIn", next),
			logger.Err(err),
		)

		timer := time.NewTimer(next)

		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
