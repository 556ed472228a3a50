package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
)

// RetryPolicy retries an operation a bounded number of times with a fixed delay.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	// Clock spaces the retries; nil means the real clock.
	Clock clockwork.Clock
}

func DefaultConfirmRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, Delay: 500 * time.Millisecond}
}

// Attempts is the total number of tries, the first one included.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// RetryValue runs op until it succeeds, the attempts run out or ctx is done.
// notify, if set, is called before each retry.
//
// backoff only counts tries here. The delay between them is taken on the
// policy clock before each retry so tests can drive it in virtual time.
func RetryValue[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error), notify func(err error, attempt int)) (T, error) {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	attempt := 0
	return backoff.Retry(ctx,
		func() (T, error) {
			attempt++
			if attempt > 1 {
				if err := wait(ctx, clock, p.Delay); err != nil {
					var zero T
					return zero, backoff.Permanent(err)
				}
			}
			return op(ctx)
		},
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(uint(p.Attempts())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			if notify != nil {
				notify(err, attempt)
			}
		}),
	)
}
