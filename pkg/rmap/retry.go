package rmap

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds the conflict retry loops of RemoveIf, ReplaceIf, Replace
// and PutIfAbsent.
//
// The zero value retries without limit and without delay.
type RetryPolicy struct {
	// MaxAttempts caps the number of attempts, including the first.
	// Zero means unbounded.
	MaxAttempts int

	// Backoff returns the delay before retry n (n starts at 1).
	// Nil means retry immediately.
	Backoff func(n int) time.Duration
}

// Unbounded retries until the operation succeeds, fails its precondition, or
// the context is done.
func Unbounded() RetryPolicy {
	return RetryPolicy{}
}

// ExponentialBackoff doubles the delay from base up to limit, with up to 50%
// random jitter subtracted.
func ExponentialBackoff(base, limit time.Duration) func(n int) time.Duration {
	return func(n int) time.Duration {
		d := base
		for i := 1; i < n && d < limit; i++ {
			d *= 2
		}
		if d > limit {
			d = limit
		}
		if half := int64(d / 2); half > 0 {
			d -= time.Duration(rand.Int64N(half))
		}
		return d
	}
}

// run calls attempt until it reports done or fails. The context is checked
// before each attempt, never while a command is in flight.
func (p RetryPolicy) run(ctx context.Context, attempt func(n int) (done bool, err error)) error {
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.MaxAttempts > 0 && n > p.MaxAttempts {
			return ErrRetriesExhausted
		}
		if n > 1 && p.Backoff != nil {
			if err := sleep(ctx, p.Backoff(n-1)); err != nil {
				return err
			}
		}

		done, err := attempt(n)
		if err != nil || done {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
