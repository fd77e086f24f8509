package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, back off and try again
)

// Policy configures attempts, per-attempt timeouts and backoff.
// A call makes at most MaxRetries+1 attempts.
type Policy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	Jitter         time.Duration // upper bound of the random delay added to each backoff
	AttemptTimeout time.Duration // zero means no per-attempt deadline
	Clock          clockwork.Clock
	OnRetry        func(attempt int, err error, delay time.Duration)
}

type Classify func(err error) Action
type Operation[T any] func(ctx context.Context) (T, error)

// Do runs op until it succeeds, classify says Stop, or attempts run out.
// The last error is returned as-is so callers can inspect its kind.
func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		val, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, err
		}
		if classify(err) == Stop || attempt == p.MaxRetries {
			return zero, err
		}

		delay := Backoff(p, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-clock.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op Operation[T]) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// Backoff returns base * 2^attempt plus a random jitter in [0, p.Jitter).
func Backoff(p Policy, attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return delay
}

// MinimumWait is the sum of the un-jittered backoff delays a call that
// exhausts every retry will sleep through.
func MinimumWait(p Policy) time.Duration {
	var total time.Duration
	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		total += p.BaseDelay << uint(attempt)
	}
	return total
}
