package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/azure/brand-mentions-bot/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = retry.Policy{
	MaxRetries: 3,
	BaseDelay:  2 * time.Millisecond,
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetriesAndReturnsUnderlyingError(t *testing.T) {
	underlying := errors.New("transient")
	calls := 0

	start := time.Now()
	_, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, underlying
	})
	elapsed := time.Since(start)

	assert.Same(t, underlying, err)
	assert.Equal(t, fastPolicy.MaxRetries+1, calls)
	assert.GreaterOrEqual(t, elapsed, retry.MinimumWait(fastPolicy))
}

func TestDo_StopShortCircuitsWithoutBackoff(t *testing.T) {
	permanent := errors.New("unauthorized")
	p := retry.Policy{MaxRetries: 3, BaseDelay: time.Hour}
	calls := 0

	start := time.Now()
	_, err := retry.Do(context.Background(), p, alwaysStop, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, permanent
	})

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_AttemptTimeout(t *testing.T) {
	p := retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, AttemptTimeout: 10 * time.Millisecond}
	calls := 0

	_, err := retry.Do(context.Background(), p, alwaysRetry, func(ctx context.Context) (struct{}, error) {
		calls++
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancellationDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{MaxRetries: 3, BaseDelay: 10 * time.Second}
	underlying := errors.New("transient")

	calls := 0
	_, err := retry.Do(ctx, p, alwaysRetry, func(context.Context) (struct{}, error) {
		calls++
		go cancel()
		return struct{}{}, underlying
	})

	assert.ErrorIs(t, err, underlying)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var recorded []int
	p := fastPolicy
	p.OnRetry = func(attempt int, _ error, _ time.Duration) {
		recorded = append(recorded, attempt)
	}

	_, _ = retry.Do(context.Background(), p, alwaysRetry, func(context.Context) (struct{}, error) {
		return struct{}{}, errors.New("fail")
	})

	// no callback after the final attempt
	assert.Equal(t, []int{1, 2, 3}, recorded)
}

func TestBackoff(t *testing.T) {
	p := retry.Policy{BaseDelay: time.Second}
	assert.Equal(t, time.Second, retry.Backoff(p, 0))
	assert.Equal(t, 2*time.Second, retry.Backoff(p, 1))
	assert.Equal(t, 4*time.Second, retry.Backoff(p, 2))

	p.Jitter = time.Second
	for i := 0; i < 20; i++ {
		d := retry.Backoff(p, 1)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestMinimumWait(t *testing.T) {
	p := retry.Policy{MaxRetries: 3, BaseDelay: time.Second}
	assert.Equal(t, 7*time.Second, retry.MinimumWait(p))
}

func alwaysRetry(error) retry.Action { return retry.Retry }
func alwaysStop(error) retry.Action  { return retry.Stop }
