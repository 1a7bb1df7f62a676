// Package retry provides a back-off retry combinator for I/O against
// external services.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Permanent marks err as non-retryable; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs fn up to maxAttempts times, sleeping initial, 2*initial,
// 4*initial... between attempts. Context cancellation stops retries
// immediately, as does an error wrapped with Permanent.
func Do(ctx context.Context, maxAttempts int, initial time.Duration, fn func(ctx context.Context) error) error {
	return backoff.Retry(func() error {
		return fn(ctx)
	}, newPolicy(ctx, maxAttempts, initial))
}

// DoVal is Do for functions returning a value.
func DoVal[T any](ctx context.Context, maxAttempts int, initial time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		return fn(ctx)
	}, newPolicy(ctx, maxAttempts, initial))
}

func newPolicy(ctx context.Context, maxAttempts int, initial time.Duration) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.Multiplier = 2
	// Deterministic delays: exactly initial, 2x, 4x...
	bo.RandomizationFactor = 0
	bo.MaxInterval = time.Hour // effectively uncapped below the attempt bound
	bo.MaxElapsedTime = 0

	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxAttempts-1)), ctx)
}
