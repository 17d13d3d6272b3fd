// ABOUTME: Bounded exponential retry for idempotent reads.
// ABOUTME: Only transport failures, rate limits, and 5xx responses are retried.
package feed

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/2389-research/murmur/internal/mastodon"
)

// retryRead runs op up to retries+1 times. Writes must never go through here.
func retryRead[R any](ctx context.Context, retries int, wait time.Duration, op func() (R, error)) (R, error) {
	if retries <= 0 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	if wait > 0 {
		b.InitialInterval = wait
	}
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
	return backoff.RetryWithData(func() (R, error) {
		res, err := op()
		if err != nil && !mastodon.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, policy)
}
