package ratelimit

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryRateLimited retries fn up to 4 times total, waiting 2s·2ⁿ between
// attempt n (n ∈ [0,3]): 2s, 4s, 8s, 16s. This is the bounded fallback every
// pacing policy shares when a provider returns HTTP 429 despite pacing
// (§4.1 "Fallback", §7 "Rate-Limited"). fn should return a sentinel the
// caller recognizes as "retryable" (429) versus a hard failure; only
// retryable errors should reach this helper.
func RetryRateLimited(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(&fixedDoublingBackOff{base: 2 * time.Second, attempt: 0, maxAttempts: 4}, ctx)
	return backoff.Retry(fn, b)
}

// fixedDoublingBackOff implements backoff.BackOff with a fixed doubling
// schedule (2s, 4s, 8s, 16s) rather than cenkalti/backoff's default jittered
// exponential curve, matching the 429 retry cadence exchanges expect.
type fixedDoublingBackOff struct {
	base        time.Duration
	attempt     int
	maxAttempts int
}

func (f *fixedDoublingBackOff) NextBackOff() time.Duration {
	if f.attempt >= f.maxAttempts {
		return backoff.Stop
	}
	d := f.base << uint(f.attempt)
	f.attempt++
	return d
}

func (f *fixedDoublingBackOff) Reset() {
	f.attempt = 0
}
