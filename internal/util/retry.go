package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry calls fn up to maxAttempts times with exponential backoff starting
// at baseDelay, doubling on each failed attempt. It returns nil on the
// first successful call, or the last error if all attempts fail. The
// function respects context cancellation between retries.
//
// This wraps github.com/cenkalti/backoff/v4 rather than hand-rolling the
// doubling loop: ExponentialBackOff already provides the doubling-delay
// policy this helper exposes, and backoff.WithMaxRetries bounds it to
// maxAttempts total calls.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = baseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0

	bounded := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(maxAttempts-1)), ctx)

	var lastErr error
	op := func() error {
		lastErr = fn()
		return lastErr
	}
	if err := backoff.Retry(op, bounded); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
