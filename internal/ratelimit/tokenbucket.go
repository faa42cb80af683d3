// Package ratelimit implements the two outbound-request pacing policies
// used by the ingestion pipeline: a smoothed token-bucket limiter for the
// OHLCV path and an empirically tuned burst+cooldown limiter for the
// posttrade path (SPEC_FULL.md §4.1), plus the shared bounded-backoff
// fallback used when a provider returns HTTP 429 despite pacing.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is the single contract both pacing policies satisfy: block until
// it is safe to issue the next outbound request.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket smooths requests to at most maxRequests in any trailing
// window, matching the OHLCV provider's documented limit. It wraps
// golang.org/x/time/rate rather than the source's recursive ring-buffer
// formulation (an open question in §9, resolved there): x/time/rate already
// implements the same trailing-window smoothing without unbounded
// recursion, so Wait here is a single blocking call, not a loop.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket returns a limiter permitting maxRequests events per
// windowSeconds, smoothed evenly across the window (burst of 1 — the
// source's recursive formulation never allowed back-to-back bursts either).
func NewTokenBucket(maxRequests int, windowSeconds float64) *TokenBucket {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	r := rate.Limit(float64(maxRequests) / windowSeconds)
	return &TokenBucket{limiter: rate.NewLimiter(r, 1)}
}

// Wait blocks until the next request is permitted or ctx is cancelled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
