package ratelimit

import (
	"context"
	"sync"
	"time"
)

// BurstCooldown implements the posttrade path's empirically tuned pacing
// policy (§4.1): an inter-request delay between every pair of successive
// requests, plus a longer cooldown inserted before every burstSize-th
// request. Grounded on xetra_fetcher.py's enforce_limits: the defaults
// (0.6s, 30, 35s) were tuned to produce zero HTTP 429s across 810
// consecutive requests.
type BurstCooldown struct {
	interRequestDelay time.Duration
	burstSize         int
	burstCooldown     time.Duration

	mu           sync.Mutex
	requestCount int
	lastRequest  time.Time
}

// NewBurstCooldown constructs a BurstCooldown limiter. burstSize <= 0
// disables the cooldown step entirely (every request only waits out the
// inter-request delay).
func NewBurstCooldown(interRequestDelay time.Duration, burstSize int, burstCooldown time.Duration) *BurstCooldown {
	return &BurstCooldown{
		interRequestDelay: interRequestDelay,
		burstSize:         burstSize,
		burstCooldown:     burstCooldown,
	}
}

// Wait blocks per the burst+cooldown contract before the caller may issue
// its next request.
func (b *BurstCooldown) Wait(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.burstSize > 0 && b.requestCount > 0 && b.requestCount%b.burstSize == 0 {
		if err := sleepCtx(ctx, b.burstCooldown); err != nil {
			return err
		}
	}

	if !b.lastRequest.IsZero() {
		elapsed := time.Since(b.lastRequest)
		if remaining := b.interRequestDelay - elapsed; remaining > 0 {
			if err := sleepCtx(ctx, remaining); err != nil {
				return err
			}
		}
	}

	b.requestCount++
	b.lastRequest = time.Now()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
