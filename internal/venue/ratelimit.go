// ratelimit.go implements token-bucket rate limiting for venue API calls.
//
// Both venues publish per-category request budgets. The buckets refill
// continuously (rather than in window-sized bursts) so sustained load
// never trips the hard limits.
package venue

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is
// cancelled; TryTake never blocks.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastTime).Seconds()
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastTime = now
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refillLocked(time.Now())
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// TryTake takes a token if one is available and reports whether it did.
// Used for the global trade cap: attempts over the cap defer to the next
// scheduler tick rather than queueing.
func (tb *TokenBucket) TryTake() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked(time.Now())
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimiter groups token buckets by venue endpoint category.
type RateLimiter struct {
	Quote *TokenBucket // quote reads
	Build *TokenBucket // swap/claim transaction assembly
	Claim *TokenBucket // claimable-position queries
}

// NewRateLimiter creates buckets tuned to the venues' published limits.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Quote: NewTokenBucket(100, 10),
		Build: NewTokenBucket(50, 5),
		Claim: NewTokenBucket(30, 3),
	}
}
