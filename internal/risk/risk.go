// Package risk holds the engine-wide trading guards: the exponential
// failure-pause policy applied per token and the global trade-rate governor
// shared by every scheduler.
package risk

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"flywheel-mm/internal/venue"
	"flywheel-mm/pkg/types"
)

// maxBackoffExponent caps the failure pause at 2^6 = 64x the base cooldown.
const maxBackoffExponent = 6

// FailurePause returns how long a token must sit out after its Nth
// consecutive failure: 2^min(n, 6) * base.
func FailurePause(consecutiveFailures int, base time.Duration) time.Duration {
	n := consecutiveFailures
	if n < 0 {
		n = 0
	}
	if n > maxBackoffExponent {
		n = maxBackoffExponent
	}
	return base * (1 << uint(n))
}

// SpendableSol is what a buy may actually commit: the ops balance minus the
// fee reserve and the token's accumulated strategic reserve. Never negative.
func SpendableSol(bal types.Balances, feeReserve, strategicReserve decimal.Decimal) decimal.Decimal {
	spendable := bal.OpsSol.Sub(feeReserve).Sub(strategicReserve)
	if spendable.IsNegative() {
		return decimal.Zero
	}
	return spendable
}

// Governor is the global trade-rate cap across all tokens and both
// schedulers, backed by a continuously refilling token bucket. An attempt
// over the cap is not queued: the caller defers the trade to its next tick.
type Governor struct {
	bucket *venue.TokenBucket
	logger *slog.Logger
}

// NewGovernor creates a governor allowing ratePerMinute trades per minute,
// with burst capacity equal to the per-minute rate.
func NewGovernor(ratePerMinute int, logger *slog.Logger) *Governor {
	return &Governor{
		bucket: venue.NewTokenBucket(float64(ratePerMinute), float64(ratePerMinute)/60.0),
		logger: logger.With("component", "governor"),
	}
}

// Allow consumes one trade slot if available. It never blocks.
func (g *Governor) Allow() bool {
	if g.bucket.TryTake() {
		return true
	}
	g.logger.Debug("global trade cap reached, deferring")
	return false
}
