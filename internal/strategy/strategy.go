// Package strategy implements the algorithm-mode decision layer: the pure
// functions that turn per-token config, state, balances and the current
// market read into the next trade intent.
//
// Modes are a closed tagged set dispatched in Decide; adding a mode means
// changing the tag set and the dispatcher together, keeping the surface
// auditable. Mode functions never block: all I/O happens before (oracle,
// balances) or after (executor) the decision.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

// Inputs is everything a mode may consult. Price and Condition are absent
// for modes that skip the oracle round-trip.
type Inputs struct {
	Config    types.TokenConfig
	State     types.FlywheelState
	Balances  types.Balances
	Price     *types.PriceContext
	Condition types.Assessment

	CycleBuys  int // buys per cycle
	CycleSells int // sells per cycle

	Now time.Time
}

// Decide dispatches to the configured algorithm mode.
func Decide(in Inputs) types.Decision {
	switch in.Config.AlgorithmMode {
	case types.ModeSimple:
		return Simple(in)
	case types.ModeTurboLite:
		// Turbo-lite runs the simple cycle with no oracle dependency and
		// always-instant execution; the scheduler skips the price fetch.
		return Simple(in)
	case types.ModeRebalance:
		return Rebalance(in)
	case types.ModeTwapVwap:
		return TwapVwap(in)
	case types.ModeDynamic:
		return Dynamic(in)
	default:
		return types.SkipDecision("unknown algorithm mode " + string(in.Config.AlgorithmMode))
	}
}

// clampBuy applies the configured min/max bounds to a buy size.
func clampBuy(cfg types.TokenConfig, amount decimal.Decimal) decimal.Decimal {
	if amount.LessThan(cfg.MinBuySol) {
		amount = cfg.MinBuySol
	}
	if cfg.MaxBuySol.IsPositive() && amount.GreaterThan(cfg.MaxBuySol) {
		amount = cfg.MaxBuySol
	}
	return amount
}

func percentOf(amount decimal.Decimal, pct int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
}
