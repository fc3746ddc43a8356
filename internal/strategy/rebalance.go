package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

// maxRebalanceFraction caps a single rebalance trade at this share of the
// total portfolio value, so one tick never moves more than a fifth of it.
var maxRebalanceFraction = decimal.NewFromFloat(0.20)

// Rebalance trades toward the configured SOL/token allocation split.
// A trade fires only when the actual split deviates from target by more
// than rebalanceThreshold percentage points. Trade size scales with how
// far out of band the portfolio is.
func Rebalance(in Inputs) types.Decision {
	px := in.Price
	if px == nil || px.PriceUsd <= 0 || px.SolPriceUsd <= 0 {
		return types.SkipDecision("rebalance needs a price context")
	}

	solUsd := in.Balances.OpsSol.Mul(decimal.NewFromFloat(px.SolPriceUsd))
	tokenUsd := in.Balances.OpsToken.Mul(decimal.NewFromFloat(px.PriceUsd))
	portfolio := solUsd.Add(tokenUsd)
	if !portfolio.IsPositive() {
		return types.SkipDecision("empty portfolio")
	}

	actualSolPct, _ := solUsd.Div(portfolio).Mul(decimal.NewFromInt(100)).Float64()
	deviation := actualSolPct - float64(in.Config.TargetSolAllocation)
	threshold := float64(in.Config.RebalanceThreshold)
	if abs(deviation) < threshold {
		return types.SkipDecision(fmt.Sprintf("within band: sol %.1f%% vs target %d%%",
			actualSolPct, in.Config.TargetSolAllocation))
	}

	// Urgency scales the traded fraction of the gap. High urgency also
	// bypasses the RSI sanity check, because a badly skewed book matters
	// more than a momentum signal.
	ratio := abs(deviation) / threshold
	fraction := decimal.NewFromFloat(0.5)
	high := false
	switch {
	case ratio <= 1.5:
		// half the gap
	case ratio <= 2.5:
		fraction = decimal.NewFromInt(1)
	default:
		fraction = decimal.NewFromInt(1)
		high = true
	}

	targetSolUsd := percentOf(portfolio, in.Config.TargetSolAllocation)
	gapUsd := solUsd.Sub(targetSolUsd).Abs().Mul(fraction)
	if limit := portfolio.Mul(maxRebalanceFraction); gapUsd.GreaterThan(limit) {
		gapUsd = limit
	}

	if deviation > 0 {
		// Too much SOL: buy tokens.
		if !high && px.Rsi != nil && *px.Rsi > 75 {
			return types.SkipDecision(fmt.Sprintf("buy suppressed, RSI %.1f overbought", *px.Rsi))
		}
		amount := gapUsd.Div(decimal.NewFromFloat(px.SolPriceUsd))
		d := types.Decision{
			Intent: types.TradeIntent{
				Side:   types.Buy,
				Amount: amount,
				Unit:   types.UnitSol,
				Reason: fmt.Sprintf("rebalance: sol %.1f%% over target", deviation),
			},
		}
		return applyStyle(in, d)
	}

	// Too little SOL: sell tokens.
	if !high && px.Rsi != nil && *px.Rsi < 25 {
		return types.SkipDecision(fmt.Sprintf("sell suppressed, RSI %.1f oversold", *px.Rsi))
	}
	amount := gapUsd.Div(decimal.NewFromFloat(px.PriceUsd))
	d := types.Decision{
		Intent: types.TradeIntent{
			Side:   types.Sell,
			Amount: amount,
			Unit:   types.UnitToken,
			Reason: fmt.Sprintf("rebalance: sol %.1f%% under target", -deviation),
		},
	}
	return applyStyle(in, d)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
