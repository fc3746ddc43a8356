package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

// extremeVolPause is how long a token sits out after an extreme-volatility
// read when pauseOnExtremeVolatility is set.
const extremeVolPause = 30 * time.Minute

// Dynamic adapts behavior to the detected market condition:
//
//	extreme volatility  pause (when configured), otherwise stand down this tick
//	pump                sell into strength at maxSellPercent
//	dump                buy the dip, optionally boosted, and raise the reserve
//	ranging             small alternating trades to keep the book moving
//	normal              fall through to the simple cycle
func Dynamic(in Inputs) types.Decision {
	px := in.Price
	if px == nil {
		return types.SkipDecision("dynamic needs a price context")
	}
	cond := in.Condition

	switch cond.Condition {
	case types.CondExtremeVol:
		if in.Config.PauseOnExtremeVolatility {
			vol := in.Config.VolatilityPauseThreshold
			if px.Volatility == nil || *px.Volatility >= vol {
				return types.Decision{
					Skip:     true,
					Reason:   fmt.Sprintf("extreme volatility, pausing %s", extremeVolPause),
					PauseFor: extremeVolPause,
				}
			}
		}
		return types.SkipDecision("extreme volatility, standing down")

	case types.CondPump:
		amount := percentOf(in.Balances.OpsToken, in.Config.MaxSellPercent)
		if !amount.IsPositive() {
			return types.SkipDecision("pump but no token inventory to sell")
		}
		d := types.Decision{
			Intent: types.TradeIntent{
				Side:   types.Sell,
				Amount: amount,
				Unit:   types.UnitToken,
				Reason: fmt.Sprintf("pump (conf %.0f): selling into strength", cond.Confidence),
			},
		}
		return applyStyle(in, d)

	case types.CondDump:
		amount := clampBuy(in.Config, percentOf(in.Balances.OpsSol, in.Config.BuyPercent))
		if amount.GreaterThan(in.Balances.OpsSol) {
			return types.SkipDecision("dump but ops balance below buy size")
		}
		// Adverse conditions grow the reserve: the difference between the
		// adverse and normal reserve rates, taken from this buy.
		reserveDelta := percentOf(amount,
			in.Config.ReservePercentAdverse-in.Config.ReservePercentNormal)
		reason := fmt.Sprintf("dump (conf %.0f): buying the dip", cond.Confidence)

		if in.Config.BuybackBoostOnDump && in.State.ReserveBalanceSol.IsPositive() {
			// Boosted buyback deploys the strategic reserve on top of the
			// normal buy, still honoring the per-trade cap. The deployed
			// portion is drawn back out of the reserve on settlement.
			deploy := in.State.ReserveBalanceSol
			if in.Config.MaxBuySol.IsPositive() {
				headroom := in.Config.MaxBuySol.Sub(amount)
				if headroom.IsNegative() {
					headroom = decimal.Zero
				}
				if deploy.GreaterThan(headroom) {
					deploy = headroom
				}
			}
			if deploy.IsPositive() {
				amount = amount.Add(deploy)
				reserveDelta = deploy.Neg()
				reason = fmt.Sprintf("dump (conf %.0f): buying the dip with %s reserve", cond.Confidence, deploy)
			}
		}

		d := types.Decision{
			Intent: types.TradeIntent{
				Side:   types.Buy,
				Amount: amount,
				Unit:   types.UnitSol,
				Reason: reason,
			},
			ReserveDelta: reserveDelta,
		}
		return applyStyle(in, d)

	case types.CondRanging:
		// Keep a light pulse going, alternating with the cycle phase.
		if in.State.CyclePhase == types.PhaseSell {
			amount := percentOf(in.Balances.OpsToken, in.Config.MinSellPercent)
			if !amount.IsPositive() {
				return types.SkipDecision("ranging sell with no inventory")
			}
			d := types.Decision{
				Intent: types.TradeIntent{
					Side:   types.Sell,
					Amount: amount,
					Unit:   types.UnitToken,
					Reason: "ranging: small sell",
				},
			}
			return applyStyle(in, d)
		}
		amount := in.Config.MinBuySol
		if amount.GreaterThan(in.Balances.OpsSol) {
			return types.SkipDecision("ranging buy below ops balance")
		}
		d := types.Decision{
			Intent: types.TradeIntent{
				Side:   types.Buy,
				Amount: amount,
				Unit:   types.UnitSol,
				Reason: "ranging: small buy",
			},
		}
		return applyStyle(in, d)

	default: // normal
		return applyStyle(in, Simple(in))
	}
}
