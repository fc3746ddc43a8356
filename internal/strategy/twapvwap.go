package strategy

import (
	"flywheel-mm/pkg/types"
)

// TwapVwap runs the simple cycle's phase logic but routes every trade
// through the execution-style chooser, so large trades get sliced (TWAP)
// or volume-paced (VWAP) instead of hitting the book at once.
func TwapVwap(in Inputs) types.Decision {
	switch in.State.CyclePhase {
	case types.PhaseSell:
		amount := percentOf(in.Balances.OpsToken, in.Config.SellPercent)
		if !amount.IsPositive() {
			return types.SkipDecision("sell phase with no inventory")
		}
		d := types.Decision{
			Intent: types.TradeIntent{
				Side:   types.Sell,
				Amount: amount,
				Unit:   types.UnitToken,
				Reason: "paced cycle sell",
			},
		}
		return applyStyle(in, d)
	default:
		amount := clampBuy(in.Config, percentOf(in.Balances.OpsSol, in.Config.BuyPercent))
		if amount.GreaterThan(in.Balances.OpsSol) {
			return types.SkipDecision("ops balance below minimum buy")
		}
		d := types.Decision{
			Intent: types.TradeIntent{
				Side:   types.Buy,
				Amount: amount,
				Unit:   types.UnitSol,
				Reason: "paced cycle buy",
			},
		}
		return applyStyle(in, d)
	}
}
