package strategy

import (
	"flywheel-mm/pkg/types"
)

// Simple is the deterministic rotating cycle: a fixed number of buys, then
// the accumulated position is sold off in equal slices, then repeat.
//
// Buy sizing commits buyPercent of the current ops SOL balance, clamped to
// [minBuySol, maxBuySol]. Sell sizing is fixed at the boundary snapshot:
// sellPhaseTokenSnapshot / cycleSells per transaction.
func Simple(in Inputs) types.Decision {
	switch in.State.CyclePhase {
	case types.PhaseSell:
		if !in.State.SellAmountPerTx.IsPositive() {
			return types.SkipDecision("sell phase with empty snapshot")
		}
		return types.Decision{
			Intent: types.TradeIntent{
				Side:   types.Sell,
				Amount: in.State.SellAmountPerTx,
				Unit:   types.UnitToken,
				Style:  types.StyleInstant,
				Reason: "cycle sell",
			},
		}
	default: // PhaseBuy
		amount := clampBuy(in.Config, percentOf(in.Balances.OpsSol, in.Config.BuyPercent))
		if amount.GreaterThan(in.Balances.OpsSol) {
			return types.SkipDecision("ops balance below minimum buy")
		}
		return types.Decision{
			Intent: types.TradeIntent{
				Side:   types.Buy,
				Amount: amount,
				Unit:   types.UnitSol,
				Style:  types.StyleInstant,
				Reason: "cycle buy",
			},
		}
	}
}
