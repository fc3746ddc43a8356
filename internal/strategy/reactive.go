package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

// ObservedSwap is an external trade seen on the mint's live feed, already
// parsed and denominated in SOL.
type ObservedSwap struct {
	Side      types.Side
	AmountSol decimal.Decimal
	Signer    string
	Signature string
	At        time.Time
}

// React sizes a mirroring response to an observed external swap: momentum
// following, scaled down and capped so a whale cannot drain the ops wallet
// through our own reaction.
func React(cfg types.TokenConfig, sw ObservedSwap, bal types.Balances) types.Decision {
	if sw.AmountSol.LessThan(cfg.ReactiveMinTriggerSol) {
		return types.SkipDecision(fmt.Sprintf("swap %s below trigger %s",
			sw.AmountSol, cfg.ReactiveMinTriggerSol))
	}

	response := percentOf(sw.AmountSol, cfg.ReactiveScalePercent)
	maxResponse := percentOf(bal.OpsSol, cfg.ReactiveMaxResponsePercent)
	if response.GreaterThan(maxResponse) {
		response = maxResponse
	}
	if !response.IsPositive() {
		return types.SkipDecision("response sized to zero")
	}

	return types.Decision{
		Intent: types.TradeIntent{
			Side:   sw.Side,
			Amount: response,
			Unit:   types.UnitSol,
			Style:  types.StyleInstant,
			Reason: fmt.Sprintf("mirroring observed %s of %s SOL", sw.Side, sw.AmountSol),
		},
	}
}
