package strategy

import (
	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

// CycleResult is the state advance applied after a confirmed trade in a
// cycle-driven mode. Counters move only on confirmation, so a failed or
// skipped trade never consumes cycle budget.
type CycleResult struct {
	Phase     types.CyclePhase
	BuyCount  int
	SellCount int

	// SnapshotTaken marks the buy→sell boundary: the current token balance
	// is frozen and divided into equal per-transaction sell amounts.
	SnapshotTaken bool
	Snapshot      decimal.Decimal
	SellPerTx     decimal.Decimal
}

// AdvanceCycle computes the post-trade cycle state. tokenBalance is the
// ops wallet's token balance after the confirmed trade; it only matters at
// the buy→sell boundary where it becomes the sell-phase snapshot.
func AdvanceCycle(st types.FlywheelState, nBuy, nSell int, side types.Side, tokenBalance decimal.Decimal) CycleResult {
	res := CycleResult{
		Phase:     st.CyclePhase,
		BuyCount:  st.BuyCount,
		SellCount: st.SellCount,
	}

	switch side {
	case types.Buy:
		res.BuyCount++
		if res.BuyCount >= nBuy {
			res.Phase = types.PhaseSell
			res.SnapshotTaken = true
			res.Snapshot = tokenBalance
			if nSell > 0 {
				res.SellPerTx = tokenBalance.Div(decimal.NewFromInt(int64(nSell)))
			}
		}
	case types.Sell:
		res.SellCount++
		if res.SellCount >= nSell {
			res.Phase = types.PhaseBuy
			res.BuyCount = 0
			res.SellCount = 0
		}
	}
	return res
}
