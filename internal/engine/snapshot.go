package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

// TokenStatus is one token's operational summary.
type TokenStatus struct {
	TokenID             string
	Symbol              string
	Mint                string
	Active              bool
	Graduated           bool
	AlgorithmMode       types.AlgorithmMode
	CyclePhase          types.CyclePhase
	BuyCount            int
	SellCount           int
	MarketCondition     types.MarketCondition
	ConsecutiveFailures int
	PausedUntil         string
	ReserveBalanceSol   decimal.Decimal
	LastCheckResult     string
}

// Snapshot returns the operational status of every flywheel-eligible token.
func (e *Engine) Snapshot(ctx context.Context) ([]TokenStatus, error) {
	views, err := e.store.SelectFlywheelEligible(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]TokenStatus, 0, len(views))
	for _, v := range views {
		st := TokenStatus{
			TokenID:             v.Token.TokenID,
			Symbol:              v.Token.Symbol,
			Mint:                v.Token.MintAddress,
			Active:              v.Token.Active,
			Graduated:           v.Token.Graduated,
			AlgorithmMode:       v.Config.AlgorithmMode,
			CyclePhase:          v.State.CyclePhase,
			BuyCount:            v.State.BuyCount,
			SellCount:           v.State.SellCount,
			MarketCondition:     v.State.MarketCondition,
			ConsecutiveFailures: v.State.ConsecutiveFailures,
			ReserveBalanceSol:   v.State.ReserveBalanceSol,
		}
		if v.State.PausedUntil != nil {
			st.PausedUntil = v.State.PausedUntil.Format("2006-01-02T15:04:05Z07:00")
		}
		if v.State.LastCheckResult != nil {
			st.LastCheckResult = *v.State.LastCheckResult
		}
		out = append(out, st)
	}
	return out, nil
}
