package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

// StyleDecision is the chooser's output: the execution style, the amount to
// trade now, and the remainder plan when the trade is partitioned.
type StyleDecision struct {
	Style  types.ExecStyle
	Amount decimal.Decimal
	Reason string

	// Twap is set only for StyleTwap; the first slice executes immediately
	// and the remainder goes to the queue.
	Twap *types.TwapPlan
}

// ChooseStyle picks how an intended trade gets executed. Preference order:
// VWAP when enabled and the venue volume supports it, TWAP when enabled and
// the trade's USD value crosses the threshold, otherwise instant.
//
// Without a usable price read the chooser degrades to a small instant trade
// instead of refusing: one tenth of the intended size, bounded by the
// available balance.
func ChooseStyle(cfg types.TokenConfig, intended decimal.Decimal, side types.Side, available decimal.Decimal, px *types.PriceContext) StyleDecision {
	if px == nil || px.PriceUsd <= 0 || px.SolPriceUsd <= 0 {
		return StyleDecision{
			Style:  types.StyleInstant,
			Amount: decimal.Min(intended.Div(decimal.NewFromInt(10)), available),
			Reason: "no price context, degraded sizing",
		}
	}

	if cfg.VwapEnabled {
		vol := decimal.NewFromFloat(px.Volume24hUsd)
		if vol.GreaterThanOrEqual(cfg.VwapMinVolumeUsd) {
			// Participate at the configured fraction of the per-minute
			// volume, never exceeding the intent or the balance.
			perMinuteUsd := vol.Div(decimal.NewFromInt(24 * 60))
			targetUsd := percentOf(perMinuteUsd, cfg.VwapParticipationRate)
			amount := decimal.Min(
				targetUsd.Div(decimal.NewFromFloat(px.PriceUsd)),
				available,
				intended,
			)
			return StyleDecision{
				Style:  types.StyleVwap,
				Amount: amount,
				Reason: fmt.Sprintf("vwap %d%% of $%s/min", cfg.VwapParticipationRate, perMinuteUsd.StringFixed(0)),
			}
		}
	}

	if cfg.TwapEnabled && cfg.TwapSlices > 1 {
		usdValue := intended.Mul(decimal.NewFromFloat(px.SolPriceUsd))
		if usdValue.GreaterThan(cfg.TwapThresholdUsd) {
			slices := cfg.TwapSlices
			slice := intended.Div(decimal.NewFromInt(int64(slices)))
			interval := cfg.TwapWindowMinutes / slices
			if interval < 1 {
				interval = 1
			}
			return StyleDecision{
				Style:  types.StyleTwap,
				Amount: slice,
				Reason: fmt.Sprintf("twap $%s over %d slices", usdValue.StringFixed(0), slices),
				Twap: &types.TwapPlan{
					TotalAmount:     intended,
					SliceSize:       slice,
					Slices:          slices,
					IntervalMinutes: interval,
				},
			}
		}
	}

	return StyleDecision{
		Style:  types.StyleInstant,
		Amount: decimal.Min(intended, available),
		Reason: "instant",
	}
}

// applyStyle runs the chooser on a decision's intent and folds the result
// back in: resized amount, style tag, and any TWAP plan for the scheduler.
func applyStyle(in Inputs, d types.Decision) types.Decision {
	if d.Skip {
		return d
	}
	available := in.Balances.OpsSol
	if d.Intent.Unit == types.UnitToken {
		available = in.Balances.OpsToken
	}
	sd := ChooseStyle(in.Config, d.Intent.Amount, d.Intent.Side, available, in.Price)
	if !sd.Amount.IsPositive() {
		return types.SkipDecision("sized to zero: " + sd.Reason)
	}
	d.Intent.Amount = sd.Amount
	d.Intent.Style = sd.Style
	d.Twap = sd.Twap
	return d
}
