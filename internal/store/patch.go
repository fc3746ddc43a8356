package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

// StatePatch is a shallow merge onto flywheel_state. Nil fields are left
// untouched. ClearPause / ClearFailure reset the nullable failure columns.
type StatePatch struct {
	CyclePhase             *types.CyclePhase
	BuyCount               *int
	SellCount              *int
	SellPhaseTokenSnapshot *decimal.Decimal
	SellAmountPerTx        *decimal.Decimal
	LastTradeAt            *time.Time

	ConsecutiveFailures *int
	TotalFailures       *int
	LastFailureReason   *string
	LastFailureAt       *time.Time
	PausedUntil         *time.Time
	ClearPause          bool

	LastCheckedAt   *time.Time
	LastCheckResult *string

	MarketCondition         *types.MarketCondition
	PreviousMarketCondition *types.MarketCondition
	LastConditionChangeAt   *time.Time

	ReserveBalanceSol *decimal.Decimal
}

// UpdateState applies a shallow merge onto the state row. Callers hold the
// token's lease; the store does not re-verify that here.
func (s *Store) UpdateState(ctx context.Context, tokenID string, p StatePatch) error {
	var set []string
	var args []any
	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}

	if p.CyclePhase != nil {
		add("cycle_phase", *p.CyclePhase)
	}
	if p.BuyCount != nil {
		add("buy_count", *p.BuyCount)
	}
	if p.SellCount != nil {
		add("sell_count", *p.SellCount)
	}
	if p.SellPhaseTokenSnapshot != nil {
		add("sell_phase_token_snapshot", *p.SellPhaseTokenSnapshot)
	}
	if p.SellAmountPerTx != nil {
		add("sell_amount_per_tx", *p.SellAmountPerTx)
	}
	if p.LastTradeAt != nil {
		add("last_trade_at", p.LastTradeAt.UTC())
	}
	if p.ConsecutiveFailures != nil {
		add("consecutive_failures", *p.ConsecutiveFailures)
	}
	if p.TotalFailures != nil {
		add("total_failures", *p.TotalFailures)
	}
	if p.LastFailureReason != nil {
		add("last_failure_reason", *p.LastFailureReason)
	}
	if p.LastFailureAt != nil {
		add("last_failure_at", p.LastFailureAt.UTC())
	}
	if p.ClearPause {
		add("paused_until", nil)
	} else if p.PausedUntil != nil {
		add("paused_until", p.PausedUntil.UTC())
	}
	if p.LastCheckedAt != nil {
		add("last_checked_at", p.LastCheckedAt.UTC())
	}
	if p.LastCheckResult != nil {
		add("last_check_result", *p.LastCheckResult)
	}
	if p.MarketCondition != nil {
		add("market_condition", *p.MarketCondition)
	}
	if p.PreviousMarketCondition != nil {
		add("previous_market_condition", *p.PreviousMarketCondition)
	}
	if p.LastConditionChangeAt != nil {
		add("last_condition_change_at", p.LastConditionChangeAt.UTC())
	}
	if p.ReserveBalanceSol != nil {
		add("reserve_balance_sol", *p.ReserveBalanceSol)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, tokenID)
	q := s.rebind("UPDATE flywheel_state SET " + strings.Join(set, ", ") + " WHERE token_id = ?")
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("update state %s: %w", tokenID, err)
	}
	return nil
}

// configColumns whitelists the token_config columns UpdateConfig accepts.
var configColumns = map[string]bool{
	"flywheel_active":               true,
	"auto_claim_enabled":            true,
	"market_making_enabled":         true,
	"fee_threshold_sol":             true,
	"slippage_bps":                  true,
	"trading_route":                 true,
	"algorithm_mode":                true,
	"buy_percent":                   true,
	"sell_percent":                  true,
	"min_buy_sol":                   true,
	"max_buy_sol":                   true,
	"target_sol_allocation":         true,
	"target_token_allocation":       true,
	"rebalance_threshold":           true,
	"twap_enabled":                  true,
	"twap_slices":                   true,
	"twap_window_minutes":           true,
	"twap_threshold_usd":            true,
	"vwap_enabled":                  true,
	"vwap_participation_rate":       true,
	"vwap_min_volume_usd":           true,
	"dynamic_fee_enabled":           true,
	"reserve_percent_normal":        true,
	"reserve_percent_adverse":       true,
	"min_sell_percent":              true,
	"max_sell_percent":              true,
	"buyback_boost_on_dump":         true,
	"pause_on_extreme_volatility":   true,
	"volatility_pause_threshold":    true,
	"reactive_enabled":              true,
	"reactive_min_trigger_sol":      true,
	"reactive_scale_percent":        true,
	"reactive_max_response_percent": true,
	"reactive_cooldown_ms":          true,
}

// UpdateConfig applies a shallow merge of column → value onto token_config.
// Unknown columns are rejected.
func (s *Store) UpdateConfig(ctx context.Context, tokenID string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	set := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch)+1)
	for col, v := range patch {
		if !configColumns[col] {
			return fmt.Errorf("update config %s: unknown column %q", tokenID, col)
		}
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	args = append(args, tokenID)
	q := s.rebind("UPDATE token_config SET " + strings.Join(set, ", ") + " WHERE token_id = ?")
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("update config %s: %w", tokenID, err)
	}
	return nil
}
