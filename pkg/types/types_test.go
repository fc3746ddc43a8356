package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSolLamportsRoundTrip(t *testing.T) {
	t.Parallel()
	sol := decimal.NewFromFloat(1.5)
	if got := SolToLamports(sol); got != 1_500_000_000 {
		t.Errorf("SolToLamports(1.5) = %d, want 1500000000", got)
	}
	if got := LamportsToSol(1_500_000_000); !got.Equal(sol) {
		t.Errorf("LamportsToSol = %s, want 1.5", got)
	}
}

func TestSolToLamportsTruncatesDust(t *testing.T) {
	t.Parallel()
	// Sub-lamport precision rounds down, never up.
	sol := decimal.RequireFromString("0.0000000019")
	if got := SolToLamports(sol); got != 1 {
		t.Errorf("SolToLamports = %d, want 1", got)
	}
}

func TestTokenUnitsConversion(t *testing.T) {
	t.Parallel()
	amount := decimal.RequireFromString("123.456")
	units := DecimalToTokenUnits(amount, 6)
	if units != 123_456_000 {
		t.Errorf("DecimalToTokenUnits = %d, want 123456000", units)
	}
	if got := TokenUnitsToDecimal(units, 6); !got.Equal(amount) {
		t.Errorf("TokenUnitsToDecimal = %s, want %s", got, amount)
	}
}

func TestDefaultTokenConfigValid(t *testing.T) {
	t.Parallel()
	cfg := DefaultTokenConfig("tok-1")
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*TokenConfig)
	}{
		{"slippage over cap", func(c *TokenConfig) { c.SlippageBps = 6000 }},
		{"unknown route", func(c *TokenConfig) { c.TradingRoute = "dex" }},
		{"unknown mode", func(c *TokenConfig) { c.AlgorithmMode = "yolo" }},
		{"buy percent zero", func(c *TokenConfig) { c.BuyPercent = 0 }},
		{"min over max buy", func(c *TokenConfig) {
			c.MinBuySol = decimal.NewFromInt(2)
			c.MaxBuySol = decimal.NewFromInt(1)
		}},
		{"allocations not 100", func(c *TokenConfig) { c.TargetSolAllocation = 60 }},
		{"rebalance threshold over cap", func(c *TokenConfig) { c.RebalanceThreshold = 51 }},
		{"twap enabled zero slices", func(c *TokenConfig) {
			c.TwapEnabled = true
			c.TwapSlices = 0
		}},
		{"vwap enabled bad rate", func(c *TokenConfig) {
			c.VwapEnabled = true
			c.VwapParticipationRate = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultTokenConfig("tok-1")
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestStatePaused(t *testing.T) {
	t.Parallel()
	now := time.Now()
	var st FlywheelState
	if st.Paused(now) {
		t.Error("zero state should not be paused")
	}

	future := now.Add(time.Minute)
	st.PausedUntil = &future
	if !st.Paused(now) {
		t.Error("future paused_until should pause")
	}

	past := now.Add(-time.Minute)
	st.PausedUntil = &past
	if st.Paused(now) {
		t.Error("elapsed paused_until should not pause")
	}
}

func TestTwapItemReady(t *testing.T) {
	t.Parallel()
	now := time.Now()
	item := TwapQueueItem{SlicesRemaining: 2, NextExecuteAt: now.Add(-time.Second)}
	if !item.Ready(now) {
		t.Error("due item with remaining slices should be ready")
	}

	item.SlicesRemaining = 0
	if item.Ready(now) {
		t.Error("exhausted item should not be ready")
	}

	item.SlicesRemaining = 1
	item.NextExecuteAt = now.Add(time.Minute)
	if item.Ready(now) {
		t.Error("future item should not be ready")
	}
}
