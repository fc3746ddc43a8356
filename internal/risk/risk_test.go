package risk

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

func TestFailurePauseDoublesAndCaps(t *testing.T) {
	t.Parallel()
	base := 30 * time.Second
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{-3, 30 * time.Second},
		{0, 30 * time.Second},
		{1, 1 * time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{7, 32 * time.Minute},
		{100, 32 * time.Minute},
	}
	for _, tc := range cases {
		if got := FailurePause(tc.failures, base); got != tc.want {
			t.Errorf("FailurePause(%d) = %s, want %s", tc.failures, got, tc.want)
		}
	}
}

func TestSpendableSolSubtractsReserves(t *testing.T) {
	t.Parallel()
	bal := types.Balances{OpsSol: decimal.RequireFromString("1.5")}

	got := SpendableSol(bal, decimal.RequireFromString("0.1"), decimal.RequireFromString("0.4"))
	if !got.Equal(decimal.RequireFromString("1")) {
		t.Errorf("spendable = %s, want 1", got)
	}
}

func TestSpendableSolNeverNegative(t *testing.T) {
	t.Parallel()
	bal := types.Balances{OpsSol: decimal.RequireFromString("0.2")}

	got := SpendableSol(bal, decimal.RequireFromString("0.1"), decimal.RequireFromString("0.4"))
	if !got.IsZero() {
		t.Errorf("spendable = %s, want 0 when reserves exceed balance", got)
	}
}

func TestGovernorExhausts(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	g := NewGovernor(3, logger)

	for i := 0; i < 3; i++ {
		if !g.Allow() {
			t.Fatalf("slot %d should be granted from burst capacity", i)
		}
	}
	if g.Allow() {
		t.Error("fourth immediate trade should be deferred")
	}
}
