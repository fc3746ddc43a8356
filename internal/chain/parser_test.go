package chain

import (
	"testing"

	"flywheel-mm/pkg/types"
)

func TestParseStructuredSwapLog(t *testing.T) {
	t.Parallel()
	logs := []string{
		"Program ComputeBudget111 invoke [1]",
		"Program log: swap side=buy sol_amount=1500000000 user=Trader111",
		"Program Launchpad111 success",
	}
	ev := ParseSwapLogs("mint-1", "sig-1", logs, false)
	if ev == nil {
		t.Fatal("expected a swap event")
	}
	if ev.Side != types.Buy || ev.Lamports != 1_500_000_000 {
		t.Errorf("side/lamports = %s/%d", ev.Side, ev.Lamports)
	}
	if ev.Signer != "Trader111" || ev.Mint != "mint-1" || ev.Signature != "sig-1" {
		t.Errorf("attribution = %q / %q / %q", ev.Signer, ev.Mint, ev.Signature)
	}
}

func TestParseStructuredBeatsHeuristic(t *testing.T) {
	t.Parallel()
	// Both forms present: the structured line wins, including its side.
	logs := []string{
		"Program log: Instruction: Sell",
		"Program log: swap side=buy sol_amount=2000000000 user=Trader111",
	}
	ev := ParseSwapLogs("mint-1", "sig-1", logs, true)
	if ev == nil || ev.Side != types.Buy {
		t.Fatalf("structured side should win, got %+v", ev)
	}
}

func TestParseHeuristicRequiresFlag(t *testing.T) {
	t.Parallel()
	logs := []string{
		"Program log: Instruction: Buy",
		"Program log: amount 3000000000",
	}
	if ev := ParseSwapLogs("mint-1", "sig-1", logs, false); ev != nil {
		t.Errorf("heuristic must stay off without the flag, got %+v", ev)
	}

	ev := ParseSwapLogs("mint-1", "sig-1", logs, true)
	if ev == nil {
		t.Fatal("expected a heuristic event")
	}
	if ev.Side != types.Buy || ev.Lamports != 3_000_000_000 {
		t.Errorf("side/lamports = %s/%d", ev.Side, ev.Lamports)
	}
	if ev.Signer != "" {
		t.Errorf("heuristic signer = %q, must stay empty", ev.Signer)
	}
}

func TestParseHeuristicIgnoresSmallIntegers(t *testing.T) {
	t.Parallel()
	// Compute-unit style numbers are under nine digits and never read as
	// lamport amounts.
	logs := []string{
		"Program log: Instruction: Sell",
		"Program consumed 48231 of 200000 compute units",
	}
	if ev := ParseSwapLogs("mint-1", "sig-1", logs, true); ev != nil {
		t.Errorf("expected nil without a plausible amount, got %+v", ev)
	}
}

func TestParseNoSwapReturnsNil(t *testing.T) {
	t.Parallel()
	logs := []string{
		"Program log: Instruction: Transfer",
		"Program log: amount 9000000000",
	}
	if ev := ParseSwapLogs("mint-1", "sig-1", logs, true); ev != nil {
		t.Errorf("transfer logs must not parse as a swap, got %+v", ev)
	}
}

func TestParseRejectsZeroAmount(t *testing.T) {
	t.Parallel()
	logs := []string{"Program log: swap side=sell sol_amount=0 user=Trader111"}
	if ev := ParseSwapLogs("mint-1", "sig-1", logs, false); ev != nil {
		t.Errorf("zero-amount swap must be dropped, got %+v", ev)
	}
}
