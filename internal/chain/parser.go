package chain

import (
	"regexp"
	"strconv"
	"strings"

	"flywheel-mm/pkg/types"
)

// SwapEvent is an external trade extracted from a transaction's program logs.
type SwapEvent struct {
	Mint      string
	Side      types.Side
	Lamports  uint64
	Signer    string
	Signature string
}

var (
	// Structured swap log emitted by the launchpad program:
	//   Program log: swap side=buy sol_amount=1500000000 user=<address>
	structuredSwapRe = regexp.MustCompile(`swap side=(buy|sell) sol_amount=(\d+) user=(\S+)`)

	// Fallback: any standalone integer of at least 9 digits, read as a
	// lamport amount. Only consulted when heuristic parsing is enabled.
	lamportsRe = regexp.MustCompile(`\b(\d{9,})\b`)
)

// ParseSwapLogs extracts a swap from a log notification. The structured
// program log format is authoritative; when allowHeuristic is set and no
// structured line exists, side is inferred from the instruction trace and
// the first 9-or-more-digit integer is read as the lamport amount.
// Returns nil when no swap can be established.
func ParseSwapLogs(mint, signature string, logs []string, allowHeuristic bool) *SwapEvent {
	for _, line := range logs {
		m := structuredSwapRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lamports, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil || lamports == 0 {
			continue
		}
		return &SwapEvent{
			Mint:      mint,
			Side:      types.Side(m[1]),
			Lamports:  lamports,
			Signer:    m[3],
			Signature: signature,
		}
	}

	if !allowHeuristic {
		return nil
	}

	var side types.Side
	for _, line := range logs {
		switch {
		case strings.Contains(line, "Instruction: Buy"):
			side = types.Buy
		case strings.Contains(line, "Instruction: Sell"):
			side = types.Sell
		}
	}
	if side == "" {
		return nil
	}

	for _, line := range logs {
		m := lamportsRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lamports, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil || lamports == 0 {
			continue
		}
		// The heuristic cannot attribute a signer; self-trade suppression
		// falls back to the signature check upstream.
		return &SwapEvent{
			Mint:      mint,
			Side:      side,
			Lamports:  lamports,
			Signature: signature,
		}
	}
	return nil
}
