// Package market classifies oracle output into a categorical market
// condition with a confidence score. Detection is a pure function: no I/O,
// no clock, fully deterministic for a given price context.
//
// Rules are evaluated in a fixed order and the first match wins:
// extreme volatility, pump, dump, ranging, normal.
package market

import (
	"fmt"

	"flywheel-mm/pkg/types"
)

// Thresholds are the detector's decision boundaries.
type Thresholds struct {
	Pump        float64 // 24h change above this is a pump
	Dump        float64 // 24h change below this is a dump
	Range       float64 // |24h change| below this may be ranging
	RangeVol    float64 // volatility below this may be ranging
	ExtremeVol  float64 // volatility above this is extreme
	RsiOver     float64 // RSI above this is overbought
	RsiUnder    float64 // RSI below this is oversold
}

// DefaultThresholds returns the stock boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Pump:       10,
		Dump:       -10,
		Range:      3,
		RangeVol:   3,
		ExtremeVol: 15,
		RsiOver:    70,
		RsiUnder:   30,
	}
}

// Detect maps a price context to a market condition. Trend inputs that are
// unavailable (nil) simply cannot trigger the rules that need them.
func Detect(px types.PriceContext, th Thresholds) types.Assessment {
	change := px.Change24hPct

	// 1. Extreme volatility overrides everything.
	if px.Volatility != nil && *px.Volatility > th.ExtremeVol {
		conf := 60 + (*px.Volatility-th.ExtremeVol)*2
		if conf > 100 {
			conf = 100
		}
		return types.Assessment{
			Condition:  types.CondExtremeVol,
			Confidence: conf,
			Reasons:    []string{fmt.Sprintf("Volatility %.1f%% above extreme threshold %.1f%%", *px.Volatility, th.ExtremeVol)},
		}
	}

	// 2. Pump: strong 24h rise or overbought RSI.
	rsiOver := px.Rsi != nil && *px.Rsi > th.RsiOver
	if change > th.Pump || rsiOver {
		conf := 50.0
		var reasons []string
		if change > th.Pump {
			conf += capAt((change-th.Pump)*2, 30)
			reasons = append(reasons, fmt.Sprintf("Price up %.1f%% in 24h", change))
		}
		if rsiOver {
			conf += capAt((*px.Rsi-th.RsiOver)*2, 30)
			reasons = append(reasons, fmt.Sprintf("RSI overbought at %.1f", *px.Rsi))
		}
		if conf > 100 {
			conf = 100
		}
		return types.Assessment{Condition: types.CondPump, Confidence: conf, Reasons: reasons}
	}

	// 3. Dump: symmetrical to pump.
	rsiUnder := px.Rsi != nil && *px.Rsi < th.RsiUnder
	if change < th.Dump || rsiUnder {
		conf := 50.0
		var reasons []string
		if change < th.Dump {
			conf += capAt((th.Dump-change)*2, 30)
			reasons = append(reasons, fmt.Sprintf("Price down %.1f%% in 24h", -change))
		}
		if rsiUnder {
			conf += capAt((th.RsiUnder-*px.Rsi)*2, 30)
			reasons = append(reasons, fmt.Sprintf("RSI oversold at %.1f", *px.Rsi))
		}
		if conf > 100 {
			conf = 100
		}
		return types.Assessment{Condition: types.CondDump, Confidence: conf, Reasons: reasons}
	}

	// 4. Ranging: flat price and calm volatility.
	if abs(change) < th.Range && px.Volatility != nil && *px.Volatility < th.RangeVol {
		return types.Assessment{
			Condition:  types.CondRanging,
			Confidence: 70,
			Reasons:    []string{fmt.Sprintf("Price within ±%.1f%% and volatility %.1f%% low", th.Range, *px.Volatility)},
		}
	}

	// 5. Nothing decisive.
	return types.Assessment{
		Condition:  types.CondNormal,
		Confidence: 60,
		Reasons:    []string{"No strong directional signal"},
	}
}

func capAt(v, cap float64) float64 {
	if v < 0 {
		return 0
	}
	if v > cap {
		return cap
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
