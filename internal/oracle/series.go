package oracle

import (
	"sync"

	"github.com/markcheno/go-talib"
)

const (
	minTrendSamples = 20 // trend outputs stay nil below this
	shortEmaPeriod  = 9
	longEmaPeriod   = 21
	rsiPeriod       = 14
	volPeriod       = 20
)

// series is a bounded FIFO ring of price samples for one mint. Readers get
// a consistent snapshot per call; writers append under the lock.
type series struct {
	mu     sync.Mutex
	points []float64
	limit  int
}

func newSeries(limit int) *series {
	return &series{limit: limit}
}

// record appends a sample, evicting the oldest beyond the bound.
func (s *series) record(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, price)
	if len(s.points) > s.limit {
		s.points = s.points[len(s.points)-s.limit:]
	}
}

// indicators computes the trend read over the current snapshot. All
// outputs are nil until minTrendSamples points have accumulated.
func (s *series) indicators() (shortEma, longEma, rsi, volatility *float64, samples int) {
	s.mu.Lock()
	closes := make([]float64, len(s.points))
	copy(closes, s.points)
	s.mu.Unlock()

	samples = len(closes)
	if samples < minTrendSamples {
		return nil, nil, nil, nil, samples
	}

	se := talib.Ema(closes, shortEmaPeriod)
	ri := talib.Rsi(closes, rsiPeriod)

	shortEma = last(se)
	// talib indexes closes[period-1] unconditionally; the long EMA needs
	// its own floor, not just a guarded read.
	if samples >= longEmaPeriod {
		longEma = last(talib.Ema(closes, longEmaPeriod))
	}
	rsi = last(ri)
	volatility = returnsVolatility(closes)
	return shortEma, longEma, rsi, volatility, samples
}

// returnsVolatility is the standard deviation of recent per-sample
// percentage returns, in percent.
func returnsVolatility(closes []float64) *float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1]*100)
	}
	period := volPeriod
	if len(returns) < period {
		period = len(returns)
	}
	if period < 2 {
		return nil
	}
	sd := talib.StdDev(returns, period, 1.0)
	return last(sd)
}

func last(vals []float64) *float64 {
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i] != 0 {
			v := vals[i]
			return &v
		}
	}
	if len(vals) == 0 {
		return nil
	}
	v := vals[len(vals)-1]
	return &v
}
