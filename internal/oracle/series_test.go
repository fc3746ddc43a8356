package oracle

import (
	"testing"
)

func TestIndicatorsNilBelowMinSamples(t *testing.T) {
	t.Parallel()
	s := newSeries(100)
	for i := 0; i < minTrendSamples-1; i++ {
		s.record(1.0)
	}
	shortEma, longEma, rsi, vol, samples := s.indicators()
	if samples != minTrendSamples-1 {
		t.Errorf("samples = %d, want %d", samples, minTrendSamples-1)
	}
	if shortEma != nil || longEma != nil || rsi != nil || vol != nil {
		t.Error("trend outputs must stay nil below the sample floor")
	}
}

func TestIndicatorsPresentAtMinSamples(t *testing.T) {
	t.Parallel()
	s := newSeries(100)
	price := 1.0
	for i := 0; i < 30; i++ {
		price *= 1.01
		s.record(price)
	}
	shortEma, longEma, rsi, vol, samples := s.indicators()
	if samples != 30 {
		t.Errorf("samples = %d, want 30", samples)
	}
	if shortEma == nil || longEma == nil || rsi == nil || vol == nil {
		t.Fatal("expected all trend outputs with 30 samples")
	}
	// A monotonically rising series reads strongly overbought.
	if *rsi < 90 {
		t.Errorf("rsi = %.1f, want > 90 for a pure uptrend", *rsi)
	}
	if *shortEma <= 0 || *longEma <= 0 {
		t.Error("EMAs should be positive")
	}
	if *shortEma <= *longEma {
		t.Errorf("uptrend short EMA %.4f should exceed long EMA %.4f", *shortEma, *longEma)
	}
}

func TestIndicatorsAtExactSampleFloor(t *testing.T) {
	t.Parallel()
	s := newSeries(100)
	price := 1.0
	for i := 0; i < minTrendSamples; i++ {
		price *= 1.01
		s.record(price)
	}

	// The 20th sample crosses the floor: short EMA, RSI and volatility
	// appear, but the 21-period long EMA must wait for one more point
	// instead of reading past the series.
	shortEma, longEma, rsi, vol, samples := s.indicators()
	if samples != minTrendSamples {
		t.Fatalf("samples = %d, want %d", samples, minTrendSamples)
	}
	if shortEma == nil || rsi == nil || vol == nil {
		t.Error("short-period outputs should be available at the floor")
	}
	if longEma != nil {
		t.Errorf("long EMA = %v, want nil below its %d-sample period", *longEma, longEmaPeriod)
	}

	price *= 1.01
	s.record(price)
	_, longEma, _, _, samples = s.indicators()
	if samples != longEmaPeriod {
		t.Fatalf("samples = %d, want %d", samples, longEmaPeriod)
	}
	if longEma == nil {
		t.Error("long EMA should appear once the series covers its period")
	}
}

func TestSeriesEvictsOldestBeyondBound(t *testing.T) {
	t.Parallel()
	s := newSeries(5)
	for i := 1; i <= 8; i++ {
		s.record(float64(i))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.points) != 5 {
		t.Fatalf("len = %d, want bound 5", len(s.points))
	}
	if s.points[0] != 4 || s.points[4] != 8 {
		t.Errorf("points = %v, want [4 5 6 7 8]", s.points)
	}
}

func TestReturnsVolatilityOfFlatSeriesIsZero(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 2.5
	}
	vol := returnsVolatility(closes)
	if vol == nil {
		t.Fatal("expected a volatility read")
	}
	if *vol != 0 {
		t.Errorf("flat series volatility = %f, want 0", *vol)
	}
}

func TestReturnsVolatilityNeedsHistory(t *testing.T) {
	t.Parallel()
	if v := returnsVolatility([]float64{1.0}); v != nil {
		t.Error("single sample cannot produce volatility")
	}
	if v := returnsVolatility([]float64{1.0, 2.0}); v != nil {
		t.Error("one return cannot produce a deviation")
	}
}
