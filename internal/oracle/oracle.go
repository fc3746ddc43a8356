// Package oracle is the read-side price feed. For each mint it returns the
// spot price, 24h change, volume and liquidity from the upstream price API,
// and maintains a bounded rolling series per mint from which it derives
// short/long EMAs, 14-period RSI, and return volatility.
//
// The oracle never blocks decision logic on history: trend fields are nil
// until a mint has accumulated 20 samples, and callers degrade gracefully.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"flywheel-mm/internal/config"
	"flywheel-mm/pkg/types"
)

// Oracle fetches prices and maintains per-mint indicator series.
type Oracle struct {
	http    *resty.Client
	solMint string
	limit   int
	logger  *slog.Logger

	mu     sync.Mutex
	series map[string]*series

	solMu        sync.Mutex
	solPriceUsd  float64
	solFetchedAt time.Time
}

// New creates the oracle client.
func New(cfg config.OracleConfig, logger *slog.Logger) *Oracle {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond)

	limit := cfg.SeriesLength
	if limit <= 0 {
		limit = 1000
	}

	return &Oracle{
		http:    httpClient,
		solMint: cfg.SolMint,
		limit:   limit,
		logger:  logger.With("component", "oracle"),
		series:  make(map[string]*series),
	}
}

type priceResponse struct {
	PriceUsd       float64 `json:"priceUsd"`
	PriceChange24h float64 `json:"priceChange24h"`
	Volume24hUsd   float64 `json:"volume24hUsd"`
	LiquidityUsd   float64 `json:"liquidityUsd"`
}

func (o *Oracle) fetch(ctx context.Context, mint string) (*priceResponse, error) {
	var result priceResponse
	resp, err := o.http.R().
		SetContext(ctx).
		SetQueryParam("mint", mint).
		SetResult(&result).
		Get("/v1/price")
	if err != nil {
		return nil, fmt.Errorf("oracle price %s: %w", mint, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("oracle price %s: status %d", mint, resp.StatusCode())
	}
	if result.PriceUsd <= 0 {
		return nil, fmt.Errorf("oracle price %s: no price data", mint)
	}
	return &result, nil
}

// solPrice returns the native coin USD price, cached briefly since every
// token decision needs it.
func (o *Oracle) solPrice(ctx context.Context) (float64, error) {
	o.solMu.Lock()
	defer o.solMu.Unlock()
	if time.Since(o.solFetchedAt) < 10*time.Second && o.solPriceUsd > 0 {
		return o.solPriceUsd, nil
	}
	res, err := o.fetch(ctx, o.solMint)
	if err != nil {
		return 0, err
	}
	o.solPriceUsd = res.PriceUsd
	o.solFetchedAt = time.Now()
	return res.PriceUsd, nil
}

func (o *Oracle) seriesFor(mint string) *series {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.series[mint]
	if !ok {
		s = newSeries(o.limit)
		o.series[mint] = s
	}
	return s
}

// Snapshot fetches the current read for a mint, records the sample into the
// rolling series, and returns spot data plus whatever trend outputs the
// series can support.
func (o *Oracle) Snapshot(ctx context.Context, mint string) (*types.PriceContext, error) {
	res, err := o.fetch(ctx, mint)
	if err != nil {
		return nil, err
	}

	solUsd, err := o.solPrice(ctx)
	if err != nil {
		// A missing native price degrades USD sizing but should not void
		// the token read.
		o.logger.Warn("native price unavailable", "error", err)
		solUsd = 0
	}

	s := o.seriesFor(mint)
	s.record(res.PriceUsd)
	shortEma, longEma, rsi, vol, samples := s.indicators()

	return &types.PriceContext{
		Mint:         mint,
		PriceUsd:     res.PriceUsd,
		SolPriceUsd:  solUsd,
		Change24hPct: res.PriceChange24h,
		Volume24hUsd: res.Volume24hUsd,
		LiquidityUsd: res.LiquidityUsd,
		ShortEma:     shortEma,
		LongEma:      longEma,
		Rsi:          rsi,
		Volatility:   vol,
		Samples:      samples,
		ObservedAt:   time.Now(),
	}, nil
}
