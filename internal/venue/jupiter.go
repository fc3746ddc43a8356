package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"flywheel-mm/internal/config"
	"flywheel-mm/pkg/types"
)

// JupiterClient talks to the AMM aggregator used after graduation. It has
// no claim surface; creator fees stay on the bonding-curve venue.
type JupiterClient struct {
	http   *resty.Client
	rl     *RateLimiter
	logger *slog.Logger
}

// NewJupiterClient creates the aggregator client.
func NewJupiterClient(cfg config.VenueConfig, logger *slog.Logger) *JupiterClient {
	httpClient := resty.New().
		SetBaseURL(cfg.JupiterBaseURL).
		SetTimeout(cfg.BuildTimeout + cfg.QuoteTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &JupiterClient{
		http:   httpClient,
		rl:     NewRateLimiter(),
		logger: logger.With("component", "venue_jupiter"),
	}
}

func (c *JupiterClient) Route() types.TradingRoute { return types.RouteJupiter }

// Quote fetches an aggregator route quote. The entire response body is the
// opaque payload BuildSwapTx requires.
func (c *JupiterClient) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := c.rl.Quote.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   req.InputMint,
			"outputMint":  req.OutputMint,
			"amount":      fmt.Sprintf("%d", req.AmountUnits),
			"slippageBps": fmt.Sprintf("%d", req.SlippageBps),
		}).
		Get("/v6/quote")
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("jupiter quote: status %d: %s", resp.StatusCode(), resp.String())
	}

	var parsed struct {
		InAmount  uint64  `json:"inAmount,string"`
		OutAmount uint64  `json:"outAmount,string"`
		PriceImpactPct float64 `json:"priceImpactPct,string"`
	}
	body := resp.Body()
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("jupiter quote: decode: %w", err)
	}
	if parsed.OutAmount == 0 {
		return nil, ErrQuoteUnavailable
	}

	opaque := make(json.RawMessage, len(body))
	copy(opaque, body)

	return &Quote{
		Route:          types.RouteJupiter,
		InAmount:       parsed.InAmount,
		OutAmount:      parsed.OutAmount,
		PriceImpactPct: parsed.PriceImpactPct,
		Opaque:         opaque,
	}, nil
}

type jupiterSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuildSwapTx assembles the aggregator swap for the given wallet.
func (c *JupiterClient) BuildSwapTx(ctx context.Context, walletAddress string, q *Quote) (string, error) {
	if err := c.rl.Build.Wait(ctx); err != nil {
		return "", err
	}

	var result jupiterSwapResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"userPublicKey": walletAddress,
			"quoteResponse": q.Opaque,
		}).
		SetResult(&result).
		Post("/v6/swap")
	if err != nil {
		return "", fmt.Errorf("jupiter swap tx: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || result.SwapTransaction == "" {
		return "", fmt.Errorf("jupiter swap tx: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.SwapTransaction, nil
}

// BuildClaimTx is not offered by the aggregator.
func (c *JupiterClient) BuildClaimTx(ctx context.Context, devWalletAddress, mintAddress string) (string, error) {
	return "", ErrUnsupported
}

// ClaimablePositions is not offered by the aggregator.
func (c *JupiterClient) ClaimablePositions(ctx context.Context, devWalletAddress string) ([]Position, error) {
	return nil, ErrUnsupported
}

// TokenInfo is not offered by the aggregator; callers use the oracle or
// the bonding-curve venue for metadata.
func (c *JupiterClient) TokenInfo(ctx context.Context, mint string) (*Info, error) {
	return nil, ErrUnsupported
}
