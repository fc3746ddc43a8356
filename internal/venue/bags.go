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

// BagsClient talks to the bonding-curve venue. It is the only venue that
// services creator-fee claims.
type BagsClient struct {
	http   *resty.Client
	rl     *RateLimiter
	logger *slog.Logger
}

// NewBagsClient creates the bonding-curve venue client with rate limiting
// and retry on 5xx.
func NewBagsClient(cfg config.VenueConfig, logger *slog.Logger) *BagsClient {
	httpClient := resty.New().
		SetBaseURL(cfg.BagsBaseURL).
		SetTimeout(cfg.ClaimTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-API-Key", cfg.APIKey)

	return &BagsClient{
		http:   httpClient,
		rl:     NewRateLimiter(),
		logger: logger.With("component", "venue_bags"),
	}
}

func (c *BagsClient) Route() types.TradingRoute { return types.RouteBags }

type bagsQuoteResponse struct {
	InAmount       uint64          `json:"inAmount,string"`
	OutAmount      uint64          `json:"outAmount,string"`
	PriceImpactPct float64         `json:"priceImpactPct"`
	QuotePayload   json.RawMessage `json:"quotePayload"`
}

// Quote fetches a bonding-curve swap quote.
func (c *BagsClient) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := c.rl.Quote.Wait(ctx); err != nil {
		return nil, err
	}

	var result bagsQuoteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   req.InputMint,
			"outputMint":  req.OutputMint,
			"amount":      fmt.Sprintf("%d", req.AmountUnits),
			"slippageBps": fmt.Sprintf("%d", req.SlippageBps),
		}).
		SetResult(&result).
		Get("/v1/quote")
	if err != nil {
		return nil, fmt.Errorf("bags quote: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("bags quote: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.QuotePayload) == 0 || result.OutAmount == 0 {
		return nil, ErrQuoteUnavailable
	}

	return &Quote{
		Route:          types.RouteBags,
		InAmount:       result.InAmount,
		OutAmount:      result.OutAmount,
		PriceImpactPct: result.PriceImpactPct,
		Opaque:         result.QuotePayload,
	}, nil
}

type bagsSwapResponse struct {
	Transaction string `json:"transaction"` // base58 serialized
}

// BuildSwapTx assembles the swap transaction for the given wallet.
func (c *BagsClient) BuildSwapTx(ctx context.Context, walletAddress string, q *Quote) (string, error) {
	if err := c.rl.Build.Wait(ctx); err != nil {
		return "", err
	}

	var result bagsSwapResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"userPublicKey": walletAddress,
			"quotePayload":  q.Opaque,
		}).
		SetResult(&result).
		Post("/v1/swap-tx")
	if err != nil {
		return "", fmt.Errorf("bags swap tx: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || result.Transaction == "" {
		return "", fmt.Errorf("bags swap tx: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Transaction, nil
}

// BuildClaimTx assembles a creator-fee claim from the venue's documented
// bonding-curve program instructions.
func (c *BagsClient) BuildClaimTx(ctx context.Context, devWalletAddress, mintAddress string) (string, error) {
	if err := c.rl.Build.Wait(ctx); err != nil {
		return "", err
	}

	var result bagsSwapResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"wallet": devWalletAddress,
			"mint":   mintAddress,
		}).
		SetResult(&result).
		Post("/v1/claim-tx")
	if err != nil {
		return "", fmt.Errorf("bags claim tx: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || result.Transaction == "" {
		return "", fmt.Errorf("bags claim tx: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Transaction, nil
}

type bagsPosition struct {
	Mint              string `json:"mint"`
	ClaimableLamports uint64 `json:"claimableLamports,string"`
}

// ClaimablePositions lists a dev wallet's claimable creator-fee positions.
func (c *BagsClient) ClaimablePositions(ctx context.Context, devWalletAddress string) ([]Position, error) {
	if err := c.rl.Claim.Wait(ctx); err != nil {
		return nil, err
	}

	var result []bagsPosition
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("wallet", devWalletAddress).
		SetResult(&result).
		Get("/v1/claim/positions")
	if err != nil {
		return nil, fmt.Errorf("bags positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("bags positions: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]Position, 0, len(result))
	for _, p := range result {
		out = append(out, Position{Mint: p.Mint, ClaimableLamports: p.ClaimableLamports})
	}
	return out, nil
}

type bagsTokenInfo struct {
	Mint      string  `json:"mint"`
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Graduated bool    `json:"graduated"`
	PriceUsd  float64 `json:"priceUsd"`
}

// TokenInfo fetches venue metadata, including the graduation flag the
// route selector depends on.
func (c *BagsClient) TokenInfo(ctx context.Context, mint string) (*Info, error) {
	if err := c.rl.Quote.Wait(ctx); err != nil {
		return nil, err
	}

	var result bagsTokenInfo
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v1/token/" + mint)
	if err != nil {
		return nil, fmt.Errorf("bags token info: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("bags token info: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &Info{
		Mint:      result.Mint,
		Symbol:    result.Symbol,
		Name:      result.Name,
		Graduated: result.Graduated,
		PriceUsd:  result.PriceUsd,
	}, nil
}
