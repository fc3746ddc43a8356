// Package venue implements the REST clients for the two trading venues:
// the bonding-curve launchpad ("bags") and the AMM aggregator ("jupiter").
// Both speak JSON over HTTPS authenticated by an API key.
//
// Quotes are opaque: the venue's quote payload is carried through to swap
// assembly uninterpreted. Assembled transactions come back as base58
// serialized blobs that are signed remotely without modification.
package venue

import (
	"context"
	"encoding/json"
	"errors"

	"flywheel-mm/pkg/types"
)

// ErrQuoteUnavailable is returned when the venue produces no usable quote.
var ErrQuoteUnavailable = errors.New("venue: quote unavailable")

// ErrUnsupported is returned for operations a venue does not offer
// (e.g. fee claims on the aggregator).
var ErrUnsupported = errors.New("venue: operation not supported")

// QuoteRequest asks for a swap quote in integer minor units.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	AmountUnits uint64 // lamports for buys, raw token units for sells
	SlippageBps int
}

// Quote is a venue swap quote. Opaque must be passed to BuildSwapTx
// without interpretation.
type Quote struct {
	Route          types.TradingRoute
	InAmount       uint64
	OutAmount      uint64
	PriceImpactPct float64
	Opaque         json.RawMessage
}

// Position is one claimable creator-fee position.
type Position struct {
	Mint              string
	ClaimableLamports uint64
}

// Info is venue-side token metadata.
type Info struct {
	Mint      string
	Symbol    string
	Name      string
	Graduated bool
	PriceUsd  float64
}

// Client is the operation set the executor consumes from a venue.
type Client interface {
	// Quote returns a swap quote, or ErrQuoteUnavailable.
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	// BuildSwapTx assembles the swap for the given wallet address and
	// returns a base58 serialized transaction.
	BuildSwapTx(ctx context.Context, walletAddress string, q *Quote) (string, error)
	// BuildClaimTx assembles a creator-fee claim transaction.
	BuildClaimTx(ctx context.Context, devWalletAddress, mintAddress string) (string, error)
	// ClaimablePositions lists claimable fee positions for a dev wallet.
	ClaimablePositions(ctx context.Context, devWalletAddress string) ([]Position, error)
	// TokenInfo returns venue metadata for a mint.
	TokenInfo(ctx context.Context, mint string) (*Info, error)
	// Route identifies this venue.
	Route() types.TradingRoute
}

// Router resolves a token's configured trading route to a concrete venue.
// Claims always go to the bonding-curve venue regardless of route.
type Router struct {
	bags    Client
	jupiter Client
}

// NewRouter wires the two venue clients.
func NewRouter(bags, jupiter Client) *Router {
	return &Router{bags: bags, jupiter: jupiter}
}

// For selects the venue for swaps: an explicit route wins; auto selects
// the aggregator once the token has graduated off the bonding curve.
func (r *Router) For(route types.TradingRoute, graduated bool) Client {
	switch route {
	case types.RouteBags:
		return r.bags
	case types.RouteJupiter:
		return r.jupiter
	default: // RouteAuto
		if graduated {
			return r.jupiter
		}
		return r.bags
	}
}

// Claims returns the venue that services fee claims.
func (r *Router) Claims() Client {
	return r.bags
}
