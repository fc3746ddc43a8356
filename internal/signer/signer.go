// Package signer talks to the remote wallet-custody service. The engine
// never holds key material: it hands the service a wallet handle and an
// assembled transaction, and gets back a transaction hash or a typed error
// from a closed kind set.
//
// A circuit breaker wraps the HTTP call so a flapping signer degrades to
// KindUnavailable (skipped, not counted as token failure) instead of
// burning failure streaks across every token.
package signer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"flywheel-mm/internal/config"
)

// Kind is the closed classification of signing outcomes.
type Kind string

const (
	// KindBlockhashExpired: the transaction referenced a stale blockhash.
	// Retryable with a freshly built transaction.
	KindBlockhashExpired Kind = "BLOCKHASH_EXPIRED"
	// KindSignatureVerification: non-retryable token-level failure.
	KindSignatureVerification Kind = "SIGNATURE_VERIFICATION_FAILED"
	// KindBroadcastFailed: the signer reached the chain but broadcast
	// failed. Retryable on a later tick.
	KindBroadcastFailed Kind = "BROADCAST_FAILED"
	// KindUnavailable: signer unreachable or unconfigured. The operation
	// is skipped without state mutation and not counted as a failure.
	KindUnavailable Kind = "SIGNER_UNAVAILABLE"
	// KindOther: counted failure, not retried in the current tick.
	KindOther Kind = "OTHER"
)

// Error is a classified signing failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the Kind from err, defaulting to KindOther.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}

// Client signs and submits transactions through the custody service.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	authKey string
	chainID string
	logger  *slog.Logger
}

// New creates a signer client. An empty auth key yields a client whose
// every call reports KindUnavailable without network traffic.
func New(cfg config.SignerConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.AuthKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+cfg.AuthKey)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "signer",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only availability-class failures should open the breaker;
			// chain-side rejections mean the signer itself is healthy.
			var se *Error
			return err == nil || (errors.As(err, &se) && se.Kind != KindUnavailable)
		},
	})

	return &Client{
		http:    httpClient,
		breaker: breaker,
		authKey: cfg.AuthKey,
		chainID: cfg.ChainID,
		logger:  logger.With("component", "signer"),
	}
}

type signRequest struct {
	WalletID    string `json:"walletId"`
	Transaction string `json:"transaction"` // base58 serialized, signed without modification
	ChainID     string `json:"chainId"`
}

type transferRequest struct {
	FromWalletID string `json:"fromWalletId"`
	ToAddress    string `json:"toAddress"`
	Lamports     uint64 `json:"lamports"`
	ChainID      string `json:"chainId"`
}

type signResponse struct {
	Hash  string `json:"hash"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignAndSend submits the assembled transaction for signing and broadcast
// under the given wallet handle. Returns the base58 transaction hash.
func (c *Client) SignAndSend(ctx context.Context, walletID, txBase58 string) (string, error) {
	return c.post(ctx, "/v1/sign-and-send", signRequest{
		WalletID:    walletID,
		Transaction: txBase58,
		ChainID:     c.chainID,
	})
}

// TransferSol asks the custody service to move native lamports between a
// managed wallet and an arbitrary address. Used by the claim split.
func (c *Client) TransferSol(ctx context.Context, fromWalletID, toAddress string, lamports uint64) (string, error) {
	return c.post(ctx, "/v1/transfer", transferRequest{
		FromWalletID: fromWalletID,
		ToAddress:    toAddress,
		Lamports:     lamports,
		ChainID:      c.chainID,
	})
}

func (c *Client) post(ctx context.Context, path string, body any) (string, error) {
	if c.authKey == "" {
		return "", &Error{Kind: KindUnavailable, Message: "signer auth key not configured"}
	}

	hash, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, path, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", &Error{Kind: KindUnavailable, Message: "signer circuit open"}
		}
		return "", err
	}
	return hash.(string), nil
}

func (c *Client) do(ctx context.Context, path string, body any) (string, error) {
	var result signResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(path)
	if err != nil {
		// Transport-level failure: the signer itself is unreachable.
		return "", &Error{Kind: KindUnavailable, Message: err.Error()}
	}

	if resp.StatusCode() == http.StatusOK && result.Hash != "" {
		return result.Hash, nil
	}
	if resp.StatusCode() >= 500 {
		return "", &Error{Kind: KindUnavailable, Message: fmt.Sprintf("signer status %d", resp.StatusCode())}
	}

	kind, msg := KindOther, resp.String()
	if result.Error != nil {
		msg = result.Error.Message
		switch result.Error.Code {
		case string(KindBlockhashExpired):
			kind = KindBlockhashExpired
		case string(KindSignatureVerification):
			kind = KindSignatureVerification
		case string(KindBroadcastFailed):
			kind = KindBroadcastFailed
		}
	}
	c.logger.Debug("signing rejected", "kind", kind, "message", msg)
	return "", &Error{Kind: kind, Message: msg}
}
