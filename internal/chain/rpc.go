// Package chain provides read-only chain access: JSON-RPC balance reads the
// schedulers take before every decision, and the WebSocket log subscriber
// feeding reactive trading.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"flywheel-mm/pkg/types"
)

// RPC is a minimal JSON-RPC client for the chain node.
type RPC struct {
	http   *resty.Client
	logger *slog.Logger
	nextID atomic.Int64
}

// NewRPC creates an RPC client against the given node URL.
func NewRPC(url string, logger *slog.Logger) *RPC {
	return &RPC{
		http: resty.New().
			SetBaseURL(url).
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(300 * time.Millisecond).
			SetHeader("Content-Type", "application/json"),
		logger: logger.With("component", "rpc"),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *RPC) call(ctx context.Context, method string, params []any, out any) error {
	var result rpcResponse
	resp, err := r.http.R().
		SetContext(ctx).
		SetBody(rpcRequest{
			JSONRPC: "2.0",
			ID:      r.nextID.Add(1),
			Method:  method,
			Params:  params,
		}).
		SetResult(&result).
		Post("")
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("rpc %s: status %d", method, resp.StatusCode())
	}
	if result.Error != nil {
		return fmt.Errorf("rpc %s: %d %s", method, result.Error.Code, result.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("rpc %s: decode result: %w", method, err)
		}
	}
	return nil
}

// SolBalance returns an address's native balance in lamports.
func (r *RPC) SolBalance(ctx context.Context, address string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := r.call(ctx, "getBalance", []any{address}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// TokenBalance returns an owner's balance of a mint in raw integer units,
// summed across token accounts.
func (r *RPC) TokenBalance(ctx context.Context, owner, mint string) (uint64, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								Amount string `json:"amount"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	params := []any{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}
	if err := r.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, err
	}

	var total uint64
	for _, acc := range result.Value {
		var amt uint64
		if _, err := fmt.Sscanf(acc.Account.Data.Parsed.Info.TokenAmount.Amount, "%d", &amt); err != nil {
			continue
		}
		total += amt
	}
	return total, nil
}

// Balances reads the full working-capital snapshot for a token: ops native,
// ops token inventory, dev native.
func (r *RPC) Balances(ctx context.Context, opsAddress, devAddress, mint string, decimals int) (types.Balances, error) {
	opsSol, err := r.SolBalance(ctx, opsAddress)
	if err != nil {
		return types.Balances{}, err
	}
	opsToken, err := r.TokenBalance(ctx, opsAddress, mint)
	if err != nil {
		return types.Balances{}, err
	}
	devSol, err := r.SolBalance(ctx, devAddress)
	if err != nil {
		return types.Balances{}, err
	}
	return types.Balances{
		OpsSol:   types.LamportsToSol(opsSol),
		OpsToken: types.TokenUnitsToDecimal(opsToken, decimals),
		DevSol:   types.LamportsToSol(devSol),
	}, nil
}
