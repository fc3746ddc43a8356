package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"flywheel-mm/internal/chain"
	"flywheel-mm/internal/config"
	"flywheel-mm/internal/executor"
	"flywheel-mm/internal/market"
	"flywheel-mm/internal/oracle"
	"flywheel-mm/internal/risk"
	"flywheel-mm/internal/signer"
	"flywheel-mm/internal/store"
	"flywheel-mm/internal/venue"
	"flywheel-mm/pkg/types"
)

const testSolMint = "So11111111111111111111111111111111111111112"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubVenue quotes and assembles every swap; claims and metadata are inert.
type stubVenue struct {
	route types.TradingRoute
}

func (v *stubVenue) Quote(_ context.Context, req venue.QuoteRequest) (*venue.Quote, error) {
	return &venue.Quote{Route: v.route, InAmount: req.AmountUnits, OutAmount: 1000, Opaque: json.RawMessage(`{}`)}, nil
}

func (v *stubVenue) BuildSwapTx(_ context.Context, _ string, _ *venue.Quote) (string, error) {
	return "tx-base58", nil
}

func (v *stubVenue) BuildClaimTx(_ context.Context, _, _ string) (string, error) {
	return "claim-tx", nil
}

func (v *stubVenue) ClaimablePositions(_ context.Context, _ string) ([]venue.Position, error) {
	return nil, nil
}

func (v *stubVenue) TokenInfo(_ context.Context, mint string) (*venue.Info, error) {
	return &venue.Info{Mint: mint}, nil
}

func (v *stubVenue) Route() types.TradingRoute { return v.route }

// newTestEngine wires an engine against a temp SQLite store and httptest
// chain, oracle and signer endpoints. No background loops run; tests drive
// processToken directly.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := testLogger()

	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"), 2*time.Minute)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rpcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "getBalance":
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"value":5000000000}}`)
		case "getTokenAccountsByOwner":
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"value":[{"account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"1000000000000"}}}}}}]}}`)
		default:
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":null}`)
		}
	}))
	t.Cleanup(rpcSrv.Close)

	oracleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"priceUsd":1.0,"priceChange24h":0,"volume24hUsd":0,"liquidityUsd":0}`)
	}))
	t.Cleanup(oracleSrv.Close)

	signSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"hash":"sig-1"}`)
	}))
	t.Cleanup(signSrv.Close)

	router := venue.NewRouter(&stubVenue{route: types.RouteBags}, &stubVenue{route: types.RouteJupiter})
	sg := signer.New(config.SignerConfig{BaseURL: signSrv.URL, AuthKey: "k", Timeout: 2 * time.Second}, logger)
	orc := oracle.New(config.OracleConfig{BaseURL: oracleSrv.URL, SolMint: testSolMint, Timeout: 2 * time.Second, SeriesLength: 100}, logger)
	rpc := chain.NewRPC(rpcSrv.URL, logger)

	cfg := config.Config{
		Flywheel: config.FlywheelConfig{
			Interval:            time.Minute,
			MaxTradesPerMinute:  60,
			MaxConcurrentTokens: 2,
			BaseCooldown:        time.Minute,
			CycleBuys:           5,
			CycleSells:          5,
			FeeReserveSol:       0.01,
			LeaseTTL:            2 * time.Minute,
		},
		Claims: config.ClaimsConfig{Interval: time.Minute, PlatformFeePercent: 10},
	}

	exec := executor.New(st, sg, router, rpc,
		testSolMint, cfg.Flywheel.BaseCooldown,
		cfg.Flywheel.CycleBuys, cfg.Flywheel.CycleSells, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &Engine{
		cfg:            cfg,
		store:          st,
		signer:         sg,
		router:         router,
		oracle:         orc,
		rpc:            rpc,
		exec:           exec,
		governor:       risk.NewGovernor(cfg.Flywheel.MaxTradesPerMinute, logger),
		thresholds:     market.DefaultThresholds(),
		logger:         logger,
		sem:            make(chan struct{}, cfg.Flywheel.MaxConcurrentTokens),
		lastReactiveAt: make(map[string]int64),
		ctx:            ctx,
		cancel:         cancel,
	}
}

func seedEngineToken(t *testing.T, st *store.Store) string {
	t.Helper()
	dev := types.Wallet{WalletID: "dev-w", TenantID: "ten-1", Address: "dev-addr", Type: types.WalletDev, ChainType: "solana"}
	ops := types.Wallet{WalletID: "ops-w", TenantID: "ten-1", Address: "ops-addr", Type: types.WalletOps, ChainType: "solana"}
	tok := types.Token{
		TokenID:     "tok-1",
		TenantID:    "ten-1",
		MintAddress: "mint-1",
		Symbol:      "TST",
		Decimals:    9,
		DevWalletID: dev.WalletID,
		OpsWalletID: ops.WalletID,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	cfg := types.DefaultTokenConfig(tok.TokenID)
	cfg.FlywheelActive = true
	cfg.MarketMakingEnabled = true
	if err := st.CreateToken(context.Background(), tok, dev, ops, cfg); err != nil {
		t.Fatalf("create token: %v", err)
	}
	return tok.TokenID
}

func TestProcessTokenTradesOnceWithoutQueue(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	tokenID := seedEngineToken(t, e.store)

	e.processToken(tokenID)

	txns, err := e.store.ListTransactions(context.Background(), tokenID, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("transactions = %d, want exactly one algorithmic trade", len(txns))
	}
	if txns[0].Type != types.TradeBuy {
		t.Errorf("trade type = %s, want buy (fresh cycle)", txns[0].Type)
	}
}

func TestProcessTokenTwapSliceSuppressesNewIntent(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	tokenID := seedEngineToken(t, e.store)

	due := time.Now().UTC().Add(-time.Minute)
	if _, err := e.store.EnqueueTwap(context.Background(), types.TwapQueueItem{
		TokenID:         tokenID,
		TradeType:       types.Buy,
		TotalAmount:     decimal.RequireFromString("1"),
		SliceSize:       decimal.RequireFromString("0.2"),
		SlicesRemaining: 3,
		SlicesTotal:     5,
		NextExecuteAt:   due,
		IntervalMinutes: 12,
	}); err != nil {
		t.Fatalf("enqueue twap: %v", err)
	}

	e.processToken(tokenID)

	// The due slice is this tick's trade; the algorithm mode must not add
	// a second one on top of it.
	txns, err := e.store.ListTransactions(context.Background(), tokenID, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("transactions = %d, want only the twap slice", len(txns))
	}

	items, err := e.store.ReadyTwapItems(context.Background(), tokenID, due.Add(time.Hour))
	if err != nil {
		t.Fatalf("ready twap items: %v", err)
	}
	if len(items) != 1 || items[0].SlicesRemaining != 2 {
		t.Fatalf("queue after tick = %+v, want one item with 2 slices left", items)
	}

	st, err := e.store.GetState(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.LastCheckResult == nil || *st.LastCheckResult != "twap slice executed" {
		t.Errorf("check result = %v, want the slice suppression note", st.LastCheckResult)
	}
}
