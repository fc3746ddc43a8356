package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"flywheel-mm/pkg/types"
)

func newTestStore(t *testing.T, leaseTTL time.Duration) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), leaseTTL)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedToken(t *testing.T, s *Store, mutate func(*types.TokenConfig)) string {
	t.Helper()
	tokenID := uuid.NewString()
	tenant := uuid.NewString()
	dev := types.Wallet{WalletID: uuid.NewString(), TenantID: tenant, Address: "dev-" + tokenID, Type: types.WalletDev, ChainType: "solana"}
	ops := types.Wallet{WalletID: uuid.NewString(), TenantID: tenant, Address: "ops-" + tokenID, Type: types.WalletOps, ChainType: "solana"}
	tok := types.Token{
		TokenID:     tokenID,
		TenantID:    tenant,
		MintAddress: "mint-" + tokenID,
		Symbol:      "TST",
		Decimals:    6,
		DevWalletID: dev.WalletID,
		OpsWalletID: ops.WalletID,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	cfg := types.DefaultTokenConfig(tokenID)
	cfg.FlywheelActive = true
	cfg.AutoClaimEnabled = true
	if mutate != nil {
		mutate(&cfg)
	}
	if err := s.CreateToken(context.Background(), tok, dev, ops, cfg); err != nil {
		t.Fatalf("create token: %v", err)
	}
	return tokenID
}

func TestCreateTokenAndGetView(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	tokenID := seedToken(t, s, nil)

	view, err := s.GetView(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("get view: %v", err)
	}
	if view.Token.TokenID != tokenID {
		t.Errorf("token id = %s, want %s", view.Token.TokenID, tokenID)
	}
	if view.State.CyclePhase != types.PhaseBuy {
		t.Errorf("initial phase = %s, want buy", view.State.CyclePhase)
	}
	if view.DevWallet.Type != types.WalletDev || view.OpsWallet.Type != types.WalletOps {
		t.Error("wallet types not wired")
	}
	if !view.Config.FlywheelActive {
		t.Error("config not persisted")
	}
}

func TestCreateTokenRejectsSharedWallet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	w := types.Wallet{WalletID: "w1", TenantID: "t1", Address: "a", Type: types.WalletDev, ChainType: "solana"}
	tok := types.Token{TokenID: "tok", TenantID: "t1", MintAddress: "m", DevWalletID: "w1", OpsWalletID: "w1", CreatedAt: time.Now()}
	if err := s.CreateToken(context.Background(), tok, w, w, types.DefaultTokenConfig("tok")); err == nil {
		t.Error("expected error for shared dev/ops wallet")
	}
}

func TestFlywheelEligibilityHonorsPause(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	tokenID := seedToken(t, s, nil)

	views, err := s.SelectFlywheelEligible(ctx)
	if err != nil {
		t.Fatalf("select eligible: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("eligible = %d, want 1", len(views))
	}

	// A paused token drops out of flywheel selection but stays claim-eligible.
	until := time.Now().UTC().Add(time.Hour)
	if err := s.UpdateState(ctx, tokenID, StatePatch{PausedUntil: &until}); err != nil {
		t.Fatalf("pause: %v", err)
	}

	views, err = s.SelectFlywheelEligible(ctx)
	if err != nil {
		t.Fatalf("select eligible: %v", err)
	}
	if len(views) != 0 {
		t.Errorf("paused token still eligible for trading")
	}

	claims, err := s.SelectClaimEligible(ctx)
	if err != nil {
		t.Fatalf("select claim eligible: %v", err)
	}
	if len(claims) != 1 {
		t.Errorf("paused token should remain claim-eligible, got %d", len(claims))
	}

	// An elapsed pause restores eligibility without an explicit clear.
	past := time.Now().UTC().Add(-time.Hour)
	if err := s.UpdateState(ctx, tokenID, StatePatch{PausedUntil: &past}); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	views, err = s.SelectFlywheelEligible(ctx)
	if err != nil {
		t.Fatalf("select eligible: %v", err)
	}
	if len(views) != 1 {
		t.Errorf("elapsed pause should restore eligibility")
	}
}

func TestDeactivateTokenExcludesEverywhere(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	tokenID := seedToken(t, s, func(c *types.TokenConfig) { c.ReactiveEnabled = true })

	if err := s.DeactivateToken(ctx, tokenID, "invalid config"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	for name, sel := range map[string]func(context.Context) ([]types.TokenView, error){
		"flywheel": s.SelectFlywheelEligible,
		"claims":   s.SelectClaimEligible,
		"reactive": s.ListReactiveTokens,
	} {
		views, err := sel(ctx)
		if err != nil {
			t.Fatalf("%s select: %v", name, err)
		}
		if len(views) != 0 {
			t.Errorf("deactivated token still in %s selection", name)
		}
	}

	st, err := s.GetState(ctx, tokenID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.LastCheckResult == nil || *st.LastCheckResult != "invalid config" {
		t.Error("deactivation reason not recorded")
	}
}

func TestLeaseExclusive(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	tokenID := seedToken(t, s, nil)

	l1, err := s.AcquireLease(ctx, tokenID)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := s.AcquireLease(ctx, tokenID); !errors.Is(err, ErrBusy) {
		t.Errorf("second acquire = %v, want ErrBusy", err)
	}

	if err := l1.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := l1.Release(ctx); err != nil {
		t.Errorf("double release should be a no-op, got %v", err)
	}

	l2, err := s.AcquireLease(ctx, tokenID)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	l2.Release(ctx)
}

func TestLeaseTTLDisplacesStuckHolder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 50*time.Millisecond)
	ctx := context.Background()
	tokenID := seedToken(t, s, nil)

	l1, err := s.AcquireLease(ctx, tokenID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	// The stuck holder's lease has aged past the TTL.
	l2, err := s.AcquireLease(ctx, tokenID)
	if err != nil {
		t.Fatalf("acquire after TTL: %v", err)
	}

	// The displaced holder's release must not strip the new owner.
	if err := l1.Release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := s.AcquireLease(ctx, tokenID); !errors.Is(err, ErrBusy) {
		t.Errorf("new lease should still be held, got %v", err)
	}
	l2.Release(ctx)
}

func TestUpdateStateCycleAdvance(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	tokenID := seedToken(t, s, nil)

	phase := types.PhaseSell
	buys := 5
	snapshot := decimal.RequireFromString("1000.5")
	perTx := decimal.RequireFromString("200.1")
	now := time.Now().UTC().Truncate(time.Second)
	err := s.UpdateState(ctx, tokenID, StatePatch{
		CyclePhase:             &phase,
		BuyCount:               &buys,
		SellPhaseTokenSnapshot: &snapshot,
		SellAmountPerTx:        &perTx,
		LastTradeAt:            &now,
	})
	if err != nil {
		t.Fatalf("update state: %v", err)
	}

	st, err := s.GetState(ctx, tokenID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.CyclePhase != types.PhaseSell || st.BuyCount != 5 {
		t.Errorf("phase/buys = %s/%d, want sell/5", st.CyclePhase, st.BuyCount)
	}
	if !st.SellAmountPerTx.Equal(perTx) {
		t.Errorf("sell per tx = %s, want %s", st.SellAmountPerTx, perTx)
	}
	if st.SellCount != 0 {
		t.Errorf("untouched sell_count changed to %d", st.SellCount)
	}
}

func TestUpdateStateClearPause(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	tokenID := seedToken(t, s, nil)

	until := time.Now().UTC().Add(time.Hour)
	if err := s.UpdateState(ctx, tokenID, StatePatch{PausedUntil: &until}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := s.UpdateState(ctx, tokenID, StatePatch{ClearPause: true}); err != nil {
		t.Fatalf("clear pause: %v", err)
	}
	st, err := s.GetState(ctx, tokenID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.PausedUntil != nil {
		t.Errorf("paused_until = %v, want nil", st.PausedUntil)
	}
}

func TestUpdateConfigRejectsUnknownColumn(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	tokenID := seedToken(t, s, nil)

	if err := s.UpdateConfig(ctx, tokenID, map[string]any{"lease_owner": "x"}); err == nil {
		t.Error("expected rejection of non-whitelisted column")
	}

	if err := s.UpdateConfig(ctx, tokenID, map[string]any{"buy_percent": 40}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	cfg, err := s.GetConfig(ctx, tokenID)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg.BuyPercent != 40 {
		t.Errorf("buy_percent = %d, want 40", cfg.BuyPercent)
	}
}

func TestTwapQueueOrderingAndAdvance(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	tokenID := seedToken(t, s, nil)

	now := time.Now().UTC()
	early, err := s.EnqueueTwap(ctx, types.TwapQueueItem{
		TokenID:         tokenID,
		TradeType:       types.Buy,
		TotalAmount:     decimal.NewFromInt(10),
		SliceSize:       decimal.NewFromInt(5),
		SlicesRemaining: 1,
		SlicesTotal:     2,
		NextExecuteAt:   now.Add(-2 * time.Minute),
		IntervalMinutes: 10,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, err = s.EnqueueTwap(ctx, types.TwapQueueItem{
		TokenID:         tokenID,
		TradeType:       types.Sell,
		TotalAmount:     decimal.NewFromInt(20),
		SliceSize:       decimal.NewFromInt(10),
		SlicesRemaining: 2,
		SlicesTotal:     2,
		NextExecuteAt:   now.Add(-time.Minute),
		IntervalMinutes: 10,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_, err = s.EnqueueTwap(ctx, types.TwapQueueItem{
		TokenID:         tokenID,
		TradeType:       types.Buy,
		TotalAmount:     decimal.NewFromInt(30),
		SliceSize:       decimal.NewFromInt(15),
		SlicesRemaining: 2,
		SlicesTotal:     2,
		NextExecuteAt:   now.Add(time.Hour),
		IntervalMinutes: 10,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	items, err := s.ReadyTwapItems(ctx, tokenID, now)
	if err != nil {
		t.Fatalf("ready items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ready = %d, want 2 (future item excluded)", len(items))
	}
	if items[0].ID != early {
		t.Errorf("items not ordered by next_execute_at")
	}

	// Advancing the last slice removes the item.
	if err := s.AdvanceTwap(ctx, early, now.Add(10*time.Minute)); err != nil {
		t.Fatalf("advance: %v", err)
	}
	items, err = s.ReadyTwapItems(ctx, tokenID, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ready items: %v", err)
	}
	for _, it := range items {
		if it.ID == early {
			t.Error("exhausted item should have been removed")
		}
	}
}

func TestClaimLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	tokenID := seedToken(t, s, nil)

	sig := "claim-sig"
	id, err := s.AppendClaim(ctx, types.Claim{
		TokenID:         tokenID,
		AmountSol:       decimal.RequireFromString("0.5"),
		PlatformFeeSol:  decimal.RequireFromString("0.05"),
		UserReceivedSol: decimal.RequireFromString("0.45"),
		Signature:       &sig,
		Status:          types.ClaimPending,
	})
	if err != nil {
		t.Fatalf("append claim: %v", err)
	}

	if err := s.CompleteClaim(ctx, id, types.ClaimCompleted); err != nil {
		t.Fatalf("complete claim: %v", err)
	}

	claims, err := s.ListClaims(ctx, tokenID, 10)
	if err != nil {
		t.Fatalf("list claims: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("claims = %d, want 1", len(claims))
	}
	if claims[0].Status != types.ClaimCompleted {
		t.Errorf("status = %s, want completed", claims[0].Status)
	}
	if claims[0].CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestTransactionLogAppendOnly(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Minute)
	ctx := context.Background()
	tokenID := seedToken(t, s, nil)

	route := types.RouteBags
	for i := 0; i < 3; i++ {
		_, err := s.AppendTransaction(ctx, types.Transaction{
			TokenID:      tokenID,
			Type:         types.TradeBuy,
			Amount:       decimal.NewFromInt(int64(i + 1)),
			Status:       types.StatusConfirmed,
			TradingRoute: &route,
			CreatedAt:    time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("append transaction: %v", err)
		}
	}

	txns, err := s.ListTransactions(ctx, tokenID, 2)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("transactions = %d, want 2 (limit)", len(txns))
	}
	if !txns[0].Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("newest first: got %s, want 3", txns[0].Amount)
	}
}
