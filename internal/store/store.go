// Package store is the persistence layer: tokens, wallets, per-token config
// and flywheel state, the TWAP queue, the append-only trade log and claim
// history, and the per-token exclusive lease.
//
// The backing database is selected by DSN: a postgres:// URL uses lib/pq,
// anything else is treated as a SQLite file path (embedded mode, also used
// by the test suite). All queries are written with `?` bindvars and rebound
// per driver.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"flywheel-mm/pkg/types"
)

// Store wraps the database handle. All operations are atomic; multi-row
// lifecycle operations run inside a transaction.
type Store struct {
	db       *sqlx.DB
	leaseTTL time.Duration
}

// Open connects to the store, verifies reachability, and applies the schema.
// An unreachable store here is a fatal initialization error for the process.
func Open(dsn string, leaseTTL time.Duration) (*Store, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &Store{db: db, leaseTTL: leaseTTL}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}

// CreateToken atomically creates the token hub row, both wallets, the
// config row, and the initial flywheel state. Token, wallets, config and
// state always exist together or not at all.
func (s *Store) CreateToken(ctx context.Context, tok types.Token, dev, ops types.Wallet, cfg types.TokenConfig) error {
	if dev.WalletID == ops.WalletID {
		return fmt.Errorf("create token: dev and ops wallets must differ")
	}
	if tok.Decimals < 0 || tok.Decimals > 18 {
		return fmt.Errorf("create token: decimals %d out of range [0, 18]", tok.Decimals)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	walletQ := s.rebind(`INSERT INTO wallets (wallet_id, tenant_id, address, type, chain_type)
		VALUES (?, ?, ?, ?, ?)`)
	for _, w := range []types.Wallet{dev, ops} {
		if _, err := tx.ExecContext(ctx, walletQ, w.WalletID, w.TenantID, w.Address, w.Type, w.ChainType); err != nil {
			return fmt.Errorf("insert wallet %s: %w", w.Type, err)
		}
	}

	tokenQ := s.rebind(`INSERT INTO tokens
		(token_id, tenant_id, mint_address, symbol, decimals, dev_wallet_id, ops_wallet_id, active, graduated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, tokenQ,
		tok.TokenID, tok.TenantID, tok.MintAddress, tok.Symbol, tok.Decimals,
		tok.DevWalletID, tok.OpsWalletID, tok.Active, tok.Graduated, tok.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	if err := insertConfig(ctx, tx, s.rebind, cfg); err != nil {
		return err
	}

	stateQ := s.rebind(`INSERT INTO flywheel_state
		(token_id, cycle_phase, buy_count, sell_count, sell_phase_token_snapshot, sell_amount_per_tx,
		 consecutive_failures, total_failures, market_condition, previous_market_condition, reserve_balance_sol)
		VALUES (?, ?, 0, 0, 0, 0, 0, 0, ?, ?, 0)`)
	if _, err := tx.ExecContext(ctx, stateQ, tok.TokenID, types.PhaseBuy, types.CondNormal, types.CondNormal); err != nil {
		return fmt.Errorf("insert state: %w", err)
	}

	return tx.Commit()
}

func insertConfig(ctx context.Context, tx *sqlx.Tx, rebind func(string) string, c types.TokenConfig) error {
	q := rebind(`INSERT INTO token_config (
		token_id, flywheel_active, auto_claim_enabled, market_making_enabled,
		fee_threshold_sol, slippage_bps, trading_route, algorithm_mode,
		buy_percent, sell_percent, min_buy_sol, max_buy_sol,
		target_sol_allocation, target_token_allocation, rebalance_threshold,
		twap_enabled, twap_slices, twap_window_minutes, twap_threshold_usd,
		vwap_enabled, vwap_participation_rate, vwap_min_volume_usd,
		dynamic_fee_enabled, reserve_percent_normal, reserve_percent_adverse,
		min_sell_percent, max_sell_percent, buyback_boost_on_dump,
		pause_on_extreme_volatility, volatility_pause_threshold,
		reactive_enabled, reactive_min_trigger_sol, reactive_scale_percent,
		reactive_max_response_percent, reactive_cooldown_ms
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	_, err := tx.ExecContext(ctx, q,
		c.TokenID, c.FlywheelActive, c.AutoClaimEnabled, c.MarketMakingEnabled,
		c.FeeThresholdSol, c.SlippageBps, c.TradingRoute, c.AlgorithmMode,
		c.BuyPercent, c.SellPercent, c.MinBuySol, c.MaxBuySol,
		c.TargetSolAllocation, c.TargetTokenAllocation, c.RebalanceThreshold,
		c.TwapEnabled, c.TwapSlices, c.TwapWindowMinutes, c.TwapThresholdUsd,
		c.VwapEnabled, c.VwapParticipationRate, c.VwapMinVolumeUsd,
		c.DynamicFeeEnabled, c.ReservePercentNormal, c.ReservePercentAdverse,
		c.MinSellPercent, c.MaxSellPercent, c.BuybackBoostOnDump,
		c.PauseOnExtremeVolatility, c.VolatilityPauseThreshold,
		c.ReactiveEnabled, c.ReactiveMinTriggerSol, c.ReactiveScalePercent,
		c.ReactiveMaxResponsePercent, c.ReactiveCooldownMs)
	if err != nil {
		return fmt.Errorf("insert config: %w", err)
	}
	return nil
}

// GetToken loads a token hub row.
func (s *Store) GetToken(ctx context.Context, tokenID string) (*types.Token, error) {
	var tok types.Token
	err := s.db.GetContext(ctx, &tok, s.rebind(`SELECT * FROM tokens WHERE token_id = ?`), tokenID)
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", tokenID, err)
	}
	return &tok, nil
}

// GetConfig loads the per-token config row.
func (s *Store) GetConfig(ctx context.Context, tokenID string) (*types.TokenConfig, error) {
	var cfg types.TokenConfig
	err := s.db.GetContext(ctx, &cfg, s.rebind(`SELECT * FROM token_config WHERE token_id = ?`), tokenID)
	if err != nil {
		return nil, fmt.Errorf("get config %s: %w", tokenID, err)
	}
	return &cfg, nil
}

// GetState loads the flywheel state row.
func (s *Store) GetState(ctx context.Context, tokenID string) (*types.FlywheelState, error) {
	var st types.FlywheelState
	err := s.db.GetContext(ctx, &st, s.rebind(`SELECT token_id, cycle_phase, buy_count, sell_count,
		sell_phase_token_snapshot, sell_amount_per_tx, last_trade_at,
		consecutive_failures, total_failures, last_failure_reason, last_failure_at, paused_until,
		last_checked_at, last_check_result,
		market_condition, previous_market_condition, last_condition_change_at, reserve_balance_sol
		FROM flywheel_state WHERE token_id = ?`), tokenID)
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", tokenID, err)
	}
	return &st, nil
}

// GetView assembles the denormalized TokenView the schedulers operate on.
func (s *Store) GetView(ctx context.Context, tokenID string) (*types.TokenView, error) {
	tok, err := s.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.GetConfig(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	st, err := s.GetState(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	var dev, ops types.Wallet
	if err := s.db.GetContext(ctx, &dev, s.rebind(`SELECT * FROM wallets WHERE wallet_id = ?`), tok.DevWalletID); err != nil {
		return nil, fmt.Errorf("get dev wallet: %w", err)
	}
	if err := s.db.GetContext(ctx, &ops, s.rebind(`SELECT * FROM wallets WHERE wallet_id = ?`), tok.OpsWalletID); err != nil {
		return nil, fmt.Errorf("get ops wallet: %w", err)
	}
	return &types.TokenView{Token: *tok, Config: *cfg, State: *st, DevWallet: dev, OpsWallet: ops}, nil
}

func (s *Store) selectViews(ctx context.Context, idQuery string, args ...any) ([]types.TokenView, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, s.rebind(idQuery), args...); err != nil {
		return nil, fmt.Errorf("select eligible: %w", err)
	}
	views := make([]types.TokenView, 0, len(ids))
	for _, id := range ids {
		v, err := s.GetView(ctx, id)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// SelectFlywheelEligible returns tokens the flywheel scheduler should
// consider this tick: active, flywheel-enabled, and not inside a pause
// window. Ordering is unspecified.
func (s *Store) SelectFlywheelEligible(ctx context.Context) ([]types.TokenView, error) {
	return s.selectViews(ctx, `
		SELECT t.token_id FROM tokens t
		JOIN token_config c ON c.token_id = t.token_id
		JOIN flywheel_state f ON f.token_id = t.token_id
		WHERE t.active AND c.flywheel_active
		  AND (f.paused_until IS NULL OR f.paused_until <= ?)`,
		time.Now().UTC())
}

// SelectClaimEligible returns tokens the claim scheduler should consider.
// Pause windows are deliberately not consulted here.
func (s *Store) SelectClaimEligible(ctx context.Context) ([]types.TokenView, error) {
	return s.selectViews(ctx, `
		SELECT t.token_id FROM tokens t
		JOIN token_config c ON c.token_id = t.token_id
		WHERE t.active AND c.auto_claim_enabled`)
}

// ListReactiveTokens returns tokens with reactive trading enabled.
func (s *Store) ListReactiveTokens(ctx context.Context) ([]types.TokenView, error) {
	return s.selectViews(ctx, `
		SELECT t.token_id FROM tokens t
		JOIN token_config c ON c.token_id = t.token_id
		WHERE t.active AND c.reactive_enabled`)
}

// DeactivateToken turns a token off (invalid config, administrative stop).
// Rows are never deleted.
func (s *Store) DeactivateToken(ctx context.Context, tokenID, reason string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE tokens SET active = ? WHERE token_id = ?`), false, tokenID); err != nil {
		return fmt.Errorf("deactivate token %s: %w", tokenID, err)
	}
	now := time.Now().UTC()
	return s.UpdateState(ctx, tokenID, StatePatch{LastCheckedAt: &now, LastCheckResult: &reason})
}

// MarkGraduated flips the graduation flag once the token moves from the
// bonding curve to the aggregator.
func (s *Store) MarkGraduated(ctx context.Context, tokenID string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE tokens SET graduated = ? WHERE token_id = ?`), true, tokenID); err != nil {
		return fmt.Errorf("mark graduated %s: %w", tokenID, err)
	}
	return nil
}

// AppendTransaction appends one trade-log row. The log is append-only.
func (s *Store) AppendTransaction(ctx context.Context, txn types.Transaction) (string, error) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	q := s.rebind(`INSERT INTO transactions (id, token_id, type, amount, signature, status, message, trading_route, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q,
		txn.ID, txn.TokenID, txn.Type, txn.Amount, txn.Signature, txn.Status, txn.Message, txn.TradingRoute, txn.CreatedAt.UTC()); err != nil {
		return "", fmt.Errorf("append transaction: %w", err)
	}
	return txn.ID, nil
}

// ListTransactions returns the most recent trade-log rows for a token.
func (s *Store) ListTransactions(ctx context.Context, tokenID string, limit int) ([]types.Transaction, error) {
	var out []types.Transaction
	q := s.rebind(`SELECT * FROM transactions WHERE token_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, q, tokenID, limit); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// AppendClaim appends a claim-history row and returns its id.
func (s *Store) AppendClaim(ctx context.Context, c types.Claim) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ClaimedAt.IsZero() {
		c.ClaimedAt = time.Now().UTC()
	}
	q := s.rebind(`INSERT INTO claim_history (id, token_id, amount_sol, platform_fee_sol, user_received_sol, signature, status, claimed_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q,
		c.ID, c.TokenID, c.AmountSol, c.PlatformFeeSol, c.UserReceivedSol, c.Signature, c.Status, c.ClaimedAt.UTC(), c.CompletedAt); err != nil {
		return "", fmt.Errorf("append claim: %w", err)
	}
	return c.ID, nil
}

// CompleteClaim finalizes a claim row's status once the post-claim transfer
// settles (or fails, leaving the claim partial).
func (s *Store) CompleteClaim(ctx context.Context, claimID string, status types.ClaimStatus) error {
	now := time.Now().UTC()
	q := s.rebind(`UPDATE claim_history SET status = ?, completed_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, status, now, claimID); err != nil {
		return fmt.Errorf("complete claim %s: %w", claimID, err)
	}
	return nil
}

// ListClaims returns the most recent claim-history rows for a token.
func (s *Store) ListClaims(ctx context.Context, tokenID string, limit int) ([]types.Claim, error) {
	var out []types.Claim
	q := s.rebind(`SELECT * FROM claim_history WHERE token_id = ? ORDER BY claimed_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &out, q, tokenID, limit); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return out, nil
}

// EnqueueTwap inserts a TWAP queue item.
func (s *Store) EnqueueTwap(ctx context.Context, item types.TwapQueueItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	q := s.rebind(`INSERT INTO twap_queue (id, token_id, trade_type, total_amount, slice_size, slices_remaining, slices_total, next_execute_at, interval_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q,
		item.ID, item.TokenID, item.TradeType, item.TotalAmount, item.SliceSize,
		item.SlicesRemaining, item.SlicesTotal, item.NextExecuteAt.UTC(), item.IntervalMinutes, item.CreatedAt.UTC()); err != nil {
		return "", fmt.Errorf("enqueue twap: %w", err)
	}
	return item.ID, nil
}

// ReadyTwapItems returns due queue items for a token ordered by
// next_execute_at, ties broken by created_at.
func (s *Store) ReadyTwapItems(ctx context.Context, tokenID string, now time.Time) ([]types.TwapQueueItem, error) {
	var out []types.TwapQueueItem
	q := s.rebind(`SELECT * FROM twap_queue
		WHERE token_id = ? AND slices_remaining > 0 AND next_execute_at <= ?
		ORDER BY next_execute_at ASC, created_at ASC`)
	if err := s.db.SelectContext(ctx, &out, q, tokenID, now.UTC()); err != nil {
		return nil, fmt.Errorf("ready twap items: %w", err)
	}
	return out, nil
}

// AdvanceTwap decrements a slice and schedules the next one. Items that
// reach zero remaining slices are removed.
func (s *Store) AdvanceTwap(ctx context.Context, itemID string, nextExecuteAt time.Time) error {
	q := s.rebind(`UPDATE twap_queue SET slices_remaining = slices_remaining - 1, next_execute_at = ?
		WHERE id = ? AND slices_remaining > 0`)
	if _, err := s.db.ExecContext(ctx, q, nextExecuteAt.UTC(), itemID); err != nil {
		return fmt.Errorf("advance twap %s: %w", itemID, err)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM twap_queue WHERE id = ? AND slices_remaining <= 0`), itemID); err != nil {
		return fmt.Errorf("reap twap %s: %w", itemID, err)
	}
	return nil
}

// DeleteTwap removes a queue item outright (administrative cancel).
func (s *Store) DeleteTwap(ctx context.Context, itemID string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM twap_queue WHERE id = ?`), itemID); err != nil {
		return fmt.Errorf("delete twap %s: %w", itemID, err)
	}
	return nil
}
