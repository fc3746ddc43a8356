// Package types defines the shared domain model of the flywheel engine:
// tokens, wallets, per-token configuration and state, trade intents, and
// the money conversions between interior decimals and on-chain minor units
// (lamports for the native coin, raw integer units for tokens).
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a swap.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// TradeType classifies trade-log entries.
type TradeType string

const (
	TradeBuy      TradeType = "buy"
	TradeSell     TradeType = "sell"
	TradeTransfer TradeType = "transfer"
	TradeClaim    TradeType = "claim"
	TradeInfo     TradeType = "info"
)

// TxStatus is the status of a trade-log entry.
type TxStatus string

const (
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
	StatusPending   TxStatus = "pending"
)

// ClaimStatus is the lifecycle status of a fee claim.
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimCompleted ClaimStatus = "completed"
	ClaimPartial   ClaimStatus = "partial" // claimed on-chain but the dev→ops transfer failed
	ClaimFailed    ClaimStatus = "failed"
)

// TradingRoute selects the venue path for swaps.
type TradingRoute string

const (
	RouteBags    TradingRoute = "bags"
	RouteJupiter TradingRoute = "jupiter"
	RouteAuto    TradingRoute = "auto" // bags pre-graduation, jupiter after
)

// AlgorithmMode selects the per-token trading strategy.
type AlgorithmMode string

const (
	ModeSimple    AlgorithmMode = "simple"
	ModeRebalance AlgorithmMode = "rebalance"
	ModeTwapVwap  AlgorithmMode = "twap_vwap"
	ModeDynamic   AlgorithmMode = "dynamic"
	ModeTurboLite AlgorithmMode = "turbo_lite"
)

// CyclePhase is the current half of the buy/sell cycle.
type CyclePhase string

const (
	PhaseBuy  CyclePhase = "buy"
	PhaseSell CyclePhase = "sell"
)

// MarketCondition is the detector's categorical read of the market.
type MarketCondition string

const (
	CondPump       MarketCondition = "pump"
	CondDump       MarketCondition = "dump"
	CondRanging    MarketCondition = "ranging"
	CondNormal     MarketCondition = "normal"
	CondExtremeVol MarketCondition = "extreme_volatility"
)

// ExecStyle is how an intended trade is executed.
type ExecStyle string

const (
	StyleInstant ExecStyle = "instant"
	StyleTwap    ExecStyle = "twap"
	StyleVwap    ExecStyle = "vwap"
)

// WalletType distinguishes the two tenant wallets.
type WalletType string

const (
	WalletDev WalletType = "dev" // receives creator fees, initiates claims
	WalletOps WalletType = "ops" // working capital, executes trades
)

// LamportsPerSol is the number of minor units in one native coin.
const LamportsPerSol = 1_000_000_000

var lamportsPerSolDec = decimal.NewFromInt(LamportsPerSol)

// SolToLamports converts an interior decimal SOL amount to integer minor
// units, truncating sub-lamport dust.
func SolToLamports(sol decimal.Decimal) uint64 {
	return uint64(sol.Mul(lamportsPerSolDec).IntPart())
}

// LamportsToSol converts integer minor units to an interior decimal.
func LamportsToSol(lamports uint64) decimal.Decimal {
	return decimal.New(int64(lamports), 0).Div(lamportsPerSolDec)
}

// TokenUnitsToDecimal converts raw integer token units to a decimal amount
// using the mint's configured decimals.
func TokenUnitsToDecimal(units uint64, decimals int) decimal.Decimal {
	return decimal.New(int64(units), int32(-decimals))
}

// DecimalToTokenUnits converts a decimal token amount to raw integer units,
// truncating below the mint's resolution.
func DecimalToTokenUnits(amount decimal.Decimal, decimals int) uint64 {
	return uint64(amount.Shift(int32(decimals)).IntPart())
}

// Wallet is an on-chain identity managed by the remote custody signer.
// WalletID is the opaque handle the signer accepts; Address is the chain
// address. Wallets are immutable once created.
type Wallet struct {
	WalletID  string     `db:"wallet_id"`
	TenantID  string     `db:"tenant_id"`
	Address   string     `db:"address"`
	Type      WalletType `db:"type"`
	ChainType string     `db:"chain_type"`
}

// Token is a tenant-owned mint under management.
type Token struct {
	TokenID     string    `db:"token_id"`
	TenantID    string    `db:"tenant_id"`
	MintAddress string    `db:"mint_address"`
	Symbol      string    `db:"symbol"`
	Decimals    int       `db:"decimals"`
	DevWalletID string    `db:"dev_wallet_id"`
	OpsWalletID string    `db:"ops_wallet_id"`
	Active      bool      `db:"active"`
	Graduated   bool      `db:"graduated"`
	CreatedAt   time.Time `db:"created_at"`
}

// TokenConfig is the per-token knob set. One row per token.
type TokenConfig struct {
	TokenID string `db:"token_id"`

	FlywheelActive      bool            `db:"flywheel_active"`
	AutoClaimEnabled    bool            `db:"auto_claim_enabled"`
	MarketMakingEnabled bool            `db:"market_making_enabled"`
	FeeThresholdSol     decimal.Decimal `db:"fee_threshold_sol"`
	SlippageBps         int             `db:"slippage_bps"`
	TradingRoute        TradingRoute    `db:"trading_route"`
	AlgorithmMode       AlgorithmMode   `db:"algorithm_mode"`

	BuyPercent  int             `db:"buy_percent"`
	SellPercent int             `db:"sell_percent"`
	MinBuySol   decimal.Decimal `db:"min_buy_sol"`
	MaxBuySol   decimal.Decimal `db:"max_buy_sol"`

	TargetSolAllocation   int `db:"target_sol_allocation"`
	TargetTokenAllocation int `db:"target_token_allocation"`
	RebalanceThreshold    int `db:"rebalance_threshold"`

	TwapEnabled       bool            `db:"twap_enabled"`
	TwapSlices        int             `db:"twap_slices"`
	TwapWindowMinutes int             `db:"twap_window_minutes"`
	TwapThresholdUsd  decimal.Decimal `db:"twap_threshold_usd"`

	VwapEnabled           bool            `db:"vwap_enabled"`
	VwapParticipationRate int             `db:"vwap_participation_rate"`
	VwapMinVolumeUsd      decimal.Decimal `db:"vwap_min_volume_usd"`

	DynamicFeeEnabled         bool    `db:"dynamic_fee_enabled"`
	ReservePercentNormal      int     `db:"reserve_percent_normal"`
	ReservePercentAdverse     int     `db:"reserve_percent_adverse"`
	MinSellPercent            int     `db:"min_sell_percent"`
	MaxSellPercent            int     `db:"max_sell_percent"`
	BuybackBoostOnDump        bool    `db:"buyback_boost_on_dump"`
	PauseOnExtremeVolatility  bool    `db:"pause_on_extreme_volatility"`
	VolatilityPauseThreshold  float64 `db:"volatility_pause_threshold"`

	ReactiveEnabled            bool            `db:"reactive_enabled"`
	ReactiveMinTriggerSol      decimal.Decimal `db:"reactive_min_trigger_sol"`
	ReactiveScalePercent       int             `db:"reactive_scale_percent"`
	ReactiveMaxResponsePercent int             `db:"reactive_max_response_percent"`
	ReactiveCooldownMs         int             `db:"reactive_cooldown_ms"`
}

// DefaultTokenConfig returns a config with conservative defaults for a
// freshly onboarded token. Flywheel and auto-claim start disabled.
func DefaultTokenConfig(tokenID string) TokenConfig {
	return TokenConfig{
		TokenID:                    tokenID,
		FeeThresholdSol:            decimal.NewFromFloat(0.05),
		SlippageBps:                300,
		TradingRoute:               RouteAuto,
		AlgorithmMode:              ModeSimple,
		BuyPercent:                 20,
		SellPercent:                20,
		MinBuySol:                  decimal.NewFromFloat(0.01),
		MaxBuySol:                  decimal.NewFromFloat(0.5),
		TargetSolAllocation:        50,
		TargetTokenAllocation:      50,
		RebalanceThreshold:         10,
		TwapSlices:                 5,
		TwapWindowMinutes:          60,
		TwapThresholdUsd:           decimal.NewFromInt(500),
		VwapParticipationRate:      10,
		VwapMinVolumeUsd:           decimal.NewFromInt(10_000),
		ReservePercentNormal:       10,
		ReservePercentAdverse:      25,
		MinSellPercent:             5,
		MaxSellPercent:             30,
		VolatilityPauseThreshold:   20,
		ReactiveMinTriggerSol:      decimal.NewFromFloat(0.5),
		ReactiveScalePercent:       50,
		ReactiveMaxResponsePercent: 10,
		ReactiveCooldownMs:         30_000,
	}
}

// Validate checks configured values against their documented domains.
// A token whose config fails validation is deactivated by the scheduler.
func (c TokenConfig) Validate() error {
	if c.SlippageBps < 0 || c.SlippageBps > 5000 {
		return fmt.Errorf("slippage_bps %d out of range [0, 5000]", c.SlippageBps)
	}
	switch c.TradingRoute {
	case RouteBags, RouteJupiter, RouteAuto:
	default:
		return fmt.Errorf("unknown trading route %q", c.TradingRoute)
	}
	switch c.AlgorithmMode {
	case ModeSimple, ModeRebalance, ModeTwapVwap, ModeDynamic, ModeTurboLite:
	default:
		return fmt.Errorf("unknown algorithm mode %q", c.AlgorithmMode)
	}
	if c.BuyPercent < 1 || c.BuyPercent > 100 {
		return fmt.Errorf("buy_percent %d out of range [1, 100]", c.BuyPercent)
	}
	if c.SellPercent < 1 || c.SellPercent > 100 {
		return fmt.Errorf("sell_percent %d out of range [1, 100]", c.SellPercent)
	}
	if c.MinBuySol.GreaterThan(c.MaxBuySol) {
		return fmt.Errorf("min_buy_sol %s exceeds max_buy_sol %s", c.MinBuySol, c.MaxBuySol)
	}
	if c.TargetSolAllocation+c.TargetTokenAllocation != 100 {
		return fmt.Errorf("allocations must sum to 100, got %d+%d",
			c.TargetSolAllocation, c.TargetTokenAllocation)
	}
	if c.RebalanceThreshold < 1 || c.RebalanceThreshold > 50 {
		return fmt.Errorf("rebalance_threshold %d out of range [1, 50]", c.RebalanceThreshold)
	}
	if c.TwapEnabled && c.TwapSlices < 1 {
		return fmt.Errorf("twap_slices must be >= 1, got %d", c.TwapSlices)
	}
	if c.VwapEnabled && (c.VwapParticipationRate < 1 || c.VwapParticipationRate > 100) {
		return fmt.Errorf("vwap_participation_rate %d out of range [1, 100]", c.VwapParticipationRate)
	}
	return nil
}

// FlywheelState is the mutable per-token state machine row. Mutated only
// by the lease holder.
type FlywheelState struct {
	TokenID string `db:"token_id"`

	CyclePhase             CyclePhase      `db:"cycle_phase"`
	BuyCount               int             `db:"buy_count"`
	SellCount              int             `db:"sell_count"`
	SellPhaseTokenSnapshot decimal.Decimal `db:"sell_phase_token_snapshot"`
	SellAmountPerTx        decimal.Decimal `db:"sell_amount_per_tx"`
	LastTradeAt            *time.Time      `db:"last_trade_at"`

	ConsecutiveFailures int        `db:"consecutive_failures"`
	TotalFailures       int        `db:"total_failures"`
	LastFailureReason   *string    `db:"last_failure_reason"`
	LastFailureAt       *time.Time `db:"last_failure_at"`
	PausedUntil         *time.Time `db:"paused_until"`

	LastCheckedAt   *time.Time `db:"last_checked_at"`
	LastCheckResult *string    `db:"last_check_result"`

	MarketCondition         MarketCondition `db:"market_condition"`
	PreviousMarketCondition MarketCondition `db:"previous_market_condition"`
	LastConditionChangeAt   *time.Time      `db:"last_condition_change_at"`

	ReserveBalanceSol decimal.Decimal `db:"reserve_balance_sol"`
}

// Paused reports whether the token is inside a failure pause window.
func (s FlywheelState) Paused(now time.Time) bool {
	return s.PausedUntil != nil && s.PausedUntil.After(now)
}

// TwapQueueItem is one scheduled partition of a logical trade into equal
// time-spaced slices. An item is ready when SlicesRemaining > 0 and
// NextExecuteAt <= now.
type TwapQueueItem struct {
	ID              string          `db:"id"`
	TokenID         string          `db:"token_id"`
	TradeType       Side            `db:"trade_type"`
	TotalAmount     decimal.Decimal `db:"total_amount"`
	SliceSize       decimal.Decimal `db:"slice_size"`
	SlicesRemaining int             `db:"slices_remaining"`
	SlicesTotal     int             `db:"slices_total"`
	NextExecuteAt   time.Time       `db:"next_execute_at"`
	IntervalMinutes int             `db:"interval_minutes"`
	CreatedAt       time.Time       `db:"created_at"`
}

// Ready reports whether the item is due for execution.
func (i TwapQueueItem) Ready(now time.Time) bool {
	return i.SlicesRemaining > 0 && !i.NextExecuteAt.After(now)
}

// Transaction is one append-only trade-log row.
type Transaction struct {
	ID           string          `db:"id"`
	TokenID      string          `db:"token_id"`
	Type         TradeType       `db:"type"`
	Amount       decimal.Decimal `db:"amount"`
	Signature    *string         `db:"signature"`
	Status       TxStatus        `db:"status"`
	Message      *string         `db:"message"`
	TradingRoute *TradingRoute   `db:"trading_route"`
	CreatedAt    time.Time       `db:"created_at"`
}

// Claim is one append-only fee-claim history row.
type Claim struct {
	ID              string          `db:"id"`
	TokenID         string          `db:"token_id"`
	AmountSol       decimal.Decimal `db:"amount_sol"`
	PlatformFeeSol  decimal.Decimal `db:"platform_fee_sol"`
	UserReceivedSol decimal.Decimal `db:"user_received_sol"`
	Signature       *string         `db:"signature"`
	Status          ClaimStatus     `db:"status"`
	ClaimedAt       time.Time       `db:"claimed_at"`
	CompletedAt     *time.Time      `db:"completed_at"`
}

// TokenView is the denormalized read model the schedulers operate on:
// the token hub plus its config, state, and both wallets.
type TokenView struct {
	Token     Token
	Config    TokenConfig
	State     FlywheelState
	DevWallet Wallet
	OpsWallet Wallet
}

// Balances holds the working-capital snapshot read from the chain before a
// decision. All amounts are interior decimals.
type Balances struct {
	OpsSol   decimal.Decimal // native balance of the ops wallet
	OpsToken decimal.Decimal // token balance of the ops wallet
	DevSol   decimal.Decimal // native balance of the dev wallet
}

// AmountUnit says which asset a trade amount is denominated in.
type AmountUnit string

const (
	UnitSol   AmountUnit = "sol"
	UnitToken AmountUnit = "token"
)

// TradeIntent is the output of an algorithm mode: what to trade next.
// Buys are SOL-denominated; sells are token-denominated except where a
// mode sizes the sell by SOL value (converted at execution).
type TradeIntent struct {
	Side   Side
	Amount decimal.Decimal
	Unit   AmountUnit
	Style  ExecStyle
	Reason string
}

// TwapPlan describes a trade partitioned into slices. The first slice
// executes immediately; the remainder is enqueued.
type TwapPlan struct {
	TotalAmount     decimal.Decimal
	SliceSize       decimal.Decimal
	Slices          int
	IntervalMinutes int
}

// Decision is the full result of a mode invocation. Either Skip with a
// reason, or an intent plus optional TWAP plan and a reserve adjustment
// applied after a confirmed trade.
type Decision struct {
	Skip   bool
	Reason string

	Intent       TradeIntent
	Twap         *TwapPlan
	PauseFor     time.Duration   // > 0 requests a pause (extreme volatility)
	ReserveDelta decimal.Decimal // applied to ReserveBalanceSol on success
}

// SkipDecision is a convenience constructor for a skipped tick.
func SkipDecision(reason string) Decision {
	return Decision{Skip: true, Reason: reason}
}

// PriceContext is the oracle's read for one mint at decision time. Trend
// fields are nil until the rolling series has at least 20 samples.
type PriceContext struct {
	Mint           string
	PriceUsd       float64
	SolPriceUsd    float64
	Change24hPct   float64
	Volume24hUsd   float64
	LiquidityUsd   float64
	ShortEma       *float64
	LongEma        *float64
	Rsi            *float64
	Volatility     *float64 // percentage std dev of recent returns
	Samples        int
	ObservedAt     time.Time
}

// Assessment is the market-condition detector's output.
type Assessment struct {
	Condition  MarketCondition
	Confidence float64 // [0, 100]
	Reasons    []string
}
