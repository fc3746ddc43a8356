// Package executor turns trade decisions into settled transactions: quote,
// assemble, sign remotely, classify the outcome, and persist both the
// trade-log row and the resulting state advance. The executor is the only
// writer of cycle counters and failure streaks, and it mutates them solely
// on classified outcomes: confirmed trades advance, counted failures back
// off, signer unavailability touches nothing.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"flywheel-mm/internal/risk"
	"flywheel-mm/internal/signer"
	"flywheel-mm/internal/store"
	"flywheel-mm/internal/strategy"
	"flywheel-mm/internal/venue"
	"flywheel-mm/pkg/types"
)

// blockhashRetries is the total attempt budget when the signer reports an
// expired blockhash; each retry re-quotes and rebuilds the transaction.
const blockhashRetries = 3

// Store is the persistence surface the executor writes through.
type Store interface {
	AppendTransaction(ctx context.Context, txn types.Transaction) (string, error)
	UpdateState(ctx context.Context, tokenID string, p store.StatePatch) error
	EnqueueTwap(ctx context.Context, item types.TwapQueueItem) (string, error)
	AdvanceTwap(ctx context.Context, itemID string, nextExecuteAt time.Time) error
	AppendClaim(ctx context.Context, c types.Claim) (string, error)
	CompleteClaim(ctx context.Context, claimID string, status types.ClaimStatus) error
}

// Signer is the remote custody surface.
type Signer interface {
	SignAndSend(ctx context.Context, walletID, txBase58 string) (string, error)
	TransferSol(ctx context.Context, fromWalletID, toAddress string, lamports uint64) (string, error)
}

// BalanceReader re-reads the ops token balance after the buy that closes the
// buy phase, so the sell snapshot reflects settled inventory.
type BalanceReader interface {
	TokenBalance(ctx context.Context, owner, mint string) (uint64, error)
}

// Outcome classifies one execution attempt.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped: the signer was unavailable; nothing was mutated and
	// the attempt does not count against the token's failure streak.
	OutcomeSkipped Outcome = "skipped"
)

// Result is the settled view of one execution.
type Result struct {
	Outcome   Outcome
	Signature string
	Reason    string
}

// Executor drives the trade and claim paths.
type Executor struct {
	store        Store
	signer       Signer
	router       *venue.Router
	balances     BalanceReader
	solMint      string
	baseCooldown time.Duration
	cycleBuys    int
	cycleSells   int
	logger       *slog.Logger
}

// New wires the executor.
func New(st Store, sg Signer, router *venue.Router, bal BalanceReader,
	solMint string, baseCooldown time.Duration, cycleBuys, cycleSells int, logger *slog.Logger) *Executor {
	return &Executor{
		store:        st,
		signer:       sg,
		router:       router,
		balances:     bal,
		solMint:      solMint,
		baseCooldown: baseCooldown,
		cycleBuys:    cycleBuys,
		cycleSells:   cycleSells,
		logger:       logger.With("component", "executor"),
	}
}

// Trade executes one decision for a token. The caller holds the token's
// lease. px may be nil for modes that skip the oracle; it is only needed to
// convert SOL-denominated sells into token units.
func (e *Executor) Trade(ctx context.Context, view types.TokenView, d types.Decision, bal types.Balances, px *types.PriceContext) (*Result, error) {
	if res := e.gate(view); res != nil {
		return res, nil
	}
	if d.Skip {
		return &Result{Outcome: OutcomeSkipped, Reason: d.Reason}, nil
	}

	res, err := e.swap(ctx, view, d.Intent, bal, px)
	if err != nil {
		return nil, err
	}
	if res.Outcome != OutcomeConfirmed {
		return res, nil
	}

	// Remainder of a partitioned trade goes to the queue; slices fire on
	// later ticks.
	if d.Twap != nil && d.Twap.Slices > 1 {
		now := time.Now().UTC()
		_, err := e.store.EnqueueTwap(ctx, types.TwapQueueItem{
			TokenID:         view.Token.TokenID,
			TradeType:       d.Intent.Side,
			TotalAmount:     d.Twap.TotalAmount,
			SliceSize:       d.Twap.SliceSize,
			SlicesRemaining: d.Twap.Slices - 1,
			SlicesTotal:     d.Twap.Slices,
			NextExecuteAt:   now.Add(time.Duration(d.Twap.IntervalMinutes) * time.Minute),
			IntervalMinutes: d.Twap.IntervalMinutes,
		})
		if err != nil {
			e.logger.Error("enqueue twap remainder", "token", view.Token.TokenID, "error", err)
		}
	}

	if err := e.settleSuccess(ctx, view, d, bal); err != nil {
		return nil, err
	}
	return res, nil
}

// TwapSlice executes one due queue item and advances the schedule. A
// signer-unavailable skip leaves the item due for the next tick.
func (e *Executor) TwapSlice(ctx context.Context, view types.TokenView, item types.TwapQueueItem, bal types.Balances, px *types.PriceContext) (*Result, error) {
	if res := e.gate(view); res != nil {
		return res, nil
	}
	unit := types.UnitSol
	if item.TradeType == types.Sell {
		unit = types.UnitToken
	}
	intent := types.TradeIntent{
		Side:   item.TradeType,
		Amount: item.SliceSize,
		Unit:   unit,
		Style:  types.StyleTwap,
		Reason: fmt.Sprintf("twap slice %d/%d", item.SlicesTotal-item.SlicesRemaining+1, item.SlicesTotal),
	}

	res, err := e.swap(ctx, view, intent, bal, px)
	if err != nil {
		return nil, err
	}
	if res.Outcome == OutcomeConfirmed {
		next := time.Now().UTC().Add(time.Duration(item.IntervalMinutes) * time.Minute)
		if err := e.store.AdvanceTwap(ctx, item.ID, next); err != nil {
			return nil, err
		}
		if err := e.settleSuccess(ctx, view, types.Decision{Intent: intent}, bal); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// gate re-checks the trading preconditions under the caller's lease. The
// scheduler's eligibility snapshot may be stale by the time a trade reaches
// the executor, so the flag and the pause window are verified again here.
// A gated trade is a skip: nothing is quoted, signed, or persisted.
func (e *Executor) gate(view types.TokenView) *Result {
	if !view.Config.MarketMakingEnabled {
		return &Result{Outcome: OutcomeSkipped, Reason: "market making disabled"}
	}
	if view.State.Paused(time.Now().UTC()) {
		return &Result{Outcome: OutcomeSkipped, Reason: "token paused"}
	}
	return nil
}

// swap runs the quote → build → sign pipeline with blockhash retries.
// It appends the trade-log row but leaves state settlement to the caller.
func (e *Executor) swap(ctx context.Context, view types.TokenView, intent types.TradeIntent, bal types.Balances, px *types.PriceContext) (*Result, error) {
	client := e.router.For(view.Config.TradingRoute, view.Token.Graduated)

	req, err := e.quoteRequest(view, intent, px)
	if err != nil {
		res := &Result{Outcome: OutcomeFailed, Reason: err.Error()}
		if err := e.logTrade(ctx, view, intent, res, client.Route()); err != nil {
			return nil, err
		}
		if err := e.settleFailure(ctx, view, res.Reason); err != nil {
			return nil, err
		}
		return res, nil
	}

	var lastErr error
	for attempt := 1; attempt <= blockhashRetries; attempt++ {
		quote, err := client.Quote(ctx, *req)
		if err != nil {
			lastErr = err
			break
		}

		txBase58, err := client.BuildSwapTx(ctx, view.OpsWallet.Address, quote)
		if err != nil {
			lastErr = err
			break
		}

		sig, err := e.signer.SignAndSend(ctx, view.OpsWallet.WalletID, txBase58)
		if err == nil {
			res := &Result{Outcome: OutcomeConfirmed, Signature: sig}
			if err := e.logTrade(ctx, view, intent, res, client.Route()); err != nil {
				return nil, err
			}
			return res, nil
		}

		switch signer.KindOf(err) {
		case signer.KindBlockhashExpired:
			// Stale blockhash: rebuild from a fresh quote and try again.
			e.logger.Debug("blockhash expired, rebuilding",
				"token", view.Token.TokenID, "attempt", attempt)
			lastErr = err
			continue
		case signer.KindUnavailable:
			e.logger.Warn("signer unavailable, skipping trade",
				"token", view.Token.TokenID, "error", err)
			return &Result{Outcome: OutcomeSkipped, Reason: err.Error()}, nil
		default:
			lastErr = err
		}
		break
	}

	res := &Result{Outcome: OutcomeFailed, Reason: lastErr.Error()}
	if err := e.logTrade(ctx, view, intent, res, client.Route()); err != nil {
		return nil, err
	}
	if err := e.settleFailure(ctx, view, res.Reason); err != nil {
		return nil, err
	}
	return res, nil
}

// quoteRequest converts the intent's interior amount into the venue's
// integer minor units and orients the swap pair.
func (e *Executor) quoteRequest(view types.TokenView, intent types.TradeIntent, px *types.PriceContext) (*venue.QuoteRequest, error) {
	req := &venue.QuoteRequest{SlippageBps: view.Config.SlippageBps}

	switch intent.Side {
	case types.Buy:
		req.InputMint = e.solMint
		req.OutputMint = view.Token.MintAddress
		req.AmountUnits = types.SolToLamports(intent.Amount)
	case types.Sell:
		req.InputMint = view.Token.MintAddress
		req.OutputMint = e.solMint
		amount := intent.Amount
		if intent.Unit == types.UnitSol {
			// SOL-denominated sell: convert through the current price.
			if px == nil || px.PriceUsd <= 0 || px.SolPriceUsd <= 0 {
				return nil, fmt.Errorf("sol-denominated sell needs a price context")
			}
			tokenPerSol := px.SolPriceUsd / px.PriceUsd
			amount = intent.Amount.Mul(decimal.NewFromFloat(tokenPerSol))
		}
		req.AmountUnits = types.DecimalToTokenUnits(amount, view.Token.Decimals)
	default:
		return nil, fmt.Errorf("unknown side %q", intent.Side)
	}

	if req.AmountUnits == 0 {
		return nil, fmt.Errorf("amount truncates to zero units")
	}
	return req, nil
}

func (e *Executor) logTrade(ctx context.Context, view types.TokenView, intent types.TradeIntent, res *Result, route types.TradingRoute) error {
	txn := types.Transaction{
		TokenID:      view.Token.TokenID,
		Type:         types.TradeType(intent.Side),
		Amount:       intent.Amount,
		Status:       types.StatusConfirmed,
		TradingRoute: &route,
	}
	if res.Signature != "" {
		txn.Signature = &res.Signature
	}
	if res.Outcome == OutcomeFailed {
		txn.Status = types.StatusFailed
		txn.Message = &res.Reason
	}
	if intent.Reason != "" && txn.Message == nil {
		txn.Message = &intent.Reason
	}
	if _, err := e.store.AppendTransaction(ctx, txn); err != nil {
		return fmt.Errorf("append trade log: %w", err)
	}
	return nil
}

// settleSuccess applies the post-confirmation state advance: cycle counters
// for cycle-driven modes, failure-streak reset, pause clear, reserve delta.
func (e *Executor) settleSuccess(ctx context.Context, view types.TokenView, d types.Decision, bal types.Balances) error {
	now := time.Now().UTC()
	zero := 0
	patch := store.StatePatch{
		LastTradeAt:         &now,
		ConsecutiveFailures: &zero,
		ClearPause:          true,
	}

	if cycleDriven(view.Config.AlgorithmMode) {
		tokenBalance := bal.OpsToken
		if d.Intent.Side == types.Buy && view.State.BuyCount+1 >= e.cycleBuys {
			// Boundary buy: re-read settled inventory for the sell snapshot.
			if units, err := e.balances.TokenBalance(ctx, view.OpsWallet.Address, view.Token.MintAddress); err == nil {
				tokenBalance = types.TokenUnitsToDecimal(units, view.Token.Decimals)
			} else {
				e.logger.Warn("post-trade balance read failed, using pre-trade inventory",
					"token", view.Token.TokenID, "error", err)
			}
		}

		adv := strategy.AdvanceCycle(view.State, e.cycleBuys, e.cycleSells, d.Intent.Side, tokenBalance)
		patch.CyclePhase = &adv.Phase
		patch.BuyCount = &adv.BuyCount
		patch.SellCount = &adv.SellCount
		if adv.SnapshotTaken {
			patch.SellPhaseTokenSnapshot = &adv.Snapshot
			patch.SellAmountPerTx = &adv.SellPerTx
		}
	}

	if !d.ReserveDelta.IsZero() {
		reserve := view.State.ReserveBalanceSol.Add(d.ReserveDelta)
		if reserve.IsNegative() {
			reserve = decimal.Zero
		}
		patch.ReserveBalanceSol = &reserve
	}

	return e.store.UpdateState(ctx, view.Token.TokenID, patch)
}

// settleFailure counts the failure and applies the exponential pause.
func (e *Executor) settleFailure(ctx context.Context, view types.TokenView, reason string) error {
	now := time.Now().UTC()
	consecutive := view.State.ConsecutiveFailures + 1
	total := view.State.TotalFailures + 1
	pausedUntil := now.Add(risk.FailurePause(consecutive, e.baseCooldown))

	e.logger.Warn("trade failed",
		"token", view.Token.TokenID,
		"consecutive", consecutive,
		"paused_until", pausedUntil,
		"reason", reason,
	)

	return e.store.UpdateState(ctx, view.Token.TokenID, store.StatePatch{
		ConsecutiveFailures: &consecutive,
		TotalFailures:       &total,
		LastFailureReason:   &reason,
		LastFailureAt:       &now,
		PausedUntil:         &pausedUntil,
	})
}

// Pause applies a strategy-requested pause (extreme volatility) without
// counting a failure.
func (e *Executor) Pause(ctx context.Context, tokenID string, d time.Duration, reason string) error {
	until := time.Now().UTC().Add(d)
	return e.store.UpdateState(ctx, tokenID, store.StatePatch{
		PausedUntil:     &until,
		LastCheckResult: &reason,
	})
}

func cycleDriven(mode types.AlgorithmMode) bool {
	switch mode {
	case types.ModeSimple, types.ModeTurboLite, types.ModeTwapVwap, types.ModeDynamic:
		return true
	}
	return false
}
