// flywheel.go is the periodic trading scheduler. Each tick selects eligible
// tokens and fans out per-token work bounded by the concurrency semaphore.
// All mutation for a token happens under its exclusive lease; a token whose
// lease is held elsewhere is simply skipped this tick.
package engine

import (
	"context"
	"errors"
	"time"

	"flywheel-mm/internal/executor"
	"flywheel-mm/internal/market"
	"flywheel-mm/internal/risk"
	"flywheel-mm/internal/store"
	"flywheel-mm/internal/strategy"
	"flywheel-mm/pkg/types"

	"github.com/shopspring/decimal"
)

func (e *Engine) flywheelLoop() {
	ticker := time.NewTicker(e.cfg.Flywheel.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.flywheelTick()
		}
	}
}

func (e *Engine) flywheelTick() {
	views, err := e.store.SelectFlywheelEligible(e.ctx)
	if err != nil {
		e.logger.Error("select eligible tokens", "error", err)
		return
	}
	if len(views) == 0 {
		return
	}

	e.logger.Debug("flywheel tick", "eligible", len(views))

	for _, v := range views {
		select {
		case <-e.ctx.Done():
			return
		case e.sem <- struct{}{}:
		}

		e.wg.Add(1)
		go func(tokenID string) {
			defer e.wg.Done()
			defer func() { <-e.sem }()
			e.processToken(tokenID)
		}(v.Token.TokenID)
	}
}

// processToken runs one token's full decision pipeline under its lease.
func (e *Engine) processToken(tokenID string) {
	lease, err := e.store.AcquireLease(e.ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrBusy) {
			e.logger.Debug("lease busy, skipping", "token", tokenID)
			return
		}
		e.logger.Error("acquire lease", "token", tokenID, "error", err)
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			e.logger.Error("release lease", "token", tokenID, "error", err)
		}
	}()

	// Re-read under the lease: the selection snapshot may be stale.
	view, err := e.store.GetView(e.ctx, tokenID)
	if err != nil {
		e.logger.Error("load token view", "token", tokenID, "error", err)
		return
	}

	now := time.Now().UTC()
	if !view.Token.Active || !view.Config.FlywheelActive || view.State.Paused(now) {
		return
	}

	if err := view.Config.Validate(); err != nil {
		e.logger.Warn("invalid config, deactivating token",
			"token", tokenID, "error", err)
		if derr := e.store.DeactivateToken(e.ctx, tokenID, "invalid config: "+err.Error()); derr != nil {
			e.logger.Error("deactivate token", "token", tokenID, "error", derr)
		}
		return
	}

	e.checkGraduation(view)

	bal, err := e.rpc.Balances(e.ctx,
		view.OpsWallet.Address, view.DevWallet.Address,
		view.Token.MintAddress, view.Token.Decimals)
	if err != nil {
		e.logger.Warn("balance read failed, skipping tick", "token", tokenID, "error", err)
		e.noteCheck(tokenID, "balance read failed")
		return
	}

	// Buys spend from what is left after the fee reserve and the token's
	// strategic reserve.
	spendable := risk.SpendableSol(bal,
		decimal.NewFromFloat(e.cfg.Flywheel.FeeReserveSol),
		view.State.ReserveBalanceSol)
	decideBal := bal
	decideBal.OpsSol = spendable

	// Oracle round-trip, skipped entirely in turbo-lite.
	var px *types.PriceContext
	var cond types.Assessment
	if view.Config.AlgorithmMode != types.ModeTurboLite {
		px, err = e.oracle.Snapshot(e.ctx, view.Token.MintAddress)
		if err != nil {
			e.logger.Warn("price snapshot failed", "token", tokenID, "error", err)
		} else {
			cond = market.Detect(*px, e.thresholds)
			e.noteCondition(view, cond)
		}
	}

	// Due TWAP slices execute before this tick's algorithmic decision. A
	// token whose queue traded this tick does not also place a new intent:
	// the slice IS this tick's trade.
	if e.runDueTwapSlices(view, decideBal, px) {
		e.noteCheck(tokenID, "twap slice executed")
		return
	}

	d := strategy.Decide(strategy.Inputs{
		Config:     view.Config,
		State:      view.State,
		Balances:   decideBal,
		Price:      px,
		Condition:  cond,
		CycleBuys:  e.cfg.Flywheel.CycleBuys,
		CycleSells: e.cfg.Flywheel.CycleSells,
		Now:        now,
	})

	if d.PauseFor > 0 {
		if err := e.exec.Pause(e.ctx, tokenID, d.PauseFor, d.Reason); err != nil {
			e.logger.Error("apply pause", "token", tokenID, "error", err)
		}
		e.noteCheck(tokenID, d.Reason)
		return
	}
	if d.Skip {
		e.logger.Debug("skip", "token", tokenID, "reason", d.Reason)
		e.noteCheck(tokenID, "skip: "+d.Reason)
		return
	}

	if !e.governor.Allow() {
		e.noteCheck(tokenID, "deferred: global trade cap")
		return
	}

	res, err := e.exec.Trade(e.ctx, *view, d, decideBal, px)
	if err != nil {
		e.logger.Error("execute trade", "token", tokenID, "error", err)
		return
	}
	e.logger.Info("trade settled",
		"token", tokenID,
		"side", d.Intent.Side,
		"amount", d.Intent.Amount,
		"unit", d.Intent.Unit,
		"style", d.Intent.Style,
		"outcome", res.Outcome,
		"signature", res.Signature,
	)
	e.noteCheck(tokenID, string(res.Outcome)+": "+d.Intent.Reason)
}

// runDueTwapSlices executes every due queue item for the token, consuming
// one governor slot per slice. Over-cap slices stay due for the next tick.
// Reports whether any slice actually traded (confirmed or failed) so the
// caller can withhold this tick's algorithmic intent.
func (e *Engine) runDueTwapSlices(view *types.TokenView, bal types.Balances, px *types.PriceContext) bool {
	items, err := e.store.ReadyTwapItems(e.ctx, view.Token.TokenID, time.Now().UTC())
	if err != nil {
		e.logger.Error("ready twap items", "token", view.Token.TokenID, "error", err)
		return false
	}
	ran := false
	for _, item := range items {
		if !e.governor.Allow() {
			return ran
		}
		res, err := e.exec.TwapSlice(e.ctx, *view, item, bal, px)
		if err != nil {
			e.logger.Error("twap slice", "token", view.Token.TokenID, "item", item.ID, "error", err)
			return ran
		}
		e.logger.Info("twap slice settled",
			"token", view.Token.TokenID,
			"item", item.ID,
			"side", item.TradeType,
			"slice", item.SliceSize,
			"outcome", res.Outcome,
		)
		if res.Outcome != executor.OutcomeSkipped {
			ran = true
		}
		if res.Outcome != executor.OutcomeConfirmed {
			// A failed or skipped slice stops the batch; failures already
			// paused the token.
			return ran
		}
	}
	return ran
}

// checkGraduation promotes a token off the bonding curve once the venue
// reports it graduated. Auto-routed tokens switch to the aggregator from
// the next trade on.
func (e *Engine) checkGraduation(view *types.TokenView) {
	if view.Token.Graduated {
		return
	}
	info, err := e.router.Claims().TokenInfo(e.ctx, view.Token.MintAddress)
	if err != nil {
		e.logger.Debug("token info read failed", "token", view.Token.TokenID, "error", err)
		return
	}
	if !info.Graduated {
		return
	}
	if err := e.store.MarkGraduated(e.ctx, view.Token.TokenID); err != nil {
		e.logger.Error("mark graduated", "token", view.Token.TokenID, "error", err)
		return
	}
	view.Token.Graduated = true
	e.logger.Info("token graduated to aggregator", "token", view.Token.TokenID)
}

// noteCondition persists a detector read, recording transitions.
func (e *Engine) noteCondition(view *types.TokenView, cond types.Assessment) {
	if cond.Condition == view.State.MarketCondition {
		return
	}
	now := time.Now().UTC()
	prev := view.State.MarketCondition
	patch := store.StatePatch{
		MarketCondition:         &cond.Condition,
		PreviousMarketCondition: &prev,
		LastConditionChangeAt:   &now,
	}
	if err := e.store.UpdateState(e.ctx, view.Token.TokenID, patch); err != nil {
		e.logger.Error("record condition change", "token", view.Token.TokenID, "error", err)
		return
	}
	view.State.PreviousMarketCondition = prev
	view.State.MarketCondition = cond.Condition
	e.logger.Info("market condition changed",
		"token", view.Token.TokenID,
		"from", prev,
		"to", cond.Condition,
		"confidence", cond.Confidence,
	)
}

// noteCheck records the outcome of this tick's evaluation for operators.
func (e *Engine) noteCheck(tokenID, result string) {
	now := time.Now().UTC()
	if err := e.store.UpdateState(e.ctx, tokenID, store.StatePatch{
		LastCheckedAt:   &now,
		LastCheckResult: &result,
	}); err != nil {
		e.logger.Error("record check result", "token", tokenID, "error", err)
	}
}
