// reactive.go mirrors large external swaps seen on the chain's log feed.
// The loop keeps the subscriber's tracked-mint set in sync with the store,
// filters out our own transactions, enforces a per-token cooldown, and
// dispatches the mirrored trade through the normal lease + executor path.
package engine

import (
	"context"
	"errors"
	"time"

	"flywheel-mm/internal/chain"
	"flywheel-mm/internal/store"
	"flywheel-mm/internal/strategy"
	"flywheel-mm/pkg/types"
)

// reactiveRefreshInterval is how often the tracked-mint set is reconciled
// against the store.
const reactiveRefreshInterval = 30 * time.Second

func (e *Engine) reactiveLoop() {
	refresh := time.NewTicker(reactiveRefreshInterval)
	defer refresh.Stop()

	// mint → token view, rebuilt on every refresh.
	tracked := make(map[string]types.TokenView)
	e.refreshReactiveSet(tracked)

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-refresh.C:
			e.refreshReactiveSet(tracked)
		case evt := <-e.subscriber.Events():
			view, ok := tracked[evt.Mint]
			if !ok {
				continue
			}
			e.handleLogEvent(view, evt)
		}
	}
}

func (e *Engine) refreshReactiveSet(tracked map[string]types.TokenView) {
	views, err := e.store.ListReactiveTokens(e.ctx)
	if err != nil {
		e.logger.Error("list reactive tokens", "error", err)
		return
	}

	want := make(map[string]types.TokenView, len(views))
	for _, v := range views {
		want[v.Token.MintAddress] = v
	}

	for mint := range tracked {
		if _, ok := want[mint]; !ok {
			e.subscriber.Untrack(mint)
			delete(tracked, mint)
		}
	}
	for mint, v := range want {
		if _, ok := tracked[mint]; !ok {
			if err := e.subscriber.Track(mint); err != nil {
				e.logger.Error("track mint", "mint", mint, "error", err)
				continue
			}
		}
		tracked[mint] = v
	}
}

func (e *Engine) handleLogEvent(view types.TokenView, evt chain.LogEvent) {
	if evt.Err != "" {
		// Failed external transactions carry no tradable signal.
		return
	}

	sw := chain.ParseSwapLogs(evt.Mint, evt.Signature, evt.Logs, e.cfg.Reactive.AllowHeuristicParse)
	if sw == nil {
		return
	}

	// Self-trade suppression: never react to our own ops wallet.
	if sw.Signer != "" && sw.Signer == view.OpsWallet.Address {
		return
	}

	if !e.reactiveCooldownElapsed(view.Token.TokenID, view.Config.ReactiveCooldownMs) {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.reactToSwap(view.Token.TokenID, *sw)
	}()
}

// reactiveCooldownElapsed consumes the token's cooldown slot when elapsed.
func (e *Engine) reactiveCooldownElapsed(tokenID string, cooldownMs int) bool {
	now := time.Now().UnixMilli()
	e.reactiveMu.Lock()
	defer e.reactiveMu.Unlock()
	if last, ok := e.lastReactiveAt[tokenID]; ok && now-last < int64(cooldownMs) {
		return false
	}
	e.lastReactiveAt[tokenID] = now
	return true
}

func (e *Engine) reactToSwap(tokenID string, sw chain.SwapEvent) {
	lease, err := e.store.AcquireLease(e.ctx, tokenID)
	if err != nil {
		if !errors.Is(err, store.ErrBusy) {
			e.logger.Error("acquire lease for reaction", "token", tokenID, "error", err)
		}
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			e.logger.Error("release reaction lease", "token", tokenID, "error", err)
		}
	}()

	view, err := e.store.GetView(e.ctx, tokenID)
	if err != nil {
		e.logger.Error("load token view for reaction", "token", tokenID, "error", err)
		return
	}
	now := time.Now().UTC()
	if !view.Token.Active || !view.Config.ReactiveEnabled || view.State.Paused(now) {
		return
	}

	bal, err := e.rpc.Balances(e.ctx,
		view.OpsWallet.Address, view.DevWallet.Address,
		view.Token.MintAddress, view.Token.Decimals)
	if err != nil {
		e.logger.Warn("balance read failed, dropping reaction", "token", tokenID, "error", err)
		return
	}

	d := strategy.React(view.Config, strategy.ObservedSwap{
		Side:      sw.Side,
		AmountSol: types.LamportsToSol(sw.Lamports),
		Signer:    sw.Signer,
		Signature: sw.Signature,
		At:        now,
	}, bal)
	if d.Skip {
		e.logger.Debug("reaction skipped", "token", tokenID, "reason", d.Reason)
		return
	}

	if !e.governor.Allow() {
		e.logger.Debug("reaction dropped: global trade cap", "token", tokenID)
		return
	}

	// Mirrored sells are SOL-denominated; the executor needs a price to
	// convert them into token units.
	var px *types.PriceContext
	if d.Intent.Side == types.Sell {
		px, err = e.oracle.Snapshot(e.ctx, view.Token.MintAddress)
		if err != nil {
			e.logger.Warn("price snapshot failed, dropping sell reaction",
				"token", tokenID, "error", err)
			return
		}
	}

	res, err := e.exec.Trade(e.ctx, *view, d, bal, px)
	if err != nil {
		e.logger.Error("execute reaction", "token", tokenID, "error", err)
		return
	}
	e.logger.Info("reaction settled",
		"token", tokenID,
		"observed_sig", sw.Signature,
		"side", d.Intent.Side,
		"amount_sol", d.Intent.Amount,
		"outcome", res.Outcome,
	)
}
