// claims.go is the fee-claim scheduler. It runs on its own interval,
// independent of trading: a token paused by trade failures still gets its
// fees harvested unless honor_pause is configured.
package engine

import (
	"context"
	"errors"
	"time"

	"flywheel-mm/internal/executor"
	"flywheel-mm/internal/store"
)

func (e *Engine) claimsLoop() {
	ticker := time.NewTicker(e.cfg.Claims.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.claimsTick()
		}
	}
}

func (e *Engine) claimsTick() {
	views, err := e.store.SelectClaimEligible(e.ctx)
	if err != nil {
		e.logger.Error("select claim-eligible tokens", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, v := range views {
		if e.ctx.Err() != nil {
			return
		}
		if e.cfg.Claims.HonorPause && v.State.Paused(now) {
			continue
		}

		select {
		case <-e.ctx.Done():
			return
		case e.sem <- struct{}{}:
		}

		e.wg.Add(1)
		go func(tokenID string) {
			defer e.wg.Done()
			defer func() { <-e.sem }()
			e.claimToken(tokenID)
		}(v.Token.TokenID)
	}
}

func (e *Engine) claimToken(tokenID string) {
	// Claims share the per-token lease with trading so claim settlement and
	// a concurrent trade never interleave state writes.
	lease, err := e.store.AcquireLease(e.ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrBusy) {
			return
		}
		e.logger.Error("acquire lease for claim", "token", tokenID, "error", err)
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			e.logger.Error("release claim lease", "token", tokenID, "error", err)
		}
	}()

	view, err := e.store.GetView(e.ctx, tokenID)
	if err != nil {
		e.logger.Error("load token view for claim", "token", tokenID, "error", err)
		return
	}
	if !view.Token.Active || !view.Config.AutoClaimEnabled {
		return
	}

	res, err := e.exec.Claim(e.ctx, *view, e.cfg.Claims.PlatformFeePercent)
	if err != nil {
		e.logger.Error("claim", "token", tokenID, "error", err)
		return
	}
	if res.Outcome == executor.OutcomeSkipped {
		e.logger.Debug("claim skipped", "token", tokenID, "reason", res.Reason)
		return
	}
	e.logger.Info("claim processed",
		"token", tokenID,
		"status", res.Status,
		"amount_sol", res.AmountSol,
	)
}
