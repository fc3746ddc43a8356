package executor

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"flywheel-mm/internal/signer"
	"flywheel-mm/pkg/types"
)

// ClaimResult is the settled view of one claim attempt.
type ClaimResult struct {
	Outcome   Outcome
	Status    types.ClaimStatus
	AmountSol string
	Reason    string
}

// Claim runs the fee-claim path for one token: read the claimable position,
// claim it through the dev wallet, then split the proceeds and move the
// user's share into the ops wallet so it compounds as working capital.
//
// The platform fee is truncated at lamport resolution; the user's share
// absorbs the dust. A claim that lands on-chain but whose transfer fails is
// recorded as partial, never silently dropped.
func (e *Executor) Claim(ctx context.Context, view types.TokenView, platformFeePercent float64) (*ClaimResult, error) {
	client := e.router.Claims()

	positions, err := client.ClaimablePositions(ctx, view.DevWallet.Address)
	if err != nil {
		return nil, fmt.Errorf("claimable positions: %w", err)
	}

	var claimableLamports uint64
	for _, p := range positions {
		if p.Mint == view.Token.MintAddress {
			claimableLamports = p.ClaimableLamports
			break
		}
	}

	claimable := types.LamportsToSol(claimableLamports)
	if claimable.LessThan(view.Config.FeeThresholdSol) {
		return &ClaimResult{
			Outcome: OutcomeSkipped,
			Reason:  fmt.Sprintf("claimable %s below threshold %s", claimable, view.Config.FeeThresholdSol),
		}, nil
	}

	txBase58, err := client.BuildClaimTx(ctx, view.DevWallet.Address, view.Token.MintAddress)
	if err != nil {
		return nil, fmt.Errorf("build claim tx: %w", err)
	}

	sig, err := e.signer.SignAndSend(ctx, view.DevWallet.WalletID, txBase58)
	if err != nil {
		if signer.KindOf(err) == signer.KindUnavailable {
			e.logger.Warn("signer unavailable, skipping claim",
				"token", view.Token.TokenID, "error", err)
			return &ClaimResult{Outcome: OutcomeSkipped, Reason: err.Error()}, nil
		}
		reason := err.Error()
		if _, aerr := e.store.AppendClaim(ctx, types.Claim{
			TokenID:   view.Token.TokenID,
			AmountSol: claimable,
			Status:    types.ClaimFailed,
		}); aerr != nil {
			return nil, aerr
		}
		return &ClaimResult{Outcome: OutcomeFailed, Status: types.ClaimFailed, Reason: reason}, nil
	}

	// Split at lamport resolution: the fee rounds down, the user keeps the
	// remainder.
	feeLamports := types.SolToLamports(
		claimable.Mul(decimal.NewFromFloat(platformFeePercent)).Div(decimal.NewFromInt(100)))
	userLamports := claimableLamports - feeLamports
	fee := types.LamportsToSol(feeLamports)
	userReceived := types.LamportsToSol(userLamports)

	claimID, err := e.store.AppendClaim(ctx, types.Claim{
		TokenID:         view.Token.TokenID,
		AmountSol:       claimable,
		PlatformFeeSol:  fee,
		UserReceivedSol: userReceived,
		Signature:       &sig,
		Status:          types.ClaimPending,
	})
	if err != nil {
		return nil, err
	}

	if _, err := e.store.AppendTransaction(ctx, types.Transaction{
		TokenID:   view.Token.TokenID,
		Type:      types.TradeClaim,
		Amount:    claimable,
		Signature: &sig,
		Status:    types.StatusConfirmed,
	}); err != nil {
		return nil, err
	}

	// Proceeds land in the dev wallet; the user's share moves to ops where
	// the flywheel can spend it.
	transferSig, err := e.signer.TransferSol(ctx, view.DevWallet.WalletID, view.OpsWallet.Address, userLamports)
	if err != nil {
		e.logger.Error("post-claim transfer failed, claim left partial",
			"token", view.Token.TokenID, "claim", claimID, "error", err)
		if cerr := e.store.CompleteClaim(ctx, claimID, types.ClaimPartial); cerr != nil {
			return nil, cerr
		}
		return &ClaimResult{
			Outcome:   OutcomeConfirmed,
			Status:    types.ClaimPartial,
			AmountSol: claimable.String(),
			Reason:    err.Error(),
		}, nil
	}

	if _, err := e.store.AppendTransaction(ctx, types.Transaction{
		TokenID:   view.Token.TokenID,
		Type:      types.TradeTransfer,
		Amount:    userReceived,
		Signature: &transferSig,
		Status:    types.StatusConfirmed,
	}); err != nil {
		return nil, err
	}

	if err := e.store.CompleteClaim(ctx, claimID, types.ClaimCompleted); err != nil {
		return nil, err
	}

	e.logger.Info("claim settled",
		"token", view.Token.TokenID,
		"claimed_sol", claimable,
		"platform_fee_sol", fee,
		"user_received_sol", userReceived,
	)

	return &ClaimResult{
		Outcome:   OutcomeConfirmed,
		Status:    types.ClaimCompleted,
		AmountSol: claimable.String(),
	}, nil
}
