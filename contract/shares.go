package contract

import (
	"context"

	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

// -----------------------------------------------------------------------------
// Shares Ledger
// -----------------------------------------------------------------------------

// UserShares returns the share balance of addr, zero when it holds none or
// the treasury is not initialized yet.
func (e *Engine) UserShares(ctx context.Context, addr sdk.Address) (sdk.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getShareBalance(ctx, addr)
}

// Shareholders lists every identity holding shares.
func (e *Engine) Shareholders(ctx context.Context) ([]dao.Shareholder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.loadConfigLocked(ctx); err != nil {
		return nil, err
	}
	return e.loadShareholders(ctx)
}

// TransferShares moves ownership from the caller to args.To. Totals and
// funds are untouched.
// Example payload: TransferShares(ctx, dao.TransferArgs{To: "principal:bob", Amount: 25})
func (e *Engine) TransferShares(ctx context.Context, args dao.TransferArgs) error {
	caller, err := getSenderAddress(ctx)
	if err != nil {
		return err
	}
	if err := e.lockFunds(ctx); err != nil {
		return err
	}
	defer e.unlockFunds()
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.loadConfigLocked(ctx); err != nil {
		return err
	}
	if !args.To.IsValid() {
		return newError(KindInvalidPayload, "invalid recipient %q", args.To)
	}
	if args.Amount == 0 {
		return newError(KindInvalidPayload, "amount must be positive")
	}
	from, err := e.getShareBalance(ctx, caller)
	if err != nil {
		return err
	}
	if from == 0 {
		return newError(KindNotFound, "%s holds no shares", caller)
	}
	if from < args.Amount {
		return newError(KindInsufficientShares, "balance %s below %s", from.Format(), args.Amount.Format())
	}
	if args.To == caller {
		return nil
	}
	to, err := e.getShareBalance(ctx, args.To)
	if err != nil {
		return err
	}

	b := &Batch{}
	putShareBalance(b, caller, from-args.Amount)
	putShareBalance(b, args.To, to+args.Amount)
	if err := e.state.Commit(ctx, b); err != nil {
		return err
	}
	e.emit(ctx, Event{
		Code:         EventSharesTransferred,
		Identity:     caller,
		Counterparty: args.To,
		Amount:       args.Amount,
	})
	return nil
}

// RedeemShares pays the caller amount worth of funds (fee deducted from the
// payout) and burns the same amount of shares. Nothing is debited unless
// the ledger accepted the transfer. Returns the block of the payout.
// Example payload: RedeemShares(ctx, dao.RedeemArgs{Amount: 30})
func (e *Engine) RedeemShares(ctx context.Context, args dao.RedeemArgs) (uint64, error) {
	caller, err := getSenderAddress(ctx)
	if err != nil {
		return 0, err
	}
	if err := e.lockFunds(ctx); err != nil {
		return 0, err
	}
	defer e.unlockFunds()

	e.mu.Lock()
	cfg, err := e.loadConfigLocked(ctx)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	if args.Amount == 0 {
		e.mu.Unlock()
		return 0, newError(KindInvalidPayload, "amount must be positive")
	}
	balance, err := e.getShareBalance(ctx, caller)
	e.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if balance == 0 {
		return 0, newError(KindNotFound, "%s holds no shares", caller)
	}
	if balance < args.Amount {
		return 0, newError(KindInsufficientShares, "balance %s below %s", balance.Format(), args.Amount.Format())
	}
	if cfg.AvailableFunds < args.Amount {
		return 0, newError(KindInsufficientFunds, "available %s below %s", cfg.AvailableFunds.Format(), args.Amount.Format())
	}

	paid, err := e.payOut(ctx, dao.PayoutRedeem, caller, args.Amount, 0)
	if err != nil {
		e.emit(ctx, Event{Code: EventPaymentFailed, Identity: caller, Amount: args.Amount, Result: "redeem"})
		return 0, err
	}

	// reload under the token; no other fund operation ran meanwhile
	cctx := commitCtx(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err = e.loadConfigLocked(cctx)
	if err != nil {
		return 0, err
	}
	balance, err = e.getShareBalance(cctx, caller)
	if err != nil {
		return 0, err
	}
	cfg.TotalShares -= args.Amount
	cfg.AvailableFunds -= args.Amount
	b := &Batch{}
	putConfig(b, cfg)
	putShareBalance(b, caller, balance-args.Amount)
	b.Delete(paid.markerKey)
	if err := e.state.Commit(cctx, b); err != nil {
		return 0, err
	}
	e.metrics.observeConfig(cfg)
	e.emit(ctx, Event{Code: EventSharesRedeemed, Identity: caller, Amount: args.Amount})
	return paid.block, nil
}
