package contract

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

// -----------------------------------------------------------------------------
// Deposit Pipeline
// -----------------------------------------------------------------------------

// CreateDepositOrder reserves a pending order for the caller. The returned
// order's Memo is the tag the payment must carry.
// Example payload: CreateDepositOrder(ctx, dao.DepositArgs{Amount: 100})
func (e *Engine) CreateDepositOrder(ctx context.Context, args dao.DepositArgs) (*dao.DepositOrder, error) {
	caller, err := getSenderAddress(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errEngineClosed
	}
	if _, err := e.loadConfigLocked(ctx); err != nil {
		return nil, err
	}
	if args.Amount == 0 {
		return nil, newError(KindInvalidPayload, "amount must be positive")
	}

	now := e.clock.Now()
	var order *dao.DepositOrder
	// a tag collision with a live order is astronomically unlikely; draw again
	for attempt := 0; attempt < 3 && order == nil; attempt++ {
		id := uuid.NewString()
		tag := CorrelationTag(id, caller, now)
		existing, err := e.loadPendingLocked(ctx, tag)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		order = &dao.DepositOrder{
			ID:        id,
			Amount:    args.Amount,
			Status:    dao.DepositPaymentPending,
			Depositor: caller,
			Memo:      tag,
			CreatedAt: now,
			ExpiresAt: now.Add(e.reservation),
		}
	}
	if order == nil {
		return nil, errors.New("could not allocate a correlation tag")
	}

	b := &Batch{}
	b.Set(pendingDepositKey(order.Memo), dao.EncodeDepositOrder(order))
	if err := e.state.Commit(ctx, b); err != nil {
		return nil, err
	}
	e.armDiscardLocked(order.Memo, e.reservation)
	e.metrics.deposits.WithLabelValues("created").Inc()
	e.emit(ctx, Event{Code: EventDepositCreated, Identity: caller, OrderID: order.ID, Amount: order.Amount, At: now})
	return order, nil
}

// CompleteDeposit turns a paid order into shares. The pending order is
// claimed first so a second completion of the same order fails NotFound;
// the ledger must then show a transfer at args.Block carrying the tag, sent
// from the caller's account to the treasury account for exactly args.Amount.
// Nothing is credited unless that check passes.
// Example payload: CompleteDeposit(ctx, dao.CompleteDepositArgs{OrderID: id, Amount: 100, Block: 12, Memo: tag})
func (e *Engine) CompleteDeposit(ctx context.Context, args dao.CompleteDepositArgs) (*dao.DepositOrder, error) {
	caller, err := getSenderAddress(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.lockFunds(ctx); err != nil {
		return nil, err
	}
	defer e.unlockFunds()

	e.mu.Lock()
	cfg, err := e.loadConfigLocked(ctx)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if args.Amount == 0 || strings.TrimSpace(args.OrderID) == "" {
		e.mu.Unlock()
		return nil, newError(KindInvalidPayload, "order id and a positive amount are required")
	}
	if cfg.TotalShares+args.Amount < cfg.TotalShares || cfg.TotalDeposited+args.Amount < cfg.TotalDeposited {
		e.mu.Unlock()
		return nil, newError(KindInvalidPayload, "amount overflows the treasury totals")
	}
	order, err := e.loadPendingLocked(ctx, args.Memo)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if order == nil || order.ID != args.OrderID || order.Depositor != caller {
		e.mu.Unlock()
		return nil, newError(KindNotFound, "no pending order %s of %s for memo %d", args.OrderID, caller, args.Memo)
	}
	claim := &Batch{}
	claim.Delete(pendingDepositKey(args.Memo))
	if err := e.state.Commit(ctx, claim); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	if verr := e.verifyTransfer(ctx, caller, args); verr != nil {
		e.restorePending(commitCtx(ctx), order)
		e.metrics.deposits.WithLabelValues("rejected").Inc()
		e.emit(ctx, Event{Code: EventDepositRejected, Identity: caller, OrderID: order.ID, Amount: args.Amount})
		return nil, verr
	}

	cctx := commitCtx(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropTimerLocked(args.Memo)
	cfg, err = e.loadConfigLocked(cctx)
	if err != nil {
		return nil, err
	}
	balance, err := e.getShareBalance(cctx, caller)
	if err != nil {
		return nil, err
	}
	cfg.TotalShares += args.Amount
	cfg.AvailableFunds += args.Amount
	cfg.TotalDeposited += args.Amount
	block := args.Block
	order.Status = dao.DepositCompleted
	order.PaidAtBlock = &block
	order.Amount = args.Amount

	b := &Batch{}
	putConfig(b, cfg)
	putShareBalance(b, caller, balance+args.Amount)
	putCompletedDeposit(b, order)
	if err := e.state.Commit(cctx, b); err != nil {
		return nil, err
	}
	e.metrics.deposits.WithLabelValues("completed").Inc()
	e.metrics.observeConfig(cfg)
	e.emit(ctx, Event{Code: EventDepositDone, Identity: caller, OrderID: order.ID, Amount: args.Amount})
	return order, nil
}

// verifyTransfer looks for the payment at the claimed block. The tag alone is
// never trusted: sender, receiver and amount must match as well.
func (e *Engine) verifyTransfer(ctx context.Context, caller sdk.Address, args dao.CompleteDepositArgs) error {
	transfers, err := e.ledger.QueryTransfers(ctx, args.Block, 1)
	if err != nil {
		return newError(KindVerificationFailed, "ledger query at block %d: %v", args.Block, err)
	}
	from := e.resolver.AccountOf(caller)
	to := e.TreasuryAccount()
	for _, t := range transfers {
		if t.Memo == args.Memo && t.From == from && t.To == to && t.Amount == args.Amount {
			return nil
		}
	}
	return newError(KindVerificationFailed, "no matching transfer at block %d", args.Block)
}

// restorePending puts a claimed order back after a failed verification, so
// the depositor can retry with the right block, unless its reservation ran
// out in the meantime.
func (e *Engine) restorePending(ctx context.Context, order *dao.DepositOrder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.clock.Now().Before(order.ExpiresAt) {
		e.dropTimerLocked(order.Memo)
		return
	}
	b := &Batch{}
	b.Set(pendingDepositKey(order.Memo), dao.EncodeDepositOrder(order))
	if err := e.state.Commit(ctx, b); err != nil {
		e.logger.Error("failed to restore pending deposit", "order", order.ID, "error", err)
	}
}

// -----------------------------------------------------------------------------
// Discard timers
// -----------------------------------------------------------------------------

func (e *Engine) armDiscardLocked(tag uint64, after time.Duration) {
	if e.closed {
		return
	}
	if old, ok := e.timers[tag]; ok {
		old.Stop()
	}
	e.timers[tag] = e.clock.AfterFunc(after, func() { e.discardPending(tag) })
	e.metrics.pendingDeposits.Set(float64(len(e.timers)))
}

func (e *Engine) dropTimerLocked(tag uint64) {
	if t, ok := e.timers[tag]; ok {
		t.Stop()
		delete(e.timers, tag)
		e.metrics.pendingDeposits.Set(float64(len(e.timers)))
	}
}

// discardPending is the fire-once eviction. It only removes a still present
// pending entry; a completed or already discarded order makes it a no-op.
func (e *Engine) discardPending(tag uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.timers, tag)
	e.metrics.pendingDeposits.Set(float64(len(e.timers)))
	if e.closed {
		return
	}
	ctx := context.Background()
	order, err := e.loadPendingLocked(ctx, tag)
	if err != nil {
		e.logger.Error("failed to load pending deposit", "memo", tag, "error", err)
		return
	}
	if order == nil {
		return
	}
	if now := e.clock.Now(); now.Before(order.ExpiresAt) {
		e.armDiscardLocked(tag, order.ExpiresAt.Sub(now))
		return
	}
	b := &Batch{}
	b.Delete(pendingDepositKey(tag))
	if err := e.state.Commit(ctx, b); err != nil {
		e.logger.Error("failed to discard pending deposit", "order", order.ID, "error", err)
		return
	}
	e.metrics.deposits.WithLabelValues("discarded").Inc()
	e.emit(ctx, Event{Code: EventDepositDiscarded, Identity: order.Depositor, OrderID: order.ID, Amount: order.Amount})
}

func sortDeposits(orders []dao.DepositOrder) {
	slices.SortFunc(orders, func(a, b dao.DepositOrder) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
