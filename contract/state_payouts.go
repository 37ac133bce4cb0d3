package contract

import (
	"context"

	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

// payoutResult carries what the caller commits once a transfer went through.
type payoutResult struct {
	block     uint64
	fee       sdk.Amount
	markerKey []byte
}

// payOut sends amount (fee included) to the beneficiary. A marker is stored
// before the transfer; on failure it is removed again, on success the caller
// deletes markerKey in the batch that commits the outcome.
// Must be called with the funds token held and mu released.
func (e *Engine) payOut(ctx context.Context, kind dao.PayoutKind, beneficiary sdk.Address, amount sdk.Amount, proposalID uint32) (*payoutResult, error) {
	fee, err := e.ledger.TransferFee(ctx)
	if err != nil {
		e.metrics.payouts.WithLabelValues(kind.String(), "failed").Inc()
		return nil, newError(KindPaymentFailed, "transfer fee unavailable: %v", err)
	}
	if amount <= fee {
		e.metrics.payouts.WithLabelValues(kind.String(), "failed").Inc()
		return nil, newError(KindPaymentFailed, "amount %s does not cover the transfer fee %s", amount.Format(), fee.Format())
	}

	marker := &dao.PayoutMarker{
		Kind:        kind,
		Beneficiary: beneficiary,
		Amount:      amount,
		ProposalID:  proposalID,
		StartedAt:   e.clock.Now(),
	}
	key := payoutMarkerKey(marker)
	b := &Batch{}
	b.Set(key, dao.EncodePayoutMarker(marker))
	e.mu.Lock()
	err = e.state.Commit(ctx, b)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var memo uint64
	if kind == dao.PayoutProposal {
		memo = uint64(proposalID)
	}
	block, err := e.ledger.Transfer(ctx, e.resolver.AccountOf(beneficiary), amount-fee, fee, memo)
	if err != nil {
		undo := &Batch{}
		undo.Delete(key)
		e.mu.Lock()
		if cerr := e.state.Commit(commitCtx(ctx), undo); cerr != nil {
			e.logger.Error("failed to clear payout marker", "error", cerr)
		}
		e.mu.Unlock()
		e.metrics.payouts.WithLabelValues(kind.String(), "failed").Inc()
		return nil, newError(KindPaymentFailed, "transfer to %s failed: %v", beneficiary, err)
	}
	e.metrics.payouts.WithLabelValues(kind.String(), "sent").Inc()
	return &payoutResult{block: block, fee: fee, markerKey: key}, nil
}

func (e *Engine) inFlightPayoutsLocked(ctx context.Context) ([]dao.PayoutMarker, error) {
	markers := make([]dao.PayoutMarker, 0)
	err := e.state.Scan(ctx, []byte{kPayoutMarker}, func(_, value []byte) error {
		m, err := dao.DecodePayoutMarker(value)
		if err != nil {
			return err
		}
		markers = append(markers, *m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return markers, nil
}

// InFlightPayouts lists transfers that were started but whose outcome was
// never committed locally, e.g. because the process died mid-payout.
func (e *Engine) InFlightPayouts(ctx context.Context) ([]dao.PayoutMarker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlightPayoutsLocked(ctx)
}
