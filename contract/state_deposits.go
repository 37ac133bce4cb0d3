package contract

import (
	"context"
	"errors"
	"fmt"

	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

// loadPendingLocked returns the pending order with the given tag, nil when absent.
func (e *Engine) loadPendingLocked(ctx context.Context, tag uint64) (*dao.DepositOrder, error) {
	data, err := e.state.Get(ctx, pendingDepositKey(tag))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending deposit: %w", err)
	}
	return dao.DecodeDepositOrder(data)
}

// putCompletedDeposit stores the order twice: as the identity's latest order
// and in its history, keyed by identity and order id.
func putCompletedDeposit(b *Batch, order *dao.DepositOrder) {
	data := dao.EncodeDepositOrder(order)
	b.Set(depositOrderKey(order.Depositor), data)
	b.Set(depositHistoryKey(order.Depositor, order.ID), data)
}

// LatestDeposit returns the last completed order of addr.
func (e *Engine) LatestDeposit(ctx context.Context, addr sdk.Address) (*dao.DepositOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.loadConfigLocked(ctx); err != nil {
		return nil, err
	}
	data, err := e.state.Get(ctx, depositOrderKey(addr))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, newError(KindNotFound, "no completed deposit for %s", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("load deposit: %w", err)
	}
	return dao.DecodeDepositOrder(data)
}

// DepositHistory lists every completed order of addr, oldest first.
func (e *Engine) DepositHistory(ctx context.Context, addr sdk.Address) ([]dao.DepositOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.loadConfigLocked(ctx); err != nil {
		return nil, err
	}
	orders := make([]dao.DepositOrder, 0)
	err := e.state.Scan(ctx, depositHistoryPrefix(addr), func(_, value []byte) error {
		order, err := dao.DecodeDepositOrder(value)
		if err != nil {
			return err
		}
		orders = append(orders, *order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortDeposits(orders)
	return orders, nil
}

// PendingDeposits lists the orders still waiting for their payment.
func (e *Engine) PendingDeposits(ctx context.Context) ([]dao.DepositOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	orders := make([]dao.DepositOrder, 0)
	err := e.state.Scan(ctx, []byte{kPendingDeposit}, func(_, value []byte) error {
		order, err := dao.DecodeDepositOrder(value)
		if err != nil {
			return err
		}
		orders = append(orders, *order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortDeposits(orders)
	return orders, nil
}
