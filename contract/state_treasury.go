package contract

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

// getShareBalance retrieves the share balance of an identity, zero when absent.
func (e *Engine) getShareBalance(ctx context.Context, addr sdk.Address) (sdk.Amount, error) {
	data, err := e.state.Get(ctx, shareBalanceKey(addr))
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load shares of %s: %w", addr, err)
	}
	balance, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid share balance of %s: %w", addr, err)
	}
	return sdk.Amount(balance), nil
}

// putShareBalance stages the new balance; zero removes the entry so no
// dangling zero balances exist.
func putShareBalance(b *Batch, addr sdk.Address, balance sdk.Amount) {
	key := shareBalanceKey(addr)
	if balance == 0 {
		b.Delete(key)
		return
	}
	b.Set(key, []byte(strconv.FormatUint(uint64(balance), 10)))
}

// loadShareholders lists every non-zero balance, sorted by address.
func (e *Engine) loadShareholders(ctx context.Context) ([]dao.Shareholder, error) {
	holders := make([]dao.Shareholder, 0)
	err := e.state.Scan(ctx, []byte{kShareBalance}, func(key, value []byte) error {
		addr, _, ok := unpackAddress(key[1:])
		if !ok {
			return fmt.Errorf("malformed share key %x", key)
		}
		balance, err := strconv.ParseUint(string(value), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid share balance of %s: %w", addr, err)
		}
		holders = append(holders, dao.Shareholder{Address: addr, Shares: sdk.Amount(balance)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(holders, func(a, b dao.Shareholder) int {
		return strings.Compare(a.Address.String(), b.Address.String())
	})
	return holders, nil
}
