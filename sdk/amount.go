package sdk

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountDecimals is the number of fractional digits of the ledger currency.
const AmountDecimals = 8

// Amount counts the smallest currency denomination (e8s). Funds and shares
// share the unit: one deposited e8 buys one share.
type Amount uint64

// Format renders the amount as a fixed point string so logs dont lose precision.
// Example payload: sdk.Amount(150000000).Format() == "1.50000000"
func (a Amount) Format() string {
	return a.Decimal().StringFixed(AmountDecimals)
}

// Decimal exposes the amount as a decimal in whole currency units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -AmountDecimals)
}

// ParseAmount reads a whole-unit decimal string ("1.5") into e8s.
// Example payload: sdk.ParseAmount("0.00000010") == 10
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, errors.New("negative amount")
	}
	scaled := d.Shift(AmountDecimals)
	if !scaled.IsInteger() {
		return 0, errors.New("amount has more than 8 fractional digits")
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, errors.New("amount out of range")
	}
	return Amount(bi.Uint64()), nil
}
