package sdk

import (
	"context"
	"errors"
	"time"
)

// ErrTransferRejected is returned by ledgers that refuse an outbound transfer.
var ErrTransferRejected = errors.New("transfer rejected")

// Transfer is one record of the payment ledger.
type Transfer struct {
	Block  uint64
	From   Account
	To     Account
	Amount Amount
	Fee    Amount
	Memo   uint64
}

//go:generate mockgen -destination=mocks/mock_ledger.go -package=mocks okinoko_treasury/sdk Ledger

// Ledger is the external payment ledger. It is the only source of truth for
// inbound payments and the only way funds leave the treasury.
type Ledger interface {
	// QueryTransfers returns the transfers recorded in blocks
	// [start, start+length).
	QueryTransfers(ctx context.Context, start, length uint64) ([]Transfer, error)
	// Transfer pays amount to the destination, charging fee on top. It
	// returns the block the transfer landed in.
	Transfer(ctx context.Context, to Account, amount, fee Amount, memo uint64) (uint64, error)
	// TransferFee reports the fee the ledger currently charges.
	TransferFee(ctx context.Context) (Amount, error)
}

// Timer is a fire-once deferred action.
type Timer interface {
	// Stop cancels the timer and reports whether it was still pending.
	Stop() bool
}

// Clock supplies the current time and deferred actions to the engine.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
