package sdk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// --- in-memory payment ledger ---

// MemLedger is a payment ledger living in process memory. Dev mode and tests
// use it in place of the real ledger. Block heights are indexes into the
// transfer log.
type MemLedger struct {
	mu         sync.Mutex
	self       Account
	fee        Amount
	blocks     []Transfer
	failWith   error
	onTransfer func(Transfer)
}

// NewMemLedger creates a ledger whose outbound transfers originate from self.
func NewMemLedger(self Account, fee Amount) *MemLedger {
	return &MemLedger{self: self, fee: fee}
}

// Deposit records an inbound payment and returns the block it landed in.
// Example payload: ledger.Deposit("acct:principal:alice", "acct:contract:treasury", 100, memo)
func (l *MemLedger) Deposit(from, to Account, amount Amount, memo uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(Transfer{From: from, To: to, Amount: amount, Memo: memo})
}

// FailTransfers makes every following outbound transfer fail with err; nil heals the ledger.
func (l *MemLedger) FailTransfers(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failWith = err
}

// OnTransfer registers a hook that runs inside Transfer before it returns, handy
// to run other operations while a payout is in flight.
func (l *MemLedger) OnTransfer(hook func(Transfer)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTransfer = hook
}

// SetFee changes the fee charged on outbound transfers.
func (l *MemLedger) SetFee(fee Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fee = fee
}

// Outbound lists the transfers paid by the ledger owner.
func (l *MemLedger) Outbound() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transfer, 0)
	for _, t := range l.blocks {
		if t.From == l.self {
			out = append(out, t)
		}
	}
	return out
}

func (l *MemLedger) QueryTransfers(ctx context.Context, start, length uint64) ([]Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	size := uint64(len(l.blocks))
	if start >= size {
		return []Transfer{}, nil
	}
	end := start + length
	if end > size || end < start {
		end = size
	}
	out := make([]Transfer, end-start)
	copy(out, l.blocks[start:end])
	return out, nil
}

func (l *MemLedger) Transfer(ctx context.Context, to Account, amount, fee Amount, memo uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	if l.failWith != nil {
		err := l.failWith
		l.mu.Unlock()
		return 0, err
	}
	if fee != l.fee {
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: bad fee %d, expected %d", ErrTransferRejected, fee, l.fee)
	}
	tx := Transfer{From: l.self, To: to, Amount: amount, Fee: fee, Memo: memo}
	tx.Block = l.appendLocked(tx)
	hook := l.onTransfer
	l.mu.Unlock()
	if hook != nil {
		hook(tx)
	}
	return tx.Block, nil
}

func (l *MemLedger) TransferFee(ctx context.Context) (Amount, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fee, nil
}

func (l *MemLedger) appendLocked(tx Transfer) uint64 {
	tx.Block = uint64(len(l.blocks))
	l.blocks = append(l.blocks, tx)
	return tx.Block
}

// --- manual clock ---

// ManualClock only moves when told to. Timers fire from Advance on the
// calling goroutine, in deadline order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock *ManualClock
	at    time.Time
	f     func()
	done  bool
}

// NewManualClock starts the clock at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs every timer that became due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := make([]*manualTimer, 0)
	keep := c.timers[:0]
	for _, t := range c.timers {
		if !t.at.After(now) {
			t.done = true
			due = append(due, t)
		} else {
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// Pending reports how many timers are still armed.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			break
		}
	}
	return true
}
