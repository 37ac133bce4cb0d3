package contract

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

var errEngineClosed = errors.New("engine closed")

// DefaultReservationPeriod is how long a deposit order waits for its payment.
const DefaultReservationPeriod = 120 * time.Second

// Options wires the engine to its collaborators. State, Ledger and Treasury
// are required.
type Options struct {
	State    State
	Ledger   sdk.Ledger
	Clock    sdk.Clock
	Resolver sdk.AccountResolver
	// Treasury is the identity of the treasury itself; its account receives
	// deposits and pays out.
	Treasury          sdk.Address
	Logger            *slog.Logger
	PromRegistry      prometheus.Registerer
	Sink              EventSink
	ReservationPeriod time.Duration
}

// Engine runs the treasury state machine.
//
// mu guards every synchronous section. funds is the exclusion token of the
// fund-affecting operations; it is acquired before mu and stays held while
// the ledger is called with mu released, so getters, votes, new deposit
// orders and discard timers keep running during a payout.
type Engine struct {
	mu          sync.Mutex
	funds       *semaphore.Weighted
	state       State
	ledger      sdk.Ledger
	clock       sdk.Clock
	resolver    sdk.AccountResolver
	treasury    sdk.Address
	logger      *slog.Logger
	sink        EventSink
	metrics     *engineMetrics
	reservation time.Duration
	timers      map[uint64]sdk.Timer
	closed      bool
}

func New(opts Options) (*Engine, error) {
	if opts.State == nil {
		return nil, errors.New("engine: state is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("engine: ledger is required")
	}
	if opts.Treasury == "" {
		return nil, errors.New("engine: treasury identity is required")
	}
	e := &Engine{
		funds:       semaphore.NewWeighted(1),
		state:       opts.State,
		ledger:      opts.Ledger,
		clock:       opts.Clock,
		resolver:    opts.Resolver,
		treasury:    opts.Treasury,
		logger:      opts.Logger,
		sink:        opts.Sink,
		metrics:     newEngineMetrics(opts.PromRegistry),
		reservation: opts.ReservationPeriod,
		timers:      make(map[uint64]sdk.Timer),
	}
	if e.clock == nil {
		e.clock = sdk.SystemClock{}
	}
	if e.resolver == nil {
		e.resolver = sdk.DefaultResolver{}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	e.logger = e.logger.With("component", "treasury")
	if e.reservation <= 0 {
		e.reservation = DefaultReservationPeriod
	}
	return e, nil
}

// Start recovers from a previous run: pending orders get their discard
// timers back (expired ones are dropped right away) and payouts whose
// outcome was never committed are reported.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errEngineClosed
	}
	now := e.clock.Now()
	expired := &Batch{}
	err := e.state.Scan(ctx, []byte{kPendingDeposit}, func(key, value []byte) error {
		order, err := dao.DecodeDepositOrder(value)
		if err != nil {
			return err
		}
		if !now.Before(order.ExpiresAt) {
			expired.Delete(key)
			e.logger.Debug("dropping expired deposit order", "order", order.ID)
			return nil
		}
		e.armDiscardLocked(order.Memo, order.ExpiresAt.Sub(now))
		return nil
	})
	if err != nil {
		return err
	}
	if expired.Len() > 0 {
		if err := e.state.Commit(ctx, expired); err != nil {
			return err
		}
		e.metrics.deposits.WithLabelValues("discarded").Add(float64(expired.Len()))
	}
	markers, err := e.inFlightPayoutsLocked(ctx)
	if err != nil {
		return err
	}
	for _, m := range markers {
		e.logger.Warn(
			"payout outcome unknown, reconcile with the ledger",
			"kind", m.Kind.String(),
			"beneficiary", m.Beneficiary.String(),
			"amount", m.Amount.Format(),
			"proposal", m.ProposalID,
			"started", m.StartedAt,
		)
	}
	if cfg, err := e.loadConfigLocked(ctx); err == nil {
		e.metrics.observeConfig(cfg)
	}
	e.logger.Info("treasury engine started", "pending_deposits", len(e.timers), "unresolved_payouts", len(markers))
	return nil
}

// Close stops every discard timer. The state is owned by the caller.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for tag, t := range e.timers {
		t.Stop()
		delete(e.timers, tag)
	}
	e.metrics.pendingDeposits.Set(0)
}

// TreasuryAccount is the ledger account deposits must be paid to.
func (e *Engine) TreasuryAccount() sdk.Account {
	return e.resolver.AccountOf(e.treasury)
}

// lockFunds takes the exclusion token of fund-affecting operations.
func (e *Engine) lockFunds(ctx context.Context) error {
	return e.funds.Acquire(ctx, 1)
}

func (e *Engine) unlockFunds() {
	e.funds.Release(1)
}

// commitCtx keeps post-payment commits alive when the caller gives up: the
// ledger already moved the money.
func commitCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
