package contract_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"okinoko_treasury/contract"
	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
	"okinoko_treasury/sdk/mocks"
)

// =============================================================================
// Deposit Orders
// =============================================================================

func TestCreateDepositOrder(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()

	order := tt.order(alice, 100)

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, dao.DepositPaymentPending, order.Status)
	assert.Equal(t, alice, order.Depositor)
	assert.Equal(t, sdk.Amount(100), order.Amount)
	assert.Nil(t, order.PaidAtBlock)
	assert.Equal(t, defaultTimestamp, order.CreatedAt)
	assert.Equal(t, defaultTimestamp.Add(contract.DefaultReservationPeriod), order.ExpiresAt)
	assert.Equal(t, contract.CorrelationTag(order.ID, alice, defaultTimestamp), order.Memo)

	pending, err := tt.engine.PendingDeposits(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, *order, pending[0])
	assert.Equal(t, 1, tt.clock.Pending())
}

func TestCreateDepositOrderValidation(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()

	_, err := tt.engine.CreateDepositOrder(ctxAs(alice), dao.DepositArgs{Amount: 0})
	require.ErrorIs(t, err, contract.ErrInvalidPayload)

	_, err = tt.engine.CreateDepositOrder(context.Background(), dao.DepositArgs{Amount: 10})
	require.ErrorIs(t, err, contract.ErrInvalidPayload, "a call without caller identity is rejected")
}

func TestDistinctOrdersGetDistinctTags(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()

	a := tt.order(alice, 10)
	b := tt.order(alice, 10)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Memo, b.Memo)
}

// =============================================================================
// Completion
// =============================================================================

func TestCompleteDeposit(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()
	order := tt.order(alice, 100)
	block := tt.pay(alice, order)

	done, err := tt.engine.CompleteDeposit(ctxAs(alice), completeArgs(order, block))
	require.NoError(t, err)

	assert.Equal(t, dao.DepositCompleted, done.Status)
	require.NotNil(t, done.PaidAtBlock)
	assert.Equal(t, block, *done.PaidAtBlock)
	assert.Equal(t, order.ID, done.ID)

	latest, err := tt.engine.LatestDeposit(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, done, latest)

	pending, err := tt.engine.PendingDeposits(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Zero(t, tt.clock.Pending(), "completion stops the discard timer")
	assert.Equal(t, []string{contract.EventInitialized, contract.EventDepositCreated, contract.EventDepositDone}, tt.sink.Codes())
}

func TestCompleteDepositTwice(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()
	order := tt.order(alice, 100)
	block := tt.pay(alice, order)

	_, err := tt.engine.CompleteDeposit(ctxAs(alice), completeArgs(order, block))
	require.NoError(t, err)
	_, err = tt.engine.CompleteDeposit(ctxAs(alice), completeArgs(order, block))
	require.ErrorIs(t, err, contract.ErrNotFound)

	assert.Equal(t, sdk.Amount(100), tt.shares(alice))
	tt.assertInvariants()
}

func TestCompleteDepositUnknownOrder(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()
	order := tt.order(alice, 100)
	block := tt.pay(alice, order)

	args := completeArgs(order, block)
	args.OrderID = "not-the-order"
	_, err := tt.engine.CompleteDeposit(ctxAs(alice), args)
	require.ErrorIs(t, err, contract.ErrNotFound)

	args = completeArgs(order, block)
	args.Memo++
	_, err = tt.engine.CompleteDeposit(ctxAs(alice), args)
	require.ErrorIs(t, err, contract.ErrNotFound)

	// the order survived both attempts
	_, err = tt.engine.CompleteDeposit(ctxAs(alice), completeArgs(order, block))
	require.NoError(t, err)
}

// TestCompleteDepositOfAnotherIdentity: a stranger paying with someone
// else's memo cannot claim that order; the owner still completes it.
func TestCompleteDepositOfAnotherIdentity(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()
	order := tt.order(alice, 100)

	strangerBlock := tt.ledger.Deposit(account(bob), account(treasuryID), 1, order.Memo)
	args := completeArgs(order, strangerBlock)
	args.Amount = 1
	_, err := tt.engine.CompleteDeposit(ctxAs(bob), args)
	require.ErrorIs(t, err, contract.ErrNotFound)
	assert.Zero(t, tt.shares(bob))

	done, err := tt.engine.CompleteDeposit(ctxAs(alice), completeArgs(order, tt.pay(alice, order)))
	require.NoError(t, err)
	assert.Equal(t, alice, done.Depositor)
	assert.Equal(t, sdk.Amount(100), tt.shares(alice))
	tt.assertInvariants()
}

func TestCompleteDepositPayloadChecks(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()
	order := tt.order(alice, 100)

	args := completeArgs(order, 0)
	args.Amount = 0
	_, err := tt.engine.CompleteDeposit(ctxAs(alice), args)
	require.ErrorIs(t, err, contract.ErrInvalidPayload)

	args = completeArgs(order, 0)
	args.OrderID = "  "
	_, err = tt.engine.CompleteDeposit(ctxAs(alice), args)
	require.ErrorIs(t, err, contract.ErrInvalidPayload)
}

func TestCompleteDepositVerification(t *testing.T) {
	cases := map[string]func(tt *treasuryTest, order *dao.DepositOrder) dao.CompleteDepositArgs{
		"nothing at the block": func(tt *treasuryTest, order *dao.DepositOrder) dao.CompleteDepositArgs {
			return completeArgs(order, 99)
		},
		"paid by someone else": func(tt *treasuryTest, order *dao.DepositOrder) dao.CompleteDepositArgs {
			return completeArgs(order, tt.pay(bob, order))
		},
		"paid to someone else": func(tt *treasuryTest, order *dao.DepositOrder) dao.CompleteDepositArgs {
			block := tt.ledger.Deposit(account(alice), account(carol), order.Amount, order.Memo)
			return completeArgs(order, block)
		},
		"wrong memo on the payment": func(tt *treasuryTest, order *dao.DepositOrder) dao.CompleteDepositArgs {
			block := tt.ledger.Deposit(account(alice), account(treasuryID), order.Amount, order.Memo+1)
			return completeArgs(order, block)
		},
		"claimed amount differs": func(tt *treasuryTest, order *dao.DepositOrder) dao.CompleteDepositArgs {
			args := completeArgs(order, tt.pay(alice, order))
			args.Amount = 1000
			return args
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			tt := SetupTreasuryTest(t, 0)
			tt.initialize()
			order := tt.order(alice, 100)

			_, err := tt.engine.CompleteDeposit(ctxAs(alice), build(tt, order))
			require.ErrorIs(t, err, contract.ErrVerificationFailed)

			assert.Zero(t, tt.shares(alice))
			assert.Zero(t, tt.config().TotalShares)
			pending, err := tt.engine.PendingDeposits(context.Background())
			require.NoError(t, err)
			require.Len(t, pending, 1, "the order is restored for another attempt")
			assert.Contains(t, tt.sink.Codes(), contract.EventDepositRejected)
		})
	}
}

func TestCompleteDepositRetryAfterFailedVerification(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()
	order := tt.order(alice, 100)

	_, err := tt.engine.CompleteDeposit(ctxAs(alice), completeArgs(order, 42))
	require.ErrorIs(t, err, contract.ErrVerificationFailed)

	block := tt.pay(alice, order)
	_, err = tt.engine.CompleteDeposit(ctxAs(alice), completeArgs(order, block))
	require.NoError(t, err)
	assert.Equal(t, sdk.Amount(100), tt.shares(alice))
}

func TestDepositsAccumulate(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()

	first := tt.deposit(alice, 100)
	tt.clock.Advance(time.Second)
	second := tt.deposit(alice, 25)

	assert.Equal(t, sdk.Amount(125), tt.shares(alice))
	latest, err := tt.engine.LatestDeposit(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	history, err := tt.engine.DepositHistory(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, second.ID, history[1].ID)

	_, err = tt.engine.LatestDeposit(context.Background(), bob)
	require.ErrorIs(t, err, contract.ErrNotFound)
	empty, err := tt.engine.DepositHistory(context.Background(), bob)
	require.NoError(t, err)
	assert.Empty(t, empty)
	tt.assertInvariants()
}

// =============================================================================
// Discard timers
// =============================================================================

func TestPendingOrderExpires(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()
	order := tt.order(alice, 100)
	block := tt.pay(alice, order)

	tt.clock.Advance(contract.DefaultReservationPeriod)

	pending, err := tt.engine.PendingDeposits(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Contains(t, tt.sink.Codes(), contract.EventDepositDiscarded)

	_, err = tt.engine.CompleteDeposit(ctxAs(alice), completeArgs(order, block))
	require.ErrorIs(t, err, contract.ErrNotFound)
	assert.Zero(t, tt.shares(alice))
}

func TestDiscardAfterCompletionIsNoop(t *testing.T) {
	tt := SetupTreasuryTest(t, 0)
	tt.initialize()
	tt.deposit(alice, 100)

	tt.clock.Advance(2 * contract.DefaultReservationPeriod)

	assert.NotContains(t, tt.sink.Codes(), contract.EventDepositDiscarded)
	assert.Equal(t, sdk.Amount(100), tt.shares(alice))
	latest, err := tt.engine.LatestDeposit(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, dao.DepositCompleted, latest.Status)
}

func TestFailedVerificationAfterExpiryDropsOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	clock := sdk.NewManualClock(defaultTimestamp)
	engine, err := contract.New(contract.Options{
		State:    contract.NewMemoryState(),
		Ledger:   ledger,
		Clock:    clock,
		Treasury: treasuryID,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	_, err = engine.Initialize(context.Background(), dao.InitArgs{Quorum: 50, VoteMinutes: 10})
	require.NoError(t, err)

	order, err := engine.CreateDepositOrder(ctxAs(alice), dao.DepositArgs{Amount: 100})
	require.NoError(t, err)

	// the reservation runs out while the ledger is being asked
	ledger.EXPECT().
		QueryTransfers(gomock.Any(), uint64(5), uint64(1)).
		DoAndReturn(func(context.Context, uint64, uint64) ([]sdk.Transfer, error) {
			clock.Advance(contract.DefaultReservationPeriod)
			return nil, errors.New("ledger unavailable")
		})

	_, err = engine.CompleteDeposit(ctxAs(alice), completeArgs(order, 5))
	require.ErrorIs(t, err, contract.ErrVerificationFailed)

	pending, err := engine.PendingDeposits(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending, "an expired order is not restored")
}

// =============================================================================
// Restart
// =============================================================================

func TestStartRearmsPendingOrders(t *testing.T) {
	state := contract.NewMemoryState()
	clock := sdk.NewManualClock(defaultTimestamp)
	ledger := sdk.NewMemLedger(account(treasuryID), 0)
	opts := contract.Options{State: state, Ledger: ledger, Clock: clock, Treasury: treasuryID}

	first, err := contract.New(opts)
	require.NoError(t, err)
	_, err = first.Initialize(context.Background(), dao.InitArgs{Quorum: 50, VoteMinutes: 10})
	require.NoError(t, err)
	live, err := first.CreateDepositOrder(ctxAs(alice), dao.DepositArgs{Amount: 10})
	require.NoError(t, err)
	clock.Advance(90 * time.Second)
	fresh, err := first.CreateDepositOrder(ctxAs(bob), dao.DepositArgs{Amount: 20})
	require.NoError(t, err)
	first.Close()
	assert.Zero(t, clock.Pending())

	// alice's order expires while nothing runs
	clock.Advance(40 * time.Second)

	second, err := contract.New(opts)
	require.NoError(t, err)
	t.Cleanup(second.Close)
	require.NoError(t, second.Start(context.Background()))

	pending, err := second.PendingDeposits(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.ID, pending[0].ID)
	assert.NotEqual(t, live.ID, pending[0].ID)
	assert.Equal(t, 1, clock.Pending())

	block := ledger.Deposit(account(bob), account(treasuryID), 20, fresh.Memo)
	_, err = second.CompleteDeposit(ctxAs(bob), completeArgs(fresh, block))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	shares, err := second.UserShares(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, sdk.Amount(20), shares)
}

func TestStartReportsInFlightPayouts(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedger(ctrl)
	state := contract.NewMemoryState()
	clock := sdk.NewManualClock(defaultTimestamp)
	engine, err := contract.New(contract.Options{State: state, Ledger: ledger, Clock: clock, Treasury: treasuryID})
	require.NoError(t, err)
	_, err = engine.Initialize(context.Background(), dao.InitArgs{Quorum: 50, VoteMinutes: 10})
	require.NoError(t, err)

	order, err := engine.CreateDepositOrder(ctxAs(alice), dao.DepositArgs{Amount: 100})
	require.NoError(t, err)
	ledger.EXPECT().QueryTransfers(gomock.Any(), uint64(3), uint64(1)).Return([]sdk.Transfer{{
		Block:  3,
		From:   account(alice),
		To:     account(treasuryID),
		Amount: 100,
		Memo:   order.Memo,
	}}, nil)
	_, err = engine.CompleteDeposit(ctxAs(alice), completeArgs(order, 3))
	require.NoError(t, err)

	// the process "dies" while the transfer is in flight
	inFlight := make(chan []dao.PayoutMarker, 1)
	ledger.EXPECT().TransferFee(gomock.Any()).Return(sdk.Amount(0), nil)
	ledger.EXPECT().
		Transfer(gomock.Any(), account(alice), sdk.Amount(30), sdk.Amount(0), uint64(0)).
		DoAndReturn(func(ctx context.Context, _ sdk.Account, _, _ sdk.Amount, _ uint64) (uint64, error) {
			restarted, err := contract.New(contract.Options{State: state, Ledger: ledger, Clock: clock, Treasury: treasuryID})
			require.NoError(t, err)
			defer restarted.Close()
			require.NoError(t, restarted.Start(ctx))
			markers, err := restarted.InFlightPayouts(ctx)
			require.NoError(t, err)
			inFlight <- markers
			return 4, nil
		})

	_, err = engine.RedeemShares(ctxAs(alice), dao.RedeemArgs{Amount: 30})
	require.NoError(t, err)

	markers := <-inFlight
	require.Len(t, markers, 1)
	assert.Equal(t, dao.PayoutRedeem, markers[0].Kind)
	assert.Equal(t, alice, markers[0].Beneficiary)
	assert.Equal(t, sdk.Amount(30), markers[0].Amount)

	left, err := engine.InFlightPayouts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left, "a committed payout clears its marker")
	engine.Close()
}
