package contract_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okinoko_treasury/contract"
	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

const (
	treasuryID = sdk.Address("contract:treasury")
	alice      = sdk.Address("principal:alice")
	bob        = sdk.Address("principal:bob")
	carol      = sdk.Address("principal:carol")
	outsider   = sdk.Address("principal:outsider")
)

var defaultTimestamp = time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)

// recordingSink keeps every event the engine emits.
type recordingSink struct {
	mu     sync.Mutex
	events []contract.Event
}

func (s *recordingSink) Record(_ context.Context, ev contract.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		codes = append(codes, ev.Code)
	}
	return codes
}

type treasuryTest struct {
	t        *testing.T
	engine   *contract.Engine
	state    *contract.MemoryState
	ledger   *sdk.MemLedger
	clock    *sdk.ManualClock
	registry *prometheus.Registry
	sink     *recordingSink
}

// SetupTreasuryTest builds an engine on in-memory state, a manual clock and
// an in-memory ledger charging fee on outbound transfers.
func SetupTreasuryTest(t *testing.T, fee sdk.Amount) *treasuryTest {
	t.Helper()
	tt := &treasuryTest{
		t:        t,
		state:    contract.NewMemoryState(),
		ledger:   sdk.NewMemLedger(account(treasuryID), fee),
		clock:    sdk.NewManualClock(defaultTimestamp),
		registry: prometheus.NewRegistry(),
		sink:     &recordingSink{},
	}
	engine, err := contract.New(contract.Options{
		State:        tt.state,
		Ledger:       tt.ledger,
		Clock:        tt.clock,
		Treasury:     treasuryID,
		PromRegistry: tt.registry,
		Sink:         tt.sink,
	})
	require.NoError(t, err)
	tt.engine = engine
	t.Cleanup(engine.Close)
	return tt
}

func ctxAs(addr sdk.Address) context.Context {
	return contract.WithCaller(context.Background(), addr)
}

func account(addr sdk.Address) sdk.Account {
	return sdk.DefaultResolver{}.AccountOf(addr)
}

// initialize runs Initialize with quorum 50, one contribution day and ten vote minutes.
func (tt *treasuryTest) initialize() *dao.GovernanceConfig {
	tt.t.Helper()
	cfg, err := tt.engine.Initialize(context.Background(), dao.InitArgs{Quorum: 50, ContributionDays: 1, VoteMinutes: 10})
	require.NoError(tt.t, err)
	return cfg
}

// order creates a pending deposit order for who.
func (tt *treasuryTest) order(who sdk.Address, amount sdk.Amount) *dao.DepositOrder {
	tt.t.Helper()
	order, err := tt.engine.CreateDepositOrder(ctxAs(who), dao.DepositArgs{Amount: amount})
	require.NoError(tt.t, err)
	return order
}

// pay sends the payment for order to the treasury account and returns its block.
func (tt *treasuryTest) pay(who sdk.Address, order *dao.DepositOrder) uint64 {
	return tt.ledger.Deposit(account(who), account(treasuryID), order.Amount, order.Memo)
}

func completeArgs(order *dao.DepositOrder, block uint64) dao.CompleteDepositArgs {
	return dao.CompleteDepositArgs{OrderID: order.ID, Amount: order.Amount, Block: block, Memo: order.Memo}
}

// deposit runs the whole pipeline: order, payment, completion.
func (tt *treasuryTest) deposit(who sdk.Address, amount sdk.Amount) *dao.DepositOrder {
	tt.t.Helper()
	order := tt.order(who, amount)
	block := tt.pay(who, order)
	done, err := tt.engine.CompleteDeposit(ctxAs(who), completeArgs(order, block))
	require.NoError(tt.t, err)
	return done
}

func (tt *treasuryTest) propose(who sdk.Address, amount sdk.Amount, recipient sdk.Address) *dao.Proposal {
	tt.t.Helper()
	p, err := tt.engine.CreateProposal(ctxAs(who), dao.CreateProposalArgs{Title: "fund the roof", Amount: amount, Recipient: recipient})
	require.NoError(tt.t, err)
	return p
}

func (tt *treasuryTest) vote(who sdk.Address, id uint32) *dao.Proposal {
	tt.t.Helper()
	p, err := tt.engine.VoteProposal(ctxAs(who), dao.ProposalArgs{ProposalID: id})
	require.NoError(tt.t, err)
	return p
}

func (tt *treasuryTest) config() *dao.GovernanceConfig {
	tt.t.Helper()
	cfg, err := tt.engine.GovernanceConfig(context.Background())
	require.NoError(tt.t, err)
	return cfg
}

func (tt *treasuryTest) shares(who sdk.Address) sdk.Amount {
	tt.t.Helper()
	n, err := tt.engine.UserShares(context.Background(), who)
	require.NoError(tt.t, err)
	return n
}

// assertInvariants checks that balances sum to the total and that no more
// funds are tracked than were ever deposited.
func (tt *treasuryTest) assertInvariants() {
	tt.t.Helper()
	cfg := tt.config()
	holders, err := tt.engine.Shareholders(context.Background())
	require.NoError(tt.t, err)
	var sum sdk.Amount
	for _, h := range holders {
		assert.NotZero(tt.t, h.Shares, "zero balance stored for %s", h.Address)
		sum += h.Shares
	}
	assert.Equal(tt.t, cfg.TotalShares, sum, "shares do not add up")
	assert.LessOrEqual(tt.t, uint64(cfg.AvailableFunds+cfg.LockedFunds), uint64(cfg.TotalDeposited), "more funds tracked than deposited")
}
