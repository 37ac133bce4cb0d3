package dao

import (
	"time"

	"okinoko_treasury/sdk"
)

// DepositStatus tracks a deposit order through the payment pipeline.
type DepositStatus uint8

const (
	DepositStatusUnspecified DepositStatus = 0
	DepositPaymentPending    DepositStatus = 1
	DepositCompleted         DepositStatus = 2
)

// String prints the status the way the ledger host reports it.
// Example payload: dao.DepositCompleted.String()
func (s DepositStatus) String() string {
	switch s {
	case DepositPaymentPending:
		return "PAYMENT_PENDING"
	case DepositCompleted:
		return "COMPLETED"
	default:
		return "UNSPECIFIED"
	}
}

// ProposalState captures a proposal's lifecycle. It is derived from the
// stored flags and the clock, never stored itself.
type ProposalState uint8

const (
	ProposalStateUnspecified ProposalState = 0
	ProposalActive           ProposalState = 1
	ProposalClosed           ProposalState = 2
	ProposalExecuted         ProposalState = 4
	ProposalFailed           ProposalState = 5
)

// String prints the proposal state as lower-case text for events and logs.
// Example payload: dao.ProposalExecuted.String()
func (ps ProposalState) String() string {
	switch ps {
	case ProposalActive:
		return "active"
	case ProposalClosed:
		return "closed"
	case ProposalExecuted:
		return "executed"
	case ProposalFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// GovernanceConfig is the treasury singleton. It is written once by
// initialization and then mutated by nearly every operation.
type GovernanceConfig struct {
	TotalShares      sdk.Amount
	AvailableFunds   sdk.Amount
	LockedFunds      sdk.Amount
	TotalDeposited   sdk.Amount
	ContributionEnds time.Time
	Quorum           uint8
	VoteTime         time.Duration
	NextProposalID   uint32
	InitializedAt    time.Time
}

// DepositOrder reserves an inbound payment until the ledger confirms it.
type DepositOrder struct {
	ID          string
	Amount      sdk.Amount
	Status      DepositStatus
	Depositor   sdk.Address
	PaidAtBlock *uint64
	Memo        uint64
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Proposal asks the treasury to pay Amount to Recipient. It is kept forever
// as an audit record; Ended is the terminal flag.
type Proposal struct {
	ID                  uint32
	Title               string
	Amount              sdk.Amount
	Recipient           sdk.Address
	Creator             sdk.Address
	Votes               sdk.Amount
	CreatedAt           time.Time
	Ends                time.Time
	Executed            bool
	Ended               bool
	TotalSharesSnapshot sdk.Amount
	PaidAtBlock         *uint64
}

// State derives the lifecycle state at the given instant.
func (p *Proposal) State(now time.Time) ProposalState {
	switch {
	case p.Ended && p.Executed:
		return ProposalExecuted
	case p.Ended:
		return ProposalFailed
	case now.After(p.Ends):
		return ProposalClosed
	default:
		return ProposalActive
	}
}

// PayoutKind tells what an outbound transfer pays for.
type PayoutKind uint8

const (
	PayoutRedeem   PayoutKind = 1
	PayoutProposal PayoutKind = 2
)

func (k PayoutKind) String() string {
	switch k {
	case PayoutRedeem:
		return "redeem"
	case PayoutProposal:
		return "proposal"
	default:
		return "unknown"
	}
}

// PayoutMarker is written before an outbound transfer and removed once its
// outcome is committed. A marker that survives a restart means the outcome
// of that transfer is unknown locally.
type PayoutMarker struct {
	Kind        PayoutKind
	Beneficiary sdk.Address
	Amount      sdk.Amount
	ProposalID  uint32
	StartedAt   time.Time
}

type InitArgs struct {
	Quorum           int64
	ContributionDays int64
	VoteMinutes      int64
}

type DepositArgs struct {
	Amount sdk.Amount
}

type CompleteDepositArgs struct {
	OrderID string
	Amount  sdk.Amount
	Block   uint64
	Memo    uint64
}

type RedeemArgs struct {
	Amount sdk.Amount
}

type TransferArgs struct {
	To     sdk.Address
	Amount sdk.Amount
}

type CreateProposalArgs struct {
	Title     string
	Amount    sdk.Amount
	Recipient sdk.Address
}

type ProposalArgs struct {
	ProposalID uint32
}

// ExecuteResult reports how an execution resolved. A rejected proposal is a
// successful call with Executed == false.
type ExecuteResult struct {
	Proposal Proposal
	Executed bool
}

// Shareholder pairs an identity with its share balance.
type Shareholder struct {
	Address sdk.Address
	Shares  sdk.Amount
}
