package contract

import (
	"context"
	"math"

	"okinoko_treasury/contract/dao"
)

// -----------------------------------------------------------------------------
// Voting
// -----------------------------------------------------------------------------

// VoteProposal adds the caller's current share balance to the proposal's
// votes. Voting is open up to and including the end instant; every identity
// votes once per proposal. Later share movements do not change a cast vote.
// Example payload: VoteProposal(ctx, dao.ProposalArgs{ProposalID: 3})
func (e *Engine) VoteProposal(ctx context.Context, args dao.ProposalArgs) (*dao.Proposal, error) {
	voter, err := getSenderAddress(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.loadConfigLocked(ctx); err != nil {
		return nil, err
	}
	weight, err := e.getShareBalance(ctx, voter)
	if err != nil {
		return nil, err
	}
	if weight == 0 {
		return nil, newError(KindNotFound, "%s holds no shares", voter)
	}
	voted, err := e.hasVotedLocked(ctx, args.ProposalID, voter)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, newError(KindAlreadyVoted, "%s already voted on proposal %d", voter, args.ProposalID)
	}
	p, err := e.loadProposalLocked(ctx, args.ProposalID)
	if err != nil {
		return nil, err
	}
	if p.Ended || e.clock.Now().After(p.Ends) {
		return nil, newError(KindVotingClosed, "voting on proposal %d is closed", args.ProposalID)
	}

	// shares moved after voting can vote again; saturate instead of wrapping
	if p.Votes > math.MaxUint64-weight {
		p.Votes = math.MaxUint64
	} else {
		p.Votes += weight
	}
	b := &Batch{}
	putProposal(b, p)
	putVoteReceipt(b, p.ID, voter)
	if err := e.state.Commit(ctx, b); err != nil {
		return nil, err
	}
	e.metrics.votes.Inc()
	e.emit(ctx, Event{
		Code:       EventVoteCast,
		ProposalID: proposalRef(p.ID),
		Identity:   voter,
		Amount:     weight,
	})
	return p, nil
}
