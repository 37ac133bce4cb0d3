package contract

import (
	"context"
	"math/bits"
	"strings"
	"time"

	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

// -----------------------------------------------------------------------------
// Create Proposal
// -----------------------------------------------------------------------------

// CreateProposal opens a disbursement proposal. The amount moves from
// available to locked funds right away, so open proposals can never promise
// more than the treasury holds.
// Example payload: CreateProposal(ctx, dao.CreateProposalArgs{Title: "roof", Amount: 40, Recipient: "principal:carol"})
func (e *Engine) CreateProposal(ctx context.Context, args dao.CreateProposalArgs) (*dao.Proposal, error) {
	caller, err := getSenderAddress(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.lockFunds(ctx); err != nil {
		return nil, err
	}
	defer e.unlockFunds()
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.loadConfigLocked(ctx)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return nil, newError(KindInvalidPayload, "title missing")
	}
	if args.Amount == 0 {
		return nil, newError(KindInvalidPayload, "amount must be positive")
	}
	if !args.Recipient.IsValid() {
		return nil, newError(KindInvalidPayload, "invalid recipient %q", args.Recipient)
	}
	shares, err := e.getShareBalance(ctx, caller)
	if err != nil {
		return nil, err
	}
	if shares == 0 {
		return nil, newError(KindNotFound, "%s holds no shares", caller)
	}
	if cfg.AvailableFunds < args.Amount {
		return nil, newError(KindInsufficientFunds, "available %s below %s", cfg.AvailableFunds.Format(), args.Amount.Format())
	}
	if cfg.NextProposalID == ^uint32(0) {
		return nil, newError(KindInvalidConfig, "proposal ids exhausted")
	}

	now := e.clock.Now()
	p := &dao.Proposal{
		ID:                  cfg.NextProposalID,
		Title:               title,
		Amount:              args.Amount,
		Recipient:           args.Recipient,
		Creator:             caller,
		CreatedAt:           now,
		Ends:                now.Add(cfg.VoteTime),
		TotalSharesSnapshot: cfg.TotalShares,
	}
	cfg.AvailableFunds -= args.Amount
	cfg.LockedFunds += args.Amount
	cfg.NextProposalID++

	b := &Batch{}
	putConfig(b, cfg)
	putProposal(b, p)
	if err := e.state.Commit(ctx, b); err != nil {
		return nil, err
	}
	e.metrics.proposals.WithLabelValues("created").Inc()
	e.metrics.observeConfig(cfg)
	e.emit(ctx, Event{
		Code:         EventProposalCreated,
		ProposalID:   proposalRef(p.ID),
		Identity:     caller,
		Counterparty: p.Recipient,
		Amount:       p.Amount,
		At:           now,
	})
	return p, nil
}

// -----------------------------------------------------------------------------
// Execute Proposal
// -----------------------------------------------------------------------------

// quorumReached reports votes*100/total >= quorum with floor division and
// no overflow. An empty treasury never reaches quorum.
func quorumReached(votes, total uint64, quorum uint8) bool {
	if total == 0 {
		return false
	}
	hi, lo := bits.Mul64(votes, 100)
	if hi >= total {
		// quotient does not even fit 64 bits
		return true
	}
	pct, _ := bits.Div64(hi, lo, total)
	return pct >= uint64(quorum)
}

// ExecuteProposal resolves a proposal once voting ended. A passed proposal
// pays the recipient; if that transfer fails the proposal stays untouched
// (not ended, funds locked) and the call can be repeated. A rejected proposal
// returns its funds to the available pool and the call succeeds with
// Executed == false.
// Example payload: ExecuteProposal(ctx, dao.ProposalArgs{ProposalID: 0})
func (e *Engine) ExecuteProposal(ctx context.Context, args dao.ProposalArgs) (*dao.ExecuteResult, error) {
	caller, err := getSenderAddress(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.lockFunds(ctx); err != nil {
		return nil, err
	}
	defer e.unlockFunds()

	e.mu.Lock()
	cfg, p, err := e.checkExecutableLocked(ctx, caller, args.ProposalID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	passed := quorumReached(uint64(p.Votes), uint64(cfg.TotalShares), cfg.Quorum)
	if !passed {
		defer e.mu.Unlock()
		return e.rejectLocked(ctx, cfg, p)
	}
	e.mu.Unlock()

	paid, err := e.payOut(ctx, dao.PayoutProposal, p.Recipient, p.Amount, p.ID)
	if err != nil {
		e.emit(ctx, Event{Code: EventPaymentFailed, ProposalID: proposalRef(p.ID), Identity: caller, Counterparty: p.Recipient, Amount: p.Amount, Result: "proposal"})
		return nil, err
	}

	// reload: votes cast while the transfer was in flight must survive
	cctx := commitCtx(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, err = e.loadConfigLocked(cctx)
	if err != nil {
		return nil, err
	}
	p, err = e.loadProposalLocked(cctx, args.ProposalID)
	if err != nil {
		return nil, err
	}
	block := paid.block
	p.Executed = true
	p.Ended = true
	p.PaidAtBlock = &block
	cfg.LockedFunds -= p.Amount

	b := &Batch{}
	putConfig(b, cfg)
	putProposal(b, p)
	b.Delete(paid.markerKey)
	if err := e.state.Commit(cctx, b); err != nil {
		return nil, err
	}
	e.metrics.proposals.WithLabelValues("executed").Inc()
	e.metrics.observeConfig(cfg)
	e.emit(ctx, Event{
		Code:         EventProposalResolved,
		ProposalID:   proposalRef(p.ID),
		Identity:     caller,
		Counterparty: p.Recipient,
		Amount:       p.Amount,
		Result:       dao.ProposalExecuted.String(),
	})
	return &dao.ExecuteResult{Proposal: *p, Executed: true}, nil
}

// checkExecutableLocked runs the execution preconditions in order.
func (e *Engine) checkExecutableLocked(ctx context.Context, caller sdk.Address, id uint32) (*dao.GovernanceConfig, *dao.Proposal, error) {
	cfg, err := e.loadConfigLocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	shares, err := e.getShareBalance(ctx, caller)
	if err != nil {
		return nil, nil, err
	}
	if shares == 0 {
		return nil, nil, newError(KindNotFound, "%s holds no shares", caller)
	}
	p, err := e.loadProposalLocked(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if e.clock.Now().Before(p.Ends) {
		return nil, nil, newError(KindTooEarly, "voting on proposal %d ends at %s", id, p.Ends.Format(time.RFC3339))
	}
	if p.Ended {
		return nil, nil, newError(KindAlreadyEnded, "proposal %d already ended", id)
	}
	return cfg, p, nil
}

// rejectLocked ends a proposal that missed quorum and frees its funds.
func (e *Engine) rejectLocked(ctx context.Context, cfg *dao.GovernanceConfig, p *dao.Proposal) (*dao.ExecuteResult, error) {
	cfg.LockedFunds -= p.Amount
	cfg.AvailableFunds += p.Amount
	p.Ended = true
	p.Executed = false

	b := &Batch{}
	putConfig(b, cfg)
	putProposal(b, p)
	if err := e.state.Commit(ctx, b); err != nil {
		return nil, err
	}
	e.metrics.proposals.WithLabelValues("rejected").Inc()
	e.metrics.observeConfig(cfg)
	e.emit(ctx, Event{
		Code:       EventProposalResolved,
		ProposalID: proposalRef(p.ID),
		Amount:     p.Amount,
		Result:     dao.ProposalFailed.String(),
	})
	return &dao.ExecuteResult{Proposal: *p, Executed: false}, nil
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Proposals returns every proposal ever created, ordered by id.
func (e *Engine) Proposals(ctx context.Context) ([]dao.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.loadConfigLocked(ctx); err != nil {
		return nil, err
	}
	return e.loadProposalsLocked(ctx)
}

// Proposal returns one proposal.
func (e *Engine) Proposal(ctx context.Context, id uint32) (*dao.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.loadConfigLocked(ctx); err != nil {
		return nil, err
	}
	return e.loadProposalLocked(ctx, id)
}
