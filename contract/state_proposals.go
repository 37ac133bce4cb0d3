package contract

import (
	"context"
	"errors"
	"fmt"

	"okinoko_treasury/contract/dao"
	"okinoko_treasury/sdk"
)

// loadProposalLocked decodes a proposal, NotFound when the id was never used.
func (e *Engine) loadProposalLocked(ctx context.Context, id uint32) (*dao.Proposal, error) {
	data, err := e.state.Get(ctx, proposalKey(id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, newError(KindNotFound, "proposal %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load proposal %d: %w", id, err)
	}
	return dao.DecodeProposal(data)
}

func putProposal(b *Batch, p *dao.Proposal) {
	b.Set(proposalKey(p.ID), dao.EncodeProposal(p))
}

// hasVotedLocked checks the write-once vote receipt.
func (e *Engine) hasVotedLocked(ctx context.Context, id uint32, voter sdk.Address) (bool, error) {
	_, err := e.state.Get(ctx, voteReceiptKey(id, voter))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load vote receipt: %w", err)
	}
	return true, nil
}

func putVoteReceipt(b *Batch, id uint32, voter sdk.Address) {
	b.Set(voteReceiptKey(id, voter), []byte{1})
}

// loadProposalsLocked returns every proposal ordered by id.
func (e *Engine) loadProposalsLocked(ctx context.Context) ([]dao.Proposal, error) {
	proposals := make([]dao.Proposal, 0)
	err := e.state.Scan(ctx, []byte{kProposalMeta}, func(_, value []byte) error {
		p, err := dao.DecodeProposal(value)
		if err != nil {
			return err
		}
		proposals = append(proposals, *p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposals, nil
}
