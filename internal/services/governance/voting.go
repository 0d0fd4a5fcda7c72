package governance

import (
	"context"
	"strconv"
	"strings"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/ports"
)

// open reports whether p accepts votes at now, activating a Draft whose
// voting has started.
func open(p *domain.Proposal, now int64) bool {
	if p.State == domain.ProposalDraft && now >= p.VotingStart {
		p.State = domain.ProposalActive
	}
	return p.State == domain.ProposalActive && now >= p.VotingStart && now < p.VotingEnd
}

// Vote casts voter's stake-weighted ballot. Each voter votes once.
func (s *Service) Vote(ctx context.Context, id uint64, voter string, support bool) (domain.Ballot, error) {
	var out domain.Ballot
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		p, err := s.loadProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if !open(&p, tx.Now()) {
			return domain.ErrVotingClosed.On(p.State.String())
		}
		key := ledger.Key(proposalKey(id), voter)
		voted, err := tx.Has(ctx, domain.KindBallotIdx, key)
		if err != nil {
			return err
		}
		if voted {
			return domain.ErrAlreadyVoted.On("voter")
		}
		st, err := s.loadStake(ctx, tx, voter)
		if err != nil {
			return err
		}
		if st.Tier < domain.TierExplorer {
			return domain.ErrInsufficientStake.On("tier")
		}
		b := domain.Ballot{
			ProposalID: id,
			Voter:      voter,
			Support:    support,
			Weight:     st.VotingPower(),
			At:         tx.Now(),
		}
		if support {
			p.ForWeight += b.Weight
		} else {
			p.AgainstWeight += b.Weight
		}
		p.Voters++
		if err := tx.Put(ctx, domain.KindBallotIdx, key, b); err != nil {
			return err
		}
		if err := s.putProposal(ctx, tx, p); err != nil {
			return err
		}
		if err := s.countVote(ctx, tx, voter); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventVoteCast,
			Actor:   voter,
			Subject: proposalKey(id),
			Amount:  b.Weight,
			Attrs:   map[string]string{"support": strconv.FormatBool(support)},
		})
		out = b
		return nil
	})
	return out, err
}

// countVote bumps the voter's reputation counter when the voter has one.
func (s *Service) countVote(ctx context.Context, tx *ledger.Tx, voter string) error {
	err := s.rep.RecordVoteCast(ctx, tx, voter)
	if domain.IsNotFound(err) {
		return nil
	}
	return err
}

func (s *Service) Ballot(ctx context.Context, id uint64, voter string) (domain.Ballot, error) {
	var out domain.Ballot
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = ledger.Get[domain.Ballot](ctx, tx, domain.KindBallotIdx, ledger.Key(proposalKey(id), voter))
		return err
	})
	return out, err
}

// finalize closes voting on p. It passes with enough unique voters, a simple
// weighted majority and the quorum weight; passing starts the timelock.
func (s *Service) finalize(ctx context.Context, tx *ledger.Tx, p *domain.Proposal) error {
	switch p.State {
	case domain.ProposalDraft, domain.ProposalActive:
	default:
		return domain.ErrInvalidState.On(p.State.String())
	}
	now := tx.Now()
	if now < p.VotingEnd {
		return domain.ErrVotingOpen.On("voting_end")
	}
	params, err := tx.Params(ctx)
	if err != nil {
		return err
	}
	passed := p.Voters >= params.MinUniqueVoters &&
		p.ForWeight > p.AgainstWeight &&
		p.ForWeight+p.AgainstWeight >= params.QuorumWeight
	if passed {
		p.State = domain.ProposalPassed
		lock := params.TimelockMillis
		if p.Critical {
			lock = params.CriticalTimelockMillis
		}
		p.TimelockEnd = now + lock
	} else {
		p.State = domain.ProposalFailed
	}
	if err := tx.Delete(ctx, domain.KindProposalDueIdx, ledger.DueKey(p.VotingEnd, proposalKey(p.ID))); err != nil {
		return err
	}
	if err := s.putProposal(ctx, tx, *p); err != nil {
		return err
	}
	tx.Emit(domain.Event{
		Type:    domain.EventProposalFinalized,
		Subject: proposalKey(p.ID),
		Attrs: map[string]string{
			"state":        p.State.String(),
			"voters":       strconv.FormatInt(p.Voters, 10),
			"for":          strconv.FormatInt(p.ForWeight, 10),
			"against":      strconv.FormatInt(p.AgainstWeight, 10),
			"timelock_end": strconv.FormatInt(p.TimelockEnd, 10),
		},
	})
	return nil
}

func (s *Service) Finalize(ctx context.Context, id uint64) (domain.Proposal, error) {
	var out domain.Proposal
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		p, err := s.loadProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.finalize(ctx, tx, &p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Execute applies a passed proposal once its timelock has elapsed. A
// proposal whose voting ended but was never finalized is finalized first.
func (s *Service) Execute(ctx context.Context, id uint64) (domain.Proposal, error) {
	var out domain.Proposal
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		p, err := s.loadProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.State == domain.ProposalDraft || p.State == domain.ProposalActive {
			if err := s.finalize(ctx, tx, &p); err != nil {
				if domain.IsTimingError(err) {
					return domain.ErrInvalidState.On(p.State.String())
				}
				return err
			}
		}
		if p.State != domain.ProposalPassed {
			return domain.ErrInvalidState.On(p.State.String())
		}
		if tx.Now() < p.TimelockEnd {
			return domain.ErrTimelockActive.On("timelock_end")
		}
		if err := s.apply(ctx, tx, p); err != nil {
			return err
		}
		p.State = domain.ProposalExecuted
		p.ExecutedAt = tx.Now()
		if err := s.putProposal(ctx, tx, p); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventProposalExecuted,
			Subject: proposalKey(p.ID),
			Attrs:   map[string]string{"type": p.Type.String()},
		})
		out = p
		return nil
	})
	if err != nil {
		return out, err
	}
	s.log.Info().
		Uint64("proposal", out.ID).
		Str("type", out.Type.String()).
		Bool("critical", out.Critical).
		Msg("proposal executed")
	return out, nil
}

// apply carries out a proposal's effect. Upgrade and content policy
// proposals only record the decision; their effect lives off-ledger.
func (s *Service) apply(ctx context.Context, tx *ledger.Tx, p domain.Proposal) error {
	switch p.Type {
	case domain.ProposalParameter:
		params, err := tx.Params(ctx)
		if err != nil {
			return err
		}
		for i, name := range p.ParamNames {
			if err := params.Apply(name, p.ParamValues[i]); err != nil {
				return err
			}
		}
		return tx.SetParams(ctx, params)
	case domain.ProposalTreasury:
		recipient, amount, err := treasuryTransfer(p.ParamNames, p.ParamValues)
		if err != nil {
			return err
		}
		treasury, err := s.accounts.TreasuryID(ctx, tx)
		if err != nil {
			return err
		}
		return s.accounts.TransferTx(ctx, tx, treasury, recipient, amount, "proposal:"+proposalKey(p.ID))
	}
	return nil
}

// FinalizeDue finalizes at most limit proposals whose voting has ended, in
// voting-end order. It can be repeated safely.
func (s *Service) FinalizeDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, domain.ErrInvalidArgument.On("limit")
	}
	n := 0
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		n = 0
		due, err := ledger.Scan[domain.Marker](ctx, tx, domain.KindProposalDueIdx, "", limit)
		if err != nil {
			return err
		}
		for _, e := range due {
			if e.Value.At > tx.Now() {
				break
			}
			id, err := strconv.ParseUint(e.ID[strings.IndexByte(e.ID, '|')+1:], 10, 64)
			if err != nil {
				return err
			}
			p, err := s.loadProposal(ctx, tx, id)
			if domain.IsNotFound(err) {
				if err := tx.Delete(ctx, domain.KindProposalDueIdx, e.ID); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if err := s.finalize(ctx, tx, &p); err != nil {
				if domain.IsKind(err, domain.KindState) {
					if err := tx.Delete(ctx, domain.KindProposalDueIdx, e.ID); err != nil {
						return err
					}
					continue
				}
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// FinalizeJob exposes FinalizeDue to the sweeper.
func (s *Service) FinalizeJob() ports.BatchJob { return finalizeJob{s} }

type finalizeJob struct{ s *Service }

func (finalizeJob) Name() string { return "proposal_finalize" }

func (j finalizeJob) RunBatch(ctx context.Context, limit int) (int, error) {
	return j.s.FinalizeDue(ctx, limit)
}
