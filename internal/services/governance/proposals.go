package governance

import (
	"context"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
)

const (
	maxTitleLength = 200

	// Treasury proposals carry these two parameter names.
	TreasuryRecipient = "recipient"
	TreasuryAmount    = "amount"
)

// ProposalInput is what a proposer submits.
type ProposalInput struct {
	Proposer       string
	Type           domain.ProposalType
	Title          string
	DescriptionCID string
	Names          []string
	Values         []string
}

// validate checks the input's shape and reports whether the proposal
// touches a critical parameter. Parameter problems are reported together.
func (in ProposalInput) validate() (bool, error) {
	if !in.Type.Valid() {
		return false, domain.ErrInvalidArgument.On("type")
	}
	if in.Title == "" || len(in.Title) > maxTitleLength {
		return false, domain.ErrInvalidArgument.On("title")
	}
	if len(in.Names) != len(in.Values) {
		return false, domain.ErrMismatchedLengths.On("values")
	}
	if in.DescriptionCID != "" {
		if _, err := cid.Decode(in.DescriptionCID); err != nil {
			return false, domain.ErrInvalidContentHash.On("description_cid")
		}
	}
	switch in.Type {
	case domain.ProposalParameter:
		if len(in.Names) == 0 {
			return false, domain.ErrInvalidArgument.On("names")
		}
		var result *multierror.Error
		critical := false
		seen := make(map[string]bool, len(in.Names))
		for i, name := range in.Names {
			def, ok := domain.LookupParameter(name)
			if !ok {
				result = multierror.Append(result, domain.ErrUnknownParameter.On(name))
				continue
			}
			if seen[name] {
				result = multierror.Append(result, domain.ErrInvalidArgument.On(name))
				continue
			}
			seen[name] = true
			if _, err := def.ParseValue(in.Values[i]); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			critical = critical || def.Critical
		}
		return critical, result.ErrorOrNil()
	case domain.ProposalTreasury:
		_, _, err := treasuryTransfer(in.Names, in.Values)
		return false, err
	}
	return false, nil
}

// treasuryTransfer extracts the recipient and amount of a treasury proposal.
func treasuryTransfer(names, values []string) (string, int64, error) {
	if len(names) != 2 {
		return "", 0, domain.ErrInvalidArgument.On("names")
	}
	var (
		recipient string
		amount    int64
		result    *multierror.Error
	)
	for i, name := range names {
		switch name {
		case TreasuryRecipient:
			recipient = strings.TrimSpace(values[i])
			if recipient == "" {
				result = multierror.Append(result, domain.ErrInvalidArgument.On(TreasuryRecipient))
			}
		case TreasuryAmount:
			v, err := strconv.ParseInt(values[i], 10, 64)
			if err != nil || v <= 0 {
				result = multierror.Append(result, domain.ErrInvalidAmount.On(TreasuryAmount))
			}
			amount = v
		default:
			result = multierror.Append(result, domain.ErrUnknownParameter.On(name))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return "", 0, err
	}
	if recipient == "" || amount <= 0 {
		return "", 0, domain.ErrInvalidArgument.On("names")
	}
	return recipient, amount, nil
}

func proposalKey(id uint64) string { return strconv.FormatUint(id, 10) }

func (s *Service) loadProposal(ctx context.Context, tx *ledger.Tx, id uint64) (domain.Proposal, error) {
	return ledger.Get[domain.Proposal](ctx, tx, domain.KindProposalObj, proposalKey(id))
}

func (s *Service) putProposal(ctx context.Context, tx *ledger.Tx, p domain.Proposal) error {
	return tx.Put(ctx, domain.KindProposalObj, proposalKey(p.ID), p)
}

func (s *Service) Proposal(ctx context.Context, id uint64) (domain.Proposal, error) {
	var out domain.Proposal
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.loadProposal(ctx, tx, id)
		return err
	})
	return out, err
}

// CreateProposal opens a proposal. The proposer needs a Curator or higher
// stake and the minimum proposer reputation. With no voting delay the
// proposal is Active at once; otherwise it stays Draft until voting starts.
func (s *Service) CreateProposal(ctx context.Context, in ProposalInput) (domain.Proposal, error) {
	critical, err := in.validate()
	if err != nil {
		return domain.Proposal{}, err
	}
	var out domain.Proposal
	err = s.l.Update(ctx, func(tx *ledger.Tx) error {
		st, err := s.loadStake(ctx, tx, in.Proposer)
		if err != nil {
			return err
		}
		if st.Tier < domain.TierCurator {
			return domain.ErrInsufficientStake.On("tier")
		}
		params, err := tx.Params(ctx)
		if err != nil {
			return err
		}
		rs, err := s.rep.Load(ctx, tx, in.Proposer)
		if domain.IsNotFound(err) || (err == nil && rs.Score < params.MinProposerReputation) {
			return domain.ErrNotAuthorized.On("reputation")
		}
		if err != nil {
			return err
		}
		reg, err := s.registry(ctx, tx)
		if err != nil {
			return err
		}
		now := tx.Now()
		p := domain.Proposal{
			ID:             reg.NextProposalID,
			Proposer:       in.Proposer,
			Type:           in.Type,
			Title:          in.Title,
			DescriptionCID: in.DescriptionCID,
			ParamNames:     in.Names,
			ParamValues:    in.Values,
			Critical:       critical,
			State:          domain.ProposalActive,
			CreatedAt:      now,
			VotingStart:    now + params.VotingDelayMillis,
		}
		p.VotingEnd = p.VotingStart + params.VotingPeriodMillis
		if params.VotingDelayMillis > 0 {
			p.State = domain.ProposalDraft
		}
		reg.NextProposalID++
		if err := s.putRegistry(ctx, tx, reg); err != nil {
			return err
		}
		if err := s.putProposal(ctx, tx, p); err != nil {
			return err
		}
		if err := tx.Put(ctx, domain.KindProposalDueIdx, ledger.DueKey(p.VotingEnd, proposalKey(p.ID)), domain.Marker{At: p.VotingEnd}); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventProposalCreated,
			Actor:   in.Proposer,
			Subject: proposalKey(p.ID),
			Attrs: map[string]string{
				"type":       p.Type.String(),
				"critical":   strconv.FormatBool(p.Critical),
				"voting_end": strconv.FormatInt(p.VotingEnd, 10),
			},
		})
		out = p
		return nil
	})
	return out, err
}

// Cancel withdraws a proposal that has not been executed. Only its proposer
// may cancel it.
func (s *Service) Cancel(ctx context.Context, id uint64, caller string) (domain.Proposal, error) {
	var out domain.Proposal
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		p, err := s.loadProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if caller != p.Proposer {
			return domain.ErrNotAuthorized.On("caller")
		}
		// A proposal whose vote has ended is judged on its outcome.
		if (p.State == domain.ProposalDraft || p.State == domain.ProposalActive) && tx.Now() >= p.VotingEnd {
			if err := s.finalize(ctx, tx, &p); err != nil {
				return err
			}
		}
		switch p.State {
		case domain.ProposalDraft, domain.ProposalActive, domain.ProposalPassed:
		default:
			return domain.ErrInvalidState.On(p.State.String())
		}
		if err := tx.Delete(ctx, domain.KindProposalDueIdx, ledger.DueKey(p.VotingEnd, proposalKey(p.ID))); err != nil {
			return err
		}
		p.State = domain.ProposalCanceled
		if err := s.putProposal(ctx, tx, p); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventProposalCanceled,
			Actor:   caller,
			Subject: proposalKey(p.ID),
		})
		out = p
		return nil
	})
	return out, err
}
