package governance

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/services/accounts"
	"trustflow/internal/services/reputation"
)

// Service runs tiered staking and the proposal lifecycle.
type Service struct {
	l        *ledger.Ledger
	accounts *accounts.Service
	rep      *reputation.Service
	log      zerolog.Logger
}

func New(l *ledger.Ledger, accts *accounts.Service, rep *reputation.Service) *Service {
	return &Service{l: l, accounts: accts, rep: rep, log: l.Logger("governance")}
}

func (s *Service) registry(ctx context.Context, tx *ledger.Tx) (domain.GovernanceRegistry, error) {
	reg, err := ledger.Get[domain.GovernanceRegistry](ctx, tx, domain.KindGovRegistryObj, domain.SingletonID)
	if domain.IsNotFound(err) {
		return reg, domain.ErrNotInitialized.On("governance")
	}
	return reg, err
}

func (s *Service) putRegistry(ctx context.Context, tx *ledger.Tx, reg domain.GovernanceRegistry) error {
	return tx.Put(ctx, domain.KindGovRegistryObj, domain.SingletonID, reg)
}

// Registry returns the proposal counter, penalty pool and total stake.
func (s *Service) Registry(ctx context.Context) (domain.GovernanceRegistry, error) {
	var out domain.GovernanceRegistry
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.registry(ctx, tx)
		return err
	})
	return out, err
}

// Params returns the parameter set currently in force.
func (s *Service) Params(ctx context.Context) (domain.Params, error) {
	var out domain.Params
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = tx.Params(ctx)
		return err
	})
	return out, err
}

// loadStake returns user's position; a user without one has TierNone.
func (s *Service) loadStake(ctx context.Context, tx *ledger.Tx, user string) (domain.StakedTokens, error) {
	st, err := ledger.Get[domain.StakedTokens](ctx, tx, domain.KindStakeObj, user)
	if domain.IsNotFound(err) {
		return domain.StakedTokens{Staker: user}, nil
	}
	return st, err
}

// Position returns user's current stake.
func (s *Service) Position(ctx context.Context, user string) (domain.StakedTokens, error) {
	var out domain.StakedTokens
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.loadStake(ctx, tx, user)
		return err
	})
	return out, err
}

// Stake locks amount of user's balance at tier. Top-ups keep or raise the
// tier and extend the lock to the tier's minimum duration from now.
func (s *Service) Stake(ctx context.Context, user string, amount int64, tier domain.StakeTier) (domain.StakedTokens, error) {
	if !tier.Valid() {
		return domain.StakedTokens{}, domain.ErrInvalidArgument.On("tier")
	}
	if amount <= 0 {
		return domain.StakedTokens{}, domain.ErrInvalidAmount.On("amount")
	}
	var out domain.StakedTokens
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		st, err := s.loadStake(ctx, tx, user)
		if err != nil {
			return err
		}
		if tier < st.Tier {
			return domain.ErrTierDowngrade.On("tier")
		}
		policy := tier.Policy()
		if st.Locked.Amount()+amount < policy.MinStake {
			return domain.ErrInsufficientStake.On("amount")
		}
		if err := s.accounts.Debit(ctx, tx, user, amount); err != nil {
			return err
		}
		if err := st.Locked.Credit(amount); err != nil {
			return err
		}
		if st.StakedAt == 0 {
			st.StakedAt = tx.Now()
		}
		st.Tier = tier
		st.LockUntil = domain.Max(st.LockUntil, tx.Now()+policy.LockMillis)
		if err := tx.Put(ctx, domain.KindStakeObj, user, st); err != nil {
			return err
		}
		reg, err := s.registry(ctx, tx)
		if err != nil {
			return err
		}
		reg.TotalStaked += amount
		if err := s.putRegistry(ctx, tx, reg); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventStaked,
			Actor:   user,
			Subject: user,
			Amount:  amount,
			Attrs: map[string]string{
				"tier":       tier.String(),
				"lock_until": strconv.FormatInt(st.LockUntil, 10),
			},
		})
		out = st
		return nil
	})
	return out, err
}

// Withdrawal is the outcome of an unstake.
type Withdrawal struct {
	Returned  int64 `json:"returned"`
	Penalty   int64 `json:"penalty"`
	Remaining int64 `json:"remaining"`
}

// Unstake releases amount of user's stake. Before the lock ends the early
// withdrawal penalty is kept in the registry's penalty pool. What stays
// locked must still meet the tier minimum, or be nothing.
func (s *Service) Unstake(ctx context.Context, user string, amount int64) (Withdrawal, error) {
	if amount <= 0 {
		return Withdrawal{}, domain.ErrInvalidAmount.On("amount")
	}
	var out Withdrawal
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		st, err := s.loadStake(ctx, tx, user)
		if err != nil {
			return err
		}
		if !st.Tier.Valid() || st.Locked.IsZero() {
			return domain.ErrNoStake.On("user")
		}
		withdrawn, err := st.Locked.Split(amount)
		if err != nil {
			return domain.ErrInsufficientStake.On("amount")
		}
		if !st.Locked.IsZero() && st.Locked.Amount() < st.Tier.Policy().MinStake {
			return domain.ErrInsufficientStake.On("remaining")
		}
		params, err := tx.Params(ctx)
		if err != nil {
			return err
		}
		reg, err := s.registry(ctx, tx)
		if err != nil {
			return err
		}
		var penalty int64
		if tx.Now() < st.LockUntil {
			penalty = domain.MulDiv(amount, params.EarlyUnstakePenaltyBPS, domain.BPSScale)
		}
		kept, err := withdrawn.Split(penalty)
		if err != nil {
			return err
		}
		reg.PenaltyPool.Join(&kept)
		reg.TotalStaked -= amount
		st.Penalties += penalty

		returned := withdrawn.Amount()
		if err := s.accounts.Credit(ctx, tx, user, returned); err != nil {
			return err
		}
		if st.Locked.IsZero() {
			err = tx.Delete(ctx, domain.KindStakeObj, user)
		} else {
			err = tx.Put(ctx, domain.KindStakeObj, user, st)
		}
		if err != nil {
			return err
		}
		if err := s.putRegistry(ctx, tx, reg); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventUnstaked,
			Actor:   user,
			Subject: user,
			Amount:  returned,
			Attrs:   map[string]string{"penalty": strconv.FormatInt(penalty, 10)},
		})
		out = Withdrawal{Returned: returned, Penalty: penalty, Remaining: st.Locked.Amount()}
		return nil
	})
	return out, err
}

func (s *Service) VotingPower(ctx context.Context, user string) (int64, error) {
	st, err := s.Position(ctx, user)
	if err != nil {
		return 0, err
	}
	return st.VotingPower(), nil
}
