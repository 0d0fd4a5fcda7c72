package accounts

import (
	"context"

	"github.com/rs/zerolog"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/services/supply"
)

// Service keeps direct balances and the identity status reported by the
// external user-status service.
type Service struct {
	l      *ledger.Ledger
	supply *supply.Service
	log    zerolog.Logger
}

func New(l *ledger.Ledger, sup *supply.Service) *Service {
	return &Service{l: l, supply: sup, log: l.Logger("accounts")}
}

// Load returns owner's account; an unknown owner is an empty, unverified,
// New-standing account.
func (s *Service) Load(ctx context.Context, tx *ledger.Tx, owner string) (domain.Account, error) {
	acct, err := ledger.Get[domain.Account](ctx, tx, domain.KindAccountObj, owner)
	if domain.IsNotFound(err) {
		return domain.Account{Owner: owner, Standing: domain.StandingNew}, nil
	}
	return acct, err
}

func (s *Service) save(ctx context.Context, tx *ledger.Tx, acct domain.Account) error {
	acct.UpdatedAt = tx.Now()
	return tx.Put(ctx, domain.KindAccountObj, acct.Owner, acct)
}

// Credit adds amount to owner's direct balance.
func (s *Service) Credit(ctx context.Context, tx *ledger.Tx, owner string, amount int64) error {
	if owner == "" {
		return domain.ErrInvalidArgument.On("owner")
	}
	acct, err := s.Load(ctx, tx, owner)
	if err != nil {
		return err
	}
	if err := acct.Balance.Credit(amount); err != nil {
		return err
	}
	return s.save(ctx, tx, acct)
}

// Debit removes amount from owner's direct balance; it never goes negative.
func (s *Service) Debit(ctx context.Context, tx *ledger.Tx, owner string, amount int64) error {
	acct, err := s.Load(ctx, tx, owner)
	if err != nil {
		return err
	}
	if err := acct.Balance.Debit(amount); err != nil {
		return err
	}
	return s.save(ctx, tx, acct)
}

// TreasuryID returns the account expired and penalised value flows to.
func (s *Service) TreasuryID(ctx context.Context, tx *ledger.Tx) (string, error) {
	sup, err := s.supply.Load(ctx, tx)
	if err != nil {
		return "", err
	}
	return sup.Treasury, nil
}

// TransferTx moves amount between direct balances inside tx.
func (s *Service) TransferTx(ctx context.Context, tx *ledger.Tx, from, to string, amount int64, reason string) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount.On("amount")
	}
	if to == "" {
		return domain.ErrInvalidArgument.On("to")
	}
	if from == to {
		return domain.ErrInvalidArgument.On("to")
	}
	if err := s.Debit(ctx, tx, from, amount); err != nil {
		return err
	}
	if err := s.Credit(ctx, tx, to, amount); err != nil {
		return err
	}
	tx.Emit(domain.Event{
		Type:    domain.EventTransfer,
		Actor:   from,
		Subject: to,
		Amount:  amount,
		Attrs:   map[string]string{"reason": reason},
	})
	return nil
}

// SetStatus records the verification status and standing supplied by the
// user-status service.
func (s *Service) SetStatus(ctx context.Context, owner string, verified bool, standing domain.Standing) error {
	if owner == "" {
		return domain.ErrInvalidArgument.On("owner")
	}
	if !standing.Valid() {
		return domain.ErrInvalidArgument.On("standing")
	}
	return s.l.Update(ctx, func(tx *ledger.Tx) error {
		acct, err := s.Load(ctx, tx, owner)
		if err != nil {
			return err
		}
		acct.Verified = verified
		acct.Standing = standing
		if err := s.save(ctx, tx, acct); err != nil {
			return err
		}
		verifiedAttr := "false"
		if verified {
			verifiedAttr = "true"
		}
		tx.Emit(domain.Event{
			Type:    domain.EventAccountStatus,
			Subject: owner,
			Attrs:   map[string]string{"verified": verifiedAttr, "standing": standing.String()},
		})
		return nil
	})
}

func (s *Service) Get(ctx context.Context, owner string) (domain.Account, error) {
	var out domain.Account
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.Load(ctx, tx, owner)
		return err
	})
	return out, err
}

func (s *Service) Transfer(ctx context.Context, from, to string, amount int64) error {
	return s.l.Update(ctx, func(tx *ledger.Tx) error {
		return s.TransferTx(ctx, tx, from, to, amount, "transfer")
	})
}

// Burn destroys amount of holder's direct balance.
func (s *Service) Burn(ctx context.Context, holder string, amount int64, reason string) error {
	return s.l.Update(ctx, func(tx *ledger.Tx) error {
		if err := s.Debit(ctx, tx, holder, amount); err != nil {
			return err
		}
		return s.supply.Burn(ctx, tx, amount, reason, holder)
	})
}

// MintAllocation mints from a non-reward bucket to recipient. Only the mint
// authority named at genesis may call it; rewards are minted by the router.
func (s *Service) MintAllocation(ctx context.Context, caller string, bucket domain.Bucket, recipient string, amount int64) error {
	if !bucket.Valid() {
		return domain.ErrInvalidArgument.On("bucket")
	}
	if bucket == domain.BucketRewards {
		return domain.ErrNotAuthorized.On("bucket")
	}
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		sup, err := s.supply.Load(ctx, tx)
		if err != nil {
			return err
		}
		if caller != sup.Authority {
			return domain.ErrNotAuthorized.On("caller")
		}
		if err := s.supply.Mint(ctx, tx, bucket, amount, caller); err != nil {
			return err
		}
		if err := s.Credit(ctx, tx, recipient, amount); err != nil {
			return err
		}
		if _, err := s.supply.CheckHalving(ctx, tx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info().
		Str("bucket", bucket.String()).
		Str("recipient", recipient).
		Int64("amount", amount).
		Msg("allocation minted")
	return nil
}
