package rewards

import (
	"context"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
)

// RegisterReferral records that referrer brought referee in. A referee can be
// referred once.
func (s *Service) RegisterReferral(ctx context.Context, referrer, referee string) error {
	if referrer == "" {
		return domain.ErrInvalidArgument.On("referrer")
	}
	if referee == "" {
		return domain.ErrInvalidArgument.On("referee")
	}
	if referrer == referee {
		return domain.ErrSelfReferral.On("referee")
	}
	return s.l.Update(ctx, func(tx *ledger.Tx) error {
		exists, err := tx.Has(ctx, domain.KindReferralObj, referee)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyReferred.On("referee")
		}
		ref := domain.Referral{Referee: referee, Referrer: referrer, CreatedAt: tx.Now()}
		if err := tx.Put(ctx, domain.KindReferralObj, referee, ref); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventReferralRegistered,
			Actor:   referrer,
			Subject: referee,
		})
		return nil
	})
}

// PayReferral pays referee's referrer the referral reward if it is still
// owed. It reports whether a payment was made.
func (s *Service) PayReferral(ctx context.Context, tx *ledger.Tx, referee string) (Payout, bool, error) {
	ref, err := ledger.Get[domain.Referral](ctx, tx, domain.KindReferralObj, referee)
	if domain.IsNotFound(err) {
		return Payout{}, false, nil
	}
	if err != nil {
		return Payout{}, false, err
	}
	if ref.Paid {
		return Payout{}, false, nil
	}
	params, err := tx.Params(ctx)
	if err != nil {
		return Payout{}, false, err
	}
	p, err := s.Distribute(ctx, tx, params.ReferralReward, ref.Referrer, ReasonReferral, referee)
	if err != nil {
		return Payout{}, false, err
	}
	ref.Paid = true
	if err := tx.Put(ctx, domain.KindReferralObj, referee, ref); err != nil {
		return Payout{}, false, err
	}
	return p, true, nil
}

func (s *Service) Referral(ctx context.Context, referee string) (domain.Referral, error) {
	var out domain.Referral
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = ledger.Get[domain.Referral](ctx, tx, domain.KindReferralObj, referee)
		return err
	})
	return out, err
}
