package rewards

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/ports"
)

func (s *Service) openHold(ctx context.Context, tx *ledger.Tx, kind domain.HoldKind, holder string, amount int64, ref string) (string, error) {
	params, err := tx.Params(ctx)
	if err != nil {
		return "", err
	}
	pending, err := domain.NewBalance(amount)
	if err != nil {
		return "", err
	}
	h := domain.EscrowHold{
		ID:        uuid.NewString(),
		Kind:      kind,
		Holder:    holder,
		Pending:   pending,
		Reference: ref,
		CreatedAt: tx.Now(),
	}
	switch kind {
	case domain.HoldShort:
		h.ReleaseAt = h.CreatedAt + params.ShortHoldMillis
	case domain.HoldLong:
		h.ReleaseAt = h.CreatedAt
		h.ExpiresAt = h.CreatedAt + params.LongHoldMillis
		if err := tx.Put(ctx, domain.KindHoldDueIdx, ledger.DueKey(h.ExpiresAt, h.ID), domain.Marker{At: h.ExpiresAt}); err != nil {
			return "", err
		}
	}
	if err := tx.Put(ctx, domain.KindHoldObj, h.ID, h); err != nil {
		return "", err
	}
	tx.Emit(domain.Event{
		Type:    domain.EventEscrowCreated,
		Subject: holder,
		Amount:  amount,
		Attrs:   map[string]string{"hold": h.ID, "kind": kind.String(), "ref": ref},
	})
	return h.ID, nil
}

func (s *Service) loadHold(ctx context.Context, tx *ledger.Tx, id string) (domain.EscrowHold, error) {
	return ledger.Get[domain.EscrowHold](ctx, tx, domain.KindHoldObj, id)
}

func (s *Service) Hold(ctx context.Context, id string) (domain.EscrowHold, error) {
	var out domain.EscrowHold
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.loadHold(ctx, tx, id)
		return err
	})
	return out, err
}

func settled(h domain.EscrowHold) error {
	if h.Claimed {
		return domain.ErrAlreadyClaimed.On("hold")
	}
	if h.Expired {
		return domain.ErrAlreadyExpired.On("hold")
	}
	return nil
}

// ClaimHold pays a hold's pending balance to its holder. Short holds are
// claimable from their release time on; long holds until they expire, once
// the holder's account is verified.
func (s *Service) ClaimHold(ctx context.Context, holdID, holder string) (domain.EscrowHold, error) {
	var out domain.EscrowHold
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		h, err := s.loadHold(ctx, tx, holdID)
		if err != nil {
			return err
		}
		if h.Holder != holder {
			return domain.ErrNotHolder.On("holder")
		}
		if err := settled(h); err != nil {
			return err
		}
		now := tx.Now()
		switch h.Kind {
		case domain.HoldShort:
			if now < h.ReleaseAt {
				return domain.ErrLockNotExpired.On("release_at")
			}
		case domain.HoldLong:
			if now >= h.ExpiresAt {
				return domain.ErrHoldExpired.On("expires_at")
			}
			acct, err := s.accounts.Load(ctx, tx, holder)
			if err != nil {
				return err
			}
			if !acct.Verified {
				return domain.ErrAccountNotVerified.On("holder")
			}
			if err := tx.Delete(ctx, domain.KindHoldDueIdx, ledger.DueKey(h.ExpiresAt, h.ID)); err != nil {
				return err
			}
		}
		amount := h.Pending.Amount()
		if err := s.accounts.Credit(ctx, tx, holder, amount); err != nil {
			return err
		}
		h.Pending = domain.Balance{}
		h.Claimed = true
		if err := tx.Put(ctx, domain.KindHoldObj, h.ID, h); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventEscrowClaimed,
			Actor:   holder,
			Subject: holder,
			Amount:  amount,
			Attrs:   map[string]string{"hold": h.ID, "kind": h.Kind.String()},
		})
		out = h
		return nil
	})
	return out, err
}

// ExpireHold returns an unclaimed long hold to the treasury once it expired.
func (s *Service) ExpireHold(ctx context.Context, holdID string) (domain.EscrowHold, error) {
	var (
		out    domain.EscrowHold
		amount int64
	)
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		var err error
		out, amount, err = s.expire(ctx, tx, holdID)
		return err
	})
	if err != nil {
		return out, err
	}
	s.log.Info().
		Str("hold", out.ID).
		Str("holder", out.Holder).
		Int64("amount", amount).
		Msg("escrow hold expired to treasury")
	return out, nil
}

func (s *Service) expire(ctx context.Context, tx *ledger.Tx, holdID string) (domain.EscrowHold, int64, error) {
	h, err := s.loadHold(ctx, tx, holdID)
	if err != nil {
		return h, 0, err
	}
	if h.Kind != domain.HoldLong {
		return h, 0, domain.ErrNotExpirable.On("hold")
	}
	if err := settled(h); err != nil {
		return h, 0, err
	}
	if tx.Now() < h.ExpiresAt {
		return h, 0, domain.ErrEscrowNotExpired.On("expires_at")
	}
	treasury, err := s.accounts.TreasuryID(ctx, tx)
	if err != nil {
		return h, 0, err
	}
	amount := h.Pending.Amount()
	if err := s.accounts.Credit(ctx, tx, treasury, amount); err != nil {
		return h, 0, err
	}
	if err := tx.Delete(ctx, domain.KindHoldDueIdx, ledger.DueKey(h.ExpiresAt, h.ID)); err != nil {
		return h, 0, err
	}
	h.Pending = domain.Balance{}
	h.Expired = true
	if err := tx.Put(ctx, domain.KindHoldObj, h.ID, h); err != nil {
		return h, 0, err
	}
	tx.Emit(domain.Event{
		Type:    domain.EventEscrowExpired,
		Subject: h.Holder,
		Amount:  amount,
		Attrs:   map[string]string{"hold": h.ID, "treasury": treasury},
	})
	return h, amount, nil
}

// ExpireDue expires at most limit long holds whose expiry has passed, in
// expiry order. Holds already settled are skipped, so the call can be
// repeated safely.
func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, domain.ErrInvalidArgument.On("limit")
	}
	var n, stale int
	var expired int64
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		n, stale, expired = 0, 0, 0
		due, err := ledger.Scan[domain.Marker](ctx, tx, domain.KindHoldDueIdx, "", limit)
		if err != nil {
			return err
		}
		for _, e := range due {
			if e.Value.At > tx.Now() {
				break
			}
			id := e.ID[strings.IndexByte(e.ID, '|')+1:]
			_, amount, err := s.expire(ctx, tx, id)
			if err != nil {
				if domain.IsKind(err, domain.KindState) || domain.IsNotFound(err) {
					if err := tx.Delete(ctx, domain.KindHoldDueIdx, e.ID); err != nil {
						return err
					}
					stale++
					continue
				}
				return err
			}
			expired += amount
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 || stale > 0 {
		s.log.Info().
			Int("expired", n).
			Int("stale", stale).
			Int64("amount", expired).
			Msg("escrow holds swept to treasury")
	}
	return n, nil
}

// ExpiryJob exposes ExpireDue to the sweeper.
func (s *Service) ExpiryJob() ports.BatchJob { return expiryJob{s} }

type expiryJob struct{ s *Service }

func (expiryJob) Name() string { return "escrow_expiry" }

func (j expiryJob) RunBatch(ctx context.Context, limit int) (int, error) {
	return j.s.ExpireDue(ctx, limit)
}
