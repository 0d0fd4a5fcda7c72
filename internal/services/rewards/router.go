package rewards

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/services/accounts"
	"trustflow/internal/services/supply"
)

// Reason labels what a reward pays for.
type Reason string

const (
	ReasonCreation      Reason = "creation"
	ReasonEngagement    Reason = "engagement"
	ReasonValidation    Reason = "validation_bonus"
	ReasonFirstReviewer Reason = "first_reviewer"
	ReasonReferral      Reason = "referral"
)

// Destination is where a routed reward ends up.
type Destination string

const (
	DestinationDirect    Destination = "direct"
	DestinationShortHold Destination = "short_hold"
	DestinationLongHold  Destination = "long_hold"
)

// Payout describes one distributed reward. A zero Amount means nothing was
// minted because the emission rate rounded the reward away.
type Payout struct {
	Recipient   string      `json:"recipient"`
	Amount      int64       `json:"amount"`
	Destination Destination `json:"destination,omitempty"`
	HoldID      string      `json:"hold_id,omitempty"`
}

// Service mints rewards out of the rewards bucket and routes them by the
// recipient's account status.
type Service struct {
	l        *ledger.Ledger
	supply   *supply.Service
	accounts *accounts.Service
	log      zerolog.Logger
}

func New(l *ledger.Ledger, sup *supply.Service, accts *accounts.Service) *Service {
	return &Service{l: l, supply: sup, accounts: accts, log: l.Logger("rewards")}
}

// Distribute scales base by the current emission rate, mints it from the
// rewards bucket and routes it to recipient. ref names the object the reward
// is for.
func (s *Service) Distribute(ctx context.Context, tx *ledger.Tx, base int64, recipient string, reason Reason, ref string) (Payout, error) {
	if base < 0 {
		return Payout{}, domain.ErrInvalidAmount.On("base")
	}
	if recipient == "" {
		return Payout{}, domain.ErrInvalidArgument.On("recipient")
	}
	rate, err := s.supply.CheckHalving(ctx, tx)
	if err != nil {
		return Payout{}, err
	}
	amount := domain.MulDiv(base, rate, domain.BPSScale)
	if amount == 0 {
		return Payout{Recipient: recipient}, nil
	}
	if err := s.supply.Mint(ctx, tx, domain.BucketRewards, amount, string(reason)); err != nil {
		return Payout{}, err
	}
	if _, err := s.supply.CheckHalving(ctx, tx); err != nil {
		return Payout{}, err
	}
	p, err := s.Route(ctx, tx, recipient, amount, ref)
	if err != nil {
		return Payout{}, err
	}
	attrs := map[string]string{
		"reason":      string(reason),
		"destination": string(p.Destination),
		"rate":        strconv.FormatInt(rate, 10),
	}
	if ref != "" {
		attrs["ref"] = ref
	}
	if p.HoldID != "" {
		attrs["hold"] = p.HoldID
	}
	tx.Emit(domain.Event{
		Type:    domain.EventRewardDistributed,
		Subject: recipient,
		Amount:  amount,
		Attrs:   attrs,
	})
	return p, nil
}

// Route places an already minted amount:
//
//	unverified                    -> long hold, expires to the treasury
//	verified, New                 -> short hold
//	verified, Established/Trusted -> direct balance
func (s *Service) Route(ctx context.Context, tx *ledger.Tx, recipient string, amount int64, ref string) (Payout, error) {
	if amount <= 0 {
		return Payout{}, domain.ErrInvalidAmount.On("amount")
	}
	acct, err := s.accounts.Load(ctx, tx, recipient)
	if err != nil {
		return Payout{}, err
	}
	p := Payout{Recipient: recipient, Amount: amount}
	switch {
	case !acct.Verified:
		p.Destination = DestinationLongHold
		p.HoldID, err = s.openHold(ctx, tx, domain.HoldLong, recipient, amount, ref)
	case acct.Standing == domain.StandingNew:
		p.Destination = DestinationShortHold
		p.HoldID, err = s.openHold(ctx, tx, domain.HoldShort, recipient, amount, ref)
	default:
		p.Destination = DestinationDirect
		err = s.accounts.Credit(ctx, tx, recipient, amount)
	}
	if err != nil {
		return Payout{}, err
	}
	return p, nil
}
