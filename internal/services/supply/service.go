package supply

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
)

// TotalCap is the fixed token cap in micro-units.
const TotalCap = 10_000_000_000 * domain.Token

// InitialEmissionRate is the reward emission rate at genesis, in bps.
const InitialEmissionRate = domain.BPSScale

// allocationBPS partitions TotalCap at genesis.
var allocationBPS = map[domain.Bucket]int64{
	domain.BucketRewards:     5000,
	domain.BucketEcosystem:   2000,
	domain.BucketDevelopment: 1600,
	domain.BucketTeam:        1400,
}

// Service owns the TokenSupply object: genesis, minting, halving and burns.
type Service struct {
	l   *ledger.Ledger
	log zerolog.Logger
}

func New(l *ledger.Ledger) *Service {
	return &Service{l: l, log: l.Logger("supply")}
}

type GenesisConfig struct {
	Authority string
	Treasury  string
	// Params overrides the default parameter set when non-nil.
	Params *domain.Params
}

// Genesis writes the initial supply, parameters and treasury account. It is
// idempotent: a second call returns the supply written by the first.
func (s *Service) Genesis(ctx context.Context, cfg GenesisConfig) (domain.TokenSupply, error) {
	if cfg.Authority == "" {
		return domain.TokenSupply{}, domain.ErrInvalidArgument.On("authority")
	}
	if cfg.Treasury == "" {
		return domain.TokenSupply{}, domain.ErrInvalidArgument.On("treasury")
	}
	var out domain.TokenSupply
	err := s.l.Bootstrap(ctx, func(tx *ledger.Tx) error {
		done, err := tx.Has(ctx, domain.KindGenesisObj, domain.SingletonID)
		if err != nil {
			return err
		}
		if done {
			out, err = s.Load(ctx, tx)
			return err
		}

		sup := domain.TokenSupply{
			TotalCap:     TotalCap,
			Allocations:  make(map[domain.Bucket]int64, len(domain.Buckets)),
			Remaining:    make(map[domain.Bucket]int64, len(domain.Buckets)),
			EmissionRate: InitialEmissionRate,
			Authority:    cfg.Authority,
			Treasury:     cfg.Treasury,
		}
		for _, b := range domain.Buckets {
			amt := domain.MulDiv(TotalCap, allocationBPS[b], domain.BPSScale)
			sup.Allocations[b] = amt
			sup.Remaining[b] = amt
		}
		sup.HalvingStep = sup.Allocations[domain.BucketRewards] / 10

		params := domain.DefaultParams()
		if cfg.Params != nil {
			params = *cfg.Params
		}
		if err := tx.Put(ctx, domain.KindSupplyObj, domain.SingletonID, sup); err != nil {
			return err
		}
		if err := tx.SetParams(ctx, params); err != nil {
			return err
		}
		treasury := domain.Account{
			Owner:     cfg.Treasury,
			Verified:  true,
			Standing:  domain.StandingTrusted,
			UpdatedAt: tx.Now(),
		}
		if err := tx.Put(ctx, domain.KindAccountObj, cfg.Treasury, treasury); err != nil {
			return err
		}
		if err := tx.Put(ctx, domain.KindGovRegistryObj, domain.SingletonID, domain.GovernanceRegistry{NextProposalID: 1}); err != nil {
			return err
		}
		gen := domain.Genesis{Authority: cfg.Authority, Treasury: cfg.Treasury, At: tx.Now()}
		if err := tx.Put(ctx, domain.KindGenesisObj, domain.SingletonID, gen); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventGenesis,
			Actor:   cfg.Authority,
			Subject: cfg.Treasury,
			Amount:  TotalCap,
			Attrs:   map[string]string{"rate_bps": strconv.FormatInt(sup.EmissionRate, 10)},
		})
		out = sup
		return nil
	})
	if err != nil {
		return domain.TokenSupply{}, err
	}
	s.l.MarkInitialized()
	s.log.Info().Str("authority", out.Authority).Str("treasury", out.Treasury).Msg("genesis ready")
	return out, nil
}

// Load reads the supply inside tx.
func (s *Service) Load(ctx context.Context, tx *ledger.Tx) (domain.TokenSupply, error) {
	sup, err := ledger.Get[domain.TokenSupply](ctx, tx, domain.KindSupplyObj, domain.SingletonID)
	if domain.IsNotFound(err) {
		return sup, domain.ErrNotInitialized.On("supply")
	}
	return sup, err
}

// Snapshot returns the current supply counters.
func (s *Service) Snapshot(ctx context.Context) (domain.TokenSupply, error) {
	var out domain.TokenSupply
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.Load(ctx, tx)
		return err
	})
	return out, err
}

// Mint moves amount out of bucket into circulation.
func (s *Service) Mint(ctx context.Context, tx *ledger.Tx, bucket domain.Bucket, amount int64, actor string) error {
	if !bucket.Valid() {
		return domain.ErrInvalidArgument.On("bucket")
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount.On("amount")
	}
	sup, err := s.Load(ctx, tx)
	if err != nil {
		return err
	}
	if amount > sup.Remaining[bucket] {
		return domain.ErrExceedsAllocation.On(bucket.String())
	}
	sup.Remaining[bucket] -= amount
	sup.Circulating += amount
	if err := tx.Put(ctx, domain.KindSupplyObj, domain.SingletonID, sup); err != nil {
		return err
	}
	tx.Emit(domain.Event{
		Type:    domain.EventMinted,
		Actor:   actor,
		Subject: bucket.String(),
		Amount:  amount,
	})
	return nil
}

// CheckHalving halves the emission rate once for every threshold the
// cumulative distributed amount has crossed. The rate never increases.
func (s *Service) CheckHalving(ctx context.Context, tx *ledger.Tx) (int64, error) {
	sup, err := s.Load(ctx, tx)
	if err != nil {
		return 0, err
	}
	halvings := int64(0)
	for sup.HalvingStep > 0 && sup.Distributed() >= (sup.HalvingIndex+1)*sup.HalvingStep {
		previous := sup.EmissionRate
		sup.EmissionRate /= 2
		sup.HalvingIndex++
		halvings++
		tx.Emit(domain.Event{
			Type:    domain.EventHalving,
			Subject: strconv.FormatInt(sup.HalvingIndex, 10),
			Amount:  sup.EmissionRate,
			Attrs: map[string]string{
				"previous_rate": strconv.FormatInt(previous, 10),
				"distributed":   strconv.FormatInt(sup.Distributed(), 10),
			},
		})
	}
	if halvings == 0 {
		return sup.EmissionRate, nil
	}
	if err := tx.Put(ctx, domain.KindSupplyObj, domain.SingletonID, sup); err != nil {
		return 0, err
	}
	return sup.EmissionRate, nil
}

// Burn removes amount from circulation for good. Callers debit the holder.
func (s *Service) Burn(ctx context.Context, tx *ledger.Tx, amount int64, reason, actor string) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount.On("amount")
	}
	sup, err := s.Load(ctx, tx)
	if err != nil {
		return err
	}
	if amount > sup.Circulating {
		return domain.ErrInsufficientBalance.On("circulating")
	}
	sup.Circulating -= amount
	sup.Burned += amount
	if err := tx.Put(ctx, domain.KindSupplyObj, domain.SingletonID, sup); err != nil {
		return err
	}
	tx.Emit(domain.Event{
		Type:   domain.EventBurned,
		Actor:  actor,
		Amount: amount,
		Attrs:  map[string]string{"reason": reason},
	})
	return nil
}
