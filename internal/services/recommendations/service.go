package recommendations

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/services/accounts"
	"trustflow/internal/services/reputation"
	"trustflow/internal/services/rewards"
	"trustflow/internal/services/social"
)

// Categories a recommendation may be filed under.
var Categories = map[string]bool{
	"restaurant": true,
	"cafe":       true,
	"bar":        true,
	"hotel":      true,
	"attraction": true,
	"shopping":   true,
	"service":    true,
	"other":      true,
}

const (
	minRating = 1
	maxRating = 5

	maxLatE6 = 90_000_000
	maxLngE6 = 180_000_000
)

// Meta is what an author supplies when registering a recommendation.
type Meta struct {
	ContentCID string
	Category   string
	LatE6      int64
	LngE6      int64
	Rating     int64
}

func (m Meta) validate() (string, error) {
	c, err := cid.Decode(m.ContentCID)
	if err != nil {
		return "", domain.ErrInvalidContentHash.On("content_cid")
	}
	if !Categories[m.Category] {
		return "", domain.ErrInvalidCategory.On("category")
	}
	if m.Rating < minRating || m.Rating > maxRating {
		return "", domain.ErrInvalidRating.On("rating")
	}
	if m.LatE6 < -maxLatE6 || m.LatE6 > maxLatE6 {
		return "", domain.ErrInvalidArgument.On("lat")
	}
	if m.LngE6 < -maxLngE6 || m.LngE6 > maxLngE6 {
		return "", domain.ErrInvalidArgument.On("lng")
	}
	return c.String(), nil
}

// Service records recommendations, accumulates weighted engagement and pays
// the rewards tied to them.
type Service struct {
	l        *ledger.Ledger
	rep      *reputation.Service
	social   *social.Service
	accounts *accounts.Service
	rewards  *rewards.Service
	log      zerolog.Logger
}

func New(l *ledger.Ledger, rep *reputation.Service, soc *social.Service, accts *accounts.Service, rw *rewards.Service) *Service {
	return &Service{
		l:        l,
		rep:      rep,
		social:   soc,
		accounts: accts,
		rewards:  rw,
		log:      l.Logger("recommendations"),
	}
}

func (s *Service) load(ctx context.Context, tx *ledger.Tx, id string) (domain.Recommendation, error) {
	return ledger.Get[domain.Recommendation](ctx, tx, domain.KindRecObj, id)
}

func (s *Service) save(ctx context.Context, tx *ledger.Tx, rec domain.Recommendation) error {
	return tx.Put(ctx, domain.KindRecObj, rec.ID, rec)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Recommendation, error) {
	var out domain.Recommendation
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.load(ctx, tx, id)
		return err
	})
	return out, err
}

// Create registers a recommendation and pays its creation reward, a
// first-reviewer reward when the content has not been recommended before,
// and any referral reward still owed for the author.
func (s *Service) Create(ctx context.Context, author string, meta Meta) (domain.Recommendation, error) {
	content, err := meta.validate()
	if err != nil {
		return domain.Recommendation{}, err
	}
	var out domain.Recommendation
	err = s.l.Update(ctx, func(tx *ledger.Tx) error {
		if _, err := s.rep.Load(ctx, tx, author); err != nil {
			return err
		}
		params, err := tx.Params(ctx)
		if err != nil {
			return err
		}
		rec := domain.Recommendation{
			ID:         uuid.NewString(),
			Author:     author,
			ContentCID: content,
			Category:   meta.Category,
			Location:   domain.Location{LatE6: meta.LatE6, LngE6: meta.LngE6},
			Rating:     meta.Rating,
			CreatedAt:  tx.Now(),
		}
		if err := s.save(ctx, tx, rec); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventRecommendationCreated,
			Actor:   author,
			Subject: rec.ID,
			Attrs:   map[string]string{"content": content, "category": rec.Category},
		})

		if _, err := s.rewards.Distribute(ctx, tx, params.CreationReward, author, rewards.ReasonCreation, rec.ID); err != nil {
			return err
		}
		seen, err := tx.Has(ctx, domain.KindContentIdx, content)
		if err != nil {
			return err
		}
		if !seen {
			if err := tx.Put(ctx, domain.KindContentIdx, content, domain.Marker{At: tx.Now()}); err != nil {
				return err
			}
			if _, err := s.rewards.Distribute(ctx, tx, params.FirstReviewerReward, author, rewards.ReasonFirstReviewer, rec.ID); err != nil {
				return err
			}
		}
		if _, _, err := s.rewards.PayReferral(ctx, tx, author); err != nil {
			return err
		}
		if err := s.rep.RecordRecommendation(ctx, tx, author); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// Engage records a save or comment by actor. Points and the author's reward
// are scaled by the actor's standing; the first crossing of the validation
// threshold validates the recommendation and pays the bonus.
func (s *Service) Engage(ctx context.Context, recID, actor string, kind domain.EngagementKind) (domain.Recommendation, error) {
	if !kind.Valid() {
		return domain.Recommendation{}, domain.ErrInvalidArgument.On("kind")
	}
	var (
		out     domain.Recommendation
		crossed bool
	)
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		rec, err := s.load(ctx, tx, recID)
		if err != nil {
			return err
		}
		if actor == rec.Author {
			return domain.ErrCannotEngageOwn.On("actor")
		}
		key := ledger.Key(rec.ID, actor, kind.String())
		engaged, err := tx.Has(ctx, domain.KindEngagementIdx, key)
		if err != nil {
			return err
		}
		if engaged {
			return domain.ErrAlreadyEngaged.On(kind.String())
		}
		params, err := tx.Params(ctx)
		if err != nil {
			return err
		}
		acct, err := s.accounts.Load(ctx, tx, actor)
		if err != nil {
			return err
		}
		weight := params.TierWeight(acct.Standing)
		points := params.EngagementPoints(kind) * weight / domain.WeightScale

		if err := tx.Put(ctx, domain.KindEngagementIdx, key, domain.Marker{At: tx.Now(), Value: points}); err != nil {
			return err
		}
		rec.EngagementPoints += points
		switch kind {
		case domain.EngageSave:
			rec.Saves++
		case domain.EngageComment:
			rec.Comments++
		}
		tx.Emit(domain.Event{
			Type:    domain.EventRecommendationEngaged,
			Actor:   actor,
			Subject: rec.ID,
			Amount:  points,
			Attrs: map[string]string{
				"kind":   kind.String(),
				"points": strconv.FormatInt(rec.EngagementPoints, 10),
			},
		})

		reward := params.EngagementReward(kind) * weight / domain.WeightScale
		if _, err := s.rewards.Distribute(ctx, tx, reward, rec.Author, rewards.ReasonEngagement, rec.ID); err != nil {
			return err
		}
		crossed = !rec.Validated && rec.EngagementPoints >= params.ValidationThreshold
		if crossed {
			if err := s.validate(ctx, tx, &rec, true); err != nil {
				return err
			}
		}
		if err := s.save(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err == nil && crossed {
		s.logValidated(out, "engagement")
	}
	return out, err
}

func (s *Service) logValidated(rec domain.Recommendation, via string) {
	s.log.Info().
		Str("recommendation", rec.ID).
		Str("author", rec.Author).
		Str("via", via).
		Int64("points", rec.EngagementPoints).
		Bool("bonus_paid", rec.RewardClaimed).
		Msg("recommendation validated")
}

// validate moves rec to Validated and folds its vote record into the
// author's reputation. With pay set the validation bonus is paid now;
// otherwise it waits for ClaimValidationBonus.
func (s *Service) validate(ctx context.Context, tx *ledger.Tx, rec *domain.Recommendation, pay bool) error {
	rec.Validated = true
	rec.ValidatedAt = tx.Now()
	tx.Emit(domain.Event{
		Type:    domain.EventRecommendationValidated,
		Subject: rec.ID,
		Amount:  rec.EngagementPoints,
		Attrs:   map[string]string{"author": rec.Author},
	})
	if err := s.rep.ApplyActivity(ctx, tx, rec.Author, rec.Upvotes, rec.Downvotes, rec.TrustScore); err != nil {
		return err
	}
	if !pay {
		return nil
	}
	return s.payBonus(ctx, tx, rec)
}

// payBonus pays the validation bonus scaled by the social trust the
// recommendation gathered, capped by the trust multiplier ceiling.
func (s *Service) payBonus(ctx context.Context, tx *ledger.Tx, rec *domain.Recommendation) error {
	params, err := tx.Params(ctx)
	if err != nil {
		return err
	}
	multiplier := domain.Min(domain.WeightScale+rec.SocialTrust, params.TrustMultiplierCap)
	bonus := domain.MulDiv(params.ValidationBonus, multiplier, domain.WeightScale)
	if _, err := s.rewards.Distribute(ctx, tx, bonus, rec.Author, rewards.ReasonValidation, rec.ID); err != nil {
		return err
	}
	rec.RewardClaimed = true
	return nil
}

// ClaimValidationBonus pays the bonus of a recommendation validated by votes.
func (s *Service) ClaimValidationBonus(ctx context.Context, recID, caller string) (domain.Recommendation, error) {
	var out domain.Recommendation
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		rec, err := s.load(ctx, tx, recID)
		if err != nil {
			return err
		}
		if caller != rec.Author {
			return domain.ErrNotAuthor.On("caller")
		}
		if !rec.Validated {
			return domain.ErrNotValidated.On("recommendation")
		}
		if rec.RewardClaimed {
			return domain.ErrAlreadyClaimed.On("recommendation")
		}
		if err := s.payBonus(ctx, tx, &rec); err != nil {
			return err
		}
		if err := s.save(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return out, err
	}
	s.log.Info().Str("recommendation", out.ID).Str("author", out.Author).Msg("validation bonus claimed")
	return out, nil
}
