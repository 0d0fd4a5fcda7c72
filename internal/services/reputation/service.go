package reputation

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
)

const (
	// InitialScore is every user's score (x100) at initialization.
	InitialScore = 100

	maxSpecializations = 10
	maxTagLength       = 32
)

var verificationBonus = map[domain.VerificationLevel]int64{
	domain.VerificationBasic:    50,
	domain.VerificationVerified: 100,
	domain.VerificationExpert:   200,
}

// Service is the reputation ledger: one ReputationScore per user.
type Service struct {
	l   *ledger.Ledger
	log zerolog.Logger
}

func New(l *ledger.Ledger) *Service {
	return &Service{l: l, log: l.Logger("reputation")}
}

// Load reads user's score inside tx.
func (s *Service) Load(ctx context.Context, tx *ledger.Tx, user string) (domain.ReputationScore, error) {
	rs, err := ledger.Get[domain.ReputationScore](ctx, tx, domain.KindReputationObj, user)
	if domain.IsNotFound(err) {
		return rs, domain.ErrNotFound.On("reputation:" + user)
	}
	return rs, err
}

func (s *Service) save(ctx context.Context, tx *ledger.Tx, rs domain.ReputationScore) error {
	rs.Score = domain.Clamp(rs.Score, 0, domain.MaxScore)
	rs.UpdatedAt = tx.Now()
	return tx.Put(ctx, domain.KindReputationObj, rs.Owner, rs)
}

func (s *Service) Get(ctx context.Context, user string) (domain.ReputationScore, error) {
	var out domain.ReputationScore
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.Load(ctx, tx, user)
		return err
	})
	return out, err
}

// Initialize creates user's score. It fails with AlreadyExists on repeat.
func (s *Service) Initialize(ctx context.Context, user string) (domain.ReputationScore, error) {
	if user == "" {
		return domain.ReputationScore{}, domain.ErrInvalidArgument.On("user")
	}
	var out domain.ReputationScore
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		exists, err := tx.Has(ctx, domain.KindReputationObj, user)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyExists.On("user")
		}
		out = domain.ReputationScore{
			Owner:     user,
			Score:     InitialScore,
			Level:     domain.VerificationNone,
			CreatedAt: tx.Now(),
		}
		if err := s.save(ctx, tx, out); err != nil {
			return err
		}
		out.UpdatedAt = tx.Now()
		tx.Emit(domain.Event{
			Type:    domain.EventReputationInitialized,
			Subject: user,
			Amount:  InitialScore,
		})
		return nil
	})
	return out, err
}

// UpdateForRecommendationActivity applies a vote-ratio adjustment and folds
// contentTrust (x100, 0..1000) into the quality averages.
func (s *Service) UpdateForRecommendationActivity(ctx context.Context, user string, upvotes, downvotes, contentTrust int64) error {
	return s.l.Update(ctx, func(tx *ledger.Tx) error {
		return s.ApplyActivity(ctx, tx, user, upvotes, downvotes, contentTrust)
	})
}

// ApplyActivity is UpdateForRecommendationActivity inside an open transaction.
func (s *Service) ApplyActivity(ctx context.Context, tx *ledger.Tx, user string, upvotes, downvotes, contentTrust int64) error {
	if upvotes < 0 {
		return domain.ErrInvalidArgument.On("upvotes")
	}
	if downvotes < 0 {
		return domain.ErrInvalidArgument.On("downvotes")
	}
	if contentTrust < 0 || contentTrust > domain.MaxScore {
		return domain.ErrInvalidArgument.On("content_trust")
	}
	rs, err := s.Load(ctx, tx, user)
	if err != nil {
		return err
	}
	previous := rs.Score
	rs.Score = domain.Clamp(rs.Score+activityAdjustment(upvotes, downvotes), 0, domain.MaxScore)
	rs.UpvotesReceived += upvotes
	rs.DownvotesReceived += downvotes

	if rs.QualitySamples == 0 {
		rs.RecentQuality = contentTrust
		rs.HistoricalQuality = contentTrust
		rs.AvgContentTrust = contentTrust
	} else {
		rs.RecentQuality = (3*rs.RecentQuality + contentTrust) / 4
		rs.HistoricalQuality = (9*rs.HistoricalQuality + contentTrust) / 10
		rs.AvgContentTrust = (rs.AvgContentTrust*rs.QualitySamples + contentTrust) / (rs.QualitySamples + 1)
	}
	rs.QualitySamples++

	if err := s.save(ctx, tx, rs); err != nil {
		return err
	}
	tx.Emit(domain.Event{
		Type:    domain.EventReputationUpdated,
		Subject: user,
		Amount:  rs.Score,
		Attrs: map[string]string{
			"previous":      strconv.FormatInt(previous, 10),
			"upvotes":       strconv.FormatInt(upvotes, 10),
			"downvotes":     strconv.FormatInt(downvotes, 10),
			"content_trust": strconv.FormatInt(contentTrust, 10),
		},
	})
	return nil
}

// activityAdjustment is the score delta (x100) for a vote split: the distance
// of the upvote ratio from 50%, damped for fewer than ten votes.
func activityAdjustment(upvotes, downvotes int64) int64 {
	total := upvotes + downvotes
	if total == 0 {
		return 0
	}
	ratio := upvotes * 100 / total
	return (ratio - 50) * domain.Min(total, 10) / 10
}

// RecordRecommendation counts a newly authored recommendation.
func (s *Service) RecordRecommendation(ctx context.Context, tx *ledger.Tx, user string) error {
	rs, err := s.Load(ctx, tx, user)
	if err != nil {
		return err
	}
	rs.TotalRecommendations++
	return s.save(ctx, tx, rs)
}

// RecordVoteCast counts a governance or recommendation vote by user.
func (s *Service) RecordVoteCast(ctx context.Context, tx *ledger.Tx, user string) error {
	rs, err := s.Load(ctx, tx, user)
	if err != nil {
		return err
	}
	rs.VotesCast++
	return s.save(ctx, tx, rs)
}

// SetVerificationLevel grants level's one-time bonus. Granting a level twice
// is a no-op; the current level is the highest granted.
func (s *Service) SetVerificationLevel(ctx context.Context, user string, level domain.VerificationLevel) error {
	if !level.Valid() {
		return domain.ErrInvalidArgument.On("level")
	}
	return s.l.Update(ctx, func(tx *ledger.Tx) error {
		rs, err := s.Load(ctx, tx, user)
		if err != nil {
			return err
		}
		if level == domain.VerificationNone || rs.LevelsGranted[uint8(level)] {
			return nil
		}
		if rs.LevelsGranted == nil {
			rs.LevelsGranted = make(map[uint8]bool)
		}
		rs.LevelsGranted[uint8(level)] = true
		bonus := verificationBonus[level]
		rs.Score = domain.Clamp(rs.Score+bonus, 0, domain.MaxScore)
		if level > rs.Level {
			rs.Level = level
		}
		if err := s.save(ctx, tx, rs); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventReputationVerified,
			Subject: user,
			Amount:  bonus,
			Attrs:   map[string]string{"level": level.String()},
		})
		return nil
	})
}

// AddSpecialization tags user with an area of expertise.
func (s *Service) AddSpecialization(ctx context.Context, user, tag string) error {
	if tag == "" || len(tag) > maxTagLength {
		return domain.ErrInvalidArgument.On("tag")
	}
	return s.l.Update(ctx, func(tx *ledger.Tx) error {
		rs, err := s.Load(ctx, tx, user)
		if err != nil {
			return err
		}
		for _, t := range rs.Specializations {
			if t == tag {
				return domain.ErrAlreadyHasTag.On("tag")
			}
		}
		if len(rs.Specializations) >= maxSpecializations {
			return domain.ErrTooManyTags.On("tag")
		}
		rs.Specializations = append(rs.Specializations, tag)
		if err := s.save(ctx, tx, rs); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventSpecializationAdded,
			Subject: user,
			Attrs:   map[string]string{"tag": tag},
		})
		return nil
	})
}
