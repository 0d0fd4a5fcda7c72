package recommendations

import (
	"context"
	"strconv"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/services/social"
)

// maxVolumeFactor caps the square-root volume curve of the trust score.
const maxVolumeFactor = 10

// TrustScore is a recommendation's vote-based score (x100, 0..1000): the
// upvote percentage times a volume factor of sqrt(votes) capped at 10.
func TrustScore(upvotes, downvotes int64) int64 {
	total := upvotes + downvotes
	if total == 0 {
		return 0
	}
	ratio := upvotes * 100 / total
	volume := domain.Min(domain.ISqrt(total), maxVolumeFactor)
	return domain.Min(ratio*volume, domain.MaxScore)
}

// Vote records voter's up or down vote weighted by social distance to the
// author and the voter's trust modifier. Votes never pay rewards; if they
// carry the recommendation over the threshold it is validated and the bonus
// is left for the author to claim.
func (s *Service) Vote(ctx context.Context, recID, voter string, up bool) (domain.Recommendation, error) {
	var (
		out     domain.Recommendation
		crossed bool
	)
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		rec, err := s.load(ctx, tx, recID)
		if err != nil {
			return err
		}
		if voter == rec.Author {
			return domain.ErrCannotEngageOwn.On("voter")
		}
		key := ledger.Key(rec.ID, voter)
		voted, err := tx.Has(ctx, domain.KindRecVoteIdx, key)
		if err != nil {
			return err
		}
		if voted {
			return domain.ErrAlreadyVoted.On("voter")
		}
		modifier, err := s.rep.TrustModifierTx(ctx, tx, voter)
		if err != nil {
			return err
		}
		dist, err := s.social.DistanceTx(ctx, tx, voter, rec.Author)
		if err != nil {
			return err
		}
		weight := social.TrustWeight(dist, modifier)

		value := weight
		if up {
			rec.Upvotes++
			rec.UpvoteWeight += weight
			rec.SocialTrust += weight
			rec.EngagementPoints += weight
		} else {
			value = -weight
			rec.Downvotes++
			rec.DownvoteWeight += weight
		}
		rec.TrustScore = TrustScore(rec.Upvotes, rec.Downvotes)
		if err := tx.Put(ctx, domain.KindRecVoteIdx, key, domain.Marker{At: tx.Now(), Value: value}); err != nil {
			return err
		}
		if err := s.rep.RecordVoteCast(ctx, tx, voter); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventRecommendationVoted,
			Actor:   voter,
			Subject: rec.ID,
			Amount:  weight,
			Attrs: map[string]string{
				"up":          strconv.FormatBool(up),
				"distance":    strconv.Itoa(int(dist)),
				"trust_score": strconv.FormatInt(rec.TrustScore, 10),
			},
		})

		params, err := tx.Params(ctx)
		if err != nil {
			return err
		}
		crossed = !rec.Validated && rec.EngagementPoints >= params.ValidationThreshold
		if crossed {
			if err := s.validate(ctx, tx, &rec, false); err != nil {
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
		s.logValidated(out, "votes")
	}
	return out, err
}
