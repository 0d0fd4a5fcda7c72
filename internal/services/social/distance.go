package social

import (
	"context"
	"sort"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
)

// Distance is the hop count between two users in the follow graph.
type Distance uint8

const (
	DistanceSelf Distance = iota
	DistanceDirect
	DistanceFriendOfFriend
	// DistanceNone is anything beyond friend-of-friend; it carries no weight.
	DistanceNone
)

// Base trust weights (x1000) by distance.
const (
	DirectWeight         = 750
	FriendOfFriendWeight = 250

	// pathDecay scales a two-hop path strength (x1000).
	pathDecay = 500
)

// TrustWeight is the weight (x1000) a user with trust modifier (x100)
// contributes at distance d.
func TrustWeight(d Distance, modifier int64) int64 {
	var base int64
	switch d {
	case DistanceDirect:
		base = DirectWeight
	case DistanceFriendOfFriend:
		base = FriendOfFriendWeight
	default:
		return 0
	}
	return base * modifier / domain.ScoreScale
}

// DistanceTx computes the distance from a to b inside tx.
func (s *Service) DistanceTx(ctx context.Context, tx *ledger.Tx, a, b string) (Distance, error) {
	if a == b {
		return DistanceSelf, nil
	}
	ga, err := s.Load(ctx, tx, a)
	if err != nil {
		return DistanceNone, err
	}
	if ga.Following[b] {
		return DistanceDirect, nil
	}
	for _, mid := range sortedKeys(ga.Following) {
		gm, err := s.Load(ctx, tx, mid)
		if err != nil {
			return DistanceNone, err
		}
		if gm.Following[b] {
			return DistanceFriendOfFriend, nil
		}
	}
	return DistanceNone, nil
}

func (s *Service) Distance(ctx context.Context, a, b string) (Distance, error) {
	var out Distance
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.DistanceTx(ctx, tx, a, b)
		return err
	})
	return out, err
}

// Candidate is a friend-of-friend suggestion.
type Candidate struct {
	User     string `json:"user"`
	Strength int64  `json:"strength"`
	Paths    int    `json:"paths"`
}

func connectionWeight(g domain.SocialGraph, target string) int64 {
	if i, ok := g.Connection(target); ok {
		return g.Connections[i].Weight
	}
	return ConnectionWeight(0)
}

// DiscoverIndirect ranks users reachable in two hops that user does not
// already follow. Each path contributes w1*w2 decayed by pathDecay; a
// candidate's strength is the sum over its paths, capped at 1000.
func (s *Service) DiscoverIndirect(ctx context.Context, user string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidArgument.On("limit")
	}
	var out []Candidate
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		g, err := s.Load(ctx, tx, user)
		if err != nil {
			return err
		}
		found := make(map[string]*Candidate)
		for _, mid := range sortedKeys(g.Following) {
			w1 := connectionWeight(g, mid)
			gm, err := s.Load(ctx, tx, mid)
			if err != nil {
				return err
			}
			for _, next := range sortedKeys(gm.Following) {
				if next == user || g.Following[next] {
					continue
				}
				w2 := connectionWeight(gm, next)
				c, ok := found[next]
				if !ok {
					c = &Candidate{User: next}
					found[next] = c
				}
				c.Strength = domain.Min(c.Strength+w1*w2/domain.WeightScale*pathDecay/domain.WeightScale, maxWeight)
				c.Paths++
			}
		}
		out = make([]Candidate, 0, len(found))
		for _, c := range found {
			out = append(out, *c)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Strength != out[j].Strength {
				return out[i].Strength > out[j].Strength
			}
			return out[i].User < out[j].User
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}
