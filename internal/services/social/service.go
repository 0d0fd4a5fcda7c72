package social

import (
	"context"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/services/reputation"
)

const (
	// MaxConnections bounds the trust connections kept per graph; the rest
	// of the graph lives off-ledger behind ExtendedGraphCID.
	MaxConnections = 50

	// StrongWeight is the weight (x1000) from which a connection is strong.
	StrongWeight = 750

	interactionStep = 10
	maxWeight       = domain.WeightScale
)

// Service maintains follow edges and the bounded trust connections derived
// from them.
type Service struct {
	l   *ledger.Ledger
	rep *reputation.Service
	log zerolog.Logger
}

func New(l *ledger.Ledger, rep *reputation.Service) *Service {
	return &Service{l: l, rep: rep, log: l.Logger("social")}
}

// ConnectionWeight maps a target's reputation score to the initial weight
// (x1000) of a connection to it.
func ConnectionWeight(score int64) int64 {
	switch {
	case score >= 800:
		return 1000
	case score >= 500:
		return 750
	case score >= 200:
		return 500
	default:
		return 250
	}
}

// Load returns user's graph; a user nobody has touched has an empty one.
func (s *Service) Load(ctx context.Context, tx *ledger.Tx, user string) (domain.SocialGraph, error) {
	g, err := ledger.Get[domain.SocialGraph](ctx, tx, domain.KindGraphObj, user)
	if domain.IsNotFound(err) {
		return domain.SocialGraph{Owner: user}, nil
	}
	return g, err
}

func (s *Service) save(ctx context.Context, tx *ledger.Tx, g domain.SocialGraph) error {
	g.Strong, g.Weak = 0, 0
	for _, c := range g.Connections {
		if c.Weight >= StrongWeight {
			g.Strong++
		} else {
			g.Weak++
		}
	}
	return tx.Put(ctx, domain.KindGraphObj, g.Owner, g)
}

func (s *Service) Graph(ctx context.Context, user string) (domain.SocialGraph, error) {
	var out domain.SocialGraph
	err := s.l.View(ctx, func(tx *ledger.Tx) error {
		var err error
		out, err = s.Load(ctx, tx, user)
		return err
	})
	return out, err
}

// Follow adds the edge a -> b and a trust connection weighted by b's
// reputation.
func (s *Service) Follow(ctx context.Context, a, b string) (domain.TrustConnection, error) {
	if a == b {
		return domain.TrustConnection{}, domain.ErrSelfFollow.On("target")
	}
	var (
		out     domain.TrustConnection
		tracked bool
	)
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		if _, err := s.rep.Load(ctx, tx, a); err != nil {
			return err
		}
		target, err := s.rep.Load(ctx, tx, b)
		if err != nil {
			return err
		}
		ga, err := s.Load(ctx, tx, a)
		if err != nil {
			return err
		}
		if ga.Following[b] {
			return domain.ErrAlreadyFollowing.On("target")
		}
		gb, err := s.Load(ctx, tx, b)
		if err != nil {
			return err
		}
		if ga.Following == nil {
			ga.Following = make(map[string]bool)
		}
		if gb.Followers == nil {
			gb.Followers = make(map[string]bool)
		}
		ga.Following[b] = true
		gb.Followers[a] = true
		if gb.Following[a] {
			ga.Mutual++
			gb.Mutual++
		}
		out = domain.TrustConnection{
			Target:          b,
			Weight:          ConnectionWeight(target.Score),
			Hop:             domain.HopDirect,
			LastInteraction: tx.Now(),
		}
		tracked = track(&ga, out)
		if err := s.save(ctx, tx, ga); err != nil {
			return err
		}
		if err := s.save(ctx, tx, gb); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventFollowed,
			Actor:   a,
			Subject: b,
			Amount:  out.Weight,
		})
		return nil
	})
	if err == nil && !tracked {
		s.log.Debug().
			Str("user", a).
			Str("target", b).
			Int64("weight", out.Weight).
			Msg("connection list full, follow kept without a trust connection")
	}
	return out, err
}

// track inserts c into g's bounded connection list. When the list is full
// the weakest connection is evicted if c is heavier; otherwise c is dropped.
func track(g *domain.SocialGraph, c domain.TrustConnection) bool {
	if i, ok := g.Connection(c.Target); ok {
		g.Connections[i] = c
		return true
	}
	if len(g.Connections) < MaxConnections {
		g.Connections = append(g.Connections, c)
		return true
	}
	weakest := 0
	for i := range g.Connections {
		if g.Connections[i].Weight < g.Connections[weakest].Weight {
			weakest = i
		}
	}
	if g.Connections[weakest].Weight >= c.Weight {
		return false
	}
	g.Connections[weakest] = c
	return true
}

func (s *Service) Unfollow(ctx context.Context, a, b string) error {
	return s.l.Update(ctx, func(tx *ledger.Tx) error {
		ga, err := s.Load(ctx, tx, a)
		if err != nil {
			return err
		}
		if !ga.Following[b] {
			return domain.ErrNotFollowing.On("target")
		}
		gb, err := s.Load(ctx, tx, b)
		if err != nil {
			return err
		}
		delete(ga.Following, b)
		delete(gb.Followers, a)
		if gb.Following[a] {
			ga.Mutual--
			gb.Mutual--
		}
		if i, ok := ga.Connection(b); ok {
			ga.Connections = append(ga.Connections[:i], ga.Connections[i+1:]...)
		}
		if err := s.save(ctx, tx, ga); err != nil {
			return err
		}
		if err := s.save(ctx, tx, gb); err != nil {
			return err
		}
		tx.Emit(domain.Event{Type: domain.EventUnfollowed, Actor: a, Subject: b})
		return nil
	})
}

// RecordInteraction strengthens a's connection to b by a fixed step up to
// the maximum weight.
func (s *Service) RecordInteraction(ctx context.Context, a, b string) (domain.TrustConnection, error) {
	var out domain.TrustConnection
	err := s.l.Update(ctx, func(tx *ledger.Tx) error {
		ga, err := s.Load(ctx, tx, a)
		if err != nil {
			return err
		}
		if !ga.Following[b] {
			return domain.ErrNotFollowing.On("target")
		}
		if i, ok := ga.Connection(b); ok {
			out = ga.Connections[i]
		} else {
			target, err := s.rep.Load(ctx, tx, b)
			if err != nil {
				return err
			}
			out = domain.TrustConnection{Target: b, Weight: ConnectionWeight(target.Score), Hop: domain.HopDirect}
		}
		out.Weight = domain.Min(out.Weight+interactionStep, maxWeight)
		out.Interactions++
		out.LastInteraction = tx.Now()
		track(&ga, out)
		if err := s.save(ctx, tx, ga); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventInteraction,
			Actor:   a,
			Subject: b,
			Amount:  out.Weight,
		})
		return nil
	})
	return out, err
}

// SetExtendedGraph stores the content reference of user's off-ledger graph.
func (s *Service) SetExtendedGraph(ctx context.Context, user, ref string) error {
	if _, err := cid.Decode(ref); err != nil {
		return domain.ErrInvalidContentHash.On("ref")
	}
	return s.l.Update(ctx, func(tx *ledger.Tx) error {
		g, err := s.Load(ctx, tx, user)
		if err != nil {
			return err
		}
		g.ExtendedGraphCID = ref
		if err := s.save(ctx, tx, g); err != nil {
			return err
		}
		tx.Emit(domain.Event{
			Type:    domain.EventExtendedGraphSet,
			Subject: user,
			Attrs:   map[string]string{"cid": ref},
		})
		return nil
	})
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
