package social_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustflow/internal/domain"
	"trustflow/internal/services/reputation"
	"trustflow/internal/services/social"
	"trustflow/internal/services/supply"
	"trustflow/internal/testutil"
)

type fixture struct {
	env    *testutil.Env
	rep    *reputation.Service
	social *social.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	_, err := supply.New(env.Ledger).Genesis(context.Background(), supply.GenesisConfig{
		Authority: testutil.Authority,
		Treasury:  testutil.Treasury,
	})
	require.NoError(t, err)
	rep := reputation.New(env.Ledger)
	return &fixture{env: env, rep: rep, social: social.New(env.Ledger, rep)}
}

// user creates a reputation record with the given score.
func (f *fixture) user(t *testing.T, name string, score int64) {
	t.Helper()
	_, err := f.rep.Initialize(context.Background(), name)
	require.NoError(t, err)
	rs := testutil.Load[domain.ReputationScore](t, f.env, domain.KindReputationObj, name)
	rs.Score = score
	f.env.Put(t, domain.KindReputationObj, name, rs)
}

func TestFollowWeightsByTargetReputation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "a", 500)
	f.user(t, "b", 800)
	f.user(t, "c", 300)

	conn, err := f.social.Follow(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), conn.Weight)
	assert.Equal(t, domain.HopDirect, conn.Hop)

	conn, err = f.social.Follow(ctx, "a", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(500), conn.Weight)

	g, err := f.social.Graph(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Strong)
	assert.Equal(t, int64(1), g.Weak)
	assert.True(t, g.Following["b"])

	gb, err := f.social.Graph(ctx, "b")
	require.NoError(t, err)
	assert.True(t, gb.Followers["a"])
}

func TestFollowErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "a", 100)
	f.user(t, "b", 100)

	_, err := f.social.Follow(ctx, "a", "a")
	require.ErrorIs(t, err, domain.ErrSelfFollow)

	_, err = f.social.Follow(ctx, "a", "b")
	require.NoError(t, err)
	_, err = f.social.Follow(ctx, "a", "b")
	require.ErrorIs(t, err, domain.ErrAlreadyFollowing)

	require.ErrorIs(t, f.social.Unfollow(ctx, "b", "a"), domain.ErrNotFollowing)

	_, err = f.social.Follow(ctx, "a", "ghost")
	require.True(t, domain.IsNotFound(err))
}

func TestMutualAndUnfollow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "a", 100)
	f.user(t, "b", 100)

	_, err := f.social.Follow(ctx, "a", "b")
	require.NoError(t, err)
	_, err = f.social.Follow(ctx, "b", "a")
	require.NoError(t, err)

	g, err := f.social.Graph(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Mutual)

	require.NoError(t, f.social.Unfollow(ctx, "a", "b"))
	g, err = f.social.Graph(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, g.Mutual)
	assert.Empty(t, g.Connections)
	assert.False(t, g.Following["b"])

	gb, err := f.social.Graph(ctx, "b")
	require.NoError(t, err)
	assert.Zero(t, gb.Mutual)
	assert.False(t, gb.Followers["a"])
}

func TestConnectionsAreBounded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "hub", 100)
	for i := 0; i < social.MaxConnections; i++ {
		f.user(t, testutil.User(i), 100)
		_, err := f.social.Follow(ctx, "hub", testutil.User(i))
		require.NoError(t, err)
	}
	f.user(t, "star", 900)
	_, err := f.social.Follow(ctx, "hub", "star")
	require.NoError(t, err)

	g, err := f.social.Graph(ctx, "hub")
	require.NoError(t, err)
	assert.Len(t, g.Connections, social.MaxConnections)
	_, ok := g.Connection("star")
	assert.True(t, ok, "a heavier connection evicts the weakest")
	assert.Len(t, g.Following, social.MaxConnections+1)
}

func TestDistanceAndTrustWeight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, u := range []string{"a", "b", "c", "d"} {
		f.user(t, u, 100)
	}
	_, err := f.social.Follow(ctx, "a", "b")
	require.NoError(t, err)
	_, err = f.social.Follow(ctx, "b", "c")
	require.NoError(t, err)

	cases := []struct {
		from, to string
		want     social.Distance
	}{
		{"a", "a", social.DistanceSelf},
		{"a", "b", social.DistanceDirect},
		{"a", "c", social.DistanceFriendOfFriend},
		{"a", "d", social.DistanceNone},
		{"c", "a", social.DistanceNone},
	}
	for _, tc := range cases {
		d, err := f.social.Distance(ctx, tc.from, tc.to)
		require.NoError(t, err)
		assert.Equal(t, tc.want, d, "%s -> %s", tc.from, tc.to)
	}

	assert.Equal(t, int64(750), social.TrustWeight(social.DistanceDirect, 100))
	assert.Equal(t, int64(375), social.TrustWeight(social.DistanceFriendOfFriend, 150))
	assert.Zero(t, social.TrustWeight(social.DistanceNone, 300))
	assert.Zero(t, social.TrustWeight(social.DistanceSelf, 300))
}

func TestRecordInteraction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.user(t, "a", 100)
	f.user(t, "b", 990)

	_, err := f.social.RecordInteraction(ctx, "a", "b")
	require.ErrorIs(t, err, domain.ErrNotFollowing)

	_, err = f.social.Follow(ctx, "a", "b")
	require.NoError(t, err)
	conn, err := f.social.RecordInteraction(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), conn.Weight, "weight is capped")
	assert.Equal(t, int64(1), conn.Interactions)
	assert.Equal(t, testutil.Genesis.UnixMilli(), conn.LastInteraction)

	evs := f.env.Sink.OfType(domain.EventInteraction)
	require.Len(t, evs, 1)
	assert.Equal(t, "a", evs[0].Actor)
	assert.Equal(t, "b", evs[0].Subject)
	assert.Equal(t, int64(1000), evs[0].Amount)
}

func TestDiscoverIndirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, u := range []string{"me", "m1", "m2", "x", "y"} {
		f.user(t, u, 100)
	}
	f.user(t, "famous", 900)
	follow := func(a, b string) {
		_, err := f.social.Follow(ctx, a, b)
		require.NoError(t, err)
	}
	follow("me", "m1")
	follow("me", "m2")
	follow("m1", "x")
	follow("m2", "x")
	follow("m1", "famous")
	follow("m2", "me")
	follow("m1", "m2")

	got, err := f.social.DiscoverIndirect(ctx, "me", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// me->m1 (250) x m1->famous (1000) = 125
	assert.Equal(t, "famous", got[0].User)
	assert.Equal(t, int64(125), got[0].Strength)
	// two paths of 250 x 250 = 31 each
	assert.Equal(t, "x", got[1].User)
	assert.Equal(t, int64(62), got[1].Strength)
	assert.Equal(t, 2, got[1].Paths)

	_, err = f.social.DiscoverIndirect(ctx, "me", 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSetExtendedGraph(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.ErrorIs(t, f.social.SetExtendedGraph(ctx, "a", "bogus"), domain.ErrInvalidContentHash)

	ref := testutil.CID(t, "graph-a")
	require.NoError(t, f.social.SetExtendedGraph(ctx, "a", ref))
	g, err := f.social.Graph(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, ref, g.ExtendedGraphCID)

	evs := f.env.Sink.OfType(domain.EventExtendedGraphSet)
	require.Len(t, evs, 1)
	assert.Equal(t, ref, evs[0].Attrs["cid"])
}
