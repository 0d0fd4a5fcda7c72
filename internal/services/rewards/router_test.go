package rewards_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/services/accounts"
	"trustflow/internal/services/rewards"
	"trustflow/internal/services/supply"
	"trustflow/internal/testutil"
)

type fixture struct {
	env      *testutil.Env
	supply   *supply.Service
	accounts *accounts.Service
	rewards  *rewards.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	sup := supply.New(env.Ledger)
	_, err := sup.Genesis(context.Background(), supply.GenesisConfig{
		Authority: testutil.Authority,
		Treasury:  testutil.Treasury,
	})
	require.NoError(t, err)
	accts := accounts.New(env.Ledger, sup)
	return &fixture{env: env, supply: sup, accounts: accts, rewards: rewards.New(env.Ledger, sup, accts)}
}

func (f *fixture) distribute(t *testing.T, base int64, recipient string) rewards.Payout {
	t.Helper()
	var p rewards.Payout
	err := f.env.Ledger.Update(context.Background(), func(tx *ledger.Tx) error {
		var err error
		p, err = f.rewards.Distribute(context.Background(), tx, base, recipient, rewards.ReasonCreation, "ref-1")
		return err
	})
	require.NoError(t, err)
	return p
}

func TestRouteByAccountStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.accounts.SetStatus(ctx, "fresh", true, domain.StandingNew))
	require.NoError(t, f.accounts.SetStatus(ctx, "regular", true, domain.StandingEstablished))
	require.NoError(t, f.accounts.SetStatus(ctx, "veteran", true, domain.StandingTrusted))
	require.NoError(t, f.accounts.SetStatus(ctx, "trusted-unverified", false, domain.StandingTrusted))

	cases := []struct {
		user string
		want rewards.Destination
	}{
		{"anonymous", rewards.DestinationLongHold},
		{"trusted-unverified", rewards.DestinationLongHold},
		{"fresh", rewards.DestinationShortHold},
		{"regular", rewards.DestinationDirect},
		{"veteran", rewards.DestinationDirect},
	}
	for _, tc := range cases {
		t.Run(tc.user, func(t *testing.T) {
			p := f.distribute(t, domain.Token, tc.user)
			assert.Equal(t, tc.want, p.Destination)
			assert.Equal(t, domain.Token, p.Amount)

			acct, err := f.accounts.Get(ctx, tc.user)
			require.NoError(t, err)
			if tc.want == rewards.DestinationDirect {
				assert.Equal(t, domain.Token, acct.Balance.Amount())
				assert.Empty(t, p.HoldID)
				return
			}
			assert.Zero(t, acct.Balance.Amount())
			hold, err := f.rewards.Hold(ctx, p.HoldID)
			require.NoError(t, err)
			assert.Equal(t, domain.Token, hold.Pending.Amount())
			assert.Equal(t, "ref-1", hold.Reference)
		})
	}

	snap, err := f.supply.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5*domain.Token, snap.Circulating)
	assert.Equal(t, supply.TotalCap, snap.Accounted())
	assert.Len(t, f.env.Sink.OfType(domain.EventRewardDistributed), 5)
}

func TestDistributeScalesByEmissionRate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.accounts.SetStatus(ctx, "bob", true, domain.StandingTrusted))

	snap, err := f.supply.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, f.accounts.MintAllocation(ctx, testutil.Authority, domain.BucketEcosystem, "fund", snap.HalvingStep))

	p := f.distribute(t, domain.Token, "bob")
	assert.Equal(t, domain.Token/2, p.Amount)

	p = f.distribute(t, 1, "bob")
	assert.Zero(t, p.Amount, "a reward rounded to nothing mints nothing")
	assert.Empty(t, p.Destination)
}

func TestShortHoldClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.accounts.SetStatus(ctx, "fresh", true, domain.StandingNew))
	p := f.distribute(t, domain.Token, "fresh")

	_, err := f.rewards.ClaimHold(ctx, p.HoldID, "fresh")
	require.ErrorIs(t, err, domain.ErrLockNotExpired)
	assert.True(t, domain.IsTimingError(err))

	f.env.Advance(7 * domain.Day)
	_, err = f.rewards.ClaimHold(ctx, p.HoldID, "someone-else")
	require.ErrorIs(t, err, domain.ErrNotHolder)

	hold, err := f.rewards.ClaimHold(ctx, p.HoldID, "fresh")
	require.NoError(t, err)
	assert.True(t, hold.Claimed)

	_, err = f.rewards.ClaimHold(ctx, p.HoldID, "fresh")
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	_, err = f.rewards.ExpireHold(ctx, p.HoldID)
	require.ErrorIs(t, err, domain.ErrNotExpirable)

	acct, err := f.accounts.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.Token, acct.Balance.Amount())
}

func TestLongHoldClaimRequiresVerification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.distribute(t, domain.Token, "anon")

	_, err := f.rewards.ClaimHold(ctx, p.HoldID, "anon")
	require.ErrorIs(t, err, domain.ErrAccountNotVerified)

	require.NoError(t, f.accounts.SetStatus(ctx, "anon", true, domain.StandingNew))
	_, err = f.rewards.ClaimHold(ctx, p.HoldID, "anon")
	require.NoError(t, err)

	acct, err := f.accounts.Get(ctx, "anon")
	require.NoError(t, err)
	assert.Equal(t, domain.Token, acct.Balance.Amount())

	n, err := f.rewards.ExpireDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLongHoldExpiresToTreasury(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.distribute(t, domain.Token, "anon")
	assert.Equal(t, rewards.DestinationLongHold, p.Destination)

	_, err := f.rewards.ExpireHold(ctx, p.HoldID)
	require.ErrorIs(t, err, domain.ErrEscrowNotExpired)

	f.env.Advance(180 * domain.Day)
	require.NoError(t, f.accounts.SetStatus(ctx, "anon", true, domain.StandingTrusted))
	_, err = f.rewards.ClaimHold(ctx, p.HoldID, "anon")
	require.ErrorIs(t, err, domain.ErrHoldExpired)

	hold, err := f.rewards.ExpireHold(ctx, p.HoldID)
	require.NoError(t, err)
	assert.True(t, hold.Expired)
	assert.Zero(t, hold.Pending.Amount())
	assert.Contains(t, f.env.Log.String(), `"holder":"anon","amount":1000000,"message":"escrow hold expired to treasury"`)

	_, err = f.rewards.ClaimHold(ctx, p.HoldID, "anon")
	require.ErrorIs(t, err, domain.ErrAlreadyExpired)
	_, err = f.rewards.ExpireHold(ctx, p.HoldID)
	require.ErrorIs(t, err, domain.ErrAlreadyExpired)

	treasury, err := f.accounts.Get(ctx, testutil.Treasury)
	require.NoError(t, err)
	assert.Equal(t, domain.Token, treasury.Balance.Amount())
	anon, err := f.accounts.Get(ctx, "anon")
	require.NoError(t, err)
	assert.Zero(t, anon.Balance.Amount())
}

func TestExpireDueIsBoundedAndRepeatable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.distribute(t, domain.Token, testutil.User(i))
		f.env.Advance(domain.Hour)
	}
	f.env.Advance(180 * domain.Day)

	job := f.rewards.ExpiryJob()
	assert.Equal(t, "escrow_expiry", job.Name())

	n, err := job.RunBatch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = job.RunBatch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = job.RunBatch(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, n)

	treasury, err := f.accounts.Get(ctx, testutil.Treasury)
	require.NoError(t, err)
	assert.Equal(t, 5*domain.Token, treasury.Balance.Amount())
	assert.Len(t, f.env.Sink.OfType(domain.EventEscrowExpired), 5)
}

func TestReferrals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.accounts.SetStatus(ctx, "referrer", true, domain.StandingTrusted))

	require.ErrorIs(t, f.rewards.RegisterReferral(ctx, "bob", "bob"), domain.ErrSelfReferral)
	require.NoError(t, f.rewards.RegisterReferral(ctx, "referrer", "bob"))
	require.ErrorIs(t, f.rewards.RegisterReferral(ctx, "other", "bob"), domain.ErrAlreadyReferred)

	pay := func() bool {
		var paid bool
		err := f.env.Ledger.Update(ctx, func(tx *ledger.Tx) error {
			var err error
			_, paid, err = f.rewards.PayReferral(ctx, tx, "bob")
			return err
		})
		require.NoError(t, err)
		return paid
	}
	assert.True(t, pay())
	assert.False(t, pay(), "a referral pays once")

	acct, err := f.accounts.Get(ctx, "referrer")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultParams().ReferralReward, acct.Balance.Amount())

	ref, err := f.rewards.Referral(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ref.Paid)
}

func TestDistributeRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.accounts.SetStatus(ctx, "bob", true, domain.StandingTrusted))

	err := f.env.Ledger.Update(ctx, func(tx *ledger.Tx) error {
		if _, err := f.rewards.Distribute(ctx, tx, domain.Token, "bob", rewards.ReasonCreation, ""); err != nil {
			return err
		}
		return domain.ErrInvalidState.On("forced")
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	snap, err := f.supply.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Circulating)
	acct, err := f.accounts.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, acct.Balance.Amount())
	assert.Empty(t, f.env.Sink.OfType(domain.EventRewardDistributed))
}
