package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustflow/internal/domain"
	"trustflow/internal/services/accounts"
	"trustflow/internal/services/supply"
	"trustflow/internal/testutil"
)

func newAccounts(t *testing.T) (*testutil.Env, *accounts.Service) {
	t.Helper()
	env := testutil.NewEnv(t)
	sup := supply.New(env.Ledger)
	_, err := sup.Genesis(context.Background(), supply.GenesisConfig{
		Authority: testutil.Authority,
		Treasury:  testutil.Treasury,
	})
	require.NoError(t, err)
	return env, accounts.New(env.Ledger, sup)
}

func TestUnknownAccountIsEmpty(t *testing.T) {
	_, accts := newAccounts(t)
	acct, err := accts.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", acct.Owner)
	assert.False(t, acct.Verified)
	assert.Equal(t, domain.StandingNew, acct.Standing)
	assert.True(t, acct.Balance.IsZero())
}

func TestTreasuryIsVerifiedAtGenesis(t *testing.T) {
	_, accts := newAccounts(t)
	acct, err := accts.Get(context.Background(), testutil.Treasury)
	require.NoError(t, err)
	assert.True(t, acct.Verified)
	assert.Equal(t, domain.StandingTrusted, acct.Standing)
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	env, accts := newAccounts(t)
	require.NoError(t, accts.MintAllocation(ctx, testutil.Authority, domain.BucketTeam, "alice", 10*domain.Token))

	require.NoError(t, accts.Transfer(ctx, "alice", "bob", 3*domain.Token))

	err := accts.Transfer(ctx, "alice", "bob", 8*domain.Token)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, domain.KindResource, domain.KindOf(err))

	require.ErrorIs(t, accts.Transfer(ctx, "alice", "alice", 1), domain.ErrInvalidArgument)
	require.ErrorIs(t, accts.Transfer(ctx, "alice", "bob", 0), domain.ErrInvalidAmount)

	alice, err := accts.Get(ctx, "alice")
	require.NoError(t, err)
	bob, err := accts.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 7*domain.Token, alice.Balance.Amount())
	assert.Equal(t, 3*domain.Token, bob.Balance.Amount())

	transfers := env.Sink.OfType(domain.EventTransfer)
	require.Len(t, transfers, 1)
	assert.Equal(t, "alice", transfers[0].Actor)
	assert.Equal(t, "bob", transfers[0].Subject)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	env, accts := newAccounts(t)

	require.NoError(t, accts.SetStatus(ctx, "alice", true, domain.StandingEstablished))
	require.ErrorIs(t, accts.SetStatus(ctx, "alice", true, domain.Standing(9)), domain.ErrInvalidArgument)

	acct, err := accts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acct.Verified)
	assert.Equal(t, domain.StandingEstablished, acct.Standing)

	evs := env.Sink.OfType(domain.EventAccountStatus)
	require.Len(t, evs, 1)
	assert.Equal(t, "established", evs[0].Attrs["standing"])
	assert.Equal(t, testutil.Genesis.UnixMilli(), evs[0].At)
}
