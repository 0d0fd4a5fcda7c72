package supply_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/services/accounts"
	"trustflow/internal/services/supply"
	"trustflow/internal/testutil"
)

func newSupply(t *testing.T) (*testutil.Env, *supply.Service, *accounts.Service) {
	t.Helper()
	env := testutil.NewEnv(t)
	sup := supply.New(env.Ledger)
	_, err := sup.Genesis(context.Background(), supply.GenesisConfig{
		Authority: testutil.Authority,
		Treasury:  testutil.Treasury,
	})
	require.NoError(t, err)
	return env, sup, accounts.New(env.Ledger, sup)
}

func TestGenesis(t *testing.T) {
	ctx := context.Background()

	t.Run("operations fail before genesis", func(t *testing.T) {
		env := testutil.NewEnv(t)
		sup := supply.New(env.Ledger)
		accts := accounts.New(env.Ledger, sup)
		err := accts.Transfer(ctx, "a", "b", 1)
		require.ErrorIs(t, err, domain.ErrNotInitialized)
	})

	t.Run("partitions the cap", func(t *testing.T) {
		_, sup, _ := newSupply(t)
		snap, err := sup.Snapshot(ctx)
		require.NoError(t, err)

		assert.Equal(t, supply.TotalCap, snap.TotalCap)
		assert.Equal(t, supply.TotalCap, snap.Accounted())
		assert.Equal(t, int64(5_000_000_000)*domain.Token, snap.Allocations[domain.BucketRewards])
		assert.Equal(t, int64(2_000_000_000)*domain.Token, snap.Allocations[domain.BucketEcosystem])
		assert.Equal(t, int64(1_600_000_000)*domain.Token, snap.Allocations[domain.BucketDevelopment])
		assert.Equal(t, int64(1_400_000_000)*domain.Token, snap.Allocations[domain.BucketTeam])
		assert.Equal(t, snap.Allocations[domain.BucketRewards]/10, snap.HalvingStep)
		assert.Equal(t, int64(supply.InitialEmissionRate), snap.EmissionRate)
	})

	t.Run("is idempotent", func(t *testing.T) {
		env, sup, _ := newSupply(t)
		again, err := sup.Genesis(ctx, supply.GenesisConfig{Authority: "other", Treasury: "elsewhere"})
		require.NoError(t, err)
		assert.Equal(t, testutil.Authority, again.Authority)
		gen := env.Sink.OfType(domain.EventGenesis)
		require.Len(t, gen, 1)
		assert.Equal(t, strconv.FormatInt(supply.InitialEmissionRate, 10), gen[0].Attrs["rate_bps"])
	})

	t.Run("rejects empty identities", func(t *testing.T) {
		env := testutil.NewEnv(t)
		_, err := supply.New(env.Ledger).Genesis(ctx, supply.GenesisConfig{Treasury: testutil.Treasury})
		require.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestMint(t *testing.T) {
	ctx := context.Background()
	env, sup, _ := newSupply(t)

	err := env.Ledger.Update(ctx, func(tx *ledger.Tx) error {
		return sup.Mint(ctx, tx, domain.BucketTeam, 2*domain.Token, "test")
	})
	require.NoError(t, err)

	snap, err := sup.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2*domain.Token, snap.Circulating)
	assert.Equal(t, snap.Allocations[domain.BucketTeam]-2*domain.Token, snap.Remaining[domain.BucketTeam])

	err = env.Ledger.Update(ctx, func(tx *ledger.Tx) error {
		return sup.Mint(ctx, tx, domain.BucketTeam, snap.Remaining[domain.BucketTeam]+1, "test")
	})
	require.ErrorIs(t, err, domain.ErrExceedsAllocation)
	assert.Equal(t, domain.KindResource, domain.KindOf(err))
}

func TestMintAllocation(t *testing.T) {
	ctx := context.Background()
	_, sup, accts := newSupply(t)

	err := accts.MintAllocation(ctx, "mallory", domain.BucketTeam, "alice", domain.Token)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	err = accts.MintAllocation(ctx, testutil.Authority, domain.BucketRewards, "alice", domain.Token)
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	require.NoError(t, accts.MintAllocation(ctx, testutil.Authority, domain.BucketTeam, "alice", 5*domain.Token))
	acct, err := accts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5*domain.Token, acct.Balance.Amount())

	snap, err := sup.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5*domain.Token, snap.Circulating)
}

func TestHalvingIsMonotone(t *testing.T) {
	ctx := context.Background()
	env, sup, accts := newSupply(t)

	snap, err := sup.Snapshot(ctx)
	require.NoError(t, err)
	step := snap.HalvingStep

	require.NoError(t, accts.MintAllocation(ctx, testutil.Authority, domain.BucketEcosystem, "fund", step-1))
	snap, err = sup.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(domain.BPSScale), snap.EmissionRate)
	assert.Zero(t, snap.HalvingIndex)

	require.NoError(t, accts.MintAllocation(ctx, testutil.Authority, domain.BucketEcosystem, "fund", 1))
	snap, err = sup.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(domain.BPSScale/2), snap.EmissionRate)
	assert.Equal(t, int64(1), snap.HalvingIndex)

	// crossing two thresholds at once halves twice
	require.NoError(t, accts.MintAllocation(ctx, testutil.Authority, domain.BucketEcosystem, "fund", 2*step))
	snap, err = sup.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(domain.BPSScale/8), snap.EmissionRate)
	assert.Equal(t, int64(3), snap.HalvingIndex)

	halvings := env.Sink.OfType(domain.EventHalving)
	require.Len(t, halvings, 3)
	for i := 1; i < len(halvings); i++ {
		assert.Equal(t, halvings[i-1].Amount/2, halvings[i].Amount)
	}
}

func TestBurn(t *testing.T) {
	ctx := context.Background()
	_, sup, accts := newSupply(t)

	require.NoError(t, accts.MintAllocation(ctx, testutil.Authority, domain.BucketDevelopment, "alice", 10*domain.Token))
	require.NoError(t, accts.Burn(ctx, "alice", 4*domain.Token, "fee"))

	err := accts.Burn(ctx, "alice", 7*domain.Token, "fee")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	snap, err := sup.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6*domain.Token, snap.Circulating)
	assert.Equal(t, 4*domain.Token, snap.Burned)
	assert.Equal(t, supply.TotalCap, snap.Accounted())
}

func TestTokenAccountingInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		_, sup, accts := newSupply(t)

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			amount := rapid.Int64Range(1, 1_000_000*domain.Token).Draw(rt, "amount")
			if rapid.Bool().Draw(rt, "burn") {
				_ = accts.Burn(ctx, "holder", amount, "test")
			} else {
				bucket := rapid.SampledFrom([]domain.Bucket{
					domain.BucketDevelopment, domain.BucketEcosystem, domain.BucketTeam,
				}).Draw(rt, "bucket")
				_ = accts.MintAllocation(ctx, testutil.Authority, bucket, "holder", amount)
			}

			snap, err := sup.Snapshot(ctx)
			require.NoError(rt, err)
			require.Equal(rt, supply.TotalCap, snap.Accounted())
			require.LessOrEqual(rt, snap.EmissionRate, int64(supply.InitialEmissionRate))
		}
	})
}
