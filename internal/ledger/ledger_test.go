package ledger_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustflow/internal/adapters/clock"
	"trustflow/internal/adapters/memory"
	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/ports"
	"trustflow/internal/testutil"
)

type note struct {
	Text string `cbor:"text"`
}

func bootstrapped(t *testing.T) *testutil.Env {
	t.Helper()
	env := testutil.NewEnv(t)
	env.Put(t, domain.KindGenesisObj, domain.SingletonID, domain.Genesis{Authority: testutil.Authority, Treasury: testutil.Treasury})
	return env
}

func TestUpdateRequiresGenesis(t *testing.T) {
	env := testutil.NewEnv(t)
	err := env.Ledger.Update(context.Background(), func(*ledger.Tx) error { return nil })
	require.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestCommitPublishesEvents(t *testing.T) {
	env := bootstrapped(t)
	ctx := context.Background()

	var now int64
	err := env.Ledger.Update(ctx, func(tx *ledger.Tx) error {
		now = tx.Now()
		tx.Emit(domain.Event{Type: domain.EventTransfer, Actor: "a", Subject: "b", Amount: 5})
		tx.Emit(domain.Event{Type: domain.EventTransfer, Actor: "b", Subject: "c", Amount: 2})
		return tx.Put(ctx, "note", "n1", note{Text: "hello"})
	})
	require.NoError(t, err)
	assert.Equal(t, testutil.Genesis.UnixMilli(), now)

	published := env.Sink.OfType(domain.EventTransfer)
	require.Len(t, published, 2)
	assert.Less(t, published[0].Seq, published[1].Seq)
	assert.Equal(t, now, published[0].At)
	assert.NotEmpty(t, published[0].ID)

	stored, err := env.Ledger.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, published, stored)

	got := testutil.Load[note](t, env, "note", "n1")
	assert.Equal(t, "hello", got.Text)
}

func TestErrorDiscardsEverything(t *testing.T) {
	env := bootstrapped(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := env.Ledger.Update(ctx, func(tx *ledger.Tx) error {
		tx.Emit(domain.Event{Type: domain.EventTransfer})
		if err := tx.Put(ctx, "note", "n1", note{Text: "lost"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, env.Sink.Events())

	evs, err := env.Ledger.Events(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, evs)

	err = env.Ledger.View(ctx, func(tx *ledger.Tx) error {
		_, err := ledger.Get[note](ctx, tx, "note", "n1")
		return err
	})
	require.True(t, domain.IsNotFound(err))
	assert.Equal(t, "note", err.(*domain.Error).Field)
}

func TestViewRejectsWrites(t *testing.T) {
	env := bootstrapped(t)
	ctx := context.Background()
	err := env.Ledger.View(ctx, func(tx *ledger.Tx) error {
		tx.Emit(domain.Event{Type: domain.EventTransfer})
		return tx.Put(ctx, "note", "n1", note{})
	})
	require.Error(t, err)
	assert.Empty(t, env.Sink.Events())
}

func TestScanDecodesInOrder(t *testing.T) {
	env := bootstrapped(t)
	ctx := context.Background()
	require.NoError(t, env.Ledger.Update(ctx, func(tx *ledger.Tx) error {
		for _, id := range []string{"c", "a", "b"} {
			if err := tx.Put(ctx, "note", id, note{Text: id}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, env.Ledger.View(ctx, func(tx *ledger.Tx) error {
		entries, err := ledger.Scan[note](ctx, tx, "note", "a", 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "b", entries[0].ID)
		assert.Equal(t, "c", entries[1].Value.Text)
		return nil
	}))
}

func TestParamsCachedAndReplaced(t *testing.T) {
	env := bootstrapped(t)
	ctx := context.Background()

	err := env.Ledger.Update(ctx, func(tx *ledger.Tx) error {
		_, err := tx.Params(ctx)
		return err
	})
	require.ErrorIs(t, err, domain.ErrNotInitialized)

	env.Put(t, domain.KindParamsObj, domain.SingletonID, domain.DefaultParams())
	require.NoError(t, env.Ledger.Update(ctx, func(tx *ledger.Tx) error {
		p, err := tx.Params(ctx)
		require.NoError(t, err)
		p.ValidationThreshold = 9000
		require.NoError(t, tx.SetParams(ctx, p))
		again, err := tx.Params(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 9000, again.ValidationThreshold)
		return nil
	}))
}

func TestDueKeyOrdersByDeadline(t *testing.T) {
	keys := []string{
		ledger.DueKey(1_000, "z"),
		ledger.DueKey(20, "a"),
		ledger.DueKey(300, "m"),
		ledger.DueKey(-5, "neg"),
	}
	sort.Strings(keys)
	assert.Equal(t, []string{
		ledger.DueKey(0, "neg"),
		ledger.DueKey(20, "a"),
		ledger.DueKey(300, "m"),
		ledger.DueKey(1_000, "z"),
	}, keys)
	assert.Equal(t, "a|b|c", ledger.Key("a", "b", "c"))
}

// gatedStore holds the next Update back until release is closed, before it
// reaches the underlying store's writer lock.
type gatedStore struct {
	ports.Store
	mu      sync.Mutex
	gate    chan struct{}
	waiting chan struct{}
}

func (g *gatedStore) arm() (waiting, release chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = make(chan struct{})
	g.waiting = make(chan struct{})
	return g.waiting, g.gate
}

func (g *gatedStore) Update(ctx context.Context, fn func(tx ports.StoreTx) error) error {
	g.mu.Lock()
	gate, waiting := g.gate, g.waiting
	g.gate, g.waiting = nil, nil
	g.mu.Unlock()
	if gate != nil {
		close(waiting)
		<-gate
	}
	return g.Store.Update(ctx, fn)
}

func TestTimestampsFollowCommitOrder(t *testing.T) {
	ctx := context.Background()
	fake := clockwork.NewFakeClockAt(testutil.Genesis)
	store := &gatedStore{Store: memory.New()}
	l := ledger.New(store, clock.New(fake))
	require.NoError(t, l.Bootstrap(ctx, func(tx *ledger.Tx) error {
		return tx.Put(ctx, domain.KindGenesisObj, domain.SingletonID, domain.Genesis{})
	}))

	waiting, release := store.arm()
	slow := make(chan error, 1)
	go func() {
		slow <- l.Update(ctx, func(tx *ledger.Tx) error {
			tx.Emit(domain.Event{Type: domain.EventTransfer, Subject: "slow"})
			return nil
		})
	}()
	<-waiting

	fake.Advance(time.Minute)
	require.NoError(t, l.Update(ctx, func(tx *ledger.Tx) error {
		tx.Emit(domain.Event{Type: domain.EventTransfer, Subject: "fast"})
		return nil
	}))
	close(release)
	require.NoError(t, <-slow)

	evs, err := l.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "fast", evs[0].Subject)
	assert.Equal(t, "slow", evs[1].Subject)
	for i := 1; i < len(evs); i++ {
		assert.GreaterOrEqual(t, evs[i].At, evs[i-1].At, "seq %d stamped before seq %d", evs[i].Seq, evs[i-1].Seq)
	}
}
