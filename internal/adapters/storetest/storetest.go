// Package storetest checks that a ports.Store implementation honours the
// contract the ledger relies on.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"trustflow/internal/ports"
)

// Run exercises a store returned empty by open.
func Run(t *testing.T, open func(t *testing.T) ports.Store) {
	t.Run("PutGetDelete", func(t *testing.T) { testPutGetDelete(t, open(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("ScanOrder", func(t *testing.T) { testScan(t, open(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, open(t)) })
	t.Run("ViewIsReadOnly", func(t *testing.T) { testReadOnly(t, open(t)) })
}

func testPutGetDelete(t *testing.T, s ports.Store) {
	ctx := context.Background()
	err := s.Update(ctx, func(tx ports.StoreTx) error {
		if err := tx.Put(ctx, "acct", "alice", []byte("one")); err != nil {
			return err
		}
		got, err := tx.Get(ctx, "acct", "alice")
		require.NoError(t, err)
		require.Equal(t, []byte("one"), got, "writes are visible inside their transaction")
		return tx.Put(ctx, "acct", "alice", []byte("two"))
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx ports.StoreTx) error {
		got, err := tx.Get(ctx, "acct", "alice")
		require.NoError(t, err)
		require.Equal(t, []byte("two"), got)
		_, err = tx.Get(ctx, "acct", "bob")
		require.ErrorIs(t, err, ports.ErrNotFound)
		_, err = tx.Get(ctx, "other", "alice")
		require.ErrorIs(t, err, ports.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, func(tx ports.StoreTx) error {
		return tx.Delete(ctx, "acct", "alice")
	}))
	require.NoError(t, s.View(ctx, func(tx ports.StoreTx) error {
		_, err := tx.Get(ctx, "acct", "alice")
		require.ErrorIs(t, err, ports.ErrNotFound)
		return nil
	}))
}

func testRollback(t *testing.T, s ports.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.Update(ctx, func(tx ports.StoreTx) error {
		if err := tx.Put(ctx, "acct", "alice", []byte("x")); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(ctx, []byte("ev")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx ports.StoreTx) error {
		_, err := tx.Get(ctx, "acct", "alice")
		require.ErrorIs(t, err, ports.ErrNotFound)
		return nil
	}))
	evs, err := s.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Empty(t, evs)
}

func testScan(t *testing.T, s ports.Store) {
	ctx := context.Background()
	ids := []string{"00000000000000000020|b", "00000000000000000010|a", "00000000000000000030|c", "00000000000000000010|b"}
	require.NoError(t, s.Update(ctx, func(tx ports.StoreTx) error {
		for _, id := range ids {
			if err := tx.Put(ctx, "due", id, []byte(id)); err != nil {
				return err
			}
		}
		return tx.Put(ctx, "other", "00000000000000000001|z", []byte{})
	}))

	require.NoError(t, s.Update(ctx, func(tx ports.StoreTx) error {
		require.NoError(t, tx.Delete(ctx, "due", "00000000000000000030|c"))
		require.NoError(t, tx.Put(ctx, "due", "00000000000000000005|new", []byte("n")))

		recs, err := tx.Scan(ctx, "due", "", 0)
		require.NoError(t, err)
		got := make([]string, 0, len(recs))
		for _, r := range recs {
			got = append(got, r.ID)
		}
		require.Equal(t, []string{
			"00000000000000000005|new",
			"00000000000000000010|a",
			"00000000000000000010|b",
			"00000000000000000020|b",
		}, got, "scan sees uncommitted writes and deletes in id order")

		recs, err = tx.Scan(ctx, "due", "00000000000000000010|a", 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		require.Equal(t, "00000000000000000010|b", recs[0].ID)
		require.Equal(t, "00000000000000000020|b", recs[1].ID)
		return nil
	}))
}

func testEvents(t *testing.T, s ports.Store) {
	ctx := context.Background()
	var seqs []uint64
	require.NoError(t, s.Update(ctx, func(tx ports.StoreTx) error {
		for _, b := range []string{"a", "b", "c"} {
			seq, err := tx.AppendEvent(ctx, []byte(b))
			if err != nil {
				return err
			}
			seqs = append(seqs, seq)
		}
		return nil
	}))
	require.True(t, seqs[0] < seqs[1] && seqs[1] < seqs[2], "sequence numbers increase")

	all, err := s.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, ev := range all {
		require.Equal(t, seqs[i], ev.Seq)
	}
	require.Equal(t, []byte("a"), all[0].Body)

	tail, err := s.Events(ctx, seqs[0], 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, []byte("b"), tail[0].Body)
}

func testReadOnly(t *testing.T, s ports.Store) {
	ctx := context.Background()
	require.NoError(t, s.View(ctx, func(tx ports.StoreTx) error {
		require.Error(t, tx.Put(ctx, "acct", "alice", []byte("x")))
		_, err := tx.AppendEvent(ctx, []byte("ev"))
		require.Error(t, err)
		return nil
	}))
}
