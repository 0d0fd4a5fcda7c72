package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"trustflow/internal/ports"
)

// writerLock is the advisory lock key every ledger writer holds for the
// length of its transaction.
const writerLock int64 = 0x7472757374666c6f

// Store keeps ledger objects and the event log in two tables. Writers are
// serialized by a transaction-scoped advisory lock.
type Store struct {
	db *DB
}

var _ ports.Store = (*Store)(nil)

func NewStore(db *DB) *Store { return &Store{db: db} }

func (s *Store) Update(ctx context.Context, fn func(tx ports.StoreTx) error) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = fmt.Errorf("commit: %w", cerr)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, writerLock); err != nil {
		return fmt.Errorf("writer lock: %w", err)
	}
	return fn(&txn{tx: tx})
}

func (s *Store) View(ctx context.Context, fn func(tx ports.StoreTx) error) (err error) {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return fn(&txn{tx: tx, readOnly: true})
}

func (s *Store) Events(ctx context.Context, after uint64, limit int) ([]ports.EventRecord, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT seq, body FROM ledger_events
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2
	`, int64(after), limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.EventRecord
	for rows.Next() {
		var (
			seq  int64
			body []byte
		)
		if err := rows.Scan(&seq, &body); err != nil {
			return nil, err
		}
		out = append(out, ports.EventRecord{Seq: uint64(seq), Body: body})
	}
	return out, rows.Err()
}

// limitArg maps a non-positive limit to SQL NULL, which LIMIT treats as none.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

var errReadOnly = errors.New("postgres: write in read-only transaction")

type txn struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *txn) Get(ctx context.Context, kind, id string) ([]byte, error) {
	var body []byte
	err := t.tx.QueryRow(ctx, `SELECT body FROM ledger_objects WHERE kind = $1 AND id = $2`, kind, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	return body, err
}

func (t *txn) Put(ctx context.Context, kind, id string, body []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_objects (kind, id, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (kind, id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, kind, id, body)
	return err
}

func (t *txn) Delete(ctx context.Context, kind, id string) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM ledger_objects WHERE kind = $1 AND id = $2`, kind, id)
	return err
}

func (t *txn) Scan(ctx context.Context, kind, after string, limit int) ([]ports.Record, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, body FROM ledger_objects
		WHERE kind = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, kind, after, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.Record
	for rows.Next() {
		var r ports.Record
		if err := rows.Scan(&r.ID, &r.Body); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *txn) AppendEvent(ctx context.Context, body []byte) (uint64, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	var seq int64
	if err := t.tx.QueryRow(ctx, `INSERT INTO ledger_events (body) VALUES ($1) RETURNING seq`, body).Scan(&seq); err != nil {
		return 0, err
	}
	return uint64(seq), nil
}
