package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"trustflow/internal/ports"
)

// Store keeps the ledger in process. Writers are serialized by a single
// mutex and their changes become visible only when fn returns nil.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
	events  [][]byte
}

func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

var _ ports.Store = (*Store)(nil)

func (s *Store) Update(ctx context.Context, fn func(tx ports.StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txn{store: s, writes: make(map[string][]byte), deletes: make(map[string]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	for k := range tx.deletes {
		delete(s.objects, k)
	}
	for k, v := range tx.writes {
		s.objects[k] = v
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx ports.StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&txn{store: s, readOnly: true})
}

func (s *Store) Events(ctx context.Context, after uint64, limit int) ([]ports.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ports.EventRecord
	for i := after; i < uint64(len(s.events)); i++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, ports.EventRecord{Seq: i + 1, Body: s.events[i]})
	}
	return out, nil
}

var errReadOnly = errors.New("memory: write in read-only transaction")

func key(kind, id string) string { return kind + "/" + id }

type txn struct {
	store    *Store
	readOnly bool
	writes   map[string][]byte
	deletes  map[string]bool
	events   [][]byte
}

func (t *txn) Get(ctx context.Context, kind, id string) ([]byte, error) {
	k := key(kind, id)
	if !t.readOnly {
		if v, ok := t.writes[k]; ok {
			return v, nil
		}
		if t.deletes[k] {
			return nil, ports.ErrNotFound
		}
	}
	v, ok := t.store.objects[k]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return v, nil
}

func (t *txn) Put(ctx context.Context, kind, id string, body []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	k := key(kind, id)
	cp := make([]byte, len(body))
	copy(cp, body)
	t.writes[k] = cp
	delete(t.deletes, k)
	return nil
}

func (t *txn) Delete(ctx context.Context, kind, id string) error {
	if t.readOnly {
		return errReadOnly
	}
	k := key(kind, id)
	delete(t.writes, k)
	t.deletes[k] = true
	return nil
}

func (t *txn) Scan(ctx context.Context, kind, after string, limit int) ([]ports.Record, error) {
	prefix := kind + "/"
	seen := make(map[string][]byte)
	for k, v := range t.store.objects {
		if strings.HasPrefix(k, prefix) {
			seen[k] = v
		}
	}
	if !t.readOnly {
		for k := range t.deletes {
			delete(seen, k)
		}
		for k, v := range t.writes {
			if strings.HasPrefix(k, prefix) {
				seen[k] = v
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for k := range seen {
		id := strings.TrimPrefix(k, prefix)
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]ports.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, ports.Record{ID: id, Body: seen[prefix+id]})
	}
	return out, nil
}

func (t *txn) AppendEvent(ctx context.Context, body []byte) (uint64, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	t.events = append(t.events, body)
	return uint64(len(t.store.events) + len(t.events)), nil
}
