package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trustflow/internal/domain"
	"trustflow/internal/metrics"
	"trustflow/internal/ports"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}
}

// Ledger runs every operation as one atomic store transaction, stamps it with
// a single clock reading and publishes the events it emitted after commit.
type Ledger struct {
	store   ports.Store
	clock   ports.Clock
	sink    ports.EventSink
	metrics *metrics.Collector
	log     zerolog.Logger

	initialized atomic.Bool
}

type Option func(*Ledger)

func WithSink(sink ports.EventSink) Option {
	return func(l *Ledger) { l.sink = sink }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func New(store ports.Store, clock ports.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		clock: clock,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With().Str("component", "ledger").Logger()
	return l
}

// Logger returns a child logger tagged with component.
func (l *Ledger) Logger(component string) zerolog.Logger {
	return l.log.With().Str("component", component).Logger()
}

// Update runs fn as a read-write transaction. It fails with NotInitialized
// until genesis has been written.
func (l *Ledger) Update(ctx context.Context, fn func(tx *Tx) error) error {
	return l.update(ctx, false, fn)
}

// Bootstrap is Update without the genesis guard; only genesis uses it.
func (l *Ledger) Bootstrap(ctx context.Context, fn func(tx *Tx) error) error {
	return l.update(ctx, true, fn)
}

func (l *Ledger) update(ctx context.Context, bootstrap bool, fn func(tx *Tx) error) error {
	start := time.Now()
	var committed []domain.Event

	err := l.store.Update(ctx, func(st ports.StoreTx) error {
		committed = committed[:0]
		// Read under the writer lock so commit order and timestamps agree.
		tx := &Tx{st: st, now: l.clock.NowMillis()}
		if !bootstrap {
			if err := l.requireGenesis(ctx, tx); err != nil {
				return err
			}
		}
		if err := fn(tx); err != nil {
			return err
		}
		for i := range tx.events {
			ev := tx.events[i]
			body, err := encMode.Marshal(ev)
			if err != nil {
				return fmt.Errorf("encode event %s: %w", ev.Type, err)
			}
			seq, err := st.AppendEvent(ctx, body)
			if err != nil {
				return fmt.Errorf("append event %s: %w", ev.Type, err)
			}
			ev.Seq = seq
			committed = append(committed, ev)
		}
		return nil
	})
	l.observe("update", start, err)
	if err != nil {
		l.log.Debug().
			Str("kind", domain.KindOf(err).String()).
			Err(err).
			Msg("ledger transaction aborted")
		return err
	}
	if l.sink != nil && len(committed) > 0 {
		l.sink.Publish(ctx, committed)
	}
	return nil
}

// View runs fn against a read-only snapshot.
func (l *Ledger) View(ctx context.Context, fn func(tx *Tx) error) error {
	start := time.Now()
	now := l.clock.NowMillis()
	err := l.store.View(ctx, func(st ports.StoreTx) error {
		tx := &Tx{st: st, now: now, readOnly: true}
		return fn(tx)
	})
	l.observe("view", start, err)
	return err
}

// Events returns committed events with sequence > after.
func (l *Ledger) Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	recs, err := l.store.Events(ctx, after, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(recs))
	for _, r := range recs {
		var ev domain.Event
		if err := decMode.Unmarshal(r.Body, &ev); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", r.Seq, err)
		}
		ev.Seq = r.Seq
		out = append(out, ev)
	}
	return out, nil
}

func (l *Ledger) markInitialized() { l.initialized.Store(true) }

func (l *Ledger) requireGenesis(ctx context.Context, tx *Tx) error {
	if l.initialized.Load() {
		return nil
	}
	ok, err := tx.Has(ctx, domain.KindGenesisObj, domain.SingletonID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotInitialized.On("genesis")
	}
	l.markInitialized()
	return nil
}

// MarkInitialized is called by genesis once its transaction committed.
func (l *Ledger) MarkInitialized() { l.markInitialized() }

func (l *Ledger) observe(mode string, start time.Time, err error) {
	outcome := "committed"
	if err != nil {
		outcome = domain.KindOf(err).String()
	}
	l.metrics.Transaction(mode, outcome, time.Since(start))
}

// Tx is the handle operations use inside a ledger transaction.
type Tx struct {
	st       ports.StoreTx
	now      int64
	readOnly bool
	events   []domain.Event
	params   *domain.Params
}

// Now is the transaction's single clock reading in milliseconds.
func (tx *Tx) Now() int64 { return tx.now }

// Emit buffers ev; it is appended to the log when the transaction commits.
func (tx *Tx) Emit(ev domain.Event) {
	if tx.readOnly {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.At = tx.now
	tx.events = append(tx.events, ev)
}

func (tx *Tx) Put(ctx context.Context, kind, id string, v any) error {
	if tx.readOnly {
		return errors.New("ledger: write in read-only transaction")
	}
	body, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", kind, id, err)
	}
	return tx.st.Put(ctx, kind, id, body)
}

func (tx *Tx) Delete(ctx context.Context, kind, id string) error {
	if tx.readOnly {
		return errors.New("ledger: write in read-only transaction")
	}
	return tx.st.Delete(ctx, kind, id)
}

func (tx *Tx) Has(ctx context.Context, kind, id string) (bool, error) {
	_, err := tx.st.Get(ctx, kind, id)
	if errors.Is(err, ports.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get loads the object stored under (kind, id). A missing object is reported
// as domain NotFound naming kind.
func Get[T any](ctx context.Context, tx *Tx, kind, id string) (T, error) {
	var out T
	body, err := tx.st.Get(ctx, kind, id)
	if errors.Is(err, ports.ErrNotFound) {
		return out, domain.ErrNotFound.On(kind)
	}
	if err != nil {
		return out, err
	}
	if err := decMode.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", kind, id, err)
	}
	return out, nil
}

// Entry is a decoded object returned by Scan.
type Entry[T any] struct {
	ID    string
	Value T
}

// Scan decodes up to limit objects of kind with id > after, in id order.
func Scan[T any](ctx context.Context, tx *Tx, kind, after string, limit int) ([]Entry[T], error) {
	recs, err := tx.st.Scan(ctx, kind, after, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry[T], 0, len(recs))
	for _, r := range recs {
		var v T
		if err := decMode.Unmarshal(r.Body, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", kind, r.ID, err)
		}
		out = append(out, Entry[T]{ID: r.ID, Value: v})
	}
	return out, nil
}

// Params returns the shared parameter set written at genesis and mutated by
// governance.
func (tx *Tx) Params(ctx context.Context) (domain.Params, error) {
	if tx.params != nil {
		return *tx.params, nil
	}
	p, err := Get[domain.Params](ctx, tx, domain.KindParamsObj, domain.SingletonID)
	if domain.IsNotFound(err) {
		return domain.Params{}, domain.ErrNotInitialized.On("params")
	}
	if err != nil {
		return domain.Params{}, err
	}
	tx.params = &p
	return p, nil
}

func (tx *Tx) SetParams(ctx context.Context, p domain.Params) error {
	if err := tx.Put(ctx, domain.KindParamsObj, domain.SingletonID, p); err != nil {
		return err
	}
	tx.params = &p
	return nil
}

// Key joins parts into a composite object id.
func Key(parts ...string) string {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	b := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			b = append(b, '|')
		}
		b = append(b, p...)
	}
	return string(b)
}

// DueKey orders ids by a millisecond deadline when scanned lexically.
func DueKey(at int64, id string) string {
	if at < 0 {
		at = 0
	}
	return fmt.Sprintf("%020d|%s", at, id)
}
