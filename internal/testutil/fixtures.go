// Package testutil builds in-memory ledgers and fixtures for package tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/jonboulle/clockwork"
	"github.com/multiformats/go-multihash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"trustflow/internal/adapters/clock"
	"trustflow/internal/adapters/memory"
	"trustflow/internal/domain"
	"trustflow/internal/ledger"
	"trustflow/internal/metrics"
)

const (
	Authority = "authority"
	Treasury  = "treasury"
)

// Genesis is the moment every fixture clock starts at.
var Genesis = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type Env struct {
	Ledger  *ledger.Ledger
	Store   *memory.Store
	Clock   *clockwork.FakeClock
	Sink    *RecordingSink
	Metrics *metrics.Collector
	Log     *LogBuffer
}

func NewEnv(t testing.TB) *Env {
	t.Helper()
	fake := clockwork.NewFakeClockAt(Genesis)
	store := memory.New()
	sink := &RecordingSink{}
	m := metrics.New(prometheus.NewRegistry())
	logs := &LogBuffer{}
	l := ledger.New(store, clock.New(fake),
		ledger.WithSink(sink),
		ledger.WithMetrics(m),
		ledger.WithLogger(zerolog.New(logs)),
	)
	return &Env{Ledger: l, Store: store, Clock: fake, Sink: sink, Metrics: m, Log: logs}
}

// Advance moves the fake clock forward by ms milliseconds.
func (e *Env) Advance(ms int64) {
	e.Clock.Advance(time.Duration(ms) * time.Millisecond)
}

// Put writes v directly, bypassing operation checks. Tests use it to seed
// state such as a specific reputation score.
func (e *Env) Put(t testing.TB, kind, id string, v any) {
	t.Helper()
	err := e.Ledger.Bootstrap(context.Background(), func(tx *ledger.Tx) error {
		return tx.Put(context.Background(), kind, id, v)
	})
	require.NoError(t, err)
}

// Load reads an object outside any operation.
func Load[T any](t testing.TB, e *Env, kind, id string) T {
	t.Helper()
	var out T
	err := e.Ledger.View(context.Background(), func(tx *ledger.Tx) error {
		var err error
		out, err = ledger.Get[T](context.Background(), tx, kind, id)
		return err
	})
	require.NoError(t, err)
	return out
}

// CID derives a valid CIDv1 from seed.
func CID(t testing.TB, seed string) string {
	t.Helper()
	h, err := multihash.Sum([]byte(seed), multihash.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, h).String()
}

// User returns a deterministic identity for fixture loops.
func User(i int) string { return fmt.Sprintf("user-%04d", i) }

// RecordingSink keeps every published event.
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *RecordingSink) Publish(_ context.Context, events []domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *RecordingSink) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the published events of type typ.
func (r *RecordingSink) OfType(typ domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// LogBuffer collects JSON log lines written by services under test.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
