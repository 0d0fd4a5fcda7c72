// Package eventlog publishes committed ledger events to the process log,
// the metrics collector and in-process subscribers.
package eventlog

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"trustflow/internal/domain"
	"trustflow/internal/metrics"
	"trustflow/internal/ports"
)

// Handler receives every committed event in sequence order.
type Handler func(ctx context.Context, ev domain.Event)

type Bus struct {
	log     zerolog.Logger
	metrics *metrics.Collector

	mu       sync.RWMutex
	handlers []Handler
}

var _ ports.EventSink = (*Bus)(nil)

func New(log zerolog.Logger, m *metrics.Collector) *Bus {
	return &Bus{log: log.With().Str("component", "eventlog").Logger(), metrics: m}
}

// Subscribe registers h for all events published from now on.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(ctx context.Context, events []domain.Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, ev := range events {
		b.log.Info().
			Uint64("seq", ev.Seq).
			Str("type", string(ev.Type)).
			Str("actor", ev.Actor).
			Str("subject", ev.Subject).
			Int64("amount", ev.Amount).
			Msg("ledger event")
		b.observe(ev)
		for _, h := range handlers {
			h(ctx, ev)
		}
	}
}

func (b *Bus) observe(ev domain.Event) {
	b.metrics.Event(string(ev.Type))
	switch ev.Type {
	case domain.EventRewardDistributed:
		b.metrics.RewardMinted(ev.Attrs["destination"], ev.Amount)
	case domain.EventHalving:
		index, err := strconv.ParseInt(ev.Subject, 10, 64)
		if err != nil {
			b.log.Warn().Str("subject", ev.Subject).Msg("halving event without index")
			return
		}
		b.metrics.Emission(index, ev.Amount)
	case domain.EventGenesis:
		rate, err := strconv.ParseInt(ev.Attrs["rate_bps"], 10, 64)
		if err != nil {
			b.log.Warn().Msg("genesis event without emission rate")
			return
		}
		b.metrics.Emission(0, rate)
	}
}
