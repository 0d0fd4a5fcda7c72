package clock

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"trustflow/internal/ports"
)

// Monotonic turns a clockwork.Clock into the ledger's millisecond clock,
// holding at the last reading if the underlying clock steps backwards.
type Monotonic struct {
	base clockwork.Clock
	mu   sync.Mutex
	last int64
}

var _ ports.Clock = (*Monotonic)(nil)

func New(base clockwork.Clock) *Monotonic {
	return &Monotonic{base: base}
}

// NewReal is the wall-clock source used by the server.
func NewReal() *Monotonic { return New(clockwork.NewRealClock()) }

func (m *Monotonic) NowMillis() int64 {
	now := m.base.Now().UnixMilli()
	m.mu.Lock()
	defer m.mu.Unlock()
	if now < m.last {
		return m.last
	}
	m.last = now
	return now
}

// Base exposes the wrapped clock for tickers.
func (m *Monotonic) Base() clockwork.Clock { return m.base }
