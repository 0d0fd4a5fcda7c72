package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestMonotonicNeverStepsBack(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := clockwork.NewFakeClockAt(start)
	c := New(fake)

	first := c.NowMillis()
	require.Equal(t, start.UnixMilli(), first)

	fake.Advance(5 * time.Second)
	require.Equal(t, first+5000, c.NowMillis())

	behind := clockwork.NewFakeClockAt(start)
	c.base = behind
	require.Equal(t, first+5000, c.NowMillis(), "reading must hold when the source moves backwards")

	behind.Advance(10 * time.Second)
	require.Equal(t, first+10000, c.NowMillis())
}
