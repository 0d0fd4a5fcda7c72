package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustflow/internal/metrics"
)

// queueJob hands out items from a fixed backlog.
type queueJob struct {
	name string
	err  error

	mu      sync.Mutex
	backlog int
	calls   int
}

func (q *queueJob) Name() string { return q.name }

func (q *queueJob) RunBatch(_ context.Context, limit int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return 0, q.err
	}
	n := min(limit, q.backlog)
	q.backlog -= n
	return n, nil
}

func (q *queueJob) remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.backlog
}

func TestRunOnceDrainsInBatches(t *testing.T) {
	reg := prometheus.NewRegistry()
	holds := &queueJob{name: "escrow_expiry", backlog: 7}
	props := &queueJob{name: "proposal_finalize", backlog: 3}
	s := New(Config{Batch: 3}, clockwork.NewFakeClock(), metrics.New(reg), zerolog.Nop(), holds, props)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 3, holds.calls, "3 + 3 + 1")
	assert.Equal(t, 2, props.calls, "a full batch is followed by an empty one")

	count, err := testutil.GatherAndCount(reg, "trustflow_sweeper_processed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunOnceAggregatesFailures(t *testing.T) {
	boom := errors.New("boom")
	bad := &queueJob{name: "bad", err: boom}
	good := &queueJob{name: "good", backlog: 2}
	s := New(Config{Batch: 5}, clockwork.NewFakeClock(), nil, zerolog.Nop(), bad, good)

	n, err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
	assert.Zero(t, good.remaining())

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)
}

func TestRunSweepsOnTick(t *testing.T) {
	fake := clockwork.NewFakeClock()
	job := &queueJob{name: "escrow_expiry", backlog: 4}
	s := New(Config{Interval: time.Minute, Batch: 2, Workers: 2}, fake, nil, zerolog.Nop(), job)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.NoError(t, fake.BlockUntilContext(ctx, 1))
	assert.Equal(t, 4, job.remaining(), "nothing runs before the first tick")

	fake.Advance(time.Minute)
	require.Eventually(t, func() bool { return job.remaining() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestDefaults(t *testing.T) {
	s := New(Config{}, clockwork.NewFakeClock(), nil, zerolog.Nop())
	assert.Equal(t, DefaultInterval, s.cfg.Interval)
	assert.Equal(t, DefaultBatch, s.cfg.Batch)
	assert.Equal(t, 1, s.cfg.Workers)
	s.Run(context.Background())
}
