// Package sweeper periodically drains the ledger's due-item jobs: expired
// escrow holds and proposals whose voting period has ended.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"trustflow/internal/metrics"
	"trustflow/internal/ports"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultBatch    = 100
)

type Config struct {
	Interval time.Duration
	Batch    int
	// Workers bounds how many jobs drain concurrently.
	Workers int
}

type Sweeper struct {
	cfg     Config
	clock   clockwork.Clock
	jobs    []*tracked
	metrics *metrics.Collector
	log     zerolog.Logger
}

type tracked struct {
	job  ports.BatchJob
	busy atomic.Bool
}

func New(cfg Config, clock clockwork.Clock, m *metrics.Collector, log zerolog.Logger, jobs ...ports.BatchJob) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s := &Sweeper{
		cfg:     cfg,
		clock:   clock,
		metrics: m,
		log:     log.With().Str("component", "sweeper").Logger(),
	}
	for _, j := range jobs {
		s.jobs = append(s.jobs, &tracked{job: j})
	}
	return s
}

// RunOnce drains every job in turn and returns the total number of items
// handled. A failing job does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	var (
		total int
		errs  error
	)
	for _, t := range s.jobs {
		n, err := s.drain(ctx, t.job)
		total += n
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", t.job.Name(), err))
		}
	}
	return total, errs
}

// drain calls job in batches until a batch comes back short.
func (s *Sweeper) drain(ctx context.Context, job ports.BatchJob) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := job.RunBatch(ctx, s.cfg.Batch)
		total += n
		s.metrics.Swept(job.Name(), n)
		if err != nil {
			return total, err
		}
		if n < s.cfg.Batch {
			return total, nil
		}
	}
}

// Run ticks every Interval, handing each idle job to a worker, until ctx is
// done. It returns once the workers have exited.
func (s *Sweeper) Run(ctx context.Context) {
	if len(s.jobs) == 0 {
		return
	}
	jobsCh := make(chan *tracked, len(s.jobs))

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for t := range jobsCh {
				n, err := s.drain(ctx, t.job)
				t.busy.Store(false)
				if err != nil && ctx.Err() == nil {
					s.log.Error().Err(err).Int("worker", idx).Str("job", t.job.Name()).Msg("sweep failed")
					continue
				}
				if n > 0 {
					s.log.Info().Int("worker", idx).Str("job", t.job.Name()).Int("processed", n).Msg("sweep done")
				}
			}
		}(i)
	}

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.log.Info().Dur("interval", s.cfg.Interval).Int("batch", s.cfg.Batch).Int("jobs", len(s.jobs)).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			close(jobsCh)
			wg.Wait()
			return
		case <-ticker.Chan():
			for _, t := range s.jobs {
				if t.busy.CompareAndSwap(false, true) {
					jobsCh <- t
				}
			}
		}
	}
}
