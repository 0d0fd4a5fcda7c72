package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"trustflow/internal/adapters/clock"
	"trustflow/internal/adapters/eventlog"
	"trustflow/internal/adapters/memory"
	pg "trustflow/internal/adapters/postgres"
	"trustflow/internal/config"
	"trustflow/internal/ledger"
	"trustflow/internal/metrics"
	"trustflow/internal/ports"
	"trustflow/internal/services/accounts"
	"trustflow/internal/services/governance"
	"trustflow/internal/services/recommendations"
	"trustflow/internal/services/reputation"
	"trustflow/internal/services/rewards"
	"trustflow/internal/services/social"
	"trustflow/internal/services/supply"
)

// app is the fully wired ledger core.
type app struct {
	registry *prometheus.Registry
	metrics  *metrics.Collector
	clock    *clock.Monotonic
	bus      *eventlog.Bus
	ledger   *ledger.Ledger

	supply          *supply.Service
	accounts        *accounts.Service
	reputation      *reputation.Service
	social          *social.Service
	rewards         *rewards.Service
	recommendations *recommendations.Service
	governance      *governance.Service

	close func()
}

func newApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry(), close: func() {}}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	var store ports.Store
	if cfg.DatabaseURL == "" {
		store = memory.New()
	} else {
		db, err := pg.Connect(ctx, cfg.DatabaseURL, int32(cfg.MaxConns))
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.close = db.Close
		store = pg.NewStore(db)
	}

	a.clock = clock.NewReal()
	a.bus = eventlog.New(log, a.metrics)
	a.ledger = ledger.New(store, a.clock,
		ledger.WithSink(a.bus),
		ledger.WithMetrics(a.metrics),
		ledger.WithLogger(log),
	)

	a.supply = supply.New(a.ledger)
	a.accounts = accounts.New(a.ledger, a.supply)
	a.reputation = reputation.New(a.ledger)
	a.social = social.New(a.ledger, a.reputation)
	a.rewards = rewards.New(a.ledger, a.supply, a.accounts)
	a.recommendations = recommendations.New(a.ledger, a.reputation, a.social, a.accounts, a.rewards)
	a.governance = governance.New(a.ledger, a.accounts, a.reputation)
	return a, nil
}

func (a *app) jobs() []ports.BatchJob {
	return []ports.BatchJob{a.rewards.ExpiryJob(), a.governance.FinalizeJob()}
}
