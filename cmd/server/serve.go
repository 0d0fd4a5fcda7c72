package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	httpadapter "trustflow/internal/adapters/http"
	"trustflow/internal/domain"
	"trustflow/internal/services/supply"
	"trustflow/internal/workers/sweeper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the read-only feed and the due-item sweeper",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig(true)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	var sup domain.TokenSupply
	if cfg.DatabaseURL == "" {
		// The in-memory ledger starts empty every run.
		sup, err = a.supply.Genesis(ctx, supply.GenesisConfig{Authority: cfg.MintAuthority, Treasury: cfg.Treasury})
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
	} else {
		sup, err = a.supply.Snapshot(ctx)
		switch {
		case errors.Is(err, domain.ErrNotInitialized):
			log.Warn().Msg("ledger has no genesis yet; run `server genesis`")
		case err != nil:
			return err
		}
	}
	if err == nil {
		// Later changes arrive as halving events.
		a.metrics.Emission(sup.HalvingIndex, sup.EmissionRate)
	}

	a.bus.Subscribe(func(_ context.Context, ev domain.Event) {
		if ev.Type == domain.EventHalving {
			log.Warn().Uint64("seq", ev.Seq).Int64("rate_bps", ev.Amount).Msg("reward emission halved")
		}
	})

	sw := sweeper.New(sweeper.Config{
		Interval: cfg.SweepInterval,
		Batch:    cfg.SweepBatch,
		Workers:  cfg.SweepWorkers,
	}, a.clock.Base(), a.metrics, log, a.jobs()...)
	sweepDone := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(sweepDone)
	}()

	srv := httpadapter.New(httpadapter.Deps{
		Events:          a.ledger,
		Supply:          a.supply,
		Reputation:      a.reputation,
		Recommendations: a.recommendations,
		Governance:      a.governance,
		Accounts:        a.accounts,
		Gatherer:        a.registry,
		Logger:          log,
	})
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}
	httpSrv := &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()
	log.Info().Str("addr", cfg.ListenAddr).Msg("listening")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	<-sweepDone
	return nil
}
