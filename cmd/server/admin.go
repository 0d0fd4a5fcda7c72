package main

import (
	"github.com/spf13/cobra"

	pg "trustflow/internal/adapters/postgres"
	"trustflow/internal/services/supply"
	"trustflow/internal/workers/sweeper"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "apply the embedded schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, log, err := loadConfig(false)
		if err != nil {
			return err
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL, 1)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := pg.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info().Msg("schema up to date")
		return nil
	},
}

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "write the initial supply, parameters and treasury account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, log, err := loadConfig(false)
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.close()
		sup, err := a.supply.Genesis(ctx, supply.GenesisConfig{Authority: cfg.MintAuthority, Treasury: cfg.Treasury})
		if err != nil {
			return err
		}
		log.Info().Int64("cap", sup.TotalCap).Int64("rate_bps", sup.EmissionRate).Msg("genesis written")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "expire due escrow holds and finalize ended proposals once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cfg, log, err := loadConfig(false)
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.close()
		sw := sweeper.New(sweeper.Config{Batch: cfg.SweepBatch}, a.clock.Base(), a.metrics, log, a.jobs()...)
		n, err := sw.RunOnce(ctx)
		log.Info().Int("processed", n).Msg("sweep finished")
		return err
	},
}
