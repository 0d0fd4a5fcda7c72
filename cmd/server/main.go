package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trustflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "trustflow reputation, reward and governance ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, genesisCmd, sweepCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and builds the root logger. A missing
// DATABASE_URL is logged and tolerated only when allowMemory is set.
func loadConfig(allowMemory bool) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	log := newLogger(cfg)
	if errors.Is(err, config.ErrNoDatabase) {
		if !allowMemory {
			return cfg, log, err
		}
		log.Warn().Err(err).Msg("running on the in-memory store")
		err = nil
	}
	return cfg, log, err
}

func newLogger(cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Development() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Str("env", cfg.Env).Logger()
}
