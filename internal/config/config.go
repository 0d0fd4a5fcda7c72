package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string
	LogLevel    string
	// MaxConns caps both the postgres pool and concurrent HTTP connections.
	MaxConns      int
	SweepInterval time.Duration
	SweepBatch    int
	SweepWorkers  int
	MintAuthority string
	Treasury      string
}

// Development reports whether the process runs with APP_ENV=development.
func (c Config) Development() bool { return c.Env == "development" }

// Load reads configuration from the environment. A missing DATABASE_URL is
// reported as an error alongside a usable Config so callers can decide
// whether to fall back to the in-memory store.
func Load() (Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MAX_CONNS", 10)
	v.SetDefault("SWEEP_INTERVAL", 30*time.Second)
	v.SetDefault("SWEEP_BATCH", 100)
	v.SetDefault("SWEEP_WORKERS", 2)
	v.SetDefault("MINT_AUTHORITY", "mint-authority")
	v.SetDefault("TREASURY_ACCOUNT", "treasury")
	v.AutomaticEnv()

	cfg := Config{
		Env:           v.GetString("APP_ENV"),
		ListenAddr:    v.GetString("LISTEN_ADDR"),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		MaxConns:      v.GetInt("MAX_CONNS"),
		SweepInterval: v.GetDuration("SWEEP_INTERVAL"),
		SweepBatch:    v.GetInt("SWEEP_BATCH"),
		SweepWorkers:  v.GetInt("SWEEP_WORKERS"),
		MintAuthority: v.GetString("MINT_AUTHORITY"),
		Treasury:      v.GetString("TREASURY_ACCOUNT"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrNoDatabase
	}
	return cfg, nil
}

// ErrNoDatabase means DATABASE_URL is unset.
var ErrNoDatabase = errors.New("DATABASE_URL not set")
