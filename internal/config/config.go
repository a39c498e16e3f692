package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                 int      `env:"PORT" envDefault:"8080"`
	DatabaseURL          string   `env:"DATABASE_URL,required,notEmpty"`
	RedisURL             string   `env:"REDIS_URL,required,notEmpty"`
	LogLevel             string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFile              string   `env:"LOG_FILE"`
	LogFileMaxMB         int      `env:"LOG_FILE_MAX_MB" envDefault:"100"`
	LogFileMaxBackups    int      `env:"LOG_FILE_MAX_BACKUPS" envDefault:"5"`
	MinStake             int64    `env:"MIN_STAKE" envDefault:"1"`
	MaxStake             int64    `env:"MAX_STAKE" envDefault:"1000000"`
	CommitWindowSeconds  int      `env:"COMMIT_WINDOW_SECONDS" envDefault:"300"`
	RevealWindowSeconds  int      `env:"REVEAL_WINDOW_SECONDS" envDefault:"300"`
	CancelGraceSeconds   int      `env:"CANCEL_GRACE_SECONDS" envDefault:"300"`
	SweepIntervalSeconds int      `env:"SWEEP_INTERVAL_SECONDS" envDefault:"30"`
	SweepBatchSize       int      `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
	WalletStartingFunds  int64    `env:"WALLET_STARTING_FUNDS" envDefault:"0"`
	AdminPasswordHash    string   `env:"ADMIN_PASSWORD_HASH"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	OTelEndpoint         string   `env:"OTEL_ENDPOINT"`
	OTelEnabled          bool     `env:"OTEL_ENABLED" envDefault:"true"`
}

func (c *Config) CommitWindow() time.Duration {
	return time.Duration(c.CommitWindowSeconds) * time.Second
}

func (c *Config) RevealWindow() time.Duration {
	return time.Duration(c.RevealWindowSeconds) * time.Second
}

func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.MinStake <= 0 {
		return fmt.Errorf("MIN_STAKE must be positive")
	}
	if c.MaxStake < c.MinStake {
		return fmt.Errorf("MAX_STAKE (%d) must be >= MIN_STAKE (%d)", c.MaxStake, c.MinStake)
	}
	if c.CommitWindowSeconds <= 0 || c.RevealWindowSeconds <= 0 {
		return fmt.Errorf("COMMIT_WINDOW_SECONDS and REVEAL_WINDOW_SECONDS must be positive")
	}
	if c.CancelGraceSeconds < 0 {
		return fmt.Errorf("CANCEL_GRACE_SECONDS must not be negative")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	if c.WalletStartingFunds < 0 {
		return fmt.Errorf("WALLET_STARTING_FUNDS must not be negative")
	}

	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: wagerctl hash-password <password>)")
		}
	} else {
		log.Warn().Msg("ADMIN_PASSWORD_HASH is empty: admin routes are disabled")
	}

	if strings.HasPrefix(c.DatabaseURL, "sqlite://") && c.WalletStartingFunds > 0 {
		log.Warn().Int64("funds", c.WalletStartingFunds).Msg("sqlite database with starting wallet funds: intended for local play only")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
