package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Sweeper pass timeout
const SweepPassTimeout = 30 * time.Second

// Default rate limiting
const (
	DefaultRateLimitPerMin = 120
	RegisterLimitPerWindow = 10
	RegisterLimitWindow    = time.Hour
	AdminLimitPerMin       = 30
)

// KeeperAccount is the caller identity used by the background sweeper.
const KeeperAccount = "keeper"

// MetricsNamespace prefixes every exported prometheus series.
const MetricsNamespace = "wager"
