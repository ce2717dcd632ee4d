// Package config loads detector configuration from the environment and
// an optional thresholds YAML file. Thresholds are hot-reloadable; the
// rest of the configuration is fixed at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrConfig marks a malformed configuration value. Fatal at startup;
// during a runtime reload the last-known-good thresholds stay active.
var ErrConfig = errors.New("config error")

// Config is the process-wide configuration fixed at startup.
type Config struct {
	// Storage
	DatabaseURL   string // Postgres DSN; empty disables Postgres persistence
	ClickHouseDSN string // empty disables snapshot history

	// Transport
	FeedURL  string // websocket endpoint publishing normalized event rows
	NATSURL  string // empty disables signal publishing
	RedisURL string // empty disables cross-process dedup

	// Observability
	MetricsAddr string // Prometheus listen address

	// Detector cadence and lifecycle
	PollInterval    time.Duration // tick cadence
	PoolIdleEvict   time.Duration // evict PoolWindowState after this inactivity
	ShutdownGrace   time.Duration // max wait for in-flight per-pool passes
	ReorderMaxLag   time.Duration // out-of-order buffering horizon
	ReorderMaxCount int           // out-of-order buffer capacity per pool
	WorkerShards    int           // per-pool serialization shards

	// ThresholdsPath points at the optional thresholds YAML file,
	// re-read on every reload.
	ThresholdsPath string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	// Missing .env is fine; env vars may come from the real environment.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     os.Getenv("DB_URL"),
		ClickHouseDSN:   os.Getenv("CLICKHOUSE_DSN"),
		FeedURL:         os.Getenv("EVENT_FEED_URL"),
		NATSURL:         os.Getenv("NATS_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		MetricsAddr:     envOr("METRICS_ADDR", ":9109"),
		PollInterval:    2 * time.Second,
		PoolIdleEvict:   6 * time.Hour,
		ShutdownGrace:   10 * time.Second,
		ReorderMaxLag:   30 * time.Second,
		ReorderMaxCount: 64,
		WorkerShards:    16,
		ThresholdsPath:  os.Getenv("SCF_THRESHOLDS_FILE"),
	}

	if raw := os.Getenv("SCF_DETECTOR_POLL_SEC"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: SCF_DETECTOR_POLL_SEC=%q must be a positive number", ErrConfig, raw)
		}
		cfg.PollInterval = time.Duration(v * float64(time.Second))
	}
	if raw := os.Getenv("SCF_POOL_IDLE_EVICT_SEC"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: SCF_POOL_IDLE_EVICT_SEC=%q must be a positive integer", ErrConfig, raw)
		}
		cfg.PoolIdleEvict = time.Duration(v) * time.Second
	}
	if raw := os.Getenv("SCF_WORKER_SHARDS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: SCF_WORKER_SHARDS=%q must be a positive integer", ErrConfig, raw)
		}
		cfg.WorkerShards = v
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
