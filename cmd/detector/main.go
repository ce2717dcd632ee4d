// Package main runs the coil detector: websocket event intake, the
// per-pool feature aggregator, the tick scheduler, and signal
// persistence and publishing.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solana-coil-detector/internal/aggregate"
	"solana-coil-detector/internal/coil"
	"solana-coil-detector/internal/config"
	"solana-coil-detector/internal/dedupe"
	rdedupe "solana-coil-detector/internal/dedupe/redis"
	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/engine"
	"solana-coil-detector/internal/ingest"
	"solana-coil-detector/internal/observability"
	"solana-coil-detector/internal/pubsub"
	natspub "solana-coil-detector/internal/pubsub/nats"
	"solana-coil-detector/internal/regime"
	"solana-coil-detector/internal/scheduler"
	"solana-coil-detector/internal/storage"
	chstore "solana-coil-detector/internal/storage/clickhouse"
	"solana-coil-detector/internal/storage/memory"
	"solana-coil-detector/internal/storage/migrations"
	pgstore "solana-coil-detector/internal/storage/postgres"
)

// detectorStores groups the persistence backends the engine writes to.
type detectorStores struct {
	features storage.FeatureStore
	signals  storage.SignalStore
	gaps     storage.GapStore
	cursor   storage.CursorStore
	history  storage.SnapshotHistoryStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	feedURL := flag.String("feed-url", cfg.FeedURL, "websocket endpoint publishing normalized event rows")
	thresholdsPath := flag.String("thresholds", cfg.ThresholdsPath, "thresholds YAML file, hot-reloaded each tick")
	winnersPath := flag.String("winners-file", os.Getenv("SCF_WINNERS_FILE"), "file with one prior-winner wallet per line")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus listen address")
	useMemory := flag.Bool("use-memory", false, "in-memory storage instead of Postgres/ClickHouse")
	flag.Parse()

	log := newLogger()

	if *feedURL == "" {
		log.Fatal().Msg("--feed-url (or EVENT_FEED_URL) is required")
	}
	if !*useMemory && cfg.DatabaseURL == "" {
		log.Fatal().Msg("DB_URL is required (or pass --use-memory)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := buildStores(ctx, cfg, *useMemory)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}
	defer cleanup()

	publisher, err := buildPublisher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("nats init failed")
	}
	if publisher != nil {
		defer publisher.Close()
	}

	deduper, err := buildDeduper(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	if deduper != nil {
		defer deduper.Close()
	}

	watcher, err := config.NewWatcher(*thresholdsPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("thresholds load failed")
	}

	winners, err := loadWinners(*winnersPath)
	if err != nil {
		log.Fatal().Err(err).Msg("winners file load failed")
	}

	// The aggregator needs the gap callback before the engine exists;
	// the closure resolves once wiring completes, before any event
	// flows.
	var eng *engine.Engine
	agg := aggregate.New(aggregate.Options{
		Params:       aggregate.DefaultParams(),
		PriorWinners: winners,
		GraceMs:      cfg.ReorderMaxLag.Milliseconds(),
		MaxPending:   cfg.ReorderMaxCount,
		IdleEvictMs:  cfg.PoolIdleEvict.Milliseconds(),
		OnGap: func(rec domain.GapRecord) {
			eng.OnGap(rec)
		},
		Log: log.With().Str("component", "aggregate").Logger(),
	})

	eng, err = engine.New(engine.Options{
		Aggregator: agg,
		Machine:    coil.NewMachine(),
		Classifier: regime.NewClassifier(regime.Options{}),
		Features:   stores.features,
		Signals:    stores.signals,
		Gaps:       stores.gaps,
		Cursor:     stores.cursor,
		History:    stores.history,
		Publisher:  publisher,
		Deduper:    deduper,
		Log:        log.With().Str("component", "engine").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}
	defer eng.Close()

	sched, err := scheduler.New(scheduler.Options{
		Engine:        eng,
		Watcher:       watcher,
		Interval:      cfg.PollInterval,
		Shards:        cfg.WorkerShards,
		ShutdownGrace: cfg.ShutdownGrace,
		Log:           log.With().Str("component", "scheduler").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler init failed")
	}

	feed, err := ingest.NewFeed(ctx, *feedURL, agg, nil, log.With().Str("component", "feed").Logger(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("feed connect failed")
	}
	defer feed.Close()

	done := make(chan struct{})
	go serveMetrics(*metricsAddr, log)
	go handleSignals(cancel, done, log)

	log.Info().
		Str("feed", *feedURL).
		Dur("interval", cfg.PollInterval).
		Int("shards", cfg.WorkerShards).
		Bool("memory", *useMemory).
		Msg("detector started")

	err = sched.Run(ctx)
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("scheduler stopped")
	}
	log.Info().Msg("shutdown complete")
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// buildStores wires Postgres and ClickHouse, running migrations first.
// ClickHouse is optional; without it snapshot history is disabled.
func buildStores(ctx context.Context, cfg *config.Config, useMemory bool) (*detectorStores, func(), error) {
	if useMemory {
		stores := &detectorStores{
			features: memory.NewFeatureStore(),
			signals:  memory.NewSignalStore(),
			gaps:     memory.NewGapStore(),
			cursor:   memory.NewCursorStore(),
			history:  memory.NewSnapshotHistoryStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &detectorStores{
		features: pgstore.NewFeatureStore(pool),
		signals:  pgstore.NewSignalStore(pool),
		gaps:     pgstore.NewGapStore(pool),
		cursor:   pgstore.NewCursorStore(pool),
	}

	var chConn *chstore.Conn
	if cfg.ClickHouseDSN != "" {
		chConn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.history = chstore.NewSnapshotHistoryStore(chConn)
	}

	cleanup := func() {
		if chConn != nil {
			chConn.Close()
		}
		pool.Close()
	}
	return stores, cleanup, nil
}

func buildPublisher(cfg *config.Config, log zerolog.Logger) (pubsub.Publisher, error) {
	if cfg.NATSURL == "" {
		log.Warn().Msg("NATS_URL not set, signal publishing disabled")
		return nil, nil
	}
	return natspub.New(cfg.NATSURL, log.With().Str("component", "nats").Logger())
}

func buildDeduper(ctx context.Context, cfg *config.Config) (dedupe.Deduper, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	return rdedupe.New(ctx, cfg.RedisURL)
}

// loadWinners reads the prior-winner cohort, one wallet per line.
// Blank lines and #-comments are skipped.
func loadWinners(path string) (map[string]struct{}, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	winners := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		winners[line] = struct{}{}
	}
	return winners, sc.Err()
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

// handleSignals cancels on the first signal and force-exits on the
// second (or after a grace period) so a wedged shutdown can still be
// killed cleanly.
func handleSignals(cancel context.CancelFunc, done <-chan struct{}, log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")
	cancel()

	select {
	case sig = <-sigCh:
		log.Warn().Str("signal", sig.String()).Msg("forcing immediate exit")
		os.Exit(1)
	case <-time.After(30 * time.Second):
		log.Warn().Msg("graceful shutdown timed out, forcing exit")
		os.Exit(1)
	case <-done:
	}
}
