package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"strategy-engine/internal/api"
	"strategy-engine/internal/engine"
	"strategy-engine/internal/events"
	"strategy-engine/internal/exchange"
	"strategy-engine/internal/market"
	"strategy-engine/internal/notify"
	"strategy-engine/internal/position"
	"strategy-engine/internal/reconcile"
	sigmgr "strategy-engine/internal/signal"
	"strategy-engine/internal/strategy"
	"strategy-engine/pkg/clock"
	"strategy-engine/pkg/config"
	"strategy-engine/pkg/db"
	"strategy-engine/pkg/logger"
	"strategy-engine/pkg/metrics"
)

const buildVersion = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		panic(err)
	}
	log.Info().Str("version", buildVersion).Msg("starting strategy engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("database init failed")
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("database migrations failed")
	}

	// Core services
	bus := events.NewBus()
	clk := clock.System{}
	rec := metrics.New()

	// In-memory position state seeded from DB
	positions := position.NewManager(database)
	if err := positions.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("position state load failed")
	}

	// Optional strategy seeds from YAML
	if cfg.StrategySeedPath != "" {
		seeds, err := strategy.LoadSeedFile(cfg.StrategySeedPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.StrategySeedPath).Msg("strategy seed load failed")
		}
		if err := strategy.SyncSeedsToDB(database.DB, seeds); err != nil {
			log.Fatal().Err(err).Msg("strategy seed sync failed")
		}
		log.Info().Int("count", len(seeds)).Msg("strategy seeds synced")
	}

	// Market data: mock feed for dry runs, cached either way so concurrent
	// evaluations share one upstream fetch per symbol.
	var upstream market.CandleSource
	if cfg.UseMockFeed {
		upstream = market.NewMockSource(50000, 25)
		log.Info().Msg("using mock candle feed")
	} else {
		live := market.NewLiveSource(market.NewStreamClient(cfg.StreamURL, log), cfg.CandleLimit*5, log)
		defer live.Close()
		upstream = live
	}
	candles := market.NewCachedSource(upstream, 256, cfg.CandleMaxAge)

	// Notification channel
	var notifier notify.Notifier
	if len(cfg.WebhookDestinations) > 0 {
		notifier = notify.NewWebhookNotifier(cfg.DeliveryTimeout, log)
	} else {
		notifier = notify.NewLogNotifier(log)
	}
	dests := notify.StaticDestinations(cfg.WebhookDestinations)

	// Signal lifecycle
	signals := sigmgr.NewManager(sigmgr.Config{
		MaxAttempts:     cfg.SignalMaxAttempts,
		RetryCooldown:   cfg.SignalRetryCooldown,
		MaxAge:          cfg.SignalMaxAge,
		SweepPageSize:   cfg.SignalSweepPage,
		DeliveryTimeout: cfg.DeliveryTimeout,
		PollInterval:    cfg.FastBaseInterval,
		DeliveryPacing:  cfg.DeliveryPacing,
	}, database, notifier, dests, bus, clk, rec, log)
	go signals.RunSweeper(ctx, cfg.SignalSweepInterval)

	// Venue: in dry runs the paper exchange both takes orders and reports
	// positions, so the reconciler sees every fill the engine makes. Live
	// order routing plugs in here; until a live client exists the engine
	// runs signal-only and reconciliation stays off, because sweeping
	// against a venue that never observes our fills would close every
	// engine-opened position as stale.
	var orders exchange.OrderPlacer
	var venue exchange.PositionSource
	if cfg.DryRun {
		paper := exchange.NewPaper(clk, nil)
		orders = paper
		venue = paper
	} else {
		log.Warn().Msg("no live venue client configured; running signal-only, reconciler disabled")
	}

	// Evaluation engine and its two drivers
	eng := engine.New(engine.Config{
		CandleLimit:  cfg.CandleLimit,
		FetchTimeout: cfg.FetchTimeout,
	}, database, candles, positions, signals, orders, nil, bus, clk, rec, log)

	runner := engine.NewRunner(engine.RunnerConfig{
		ScheduledInterval: cfg.ScheduledInterval,
		FastBaseInterval:  cfg.FastBaseInterval,
		FastMaxInterval:   cfg.FastMaxInterval,
	}, eng, log)
	runner.Start(ctx)

	// Position reconciliation against the venue
	if venue != nil {
		reconciler := reconcile.NewService(venue, positions, candles, signals, database, bus, clk, rec, log, cfg.FetchTimeout)
		reconciler.Start(ctx, cfg.ReconcileInterval)
	}

	// HTTP API
	venueName := "paper"
	if !cfg.DryRun {
		venueName = "none"
	}
	server := api.NewServer(bus, database, positions, candles, api.SystemMeta{
		DryRun:      cfg.DryRun,
		Venue:       venueName,
		Symbols:     cfg.Symbols,
		UseMockFeed: cfg.UseMockFeed,
		Version:     buildVersion,
	}, log)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("api server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down")
}
