package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/api"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/cache"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/config"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/database"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/metrics"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/pipeline"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/runlog"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/scheduler"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/store"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/version"
)

// app holds the long-lived objects shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pool      *pgxpool.Pool
	cache     *cache.RedisCache
	store     *store.PriceStore
	runner    *pipeline.Runner
	recorder  runlog.Recorder
	scheduler *scheduler.Scheduler
	registry  *prometheus.Registry
	sentry    bool
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     "stock-data-pipeline@" + version.Version,
		}); err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
		a.sentry = true
		logger.Info("sentry reporting enabled", "environment", cfg.Sentry.Environment)
	}

	logger.Info("opening database pool",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	a.pool, err = database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.store = store.New(a.pool, logger)

	clientOpts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryDelay),
		api.WithMinInterval(cfg.API.MinInterval),
		api.WithHealthSymbol(cfg.API.HealthSymbol),
	}
	if cfg.Cache.Enabled {
		a.cache = cache.Open(cfg.Cache, logger)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.cache.Ping(pingCtx); err != nil {
			logger.Warn("payload cache unreachable, requests will go to the api", "addr", cfg.Cache.RedisAddr, "error", err)
		}
		cancel()
		clientOpts = append(clientOpts, api.WithCache(a.cache, cfg.Cache.TTL))
	}
	client := api.NewClient(cfg.API.BaseURL, cfg.API.APIKey, clientOpts...)

	pool := a.pool
	a.runner = pipeline.New(pipeline.Config{
		Symbols:      cfg.Pipeline.Symbols,
		BatchSize:    cfg.Pipeline.BatchSize,
		Workers:      cfg.Pipeline.Workers,
		BatchPause:   cfg.Pipeline.BatchPause,
		OutputSize:   cfg.API.OutputSize,
		Interval:     cfg.API.Interval,
		SkipAPICheck: cfg.Pipeline.SkipAPICheck,
	}, client, a.store,
		pipeline.WithLogger(logger),
		pipeline.WithObserver(m),
		pipeline.WithSchema(func(ctx context.Context) error {
			return database.EnsureSchema(ctx, pool)
		}),
	)

	a.recorder = runlog.NoopRecorder{}
	if cfg.RunLog.SQLitePath != "" {
		rec, err := runlog.OpenSQLite(cfg.RunLog.SQLitePath, cfg.RunLog.Keep, logger)
		if err != nil {
			return nil, fmt.Errorf("open run log: %w", err)
		}
		a.recorder = rec
	}

	var reporter scheduler.Reporter
	if a.sentry {
		reporter = sentryReporter{logger: logger}
	}
	a.scheduler, err = scheduler.New(scheduler.Config{
		Daily:           cfg.Schedule.Daily,
		Intraday:        cfg.Schedule.Intraday,
		Cleanup:         cfg.Schedule.Cleanup,
		DailySymbols:    cfg.Pipeline.Symbols,
		IntradaySymbols: cfg.Pipeline.IntradayUniverse(),
		RetentionDays:   cfg.Pipeline.RetentionDays,
	}, a.runner, a.recorder, reporter, logger)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Close releases every resource newApp acquired.
func (a *app) Close() {
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.logger.Warn("close run log", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("close payload cache", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sentry {
		sentry.Flush(2 * time.Second)
	}
}
