package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/pipeline"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/runlog"
)

// Pipeline is the subset of *pipeline.Runner the scheduler drives.
type Pipeline interface {
	Run(ctx context.Context, mode model.Mode, symbols []string) (*model.RunStatus, error)
	Statistics(ctx context.Context) (*pipeline.Statistics, error)
	Cleanup(ctx context.Context, days int) (int64, error)
}

// Reporter is told about every finished run.
type Reporter interface {
	ReportRun(run model.RunSnapshot)
}

// Config holds job specs (cron with seconds field) and job parameters.
// An empty spec disables the job.
type Config struct {
	Daily           string
	Intraday        string
	Cleanup         string
	DailySymbols    []string
	IntradaySymbols []string
	RetentionDays   int
}

// Scheduler runs pipeline jobs on cron schedules.
type Scheduler struct {
	cfg      Config
	cron     *cron.Cron
	pipeline Pipeline
	recorder runlog.Recorder
	reporter Reporter
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler and registers the configured jobs.
func New(cfg Config, p Pipeline, rec runlog.Recorder, reporter Reporter, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = runlog.NoopRecorder{}
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 365
	}

	cl := cronLogger{logger: logger.With("component", "cron")}
	s := &Scheduler{
		cfg: cfg,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		pipeline: p,
		recorder: rec,
		reporter: reporter,
		logger:   logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"daily", cfg.Daily, func() { s.RunNow(s.ctx, model.ModeDaily) }},
		{"intraday", cfg.Intraday, func() { s.RunNow(s.ctx, model.ModeIntraday) }},
		{"cleanup", cfg.Cleanup, func() { s.Maintain(s.ctx) }},
	}
	for _, j := range jobs {
		if j.spec == "" {
			logger.Info("job disabled", "job", j.name)
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("register %s job: %w", j.name, err)
		}
		logger.Info("job registered", "job", j.name, "spec", j.spec)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling, cancels queued work and waits for running jobs
// until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next activation of each registered job.
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}

// RunNow executes one pipeline run, records it and reports it. Without
// symbols the job's configured universe is used.
func (s *Scheduler) RunNow(ctx context.Context, mode model.Mode, symbols ...string) (model.RunSnapshot, error) {
	if len(symbols) == 0 {
		symbols = s.cfg.DailySymbols
		if mode == model.ModeIntraday {
			symbols = s.cfg.IntradaySymbols
		}
	}

	status, err := s.pipeline.Run(ctx, mode, symbols)
	if status == nil {
		s.logger.Error("pipeline run failed to start", "mode", mode, "error", err)
		return model.RunSnapshot{}, err
	}
	run := status.Snapshot()
	if err != nil && !errors.Is(err, pipeline.ErrStoreUnavailable) {
		s.logger.Error("pipeline run error", "mode", mode, "run_id", run.ID, "error", err)
	}

	if rerr := s.recorder.Record(context.WithoutCancel(ctx), run); rerr != nil {
		s.logger.Warn("failed to record run", "run_id", run.ID, "error", rerr)
	}
	if s.reporter != nil {
		s.reporter.ReportRun(run)
	}
	return run, err
}

// Maintain runs the data quality check followed by retention cleanup.
func (s *Scheduler) Maintain(ctx context.Context) {
	if _, err := s.pipeline.Statistics(ctx); err != nil {
		s.logger.Error("data quality check failed", "error", err)
	}
	if _, err := s.pipeline.Cleanup(ctx, s.cfg.RetentionDays); err != nil {
		s.logger.Error("retention cleanup failed", "days", s.cfg.RetentionDays, "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
