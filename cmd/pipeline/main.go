package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/config"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/version"
)

const usage = `usage: pipeline [--config path] [--log-level level] <command> [flags]

commands:
  test                          test database and API connections
  run [--type T] [--symbols S]  run the pipeline once (T: daily|intraday)
  stats                         print data statistics as JSON
  cleanup [--days N]            delete rows ingested more than N days ago
  serve                         run scheduled jobs and the admin server
  version                       print version information
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pipeline", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to config file (optional)")
	logLevel := fs.String("log-level", "", "log level override (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	command, cmdArgs := fs.Arg(0), fs.Args()[1:]

	if command == "version" {
		fmt.Fprintln(stdout, "stock-data-pipeline", version.String())
		return 0
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := newLogger(stderr, cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting pipeline",
		"version", version.Version,
		"commit", version.Commit,
		"command", command,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return 1
	}
	defer a.Close()

	switch command {
	case "test":
		return a.cmdTest(ctx)
	case "run":
		return a.cmdRun(ctx, cmdArgs, stderr)
	case "stats":
		return a.cmdStats(ctx, stdout)
	case "cleanup":
		return a.cmdCleanup(ctx, cmdArgs, stderr)
	case "serve":
		return a.cmdServe(ctx)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
}

func (a *app) cmdTest(ctx context.Context) int {
	rep := a.runner.TestConnections(ctx)
	if !rep.OK() {
		a.logger.Error("connection tests failed",
			"database", rep.Database,
			"api", rep.API,
		)
		return 1
	}
	a.logger.Info("all connection tests passed")
	return 0
}

func (a *app) cmdRun(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataType := fs.String("type", "daily", "data type: daily or intraday")
	symbols := fs.String("symbols", "", "comma-separated symbols (default: configured universe)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	mode, err := model.ParseMode(*dataType)
	if err != nil {
		a.logger.Error("invalid run type", "error", err)
		return 2
	}

	run, err := a.scheduler.RunNow(ctx, mode, splitSymbols(*symbols)...)
	if run.ID == uuid.Nil {
		a.logger.Error("pipeline run failed", "error", err)
		return 1
	}
	logSummary(a.logger, run)

	if len(run.Succeeded) == 0 {
		return 1
	}
	return 0
}

func (a *app) cmdStats(ctx context.Context, stdout io.Writer) int {
	stats, err := a.runner.Statistics(ctx)
	if err != nil {
		a.logger.Error("failed to get statistics", "error", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		a.logger.Error("failed to write statistics", "error", err)
		return 1
	}
	return 0
}

func (a *app) cmdCleanup(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	fs.SetOutput(stderr)
	days := fs.Int("days", a.cfg.Pipeline.RetentionDays, "retention in days")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := a.runner.Cleanup(ctx, *days); err != nil {
		a.logger.Error("cleanup failed", "error", err)
		return 1
	}
	return 0
}

func (a *app) cmdServe(ctx context.Context) int {
	addr := fmt.Sprintf(":%d", a.cfg.Metrics.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           a.adminHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting admin server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.scheduler.Start()
	a.logger.Info("scheduler started", "next", a.scheduler.Next())

	code := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.logger.Error("admin server error", "error", err)
		code = 1
	}

	a.logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler did not stop cleanly", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("admin server shutdown", "error", err)
	}
	st := a.store.Stats()
	a.logger.Info("pipeline stopped",
		"upserts", st.Upserts,
		"rows", st.Rows,
		"inserted", st.Inserted,
		"updated", st.Updated,
		"store_errors", st.Errors,
	)
	return code
}

func logSummary(logger *slog.Logger, run model.RunSnapshot) {
	logger.Info("pipeline execution summary",
		"run_id", run.ID,
		"mode", run.Mode,
		"symbols", len(run.Symbols),
		"succeeded", len(run.Succeeded),
		"failed", len(run.Failed),
		"records", run.TotalRecords,
		"inserted", run.Inserted,
		"updated", run.Updated,
		"success_rate", fmt.Sprintf("%.1f%%", run.SuccessRate()),
		"duration", run.Duration(),
	)
	for _, e := range run.Errors {
		logger.Warn("run error", "run_id", run.ID, "error", e)
	}
	for _, w := range run.Warnings {
		logger.Warn("run warning", "run_id", run.ID, "warning", w)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// splitSymbols parses a comma-separated --symbols value.
func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
