package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/api"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
	"github.com/nagasaiveerla/stock-data-pipeline/internal/validate"
)

//go:generate mockgen -source=runner.go -destination=mock_deps_test.go -package=pipeline

// ErrStoreUnavailable is returned by Run when the store cannot be reached
// before any symbol work starts.
var ErrStoreUnavailable = errors.New("store unavailable")

// Fetcher retrieves raw time series for a symbol.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, req model.FetchRequest) model.FetchResult
	HealthCheck(ctx context.Context) error
}

// Store persists batches and answers maintenance queries.
type Store interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, b model.Batch) model.PersistenceResult
	Count(ctx context.Context, symbol string) (int64, error)
	SymbolSummaries(ctx context.Context) (map[string]model.SymbolSummary, error)
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// Observer receives run and symbol outcomes. *metrics.Metrics implements it.
type Observer interface {
	ObserveSymbol(mode model.Mode, res model.PersistenceResult)
	ObserveFetch(d time.Duration)
	ObserveRun(run model.RunSnapshot)
	ObserveCleanup(deleted int64)
}

// Config holds runner configuration.
type Config struct {
	Symbols      []string      // default universe when Run is given none
	BatchSize    int           // symbols per group (default: 5)
	Workers      int           // concurrent symbols per group (default: 3)
	BatchPause   time.Duration // pause between groups (default: 2s)
	OutputSize   string        // compact or full
	Interval     string        // intraday bar size
	Source       string        // batch source tag
	SkipAPICheck bool
	RecentWindow time.Duration // freshness threshold for Statistics (default: 7d)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    5,
		Workers:      3,
		BatchPause:   2 * time.Second,
		OutputSize:   "compact",
		Interval:     "60min",
		Source:       model.SourceAlphaVantage,
		RecentWindow: 7 * 24 * time.Hour,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	if c.OutputSize == "" {
		c.OutputSize = d.OutputSize
	}
	if c.Interval == "" {
		c.Interval = d.Interval
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = d.RecentWindow
	}
}

// Runner executes pipeline runs over a symbol universe.
type Runner struct {
	cfg      Config
	fetcher  Fetcher
	store    Store
	filter   *validate.Filter
	observer Observer
	schema   func(ctx context.Context) error
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFilter replaces the default validation filter.
func WithFilter(f *validate.Filter) Option {
	return func(r *Runner) {
		if f != nil {
			r.filter = f
		}
	}
}

// WithObserver sets the run observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithSchema sets the function TestConnections uses to ensure the schema.
func WithSchema(ensure func(ctx context.Context) error) Option {
	return func(r *Runner) { r.schema = ensure }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a new Runner.
func New(cfg Config, fetcher Fetcher, store Store, opts ...Option) *Runner {
	cfg.applyDefaults()
	r := &Runner{
		cfg:      cfg,
		fetcher:  fetcher,
		store:    store,
		observer: nopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.filter == nil {
		r.filter = validate.New(validate.WithClock(r.now), validate.WithLogger(r.logger))
	}
	return r
}

// Run fetches, validates and stores every symbol, in groups of BatchSize
// with at most Workers symbols in flight. An empty symbols list runs the
// configured universe.
//
// The returned status is always non-nil once mode is valid. The only
// run-level error is ErrStoreUnavailable; per-symbol failures are recorded
// in the status.
func (r *Runner) Run(ctx context.Context, mode model.Mode, symbols []string) (*model.RunStatus, error) {
	mode, err := model.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		symbols = r.cfg.Symbols
	}
	valid, invalid := model.NormalizeSymbols(symbols)

	status := model.NewRunStatus(mode, valid, r.now())
	for _, s := range invalid {
		status.AddWarning(fmt.Sprintf("Skipped invalid symbol %q", s))
	}

	logger := r.logger.With("run_id", status.ID, "mode", mode)
	logger.Info("pipeline run started", "symbols", len(valid), "batch_size", r.cfg.BatchSize, "workers", r.cfg.Workers)

	if err := r.store.Ping(ctx); err != nil {
		logger.Error("database connection failed", "error", err)
		status.Abort("Database connection failed")
		status.Finish(r.now())
		r.observer.ObserveRun(status.Snapshot())
		return status, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if !r.cfg.SkipAPICheck {
		if err := r.fetcher.HealthCheck(ctx); err != nil {
			logger.Warn("api health check failed, continuing", "error", err)
			status.AddWarning(fmt.Sprintf("API health check failed: %v", err))
		}
	}

	groups := chunk(valid, r.cfg.BatchSize)
	for i, group := range groups {
		if i > 0 {
			r.pause(ctx)
		}
		if ctx.Err() != nil {
			skipped := 0
			for _, g := range groups[i:] {
				skipped += len(g)
			}
			logger.Warn("run cancelled, skipping remaining groups", "skipped", skipped, "error", ctx.Err())
			status.AddError(fmt.Sprintf("Run cancelled: %d symbols not processed", skipped))
			break
		}

		logger.Debug("processing group", "group", i+1, "of", len(groups), "symbols", group)
		r.processGroup(ctx, mode, group, status)
	}

	status.Finish(r.now())
	snap := status.Snapshot()
	r.observer.ObserveRun(snap)

	logger.Info("pipeline run complete",
		"symbols", len(snap.Symbols),
		"succeeded", len(snap.Succeeded),
		"failed", len(snap.Failed),
		"records", snap.TotalRecords,
		"success_rate", fmt.Sprintf("%.1f%%", snap.SuccessRate()),
		"duration", snap.Duration(),
	)
	return status, nil
}

// processGroup runs one group to completion. Workers are detached from
// ctx cancellation so dispatched symbols always finish; the HTTP timeout
// bounds them.
func (r *Runner) processGroup(ctx context.Context, mode model.Mode, group []string, status *model.RunStatus) {
	wctx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for _, symbol := range group {
		g.Go(func() error {
			res := r.safeProcess(wctx, mode, symbol)
			status.Record(res)
			r.observer.ObserveSymbol(mode, res)
			return nil
		})
	}
	_ = g.Wait()
}

// safeProcess converts a panic in ProcessSymbol into a failed result.
func (r *Runner) safeProcess(ctx context.Context, mode model.Mode, symbol string) (res model.PersistenceResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while processing symbol",
				"symbol", symbol,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			res = model.PersistenceResult{
				Symbol:       symbol,
				Kind:         model.KindInternal,
				ErrorMessage: fmt.Sprintf("Unexpected error: %v", rec),
			}
		}
	}()
	return r.ProcessSymbol(ctx, mode, symbol)
}

// ProcessSymbol runs fetch, parse, validate and upsert for one symbol.
func (r *Runner) ProcessSymbol(ctx context.Context, mode model.Mode, symbol string) model.PersistenceResult {
	fail := func(kind model.ErrorKind, msg string) model.PersistenceResult {
		return model.PersistenceResult{Symbol: symbol, Kind: kind, ErrorMessage: msg}
	}

	start := time.Now()
	fr := r.fetcher.Fetch(ctx, symbol, model.FetchRequest{
		Mode:       mode,
		Interval:   r.cfg.Interval,
		OutputSize: r.cfg.OutputSize,
	})
	r.observer.ObserveFetch(time.Since(start))
	if !fr.Success {
		kind := fr.Kind
		if kind == model.KindNone {
			kind = model.KindTransport
		}
		return fail(kind, fr.ErrorMessage)
	}

	points, skipped := api.ParseTimeSeries(fr.Payload, symbol, mode, r.logger)
	if len(points) == 0 {
		return fail(model.KindParse, "Failed to create stock batch from API response")
	}

	fetchedAt := fr.RespondedAt
	if fetchedAt.IsZero() {
		fetchedAt = r.now()
	}
	batch, err := model.NewBatch(symbol, points, fetchedAt, r.cfg.Source)
	if err != nil {
		r.logger.Warn("invalid batch", "symbol", symbol, "error", err)
		return fail(model.KindParse, "Failed to create stock batch from API response")
	}

	filtered, report := r.filter.Apply(batch)
	if filtered.Len() == 0 {
		return fail(model.KindValidation, "No valid data points after validation")
	}

	res := r.store.Upsert(ctx, filtered)
	res.Symbol = symbol
	if !res.Success {
		if res.Kind == model.KindNone {
			res.Kind = model.KindPersistence
		}
		return res
	}

	r.logger.Info("symbol processed",
		"symbol", symbol,
		"parsed", len(points),
		"unparseable", skipped,
		"dropped", report.Dropped(),
		"stored", res.Processed,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"cached", fr.Cached,
	)
	return res
}

// pause waits BatchPause or until ctx is done.
func (r *Runner) pause(ctx context.Context) {
	if r.cfg.BatchPause <= 0 {
		return
	}
	t := time.NewTimer(r.cfg.BatchPause)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// chunk splits symbols into consecutive groups of at most size.
func chunk(symbols []string, size int) [][]string {
	var groups [][]string
	for len(symbols) > 0 {
		n := min(size, len(symbols))
		groups = append(groups, symbols[:n:n])
		symbols = symbols[n:]
	}
	return groups
}

type nopObserver struct{}

func (nopObserver) ObserveSymbol(model.Mode, model.PersistenceResult) {}
func (nopObserver) ObserveFetch(time.Duration)                        {}
func (nopObserver) ObserveRun(model.RunSnapshot)                      {}
func (nopObserver) ObserveCleanup(int64)                              {}
