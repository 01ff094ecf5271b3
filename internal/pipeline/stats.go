package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

// LowQualityScore is the score below which Statistics logs a warning.
const LowQualityScore = 80.0

// Statistics describes the stored data set.
type Statistics struct {
	TotalRecords      int64                          `json:"total_records"`
	UniqueSymbols     int                            `json:"unique_symbols"`
	Symbols           map[string]model.SymbolSummary `json:"symbols_summary"`
	ConfiguredSymbols []string                       `json:"configured_symbols"`
	Coverage          Coverage                       `json:"coverage"`
	Quality           Quality                        `json:"quality"`
	GeneratedAt       time.Time                      `json:"generated_at"`
}

// Coverage compares stored symbols against the configured universe.
type Coverage struct {
	WithData   int      `json:"symbols_with_data"`
	Configured int      `json:"symbols_configured"`
	Missing    []string `json:"missing_symbols"`
	Extra      []string `json:"extra_symbols"`
}

// Quality holds pass/fail data checks and their score.
type Quality struct {
	Checks []QualityCheck `json:"checks"`
	Score  float64        `json:"score"` // percent of checks passed
}

// QualityCheck is one named data check.
type QualityCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Statistics gathers row counts, per-symbol summaries, coverage of the
// configured universe and data quality checks.
func (r *Runner) Statistics(ctx context.Context) (*Statistics, error) {
	total, err := r.store.Count(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	sums, err := r.store.SymbolSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}

	configured, _ := model.NormalizeSymbols(r.cfg.Symbols)
	stats := &Statistics{
		TotalRecords:      total,
		UniqueSymbols:     len(sums),
		Symbols:           sums,
		ConfiguredSymbols: configured,
		GeneratedAt:       r.now(),
	}
	stats.Coverage = coverage(configured, sums)
	stats.Quality = r.quality(stats)

	r.logger.Info("data quality check complete",
		"total_records", stats.TotalRecords,
		"unique_symbols", stats.UniqueSymbols,
		"missing", len(stats.Coverage.Missing),
		"score", fmt.Sprintf("%.1f%%", stats.Quality.Score),
	)
	if stats.Quality.Score < LowQualityScore {
		r.logger.Warn("data quality score is low", "score", fmt.Sprintf("%.1f%%", stats.Quality.Score))
	}
	return stats, nil
}

func coverage(configured []string, sums map[string]model.SymbolSummary) Coverage {
	c := Coverage{WithData: len(sums), Configured: len(configured)}
	want := make(map[string]struct{}, len(configured))
	for _, s := range configured {
		want[s] = struct{}{}
		if _, ok := sums[s]; !ok {
			c.Missing = append(c.Missing, s)
		}
	}
	for s := range sums {
		if _, ok := want[s]; !ok {
			c.Extra = append(c.Extra, s)
		}
	}
	slices.Sort(c.Extra)
	return c
}

func (r *Runner) quality(stats *Statistics) Quality {
	var latest time.Time
	for _, s := range stats.Symbols {
		if s.Latest.After(latest) {
			latest = s.Latest
		}
	}
	cutoff := stats.GeneratedAt.Add(-r.cfg.RecentWindow)

	checks := []QualityCheck{
		{
			Name:   "total_records",
			Passed: stats.TotalRecords > 0,
			Detail: fmt.Sprintf("%d rows", stats.TotalRecords),
		},
		{
			Name:   "symbols_coverage",
			Passed: stats.UniqueSymbols > 0,
			Detail: fmt.Sprintf("%d of %d configured symbols stored", stats.Coverage.Configured-len(stats.Coverage.Missing), stats.Coverage.Configured),
		},
		{
			Name:   "recent_data",
			Passed: !latest.IsZero() && !latest.Before(cutoff),
			Detail: recentDetail(latest, r.cfg.RecentWindow),
		},
	}

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	return Quality{Checks: checks, Score: float64(passed) / float64(len(checks)) * 100}
}

func recentDetail(latest time.Time, window time.Duration) string {
	if latest.IsZero() {
		return "no data"
	}
	return fmt.Sprintf("latest %s, window %s", latest.UTC().Format(time.RFC3339), window)
}

// Cleanup removes rows ingested more than days ago.
func (r *Runner) Cleanup(ctx context.Context, days int) (int64, error) {
	r.logger.Info("cleaning up old data", "days", days)
	deleted, err := r.store.DeleteOlderThan(ctx, days)
	if err != nil {
		r.logger.Error("cleanup failed", "days", days, "error", err)
		return 0, err
	}
	r.observer.ObserveCleanup(deleted)
	r.logger.Info("cleanup complete", "days", days, "deleted", deleted)
	return deleted, nil
}

// ConnectionReport is the outcome of TestConnections.
type ConnectionReport struct {
	Database    bool   `json:"database_connection"`
	API         bool   `json:"api_connection"`
	DatabaseErr string `json:"database_error,omitempty"`
	APIErr      string `json:"api_error,omitempty"`
}

// OK reports whether both the database and the API are reachable.
func (c ConnectionReport) OK() bool { return c.Database && c.API }

// TestConnections pings the store, ensures the schema when a schema
// function is configured, and runs the API health check.
func (r *Runner) TestConnections(ctx context.Context) ConnectionReport {
	var rep ConnectionReport

	if err := r.store.Ping(ctx); err != nil {
		r.logger.Error("database connection failed", "error", err)
		rep.DatabaseErr = err.Error()
	} else if r.schema != nil {
		if err := r.schema(ctx); err != nil {
			r.logger.Error("schema setup failed", "error", err)
			rep.DatabaseErr = err.Error()
		} else {
			rep.Database = true
		}
	} else {
		rep.Database = true
	}
	if rep.Database {
		r.logger.Info("database connection successful")
	}

	if err := r.fetcher.HealthCheck(ctx); err != nil {
		r.logger.Error("api connection failed", "error", err)
		rep.APIErr = err.Error()
	} else {
		rep.API = true
		r.logger.Info("api connection successful")
	}
	return rep
}
