// Package validate filters parsed data points before they are persisted.
//
// Rules are pure predicates applied in order; a point is dropped by the
// first rule that rejects it. Dropping is not an error.
package validate

import (
	"log/slog"
	"time"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

// Rule rejects a point when Reject returns true.
type Rule struct {
	Name   string
	Reject func(p model.DataPoint, now time.Time) bool
}

// Rule names, used as report keys and log labels.
const (
	RuleNoPrice         = "no_price"
	RuleNegativeVolume  = "negative_volume"
	RuleFutureTimestamp = "future_timestamp"
	RuleInvertedRange   = "inverted_range"
)

// DefaultRules returns the standard rule set.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleNoPrice, Reject: noUsablePrice},
		{Name: RuleNegativeVolume, Reject: negativeVolume},
		{Name: RuleFutureTimestamp, Reject: futureTimestamp},
		{Name: RuleInvertedRange, Reject: invertedRange},
	}
}

func noUsablePrice(p model.DataPoint, _ time.Time) bool {
	for _, price := range p.Prices() {
		if model.StateOf(price) == model.PricePresent {
			return false
		}
	}
	return true
}

func negativeVolume(p model.DataPoint, _ time.Time) bool {
	return p.Volume.Valid && p.Volume.Int64 < 0
}

func futureTimestamp(p model.DataPoint, now time.Time) bool {
	return p.Timestamp.After(now)
}

func invertedRange(p model.DataPoint, _ time.Time) bool {
	return p.High.Valid && p.Low.Valid && p.High.Decimal.LessThan(p.Low.Decimal)
}

// Report summarizes one Apply call.
type Report struct {
	Total    int
	Kept     int
	Rejected map[string]int
}

// Dropped returns the number of rejected points.
func (r Report) Dropped() int { return r.Total - r.Kept }

// Filter applies an ordered rule list.
type Filter struct {
	rules  []Rule
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithRules replaces the default rules.
func WithRules(rules ...Rule) Option {
	return func(f *Filter) { f.rules = rules }
}

// WithClock sets the time source for the future-timestamp rule.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Filter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Filter with DefaultRules.
func New(opts ...Option) *Filter {
	f := &Filter{
		rules:  DefaultRules(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply returns a batch holding only the points that pass every rule, in
// their original order. Symbol, fetch instant and source are preserved.
func (f *Filter) Apply(b model.Batch) (model.Batch, Report) {
	now := f.now()
	report := Report{Total: len(b.Points), Rejected: make(map[string]int)}

	kept := make([]model.DataPoint, 0, len(b.Points))
	for _, p := range b.Points {
		if name, rejected := f.check(p, now); rejected {
			report.Rejected[name]++
			continue
		}
		kept = append(kept, p)
	}
	report.Kept = len(kept)

	if report.Dropped() > 0 {
		f.logger.Debug("filtered data points",
			"symbol", b.Symbol,
			"total", report.Total,
			"kept", report.Kept,
			"rejected", report.Rejected,
		)
	}

	out := b
	out.Points = kept
	return out, report
}

func (f *Filter) check(p model.DataPoint, now time.Time) (string, bool) {
	for _, r := range f.rules {
		if r.Reject(p, now) {
			return r.Name, true
		}
	}
	return "", false
}
