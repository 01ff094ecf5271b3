package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

const namespace = "stockdata"

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	runs           *prometheus.CounterVec
	symbols        *prometheus.CounterVec
	failures       *prometheus.CounterVec
	records        *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	upsertDuration prometheus.Histogram
	lastRun        *prometheus.GaugeVec
	rateWait       prometheus.Histogram
	deleted        prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		symbols: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_total",
			Help:      "Symbols processed by mode and result.",
		}, []string{"mode", "result"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_failures_total",
			Help:      "Failed symbols by error kind.",
		}, []string{"kind"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      "Rows written by mode.",
		}, []string{"mode"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"mode"}),
		upsertDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upsert_duration_seconds",
			Help:      "Duration of batch upserts.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run of each mode finished.",
		}, []string{"mode"}),
		rateWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching one symbol, including rate limit waits and retries.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 12, 30, 60, 120},
		}),
		deleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_deleted_total",
			Help:      "Rows removed by retention cleanup.",
		}),
	}
}

// ObserveSymbol records one symbol result.
func (m *Metrics) ObserveSymbol(mode model.Mode, res model.PersistenceResult) {
	if m == nil {
		return
	}
	if res.Success {
		m.symbols.WithLabelValues(string(mode), "success").Inc()
		m.records.WithLabelValues(string(mode)).Add(float64(res.Processed))
		m.upsertDuration.Observe(res.Elapsed.Seconds())
		return
	}
	m.symbols.WithLabelValues(string(mode), "failure").Inc()
	m.failures.WithLabelValues(res.Kind.String()).Inc()
}

// ObserveFetch records time spent in one fetch.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.rateWait.Observe(d.Seconds())
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(run model.RunSnapshot) {
	if m == nil {
		return
	}
	mode := string(run.Mode)
	m.runs.WithLabelValues(mode, Outcome(run)).Inc()
	m.runDuration.WithLabelValues(mode).Observe(run.Duration().Seconds())
	m.lastRun.WithLabelValues(mode).Set(float64(run.EndedAt.Unix()))
}

// ObserveCleanup records rows removed by retention.
func (m *Metrics) ObserveCleanup(deleted int64) {
	if m == nil {
		return
	}
	m.deleted.Add(float64(deleted))
}

// Outcome labels a run: aborted, failed (no symbol succeeded), partial or
// success.
func Outcome(run model.RunSnapshot) string {
	switch {
	case run.Aborted:
		return "aborted"
	case len(run.Succeeded) == 0:
		return "failed"
	case len(run.Failed) > 0:
		return "partial"
	default:
		return "success"
	}
}
