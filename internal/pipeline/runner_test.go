package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

const dailyPayload = `{
	"Meta Data": {"2. Symbol": "AAPL", "5. Time Zone": "US/Eastern"},
	"Time Series (Daily)": {
		"2024-01-12": {"1. open": "186.06", "2. high": "186.74", "3. low": "185.19", "4. close": "185.92", "5. volume": "40444684"},
		"2024-01-11": {"1. open": "186.54", "2. high": "187.05", "3. low": "183.62", "4. close": "185.59", "5. volume": "49128408"}
	}
}`

const zeroPayload = `{
	"Time Series (Daily)": {
		"2024-01-12": {"1. open": "0", "2. high": "0", "3. low": "0", "4. close": "0", "5. volume": "0"}
	}
}`

const malformedPayload = `{
	"Time Series (Daily)": {
		"not-a-date": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "1"}
	}
}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func payload(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var p map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(s), &p))
	return p
}

func okFetch(t *testing.T, symbol, body string) model.FetchResult {
	return model.FetchResult{
		Success:     true,
		Symbol:      symbol,
		Payload:     payload(t, body),
		RespondedAt: time.Now(),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchPause = 0
	return cfg
}

func newRunner(cfg Config, f Fetcher, s Store, opts ...Option) *Runner {
	return New(cfg, f, s, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

// upsertOK acknowledges every point in the batch as inserted.
func upsertOK(_ context.Context, b model.Batch) model.PersistenceResult {
	return model.PersistenceResult{
		Success:   true,
		Symbol:    b.Symbol,
		Processed: b.Len(),
		Inserted:  b.Len(),
	}
}

func TestRunMixedResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := NewMockFetcher(ctrl)
	store := NewMockStore(ctrl)
	obs := NewMockObserver(ctrl)

	store.EXPECT().Ping(gomock.Any()).Return(nil)
	fetcher.EXPECT().HealthCheck(gomock.Any()).Return(nil)
	fetcher.EXPECT().
		Fetch(gomock.Any(), "AAPL", model.FetchRequest{Mode: model.ModeDaily, Interval: "60min", OutputSize: "compact"}).
		Return(okFetch(t, "AAPL", dailyPayload))
	fetcher.EXPECT().
		Fetch(gomock.Any(), "BAD", gomock.Any()).
		Return(model.FetchResult{Symbol: "BAD", Kind: model.KindAPILogical, ErrorMessage: "Invalid API call"})
	store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, b model.Batch) model.PersistenceResult {
		assert.Equal(t, "AAPL", b.Symbol)
		assert.Equal(t, model.SourceAlphaVantage, b.Source)
		assert.Len(t, b.Points, 2)
		return upsertOK(ctx, b)
	})

	obs.EXPECT().ObserveFetch(gomock.Any()).Times(2)
	obs.EXPECT().ObserveSymbol(model.ModeDaily, gomock.Any()).Times(2)
	obs.EXPECT().ObserveRun(gomock.Any()).Do(func(run model.RunSnapshot) {
		assert.Equal(t, []string{"AAPL"}, run.Succeeded)
		assert.False(t, run.EndedAt.IsZero())
	})

	r := newRunner(testConfig(), fetcher, store, WithObserver(obs))
	status, err := r.Run(context.Background(), model.ModeDaily, []string{"aapl", " BAD "})
	require.NoError(t, err)

	snap := status.Snapshot()
	assert.Equal(t, []string{"AAPL", "BAD"}, snap.Symbols)
	assert.Equal(t, []string{"AAPL"}, snap.Succeeded)
	assert.Equal(t, []string{"BAD"}, snap.Failed)
	assert.Equal(t, []string{"BAD: Invalid API call"}, snap.Errors)
	assert.Equal(t, 2, snap.TotalRecords)
	assert.InDelta(t, 50.0, snap.SuccessRate(), 1e-9)
	assert.True(t, status.Finished())
	assert.False(t, snap.Aborted)
}

func TestRunStoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := NewMockFetcher(ctrl)
	store := NewMockStore(ctrl)

	store.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))

	r := newRunner(testConfig(), fetcher, store)
	status, err := r.Run(context.Background(), model.ModeDaily, []string{"AAPL", "MSFT"})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.NotNil(t, status)

	snap := status.Snapshot()
	assert.True(t, snap.Aborted)
	assert.Equal(t, []string{"Database connection failed"}, snap.Errors)
	assert.Empty(t, snap.Succeeded)
	assert.Empty(t, snap.Failed)
	assert.True(t, status.Finished())
}

func TestRunHealthCheckWarning(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := NewMockFetcher(ctrl)
	store := NewMockStore(ctrl)

	store.EXPECT().Ping(gomock.Any()).Return(nil)
	fetcher.EXPECT().HealthCheck(gomock.Any()).Return(errors.New("quota"))
	fetcher.EXPECT().Fetch(gomock.Any(), "AAPL", gomock.Any()).Return(okFetch(t, "AAPL", dailyPayload))
	store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(upsertOK)

	r := newRunner(testConfig(), fetcher, store)
	status, err := r.Run(context.Background(), model.ModeDaily, []string{"AAPL"})
	require.NoError(t, err)

	snap := status.Snapshot()
	assert.Equal(t, []string{"AAPL"}, snap.Succeeded)
	assert.Empty(t, snap.Errors)
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "quota")
}

func TestRunSkipAPICheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := NewMockFetcher(ctrl)
	store := NewMockStore(ctrl)

	store.EXPECT().Ping(gomock.Any()).Return(nil)
	fetcher.EXPECT().Fetch(gomock.Any(), "AAPL", gomock.Any()).Return(okFetch(t, "AAPL", dailyPayload))
	store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(upsertOK)

	cfg := testConfig()
	cfg.SkipAPICheck = true
	status, err := newRunner(cfg, fetcher, store).Run(context.Background(), model.ModeDaily, []string{"AAPL"})
	require.NoError(t, err)
	assert.Empty(t, status.Snapshot().Warnings)
}

func TestRunDefaultsToConfiguredSymbols(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := NewMockFetcher(ctrl)
	store := NewMockStore(ctrl)

	store.EXPECT().Ping(gomock.Any()).Return(nil)
	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(model.FetchResult{Kind: model.KindAPIQuota, ErrorMessage: "API limit reached: slow down"}).Times(2)

	cfg := testConfig()
	cfg.SkipAPICheck = true
	cfg.Symbols = []string{"MSFT", "msft", "TSLA", "WAYTOOLONGSYMBOL"}
	status, err := newRunner(cfg, fetcher, store).Run(context.Background(), model.ModeIntraday, nil)
	require.NoError(t, err)

	snap := status.Snapshot()
	assert.Equal(t, []string{"MSFT", "TSLA"}, snap.Symbols)
	assert.ElementsMatch(t, []string{"MSFT", "TSLA"}, snap.Failed)
	assert.Len(t, snap.Warnings, 1)
	assert.Zero(t, snap.SuccessRate())
}

func TestRunInvalidMode(t *testing.T) {
	ctrl := gomock.NewController(t)
	r := newRunner(testConfig(), NewMockFetcher(ctrl), NewMockStore(ctrl))
	status, err := r.Run(context.Background(), model.Mode("weekly"), []string{"AAPL"})
	assert.Error(t, err)
	assert.Nil(t, status)
}

func TestRunNormalizesMode(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := NewMockFetcher(ctrl)
	store := NewMockStore(ctrl)

	store.EXPECT().Ping(gomock.Any()).Return(nil)
	fetcher.EXPECT().
		Fetch(gomock.Any(), "AAPL", model.FetchRequest{Mode: model.ModeDaily, Interval: "60min", OutputSize: "compact"}).
		Return(okFetch(t, "AAPL", dailyPayload))
	store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(upsertOK)

	cfg := testConfig()
	cfg.SkipAPICheck = true
	status, err := newRunner(cfg, fetcher, store).Run(context.Background(), model.Mode(" Daily "), []string{"AAPL"})
	require.NoError(t, err)

	snap := status.Snapshot()
	assert.Equal(t, model.ModeDaily, snap.Mode)
	assert.Equal(t, []string{"AAPL"}, snap.Succeeded)
}

func TestRunRecoversPanic(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := NewMockFetcher(ctrl)
	store := NewMockStore(ctrl)

	store.EXPECT().Ping(gomock.Any()).Return(nil)
	fetcher.EXPECT().Fetch(gomock.Any(), "BOOM", gomock.Any()).DoAndReturn(
		func(context.Context, string, model.FetchRequest) model.FetchResult {
			panic("nil map")
		})
	fetcher.EXPECT().Fetch(gomock.Any(), "AAPL", gomock.Any()).Return(okFetch(t, "AAPL", dailyPayload))
	store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(upsertOK)

	cfg := testConfig()
	cfg.SkipAPICheck = true
	status, err := newRunner(cfg, fetcher, store).Run(context.Background(), model.ModeDaily, []string{"BOOM", "AAPL"})
	require.NoError(t, err)

	snap := status.Snapshot()
	assert.Equal(t, []string{"AAPL"}, snap.Succeeded)
	assert.Equal(t, []string{"BOOM"}, snap.Failed)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "BOOM: Unexpected error: nil map")
}

func TestProcessSymbolFailures(t *testing.T) {
	tests := []struct {
		name     string
		fetch    model.FetchResult
		upsert   *model.PersistenceResult
		wantKind model.ErrorKind
		wantMsg  string
	}{
		{
			name:     "fetch failure",
			fetch:    model.FetchResult{Kind: model.KindTransport, ErrorMessage: "Request failed: EOF"},
			wantKind: model.KindTransport,
			wantMsg:  "Request failed: EOF",
		},
		{
			name:     "no parseable rows",
			fetch:    model.FetchResult{Success: true, Payload: map[string]json.RawMessage{"Time Series (Daily)": json.RawMessage(`{"not-a-date": {"4. close": "1"}}`)}},
			wantKind: model.KindParse,
			wantMsg:  "Failed to create stock batch from API response",
		},
		{
			name:     "all rows filtered",
			fetch:    model.FetchResult{Success: true, Payload: map[string]json.RawMessage{"Time Series (Daily)": json.RawMessage(`{"2024-01-12": {"1. open": "0", "4. close": "0"}}`)}},
			wantKind: model.KindValidation,
			wantMsg:  "No valid data points after validation",
		},
		{
			name:     "store failure",
			fetch:    model.FetchResult{Success: true, Payload: map[string]json.RawMessage{"Time Series (Daily)": json.RawMessage(`{"2024-01-12": {"4. close": "10"}}`)}},
			upsert:   &model.PersistenceResult{ErrorMessage: "Failed to persist data: boom"},
			wantKind: model.KindPersistence,
			wantMsg:  "Failed to persist data: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			fetcher := NewMockFetcher(ctrl)
			store := NewMockStore(ctrl)

			fetcher.EXPECT().Fetch(gomock.Any(), "AAPL", gomock.Any()).Return(tt.fetch)
			if tt.upsert != nil {
				store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(*tt.upsert)
			}

			res := newRunner(testConfig(), fetcher, store).ProcessSymbol(context.Background(), model.ModeDaily, "AAPL")
			assert.False(t, res.Success)
			assert.Equal(t, "AAPL", res.Symbol)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantMsg, res.ErrorMessage)
		})
	}
}

func TestProcessSymbolFixtures(t *testing.T) {
	// The zero and malformed fixtures mirror real payload shapes.
	ctrl := gomock.NewController(t)
	fetcher := NewMockFetcher(ctrl)
	store := NewMockStore(ctrl)

	fetcher.EXPECT().Fetch(gomock.Any(), "ZERO", gomock.Any()).Return(okFetch(t, "ZERO", zeroPayload))
	fetcher.EXPECT().Fetch(gomock.Any(), "MALF", gomock.Any()).Return(okFetch(t, "MALF", malformedPayload))

	r := newRunner(testConfig(), fetcher, store)
	assert.Equal(t, model.KindValidation, r.ProcessSymbol(context.Background(), model.ModeDaily, "ZERO").Kind)
	assert.Equal(t, model.KindParse, r.ProcessSymbol(context.Background(), model.ModeDaily, "MALF").Kind)
}

// countingFetcher tracks how many fetches are in flight at once.
type countingFetcher struct {
	delay    time.Duration
	inFlight atomic.Int64
	peak     atomic.Int64
	onFetch  func(symbol string)

	mu    sync.Mutex
	order []string
}

func (f *countingFetcher) Fetch(_ context.Context, symbol string, _ model.FetchRequest) model.FetchResult {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.order = append(f.order, symbol)
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(symbol)
	}
	time.Sleep(f.delay)
	return model.FetchResult{Symbol: symbol, Kind: model.KindAPILogical, ErrorMessage: "no data"}
}

func (f *countingFetcher) HealthCheck(context.Context) error { return nil }

func TestRunBoundsConcurrency(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	store.EXPECT().Ping(gomock.Any()).Return(nil)

	fetcher := &countingFetcher{delay: 20 * time.Millisecond}
	cfg := testConfig()
	cfg.BatchSize = 4
	cfg.Workers = 2
	cfg.BatchPause = 10 * time.Millisecond

	symbols := []string{"A", "B", "C", "D", "E", "F", "G"}
	status, err := newRunner(cfg, fetcher, store).Run(context.Background(), model.ModeDaily, symbols)
	require.NoError(t, err)

	assert.LessOrEqual(t, fetcher.peak.Load(), int64(2))
	assert.ElementsMatch(t, symbols, status.Snapshot().Failed)

	// Groups run in sequence: nothing from the second group starts before
	// the first group is done.
	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.ElementsMatch(t, symbols[:4], fetcher.order[:4])
	assert.ElementsMatch(t, symbols[4:], fetcher.order[4:])
}

func TestRunCancelledBetweenGroups(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	store.EXPECT().Ping(gomock.Any()).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &countingFetcher{delay: 10 * time.Millisecond}
	fetcher.onFetch = func(symbol string) {
		if symbol == "A" {
			cancel()
		}
	}

	cfg := testConfig()
	cfg.BatchSize = 2
	cfg.Workers = 2
	status, err := newRunner(cfg, fetcher, store).Run(ctx, model.ModeDaily, []string{"A", "B", "C", "D"})
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	snap := status.Snapshot()
	assert.ElementsMatch(t, []string{"A", "B"}, snap.Failed, "dispatched symbols finish")
	assert.Contains(t, snap.Errors, "Run cancelled: 2 symbols not processed")
	assert.True(t, status.Finished())
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name    string
		symbols []string
		size    int
		want    [][]string
	}{
		{"empty", nil, 5, nil},
		{"exact", []string{"A", "B"}, 2, [][]string{{"A", "B"}}},
		{"remainder", []string{"A", "B", "C", "D", "E"}, 2, [][]string{{"A", "B"}, {"C", "D"}, {"E"}}},
		{"single group", []string{"A", "B", "C"}, 5, [][]string{{"A", "B", "C"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunk(tt.symbols, tt.size))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "compact", cfg.OutputSize)
	assert.Equal(t, "60min", cfg.Interval)
	assert.Equal(t, model.SourceAlphaVantage, cfg.Source)
}
