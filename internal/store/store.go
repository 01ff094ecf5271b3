package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

// PriceStore persists data points to the stock_data table.
type PriceStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger

	mu      sync.Mutex
	metrics Metrics
}

// Metrics tracks upsert activity since the store was created.
type Metrics struct {
	Upserts  int64
	Rows     int64
	Inserted int64
	Updated  int64
	Errors   int64
}

// New creates a PriceStore backed by pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *PriceStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceStore{db: db, logger: logger}
}

// Stats returns current metrics.
func (s *PriceStore) Stats() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Ping verifies the database is reachable.
func (s *PriceStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("no database pool")
	}
	return s.db.Ping(ctx)
}

const upsertSQL = `
	INSERT INTO stock_data (symbol, timestamp, open_price, high_price, low_price, close_price, volume)
	SELECT $1::varchar, t.ts, t.o::numeric, t.h::numeric, t.l::numeric, t.c::numeric, t.v
	FROM unnest($2::timestamptz[], $3::text[], $4::text[], $5::text[], $6::text[], $7::bigint[]) AS t(ts, o, h, l, c, v)
	ON CONFLICT (symbol, timestamp) DO UPDATE SET
		open_price  = EXCLUDED.open_price,
		high_price  = EXCLUDED.high_price,
		low_price   = EXCLUDED.low_price,
		close_price = EXCLUDED.close_price,
		volume      = EXCLUDED.volume,
		updated_at  = CURRENT_TIMESTAMP
	RETURNING (xmax = 0) AS inserted
`

// Upsert writes the batch in one statement inside a transaction: either all
// rows land or none do. Existing (symbol, timestamp) rows are overwritten.
func (s *PriceStore) Upsert(ctx context.Context, b model.Batch) model.PersistenceResult {
	start := time.Now()
	res := model.PersistenceResult{Symbol: b.Symbol}

	cols := buildColumns(b.Points)
	if cols.len() == 0 {
		res.Success = true
		res.Elapsed = time.Since(start)
		return res
	}

	var inserted, updated int
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, upsertSQL, b.Symbol, cols.ts, cols.open, cols.high, cols.low, cols.close, cols.volume)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var isInsert bool
			if err := rows.Scan(&isInsert); err != nil {
				return err
			}
			if isInsert {
				inserted++
			} else {
				updated++
			}
		}
		return rows.Err()
	})
	res.Elapsed = time.Since(start)

	s.mu.Lock()
	s.metrics.Upserts++
	if err != nil {
		s.metrics.Errors++
	} else {
		s.metrics.Rows += int64(cols.len())
		s.metrics.Inserted += int64(inserted)
		s.metrics.Updated += int64(updated)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("upsert failed", "symbol", b.Symbol, "rows", cols.len(), "error", err)
		res.Kind = model.KindPersistence
		res.ErrorMessage = fmt.Sprintf("Failed to persist data: %v", err)
		return res
	}

	s.logger.Debug("upserted rows",
		"symbol", b.Symbol,
		"rows", cols.len(),
		"inserted", inserted,
		"updated", updated,
		"duration", res.Elapsed,
	)

	res.Success = true
	res.Processed = cols.len()
	res.Inserted = inserted
	res.Updated = updated
	return res
}

// LatestTimestamp returns the most recent stored timestamp for symbol.
// ok is false when the symbol has no rows.
func (s *PriceStore) LatestTimestamp(ctx context.Context, symbol string) (time.Time, bool, error) {
	var ts *time.Time
	err := s.db.QueryRow(ctx, `SELECT MAX(timestamp) FROM stock_data WHERE symbol = $1`, symbol).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest timestamp %s: %w", symbol, err)
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}

// Count returns the number of rows for symbol, or all rows when symbol is
// empty.
func (s *PriceStore) Count(ctx context.Context, symbol string) (int64, error) {
	var n int64
	var err error
	if symbol == "" {
		err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM stock_data`).Scan(&n)
	} else {
		err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM stock_data WHERE symbol = $1`, symbol).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// SymbolSummaries aggregates stored rows per symbol.
func (s *PriceStore) SymbolSummaries(ctx context.Context) (map[string]model.SymbolSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT symbol, COUNT(*), MIN(timestamp), MAX(timestamp), AVG(close_price)::float8
		FROM stock_data
		GROUP BY symbol
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("symbol summaries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.SymbolSummary)
	for rows.Next() {
		var (
			symbol string
			sum    model.SymbolSummary
			mean   *float64
		)
		if err := rows.Scan(&symbol, &sum.Count, &sum.Earliest, &sum.Latest, &mean); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.MeanClose = null.FloatFromPtr(mean)
		out[symbol] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("symbol summaries: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes rows first ingested more than days ago. The market
// timestamp is not considered.
func (s *PriceStore) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, fmt.Errorf("retention days must be >= 1, got %d", days)
	}
	tag, err := s.db.Exec(ctx,
		`DELETE FROM stock_data WHERE created_at < NOW() - make_interval(days => $1)`,
		int32(days),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old rows: %w", err)
	}
	s.logger.Info("retention cleanup complete", "days", days, "deleted", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// columns holds the batch as parallel arrays for unnest.
type columns struct {
	ts     []time.Time
	open   []*string
	high   []*string
	low    []*string
	close  []*string
	volume []*int64
}

func (c columns) len() int { return len(c.ts) }

// buildColumns collapses duplicate timestamps (last point wins) and maps
// zero or absent prices to NULL.
func buildColumns(points []model.DataPoint) columns {
	index := make(map[int64]int, len(points))
	var c columns
	for _, p := range points {
		key := p.Timestamp.UnixNano()
		o, h, l, cl, v := priceText(p.Open), priceText(p.High), priceText(p.Low), priceText(p.Close), volumeValue(p.Volume)
		if i, ok := index[key]; ok {
			c.open[i], c.high[i], c.low[i], c.close[i], c.volume[i] = o, h, l, cl, v
			continue
		}
		index[key] = len(c.ts)
		c.ts = append(c.ts, p.Timestamp)
		c.open = append(c.open, o)
		c.high = append(c.high, h)
		c.low = append(c.low, l)
		c.close = append(c.close, cl)
		c.volume = append(c.volume, v)
	}
	return c
}

func priceText(p decimal.NullDecimal) *string {
	if model.StateOf(p) != model.PricePresent {
		return nil
	}
	s := p.Decimal.String()
	return &s
}

func volumeValue(v null.Int) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
