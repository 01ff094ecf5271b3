package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

// MaxSymbolLen is the longest symbol the store accepts (VARCHAR(10)).
const MaxSymbolLen = 10

// SourceAlphaVantage tags batches fetched from Alpha Vantage.
const SourceAlphaVantage = "alpha_vantage"

var (
	ErrEmptySymbol    = errors.New("symbol is empty")
	ErrSymbolTooLong  = errors.New("symbol exceeds 10 characters")
	ErrNegativePrice  = errors.New("price is negative")
	ErrNegativeVolume = errors.New("volume is negative")
	ErrInvertedRange  = errors.New("high is below low")
	ErrSymbolMismatch = errors.New("data point symbol does not match batch symbol")
)

// -----------------------------------------------------------------------------
// Request Types
// -----------------------------------------------------------------------------

// Mode selects the time-series endpoint.
type Mode string

const (
	ModeDaily    Mode = "daily"
	ModeIntraday Mode = "intraday"
)

// ParseMode converts a user-supplied string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDaily:
		return ModeDaily, nil
	case ModeIntraday:
		return ModeIntraday, nil
	}
	return "", fmt.Errorf("unsupported data type: %q", s)
}

// FetchRequest describes one time-series request.
type FetchRequest struct {
	Mode       Mode
	Interval   string // 1min, 5min, 15min, 30min, 60min (intraday only)
	OutputSize string // compact or full
}

// NormalizeSymbol trims and uppercases a symbol and checks its length.
func NormalizeSymbol(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", ErrEmptySymbol
	}
	if len(s) > MaxSymbolLen {
		return "", fmt.Errorf("%w: %q", ErrSymbolTooLong, s)
	}
	return s, nil
}

// NormalizeSymbols normalizes a symbol list, dropping blanks and duplicates
// while preserving first-seen order. Invalid symbols are returned separately.
func NormalizeSymbols(in []string) (valid []string, invalid []string) {
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		s, err := NormalizeSymbol(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		valid = append(valid, s)
	}
	return valid, invalid
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// PriceState classifies an optional price.
type PriceState int

const (
	PriceAbsent PriceState = iota
	PriceZero
	PricePresent
)

// StateOf reports whether a price is absent, exactly zero, or non-zero.
func StateOf(p decimal.NullDecimal) PriceState {
	switch {
	case !p.Valid:
		return PriceAbsent
	case p.Decimal.IsZero():
		return PriceZero
	default:
		return PricePresent
	}
}

// DataPoint is one OHLCV observation for a symbol at an instant.
// Construct with NewDataPoint; fields are not modified afterwards.
type DataPoint struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.NullDecimal
	High      decimal.NullDecimal
	Low       decimal.NullDecimal
	Close     decimal.NullDecimal
	Volume    null.Int
}

// NewDataPoint normalizes the symbol and enforces the data point invariants.
func NewDataPoint(symbol string, ts time.Time, open, high, low, closePrice decimal.NullDecimal, volume null.Int) (DataPoint, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return DataPoint{}, err
	}
	for name, p := range map[string]decimal.NullDecimal{"open": open, "high": high, "low": low, "close": closePrice} {
		if p.Valid && p.Decimal.IsNegative() {
			return DataPoint{}, fmt.Errorf("%w: %s=%s", ErrNegativePrice, name, p.Decimal)
		}
	}
	if volume.Valid && volume.Int64 < 0 {
		return DataPoint{}, fmt.Errorf("%w: %d", ErrNegativeVolume, volume.Int64)
	}
	if high.Valid && low.Valid && high.Decimal.LessThan(low.Decimal) {
		return DataPoint{}, fmt.Errorf("%w: high=%s low=%s", ErrInvertedRange, high.Decimal, low.Decimal)
	}
	return DataPoint{
		Symbol:    sym,
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

// Prices returns open, high, low and close in that order.
func (p DataPoint) Prices() [4]decimal.NullDecimal {
	return [4]decimal.NullDecimal{p.Open, p.High, p.Low, p.Close}
}

// Batch is the set of data points fetched for one symbol in one request.
type Batch struct {
	Symbol    string
	Points    []DataPoint
	FetchedAt time.Time
	Source    string
}

// NewBatch builds a batch, rejecting points for a different symbol.
func NewBatch(symbol string, points []DataPoint, fetchedAt time.Time, source string) (Batch, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Batch{}, err
	}
	for _, p := range points {
		if p.Symbol != sym {
			return Batch{}, fmt.Errorf("%w: %s in %s batch", ErrSymbolMismatch, p.Symbol, sym)
		}
	}
	return Batch{Symbol: sym, Points: points, FetchedAt: fetchedAt, Source: source}, nil
}

// Len returns the number of points in the batch.
func (b Batch) Len() int { return len(b.Points) }

// DateRange returns the earliest and latest timestamps in the batch.
// ok is false for an empty batch.
func (b Batch) DateRange() (earliest, latest time.Time, ok bool) {
	if len(b.Points) == 0 {
		return time.Time{}, time.Time{}, false
	}
	earliest, latest = b.Points[0].Timestamp, b.Points[0].Timestamp
	for _, p := range b.Points[1:] {
		if p.Timestamp.Before(earliest) {
			earliest = p.Timestamp
		}
		if p.Timestamp.After(latest) {
			latest = p.Timestamp
		}
	}
	return earliest, latest, true
}

// -----------------------------------------------------------------------------
// Result Types
// -----------------------------------------------------------------------------

// FetchResult is the outcome of one API request for one symbol.
type FetchResult struct {
	Success      bool
	Symbol       string
	Payload      map[string]json.RawMessage // raw decoded payload on success
	ErrorMessage string
	Kind         ErrorKind
	RespondedAt  time.Time
	Cached       bool
}

// PersistenceResult is the outcome of processing one symbol end to end.
type PersistenceResult struct {
	Success      bool
	Symbol       string
	Processed    int
	Inserted     int
	Updated      int
	ErrorMessage string
	Kind         ErrorKind
	Elapsed      time.Duration
}

// SymbolSummary aggregates stored rows for one symbol.
type SymbolSummary struct {
	Count     int64
	Earliest  time.Time
	Latest    time.Time
	MeanClose null.Float
}
