package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "time/tzdata" // Meta Data names zones such as US/Eastern

	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

const (
	dailyLayout    = "2006-01-02"
	intradayLayout = "2006-01-02 15:04:05"
)

// DefaultTimeZone is assumed when the payload does not name one.
const DefaultTimeZone = "US/Eastern"

// ParseTimeSeries converts a successful payload into data points sorted by
// timestamp. Malformed rows are skipped and counted; they never fail the
// whole parse.
func ParseTimeSeries(payload map[string]json.RawMessage, symbol string, mode model.Mode, logger *slog.Logger) ([]model.DataPoint, int) {
	if logger == nil {
		logger = slog.Default()
	}

	key, ok := SeriesKey(payload, mode)
	if !ok {
		return nil, 0
	}

	var rows map[string]json.RawMessage
	if err := json.Unmarshal(payload[key], &rows); err != nil {
		logger.Warn("undecodable time series", "symbol", symbol, "key", key, "error", err)
		return nil, 0
	}

	loc := payloadLocation(payload, logger)
	layout := dailyLayout
	if mode == model.ModeIntraday {
		layout = intradayLayout
	}

	points := make([]model.DataPoint, 0, len(rows))
	skipped := 0
	for stamp, raw := range rows {
		row, err := decodeRow(raw)
		if err != nil {
			skipped++
			logger.Warn("skipping malformed row", "symbol", symbol, "timestamp", stamp, "error", err)
			continue
		}
		p, err := parseRow(symbol, stamp, row, layout, loc)
		if err != nil {
			skipped++
			logger.Warn("skipping malformed row", "symbol", symbol, "timestamp", stamp, "error", err)
			continue
		}
		points = append(points, p)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	return points, skipped
}

func parseRow(symbol, stamp string, row APIRow, layout string, loc *time.Location) (model.DataPoint, error) {
	ts, err := time.ParseInLocation(layout, strings.TrimSpace(stamp), loc)
	if err != nil {
		return model.DataPoint{}, fmt.Errorf("parse timestamp: %w", err)
	}

	var prices [4]decimal.NullDecimal
	for i, field := range []string{fieldOpen, fieldHigh, fieldLow, fieldClose} {
		prices[i], err = ParsePrice(row[field])
		if err != nil {
			return model.DataPoint{}, fmt.Errorf("%s: %w", field, err)
		}
	}

	volume, err := ParseVolume(row[fieldVolume])
	if err != nil {
		return model.DataPoint{}, fmt.Errorf("%s: %w", fieldVolume, err)
	}

	return model.NewDataPoint(symbol, ts, prices[0], prices[1], prices[2], prices[3], volume)
}

// ParsePrice converts a price string. Empty input is absent; "0" is a
// present zero.
func ParsePrice(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid price %q", s)
	}
	return decimal.NewNullDecimal(d), nil
}

// ParseVolume converts a volume string. Empty input is absent.
func ParseVolume(s string) (null.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return null.Int{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.Equal(d.Truncate(0)) {
		return null.Int{}, fmt.Errorf("invalid volume %q", s)
	}
	return null.IntFrom(d.IntPart()), nil
}

func payloadLocation(payload map[string]json.RawMessage, logger *slog.Logger) *time.Location {
	name := DefaultTimeZone
	if raw, ok := payload[keyMetaData]; ok {
		var meta APIMetaData
		if err := json.Unmarshal(raw, &meta); err == nil {
			if tz, ok := meta.TimeZone(); ok {
				name = tz
			}
		}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown time zone, using UTC", "zone", name, "error", err)
		return time.UTC
	}
	return loc
}
