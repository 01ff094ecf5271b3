package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

// Top-level payload keys.
const (
	keyErrorMessage = "Error Message"
	keyNote         = "Note"
	keyInformation  = "Information"
	keyMetaData     = "Meta Data"
	keyDailySeries  = "Time Series (Daily)"
	seriesPrefix    = "Time Series"
)

// Row field names inside a series entry.
const (
	fieldOpen   = "1. open"
	fieldHigh   = "2. high"
	fieldLow    = "3. low"
	fieldClose  = "4. close"
	fieldVolume = "5. volume"
)

// APIRow is one raw series entry. Values are kept as strings so that empty
// fields stay distinguishable from zero.
type APIRow map[string]string

// decodeRow decodes one series entry. Fields may be strings or bare JSON
// numbers; null is treated as empty.
func decodeRow(raw json.RawMessage) (APIRow, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	if fields == nil {
		return nil, errors.New("decode row: not an object")
	}

	row := make(APIRow, len(fields))
	for name, v := range fields {
		v = bytes.TrimSpace(v)
		switch {
		case bytes.Equal(v, []byte("null")):
			row[name] = ""
		case len(v) > 0 && v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			row[name] = s
		default:
			var n json.Number
			if err := json.Unmarshal(v, &n); err != nil {
				return nil, fmt.Errorf("%s: unsupported value %s", name, v)
			}
			row[name] = n.String()
		}
	}
	return row, nil
}

// APIMetaData is the "Meta Data" block.
type APIMetaData map[string]string

// TimeZone returns the value of the entry ending in "Time Zone".
func (m APIMetaData) TimeZone() (string, bool) {
	for k, v := range m {
		if strings.HasSuffix(k, "Time Zone") && v != "" {
			return v, true
		}
	}
	return "", false
}

// SeriesKey finds the series key for mode: an exact match for daily, the
// first "Time Series" prefix for intraday.
func SeriesKey(payload map[string]json.RawMessage, mode model.Mode) (string, bool) {
	if mode == model.ModeDaily {
		_, ok := payload[keyDailySeries]
		return keyDailySeries, ok
	}
	for k := range payload {
		if strings.HasPrefix(k, seriesPrefix) {
			return k, true
		}
	}
	return "", false
}

func payloadString(payload map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return strings.TrimSpace(string(raw)), true
	}
	return s, true
}
