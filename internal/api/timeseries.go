package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

// PayloadCache stores raw successful payloads keyed by request.
// Implementations must be safe for concurrent use.
type PayloadCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Fetch requests one time series for symbol. Failures are reported in the
// result, never as a panic or error return.
func (c *Client) Fetch(ctx context.Context, symbol string, req model.FetchRequest) model.FetchResult {
	res := model.FetchResult{Symbol: symbol}

	if req.Mode != model.ModeDaily && req.Mode != model.ModeIntraday {
		return c.fail(res, model.KindAPILogical, fmt.Sprintf("Unsupported data type: %s", req.Mode))
	}

	query := c.query(symbol, req)
	key := CacheKey(query)

	if c.cache != nil {
		body, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("payload cache read failed", "symbol", symbol, "error", err)
		} else if ok {
			var payload map[string]json.RawMessage
			if err := json.Unmarshal(body, &payload); err == nil {
				res.Cached = true
				return c.classify(res, payload, req.Mode)
			}
		}
	}

	if _, err := c.gate.Wait(ctx); err != nil {
		return c.fail(res, model.KindTransport, fmt.Sprintf("Request failed: %v", err))
	}

	body, err := c.get(ctx, query)
	res.RespondedAt = c.now()
	if err != nil {
		return c.fail(res, model.KindTransport, fmt.Sprintf("Request failed: %v", err))
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.fail(res, model.KindTransport, fmt.Sprintf("Invalid JSON response: %v", err))
	}

	res = c.classify(res, payload, req.Mode)
	if res.Success && c.cache != nil {
		if err := c.cache.Set(ctx, key, body, c.cacheTTL); err != nil {
			c.logger.Warn("payload cache write failed", "symbol", symbol, "error", err)
		}
	}
	return res
}

// FetchDaily requests the daily series for symbol.
func (c *Client) FetchDaily(ctx context.Context, symbol, outputSize string) model.FetchResult {
	return c.Fetch(ctx, symbol, model.FetchRequest{Mode: model.ModeDaily, OutputSize: outputSize})
}

// FetchIntraday requests the intraday series for symbol.
func (c *Client) FetchIntraday(ctx context.Context, symbol, interval, outputSize string) model.FetchResult {
	return c.Fetch(ctx, symbol, model.FetchRequest{Mode: model.ModeIntraday, Interval: interval, OutputSize: outputSize})
}

// HealthCheck fetches a small daily series for the health symbol.
func (c *Client) HealthCheck(ctx context.Context) error {
	res := c.FetchDaily(ctx, c.healthSymbol, "compact")
	if !res.Success {
		return fmt.Errorf("api health check (%s): %s", c.healthSymbol, res.ErrorMessage)
	}
	return nil
}

// classify maps a decoded payload to a fetch outcome.
func (c *Client) classify(res model.FetchResult, payload map[string]json.RawMessage, mode model.Mode) model.FetchResult {
	if msg, ok := payloadString(payload, keyErrorMessage); ok {
		return c.fail(res, model.KindAPILogical, msg)
	}
	if note, ok := payloadString(payload, keyNote); ok {
		return c.fail(res, model.KindAPIQuota, "API limit reached: "+note)
	}
	if _, ok := SeriesKey(payload, mode); !ok {
		if info, ok := payloadString(payload, keyInformation); ok {
			return c.fail(res, model.KindAPIQuota, "API limit reached: "+info)
		}
		return c.fail(res, model.KindAPILogical, "No time series data in response")
	}

	res.Success = true
	res.Payload = payload
	res.Kind = model.KindNone
	return res
}

func (c *Client) fail(res model.FetchResult, kind model.ErrorKind, msg string) model.FetchResult {
	c.logger.Warn("fetch failed", "symbol", res.Symbol, "kind", kind, "error", msg)
	res.Success = false
	res.Kind = kind
	res.ErrorMessage = msg
	res.Payload = nil
	return res
}

func (c *Client) query(symbol string, req model.FetchRequest) url.Values {
	q := url.Values{}
	q.Set("symbol", symbol)
	outputSize := req.OutputSize
	if outputSize == "" {
		outputSize = "compact"
	}
	q.Set("outputsize", outputSize)
	if req.Mode == model.ModeIntraday {
		interval := req.Interval
		if interval == "" {
			interval = "60min"
		}
		q.Set("function", "TIME_SERIES_INTRADAY")
		q.Set("interval", interval)
	} else {
		q.Set("function", "TIME_SERIES_DAILY")
	}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	return q
}

// CacheKey identifies a request without its API key.
func CacheKey(q url.Values) string {
	parts := []string{q.Get("function"), q.Get("symbol")}
	if iv := q.Get("interval"); iv != "" {
		parts = append(parts, iv)
	}
	parts = append(parts, q.Get("outputsize"))
	return strings.Join(parts, ":")
}
