package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/version"
)

// DefaultBaseURL is the Alpha Vantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// DefaultMinInterval keeps the free tier (5 calls/minute) happy.
const DefaultMinInterval = 12 * time.Second

// Client provides rate-limited access to the Alpha Vantage time-series API.
//
// A Client is safe for concurrent use. All goroutines sharing a Client share
// its rate gate.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
	minInterval  time.Duration

	gate         *RateGate
	cache        PayloadCache
	cacheTTL     time.Duration
	healthSymbol string
	userAgent    string
	now          func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new Alpha Vantage client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{},
		logger:       slog.Default(),
		timeout:      30 * time.Second,
		maxRetries:   3,
		retryBackoff: 5 * time.Second,
		minInterval:  DefaultMinInterval,
		cacheTTL:     15 * time.Minute,
		healthSymbol: "AAPL",
		userAgent:    version.UserAgent(),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Retries sit below the client so every caller gets them.
	hc := *c.httpClient
	hc.Transport = newRetryTransport(hc.Transport, c.maxRetries, c.retryBackoff, c.timeout, c.logger)
	c.httpClient = &hc

	c.gate = NewRateGate(c.minInterval, c.logger)

	return c
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetries sets the retry count and the initial backoff delay.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithMinInterval sets the minimum spacing between outbound calls.
// Zero disables rate limiting.
func WithMinInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.minInterval = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets the base HTTP client. Its transport is wrapped with
// the retry middleware; the caller's client is not modified.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCache enables payload caching for successful responses.
func WithCache(cache PayloadCache, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithHealthSymbol sets the symbol fetched by HealthCheck.
func WithHealthSymbol(symbol string) ClientOption {
	return func(c *Client) {
		if symbol != "" {
			c.healthSymbol = symbol
		}
	}
}

// WithClock overrides the time source used to stamp responses.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}
