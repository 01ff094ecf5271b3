package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL        = "https://www.alphavantage.co/query"
	DefaultAPITimeout     = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 5 * time.Second
	DefaultMinInterval    = 12 * time.Second
	DefaultHealthSymbol   = "AAPL"
	DefaultOutputSize     = "compact"
	DefaultInterval       = "60min"
	DefaultDBHost         = "localhost"
	DefaultDBPort         = 5432
	DefaultDBName         = "stock_data"
	DefaultDBUser         = "postgres"
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 1
	DefaultConnectTimeout = 10 * time.Second
	DefaultAppName        = "stock-data-pipeline"
	DefaultBatchSize      = 5
	DefaultWorkers        = 3
	DefaultBatchPause     = 2 * time.Second
	DefaultIntradayCount  = 3
	DefaultRetentionDays  = 365
	DefaultCacheTTL       = 15 * time.Minute
	DefaultDailyCron      = "0 0 * * * *"
	DefaultIntradayCron   = "0 30 * * * *"
	DefaultCleanupCron    = "0 30 3 * * *"
	DefaultRunLogKeep     = 500
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// DefaultSymbols is the symbol universe when none is configured.
var DefaultSymbols = []string{"AAPL", "GOOGL", "MSFT", "TSLA", "AMZN"}

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 && !c.API.maxRetriesSet {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryDelay == 0 {
		c.API.RetryDelay = DefaultRetryDelay
	}
	if c.API.MinInterval == 0 && !c.API.minIntervalSet {
		c.API.MinInterval = DefaultMinInterval
	}
	if c.API.HealthSymbol == "" {
		c.API.HealthSymbol = DefaultHealthSymbol
	}
	if c.API.OutputSize == "" {
		c.API.OutputSize = DefaultOutputSize
	}
	if c.API.Interval == "" {
		c.API.Interval = DefaultInterval
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Pipeline defaults
	if len(c.Pipeline.Symbols) == 0 {
		c.Pipeline.Symbols = append([]string(nil), DefaultSymbols...)
	}
	c.Pipeline.Symbols = normalizeList(c.Pipeline.Symbols)
	c.Pipeline.IntradaySymbols = normalizeList(c.Pipeline.IntradaySymbols)
	if c.Pipeline.IntradayCount == 0 {
		c.Pipeline.IntradayCount = DefaultIntradayCount
	}
	if c.Pipeline.BatchSize == 0 {
		c.Pipeline.BatchSize = DefaultBatchSize
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = DefaultWorkers
	}
	if c.Pipeline.BatchPause == 0 {
		c.Pipeline.BatchPause = DefaultBatchPause
	}
	if c.Pipeline.RetentionDays == 0 {
		c.Pipeline.RetentionDays = DefaultRetentionDays
	}

	// Cache defaults
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	// Schedule defaults
	if c.Schedule.Daily == "" {
		c.Schedule.Daily = DefaultDailyCron
	}
	if c.Schedule.Intraday == "" {
		c.Schedule.Intraday = DefaultIntradayCron
	}
	if c.Schedule.Cleanup == "" {
		c.Schedule.Cleanup = DefaultCleanupCron
	}

	// Run log defaults
	if c.RunLog.Keep == 0 {
		c.RunLog.Keep = DefaultRunLogKeep
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Host == "" {
		db.Host = DefaultDBHost
	}
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.Name == "" {
		db.Name = DefaultDBName
	}
	if db.User == "" {
		db.User = DefaultDBUser
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.ConnectTimeout == 0 {
		db.ConnectTimeout = DefaultConnectTimeout
	}
	if db.ApplicationName == "" {
		db.ApplicationName = DefaultAppName
	}
}
