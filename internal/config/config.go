package config

import "time"

// Config is the root configuration for the pipeline.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Database DBConfig       `yaml:"database"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	Schedule ScheduleConfig `yaml:"schedule"`
	RunLog   RunLogConfig   `yaml:"runlog"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	Sentry   SentryConfig   `yaml:"sentry"`
}

// APIConfig holds Alpha Vantage settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`      // per attempt
	MaxRetries   int           `yaml:"max_retries"`  // retries after the first attempt
	RetryDelay   time.Duration `yaml:"retry_delay"`  // initial backoff
	MinInterval  time.Duration `yaml:"min_interval"` // spacing between calls
	HealthSymbol string        `yaml:"health_symbol"`
	OutputSize   string        `yaml:"output_size"` // compact or full
	Interval     string        `yaml:"interval"`    // intraday bar size

	// Set when max_retries or min_interval was given explicitly, so that
	// an explicit zero is kept instead of defaulted.
	maxRetriesSet  bool
	minIntervalSet bool
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`

	ConnectTimeout  time.Duration `yaml:"connect_timeout"` // bounds the connectivity check
	ApplicationName string        `yaml:"application_name"`
}

// PipelineConfig holds run orchestration settings.
type PipelineConfig struct {
	Symbols         []string      `yaml:"symbols"`
	IntradaySymbols []string      `yaml:"intraday_symbols"` // defaults to the first IntradayCount symbols
	IntradayCount   int           `yaml:"intraday_count"`
	BatchSize       int           `yaml:"batch_size"`
	Workers         int           `yaml:"workers"`
	BatchPause      time.Duration `yaml:"batch_pause"`
	SkipAPICheck    bool          `yaml:"skip_api_check"`
	RetentionDays   int           `yaml:"retention_days"`
}

// CacheConfig holds the Redis payload cache settings.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// ScheduleConfig holds cron specs (with seconds field) for serve mode.
// An empty spec disables the job.
type ScheduleConfig struct {
	Daily    string `yaml:"daily"`
	Intraday string `yaml:"intraday"`
	Cleanup  string `yaml:"cleanup"`
}

// RunLogConfig holds run history settings. Empty path disables recording.
type RunLogConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	Keep       int    `yaml:"keep"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SentryConfig holds error reporting settings. Empty DSN disables reporting.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// IntradayUniverse returns the symbols used for intraday runs.
func (p PipelineConfig) IntradayUniverse() []string {
	if len(p.IntradaySymbols) > 0 {
		return p.IntradaySymbols
	}
	n := p.IntradayCount
	if n <= 0 || n > len(p.Symbols) {
		n = len(p.Symbols)
	}
	return p.Symbols[:n]
}
