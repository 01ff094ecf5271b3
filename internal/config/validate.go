package config

import (
	"errors"
	"fmt"
)

var validIntervals = map[string]bool{"1min": true, "5min": true, "15min": true, "30min": true, "60min": true}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.APIKey == "" {
		return errors.New("api.api_key is required (or ALPHA_VANTAGE_API_KEY)")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be > 0")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.MinInterval < 0 {
		return errors.New("api.min_interval must be >= 0")
	}
	if c.API.OutputSize != "compact" && c.API.OutputSize != "full" {
		return fmt.Errorf("api.output_size must be compact or full, got %q", c.API.OutputSize)
	}
	if !validIntervals[c.API.Interval] {
		return fmt.Errorf("api.interval must be one of 1min, 5min, 15min, 30min, 60min, got %q", c.API.Interval)
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if len(c.Pipeline.Symbols) == 0 {
		return errors.New("pipeline.symbols must not be empty")
	}
	for _, s := range append(append([]string(nil), c.Pipeline.Symbols...), c.Pipeline.IntradaySymbols...) {
		if len(s) > 10 {
			return fmt.Errorf("pipeline.symbols: %q exceeds 10 characters", s)
		}
	}
	if c.Pipeline.BatchSize < 1 {
		return errors.New("pipeline.batch_size must be >= 1")
	}
	if c.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be >= 1")
	}
	if c.Pipeline.BatchPause < 0 {
		return errors.New("pipeline.batch_pause must be >= 0")
	}
	if c.Pipeline.RetentionDays < 1 {
		return errors.New("pipeline.retention_days must be >= 1")
	}

	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr is required when cache.enabled is set")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Port < 1 || db.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, db.Port)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.ConnectTimeout < 0 {
		return fmt.Errorf("%s.connect_timeout must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
