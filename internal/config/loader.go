package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expands environment variables and applies
// environment overrides. An empty path loads from the environment alone.
//
// A .env file in the working directory is read first if present; variables
// already set in the process environment win.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		// Expand ${VAR} environment variables
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}

		var present zeroableFields
		if err := yaml.Unmarshal([]byte(expanded), &present); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
		cfg.API.maxRetriesSet = present.API.MaxRetries != nil
		cfg.API.minIntervalSet = present.API.MinInterval != nil
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// zeroableFields detects keys whose zero value is meaningful.
type zeroableFields struct {
	API struct {
		MaxRetries  *int           `yaml:"max_retries"`
		MinInterval *time.Duration `yaml:"min_interval"`
	} `yaml:"api"`
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads the given env files (default ".env"). Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// applyEnv overrides file values with the deployment environment variables.
func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	// Bare integers are seconds, otherwise a Go duration string.
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := parseSeconds(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("POSTGRES_HOST", &c.Database.Host)
	num("POSTGRES_PORT", &c.Database.Port)
	str("POSTGRES_DB", &c.Database.Name)
	str("POSTGRES_USER", &c.Database.User)
	str("POSTGRES_PASSWORD", &c.Database.Password)

	str("ALPHA_VANTAGE_API_KEY", &c.API.APIKey)
	dur("API_TIMEOUT", &c.API.Timeout)
	if v, ok := os.LookupEnv("API_RETRY_ATTEMPTS"); ok && v != "" {
		num("API_RETRY_ATTEMPTS", &c.API.MaxRetries)
		c.API.maxRetriesSet = true
	}
	dur("API_RETRY_DELAY", &c.API.RetryDelay)

	if v, ok := os.LookupEnv("STOCK_SYMBOLS"); ok && strings.TrimSpace(v) != "" {
		c.Pipeline.Symbols = strings.Split(v, ",")
	}
	num("BATCH_SIZE", &c.Pipeline.BatchSize)
	num("MAX_WORKERS", &c.Pipeline.Workers)

	if v, ok := os.LookupEnv("REDIS_ADDR"); ok && v != "" {
		c.Cache.RedisAddr = v
		c.Cache.Enabled = true
	}
	str("SENTRY_DSN", &c.Sentry.DSN)
	str("LOG_LEVEL", &c.Log.Level)

	return errors.Join(errs...)
}

func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
