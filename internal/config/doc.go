// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// The deployment variables (POSTGRES_*, ALPHA_VANTAGE_API_KEY, API_TIMEOUT,
// API_RETRY_ATTEMPTS, API_RETRY_DELAY, STOCK_SYMBOLS, BATCH_SIZE, MAX_WORKERS,
// REDIS_ADDR, SENTRY_DSN, LOG_LEVEL) override file values, and an optional
// .env file is loaded first.
package config
