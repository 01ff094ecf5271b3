// Package model defines shared data types used across the stock data pipeline.
//
// The persisted shape is the stock_data table created by internal/database.
//
// Conventions:
//   - Symbols: trimmed, uppercase, 1-10 characters
//   - Prices: decimal.NullDecimal (absent is distinct from zero)
//   - Volume: null.Int
//   - Timestamps: time.Time, absolute instants
//   - Run IDs: uuid.UUID
package model
