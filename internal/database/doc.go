// Package database provides connection pool management and DDL for PostgreSQL.
//
// Tables:
//   - stock_data: one row per (symbol, timestamp), OHLC prices as NUMERIC(10,4),
//     volume as BIGINT, created_at marking first ingestion and updated_at the
//     last upsert.
package database
