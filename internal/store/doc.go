// Package store implements the price persistence layer on PostgreSQL.
//
// Operations:
//   - Upsert: one set-based INSERT ... ON CONFLICT (symbol, timestamp) DO UPDATE
//     per batch, in a transaction
//   - LatestTimestamp, Count, SymbolSummaries: read-side queries
//   - DeleteOlderThan: retention by ingestion time (created_at)
//
// Zero prices are stored as NULL, the same as absent prices.
package store
