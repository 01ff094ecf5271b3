// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Run counts and durations by mode and outcome
//   - Per-symbol success/failure counts and failure kinds
//   - Rows upserted and upsert latency
//   - Fetch latency (includes rate limit waits and retries)
//   - Rows removed by retention cleanup
package metrics
