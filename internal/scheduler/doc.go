// Package scheduler runs pipeline jobs on cron schedules.
//
// Jobs:
//   - daily: full universe, daily series
//   - intraday: priority subset, intraday series
//   - cleanup: data quality check, then retention cleanup
//
// An activation is skipped while the previous run of the same job is still
// going. Panics in jobs are recovered and logged.
package scheduler
