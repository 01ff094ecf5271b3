// Package pipeline orchestrates fetch, parse, validate and upsert runs.
//
// A run checks store connectivity, then processes symbols in sequential
// groups with a bounded worker pool per group:
//
//	Ping -> HealthCheck -> [group 1] -> pause -> [group 2] -> ... -> summary
//
// Results are folded into a model.RunStatus as each symbol completes.
// Only an unreachable store fails the run as a whole.
package pipeline
