package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus aggregates the outcome of one pipeline run.
//
// Results may be recorded from several goroutines; Record is safe for
// concurrent use and its outcome does not depend on call order. Once Finish
// has been called the status is frozen.
type RunStatus struct {
	mu sync.Mutex

	ID           uuid.UUID
	Mode         Mode
	StartedAt    time.Time
	EndedAt      time.Time
	Symbols      []string
	Succeeded    []string
	Failed       []string
	TotalRecords int
	Inserted     int
	Updated      int
	Errors       []string
	Warnings     []string
	Aborted      bool
}

// NewRunStatus starts a run over symbols.
func NewRunStatus(mode Mode, symbols []string, startedAt time.Time) *RunStatus {
	return &RunStatus{
		ID:        uuid.New(),
		Mode:      mode,
		StartedAt: startedAt,
		Symbols:   append([]string(nil), symbols...),
	}
}

// Record folds one symbol result into the status.
func (s *RunStatus) Record(res PersistenceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.EndedAt.IsZero() {
		return
	}
	if res.Success {
		s.Succeeded = append(s.Succeeded, res.Symbol)
		s.TotalRecords += res.Processed
		s.Inserted += res.Inserted
		s.Updated += res.Updated
		return
	}
	s.Failed = append(s.Failed, res.Symbol)
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", res.Symbol, res.ErrorMessage))
}

// AddError appends a run-level error line.
func (s *RunStatus) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt.IsZero() {
		s.Errors = append(s.Errors, msg)
	}
}

// AddWarning appends a non-fatal warning.
func (s *RunStatus) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt.IsZero() {
		s.Warnings = append(s.Warnings, msg)
	}
}

// Abort marks the run as stopped before any symbol work, replacing errors.
func (s *RunStatus) Abort(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt.IsZero() {
		s.Aborted = true
		s.Errors = []string{msg}
	}
}

// Finish stamps the end instant. Subsequent calls are ignored.
func (s *RunStatus) Finish(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt.IsZero() {
		s.EndedAt = at
	}
}

// Finished reports whether Finish has been called.
func (s *RunStatus) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.EndedAt.IsZero()
}

// SuccessRate is the percentage of symbols that succeeded (0-100).
func (s *RunStatus) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Symbols) == 0 {
		return 0
	}
	return float64(len(s.Succeeded)) / float64(len(s.Symbols)) * 100
}

// Duration is EndedAt - StartedAt, or zero while running.
func (s *RunStatus) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Snapshot returns a copy safe to read without holding the lock.
func (s *RunStatus) Snapshot() RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RunSnapshot{
		ID:           s.ID,
		Mode:         s.Mode,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
		Symbols:      append([]string(nil), s.Symbols...),
		Succeeded:    append([]string(nil), s.Succeeded...),
		Failed:       append([]string(nil), s.Failed...),
		TotalRecords: s.TotalRecords,
		Inserted:     s.Inserted,
		Updated:      s.Updated,
		Errors:       append([]string(nil), s.Errors...),
		Warnings:     append([]string(nil), s.Warnings...),
		Aborted:      s.Aborted,
	}
}

// RunSnapshot is an immutable copy of a RunStatus.
type RunSnapshot struct {
	ID           uuid.UUID `json:"run_id"`
	Mode         Mode      `json:"mode"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	Symbols      []string  `json:"symbols"`
	Succeeded    []string  `json:"succeeded"`
	Failed       []string  `json:"failed"`
	TotalRecords int       `json:"total_records"`
	Inserted     int       `json:"inserted"`
	Updated      int       `json:"updated"`
	Errors       []string  `json:"errors"`
	Warnings     []string  `json:"warnings,omitempty"`
	Aborted      bool      `json:"aborted"`
}

// SuccessRate is the percentage of symbols that succeeded (0-100).
func (r RunSnapshot) SuccessRate() float64 {
	if len(r.Symbols) == 0 {
		return 0
	}
	return float64(len(r.Succeeded)) / float64(len(r.Symbols)) * 100
}

// Duration is EndedAt - StartedAt, or zero if the run never finished.
func (r RunSnapshot) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
