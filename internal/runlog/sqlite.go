package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nagasaiveerla/stock-data-pipeline/internal/model"
)

// DefaultKeep is the number of runs retained when keep is not positive.
const DefaultKeep = 500

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	keep   int
	logger *slog.Logger
	mu     sync.Mutex
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
// Only the newest keep runs are retained.
func OpenSQLite(path string, keep int, logger *slog.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if keep <= 0 {
		keep = DefaultKeep
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, keep: keep, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("run log opened", "path", path, "keep", keep)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id        TEXT NOT NULL UNIQUE,
			mode          TEXT NOT NULL,
			started_at    INTEGER NOT NULL,
			ended_at      INTEGER NOT NULL,
			symbols       TEXT NOT NULL,
			succeeded     TEXT NOT NULL,
			failed        TEXT NOT NULL,
			total_records INTEGER NOT NULL,
			inserted      INTEGER NOT NULL,
			updated       INTEGER NOT NULL,
			success_rate  REAL NOT NULL,
			errors        TEXT NOT NULL,
			warnings      TEXT NOT NULL,
			aborted       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Record stores a finished run and trims history beyond the keep limit.
func (r *SQLiteRecorder) Record(ctx context.Context, run model.RunSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cols, err := encodeLists(run.Symbols, run.Succeeded, run.Failed, run.Errors, run.Warnings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO pipeline_runs
		(run_id, mode, started_at, ended_at, symbols, succeeded, failed,
		 total_records, inserted, updated, success_rate, errors, warnings, aborted)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID.String(), string(run.Mode),
		run.StartedAt.UnixMilli(), run.EndedAt.UnixMilli(),
		cols[0], cols[1], cols[2],
		run.TotalRecords, run.Inserted, run.Updated, run.SuccessRate(),
		cols[3], cols[4], run.Aborted,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM pipeline_runs
		WHERE id NOT IN (SELECT id FROM pipeline_runs ORDER BY id DESC LIMIT ?)`, r.keep); err != nil {
		r.logger.Warn("run log trim failed", "error", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]model.RunSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT
		run_id, mode, started_at, ended_at, symbols, succeeded, failed,
		total_records, inserted, updated, errors, warnings, aborted
		FROM pipeline_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunSnapshot
	for rows.Next() {
		var (
			run                    model.RunSnapshot
			id, mode               string
			started, ended         int64
			syms, ok, failed, errs string
			warns                  string
		)
		if err := rows.Scan(&id, &mode, &started, &ended, &syms, &ok, &failed,
			&run.TotalRecords, &run.Inserted, &run.Updated, &errs, &warns, &run.Aborted); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}
		run.Mode = model.Mode(mode)
		run.StartedAt = time.UnixMilli(started).UTC()
		run.EndedAt = time.UnixMilli(ended).UTC()
		if err := decodeLists(
			[]string{syms, ok, failed, errs, warns},
			&run.Symbols, &run.Succeeded, &run.Failed, &run.Errors, &run.Warnings,
		); err != nil {
			return nil, fmt.Errorf("run %s: %w", id, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing run log")
	return r.db.Close()
}

func encodeLists(lists ...[]string) ([]string, error) {
	out := make([]string, len(lists))
	for i, l := range lists {
		if l == nil {
			l = []string{}
		}
		b, err := json.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("encode list: %w", err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func decodeLists(raw []string, dst ...*[]string) error {
	for i, s := range raw {
		if err := json.Unmarshal([]byte(s), dst[i]); err != nil {
			return fmt.Errorf("decode list: %w", err)
		}
	}
	return nil
}
