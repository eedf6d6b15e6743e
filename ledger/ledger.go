// Package ledger keeps an optional SQLite record of launched sweep runs.
package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/gidra39/lrsweep/types"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create ledger directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init ledger schema")
	}
	return &Ledger{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const createRuns = `
CREATE TABLE IF NOT EXISTS runs (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  sweep_id    TEXT NOT NULL,
  run_id      TEXT NOT NULL,
  tag         TEXT NOT NULL,
  state       TEXT NOT NULL,
  exit_code   INTEGER NOT NULL DEFAULT 0,
  started_at  TEXT NOT NULL,
  finished_at TEXT
);`
	_, err := db.Exec(createRuns)
	return err
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Start records a run as running and returns its ledger id.
func (l *Ledger) Start(ctx context.Context, sweepID, runID, tag string, at time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (sweep_id, run_id, tag, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		sweepID, runID, tag, string(types.RunRunning), at.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, errors.Wrapf(err, "record start of %s", runID)
	}
	return res.LastInsertId()
}

// Finish closes the run with its exit code.
func (l *Ledger) Finish(ctx context.Context, id int64, exitCode int, at time.Time) error {
	state := types.RunSucceeded
	if exitCode != 0 {
		state = types.RunFailed
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, exit_code = ?, finished_at = ? WHERE id = ?`,
		string(state), exitCode, at.UTC().Format(time.RFC3339), id)
	return errors.Wrapf(err, "record finish of ledger row %d", id)
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]types.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, sweep_id, run_id, tag, state, exit_code, started_at, finished_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query ledger")
	}
	defer rows.Close()

	var out []types.LedgerEntry
	for rows.Next() {
		var e types.LedgerEntry
		var state, started string
		var finished sql.NullString
		if err := rows.Scan(&e.ID, &e.SweepID, &e.RunID, &e.Tag, &state, &e.ExitCode, &started, &finished); err != nil {
			return nil, errors.Wrap(err, "scan ledger row")
		}
		e.State = types.RunState(state)
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			e.StartedAt = t
		}
		if finished.Valid && finished.String != "" {
			if t, err := time.Parse(time.RFC3339, finished.String); err == nil {
				e.FinishedAt = &t
			}
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate ledger")
}
