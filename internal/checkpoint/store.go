package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	checkpoint_id  TEXT NOT NULL UNIQUE,
	job_id         TEXT NOT NULL,
	phase          TEXT NOT NULL,
	state_json     TEXT NOT NULL,
	progress_json  TEXT,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_job ON checkpoints(job_id, id);
`

// fixed-width so created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct

// SQLiteStore persists checkpoints in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per-connection; one connection keeps them in force and
	// serializes writers from concurrent jobs
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (journal, results).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region insert

// Insert appends a checkpoint row.
func (s *SQLiteStore) Insert(ctx context.Context, cp Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	var progress interface{}
	if len(cp.Progress) > 0 {
		progress = string(cp.Progress)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (checkpoint_id, job_id, phase, state_json, progress_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.JobID, cp.Phase, string(stateJSON), progress, cp.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// #endregion insert

// #region find-latest

// FindLatest returns the most recently written checkpoint for jobID, or nil.
func (s *SQLiteStore) FindLatest(ctx context.Context, jobID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_id, job_id, phase, state_json, progress_json, created_at
		 FROM checkpoints WHERE job_id = ? ORDER BY id DESC LIMIT 1`, jobID,
	)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest %s: %w", jobID, err)
	}
	return &cp, nil
}

// #endregion find-latest

// #region history

// History returns every checkpoint for jobID in write order.
func (s *SQLiteStore) History(ctx context.Context, jobID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checkpoint_id, job_id, phase, state_json, progress_json, created_at
		 FROM checkpoints WHERE job_id = ? ORDER BY id ASC`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", jobID, err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// #endregion history

// #region discard

// Discard deletes all checkpoints of a fully consumed job.
func (s *SQLiteStore) Discard(ctx context.Context, jobID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE job_id = ?`, jobID)
	if err != nil {
		return 0, fmt.Errorf("discard %s: %w", jobID, err)
	}
	return res.RowsAffected()
}

// #endregion discard

// #region scan
type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(sc scanner) (Checkpoint, error) {
	var cp Checkpoint
	var stateJSON string
	var progress sql.NullString
	var createdStr string

	if err := sc.Scan(&cp.ID, &cp.JobID, &cp.Phase, &stateJSON, &progress, &createdStr); err != nil {
		return Checkpoint{}, err
	}
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return Checkpoint{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if progress.Valid {
		cp.Progress = json.RawMessage(progress.String)
	}
	created, err := time.Parse(timeLayout, createdStr)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("parse created_at of %s: %w", cp.ID, err)
	}
	cp.CreatedAt = created
	return cp, nil
}

// #endregion scan
