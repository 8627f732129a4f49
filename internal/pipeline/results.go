package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// #region schema
const resultsSchema = `
CREATE TABLE IF NOT EXISTS job_results (
	job_id        TEXT PRIMARY KEY,
	mode          TEXT NOT NULL,
	theme         TEXT,
	tokens_used   INTEGER NOT NULL,
	outcome_json  TEXT NOT NULL,
	completed_at  TEXT NOT NULL
);
`

// fixed-width so completed_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region result-store

// ResultStore persists finished job outcomes.
type ResultStore struct {
	db *sql.DB
}

// NewResultStore creates the job_results table on db if needed.
func NewResultStore(db *sql.DB) (*ResultStore, error) {
	if _, err := db.Exec(resultsSchema); err != nil {
		return nil, fmt.Errorf("migrate job_results: %w", err)
	}
	return &ResultStore{db: db}, nil
}

// Save writes o, replacing any earlier outcome of the same job.
func (s *ResultStore) Save(ctx context.Context, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO job_results (job_id, mode, theme, tokens_used, outcome_json, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		o.JobID, string(o.Mode), o.Theme, o.TokensUsed, string(data), o.CompletedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", o.JobID, err)
	}
	return nil
}

// Get returns the stored outcome of jobID or ErrNotFound.
func (s *ResultStore) Get(ctx context.Context, jobID string) (*Outcome, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT outcome_json FROM job_results WHERE job_id = ?`, jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", jobID, err)
	}
	var o Outcome
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", jobID, err)
	}
	return &o, nil
}

// Summary is a listing row.
type Summary struct {
	JobID       string    `json:"job_id"`
	Mode        Mode      `json:"mode"`
	Theme       string    `json:"theme"`
	TokensUsed  int       `json:"tokens_used"`
	CompletedAt time.Time `json:"completed_at"`
}

// List returns up to limit summaries, most recent first.
func (s *ResultStore) List(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, mode, theme, tokens_used, completed_at
		 FROM job_results ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sm      Summary
			theme   sql.NullString
			created string
		)
		if err := rows.Scan(&sm.JobID, &sm.Mode, &theme, &sm.TokensUsed, &created); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		sm.Theme = theme.String
		if sm.CompletedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// #endregion result-store
