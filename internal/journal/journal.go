package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS job_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id       TEXT NOT NULL,
	phase        TEXT NOT NULL,
	decision     TEXT NOT NULL,
	reason       TEXT,
	detail_json  TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job_id, id);
`

// #endregion schema

// #region entry

// Decisions recorded by the pipeline.
const (
	DecisionStarted           = "started"
	DecisionResumed           = "resumed"
	DecisionPhaseDone         = "phase_done"
	DecisionRoundDone         = "round_done"
	DecisionModeratorDegraded = "moderator_degraded"
	DecisionCorrectionFailed  = "correction_failed"
	DecisionRetakeReverted    = "retake_reverted"
	DecisionCompleted         = "completed"
	DecisionFailed            = "failed"
)

// Entry is a single row in the job_events table.
type Entry struct {
	JobID     string          `json:"job_id"`
	Phase     string          `json:"phase"`
	Decision  string          `json:"decision"`
	Reason    string          `json:"reason,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// #endregion entry

// #region journal

// Journal is an append-only log of pipeline decisions per job.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// New creates the job_events table on db if needed.
func New(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate job_events: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Log writes entry. A zero CreatedAt is stamped with the current time.
func (j *Journal) Log(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = j.now().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO job_events (job_id, phase, decision, reason, detail_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.JobID,
		entry.Phase,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(string(entry.Detail)),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// Record marshals detail and logs it. A nil detail is stored as NULL.
func (j *Journal) Record(ctx context.Context, jobID, phase, decision, reason string, detail any) error {
	e := Entry{JobID: jobID, Phase: phase, Decision: decision, Reason: reason}
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal detail: %w", err)
		}
		e.Detail = b
	}
	return j.Log(ctx, e)
}

// ForJob returns every entry for jobID in write order.
func (j *Journal) ForJob(ctx context.Context, jobID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT job_id, phase, decision, reason, detail_json, created_at
		 FROM job_events WHERE job_id = ? ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e              Entry
			reason, detail sql.NullString
			created        string
		)
		if err := rows.Scan(&e.JobID, &e.Phase, &e.Decision, &reason, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Reason = reason.String
		if detail.Valid {
			e.Detail = json.RawMessage(detail.String)
		}
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion journal

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
