package batch

import (
	"context"
	"time"
)

// #region job

// JobSpec identifies one job of a batch and carries the themes it should
// steer away from.
type JobSpec struct {
	BatchID string
	Index   int
	ID      string
	Avoid   []string
}

// JobReport is what a successful job hands back to the runner.
type JobReport struct {
	Theme      string
	TokensUsed int
}

// JobFunc executes one job.
type JobFunc func(ctx context.Context, spec JobSpec) (JobReport, error)

// #endregion job

// #region status

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// #endregion status

// #region results

// JobResult records the outcome of one job.
type JobResult struct {
	Index      int           `json:"index"`
	JobID      string        `json:"job_id"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Theme      string        `json:"theme,omitempty"`
	TokensUsed int           `json:"tokens_used"`
	Duration   time.Duration `json:"duration"`
}

// Result is the outcome of a whole batch. Jobs is indexed by job index.
type Result struct {
	BatchID         string        `json:"batch_id"`
	Jobs            []JobResult   `json:"jobs"`
	Completed       int           `json:"completed"`
	Failed          int           `json:"failed"`
	Canceled        int           `json:"canceled"`
	TotalTokensUsed int           `json:"total_tokens_used"`
	Themes          []string      `json:"themes"`
	Duration        time.Duration `json:"duration"`
}

// Progress is reported after each job finishes.
type Progress struct {
	Current int
	Total   int
	Status  Status
	JobID   string
}

// #endregion results

// #region config

// Config sizes a batch.
type Config struct {
	Jobs        int           `yaml:"jobs"`
	Parallelism int           `yaml:"parallelism"`
	Delay       time.Duration `yaml:"delay"`
	HistorySize int           `yaml:"history_size"`
}

func DefaultConfig() Config {
	return Config{Jobs: 1, Parallelism: 2, HistorySize: 10}
}

// #endregion config

// #region theme-store

// ThemeStore persists themes across batches.
type ThemeStore interface {
	Recent(ctx context.Context, n int) ([]string, error)
	Record(ctx context.Context, batchID, jobID, theme string) error
}

// #endregion theme-store
