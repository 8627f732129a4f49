package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// #region errors

// ErrNoSuchJob is returned when a job has no checkpoints to resume from.
var ErrNoSuchJob = errors.New("checkpoint: no such job")

// #endregion errors

// #region snapshot

// SnapshotVersion is written into every snapshot envelope. Bump it when the
// pipeline changes what it checkpoints incompatibly.
const SnapshotVersion = 1

// Snapshot is an opaque, versioned job-state document. The checkpoint layer
// never looks inside Data.
type Snapshot struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// #endregion snapshot

// #region checkpoint

// Checkpoint is one append-only row of job progress.
type Checkpoint struct {
	ID        string
	JobID     string
	Phase     string
	State     Snapshot
	Progress  json.RawMessage // nil when no progress metadata was saved
	CreatedAt time.Time
}

// #endregion checkpoint

// #region resume-state

// ResumeState is the latest checkpoint of a job, reduced to what a resumer needs.
type ResumeState struct {
	Phase    string
	State    Snapshot
	Progress json.RawMessage
}

// Decode unmarshals the snapshot data into v after checking its version.
func (r *ResumeState) Decode(v any) error {
	if r.State.Version != SnapshotVersion {
		return fmt.Errorf("checkpoint: snapshot version %d, want %d", r.State.Version, SnapshotVersion)
	}
	if err := json.Unmarshal(r.State.Data, v); err != nil {
		return fmt.Errorf("checkpoint: decode snapshot: %w", err)
	}
	return nil
}

// DecodeProgress unmarshals the progress metadata into v. It is a no-op when
// no progress was saved.
func (r *ResumeState) DecodeProgress(v any) error {
	if len(r.Progress) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Progress, v); err != nil {
		return fmt.Errorf("checkpoint: decode progress: %w", err)
	}
	return nil
}

// #endregion resume-state

// #region store-interface

// Store is the durable persistence the Manager writes through. Checkpoints are
// ordered by write order; FindLatest returns nil, nil for unknown jobs.
type Store interface {
	Insert(ctx context.Context, cp Checkpoint) error
	FindLatest(ctx context.Context, jobID string) (*Checkpoint, error)
	History(ctx context.Context, jobID string) ([]Checkpoint, error)
	Discard(ctx context.Context, jobID string) (int64, error)
}

// #endregion store-interface
