package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// #region manager-struct

// Manager wraps a Store with job-level operations: save a phase snapshot,
// decide resumability, and reconstruct resume state.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager creates a manager writing through store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// #endregion manager-struct

// #region save

// SaveCheckpoint appends a snapshot of state for jobID at phase. progress may be
// nil. Store errors are returned unchanged in meaning: losing a checkpoint is
// fatal to the caller.
func (m *Manager) SaveCheckpoint(ctx context.Context, jobID, phase string, state any, progress any) (Checkpoint, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: marshal state: %w", err)
	}

	cp := Checkpoint{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Phase:     phase,
		State:     Snapshot{Version: SnapshotVersion, Data: data},
		CreatedAt: m.now().UTC(),
	}
	if progress != nil {
		p, err := json.Marshal(progress)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint: marshal progress: %w", err)
		}
		cp.Progress = p
	}

	if err := m.store.Insert(ctx, cp); err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: save %s/%s: %w", jobID, phase, err)
	}
	log.Printf("[CKPT] saved job=%s phase=%s bytes=%d", jobID, phase, len(data))
	return cp, nil
}

// #endregion save

// #region can-resume

// CanResume reports whether at least one checkpoint exists for jobID.
func (m *Manager) CanResume(ctx context.Context, jobID string) (bool, error) {
	cp, err := m.store.FindLatest(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("checkpoint: can resume %s: %w", jobID, err)
	}
	return cp != nil, nil
}

// #endregion can-resume

// #region resume-state

// GetResumeState returns the latest checkpoint of jobID. A job without
// checkpoints yields ErrNoSuchJob.
func (m *Manager) GetResumeState(ctx context.Context, jobID string) (*ResumeState, error) {
	cp, err := m.store.FindLatest(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: resume state %s: %w", jobID, err)
	}
	if cp == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchJob, jobID)
	}
	return &ResumeState{Phase: cp.Phase, State: cp.State, Progress: cp.Progress}, nil
}

// #endregion resume-state

// #region history-discard

// History returns all checkpoints of jobID, oldest first.
func (m *Manager) History(ctx context.Context, jobID string) ([]Checkpoint, error) {
	return m.store.History(ctx, jobID)
}

// Discard drops every checkpoint of a job that no longer needs resuming.
func (m *Manager) Discard(ctx context.Context, jobID string) error {
	n, err := m.store.Discard(ctx, jobID)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	log.Printf("[CKPT] discarded job=%s rows=%d", jobID, n)
	return nil
}

// #endregion history-discard
