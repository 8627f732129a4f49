package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/storyforge/internal/collab"
	"github.com/danielpatrickdp/storyforge/internal/correction"
	"github.com/danielpatrickdp/storyforge/internal/retake"
	"github.com/danielpatrickdp/storyforge/internal/tournament"
)

// #region errors

// ErrNotFound is returned when no stored result exists for a job.
var ErrNotFound = errors.New("pipeline: result not found")

// #endregion errors

// #region job

// Mode selects how a job produces its first text.
type Mode string

const (
	ModeTournament    Mode = "tournament"
	ModeCollaboration Mode = "collaboration"
)

// Job is one end-to-end generation request.
type Job struct {
	ID     string   `json:"id"`
	Index  int      `json:"index"`
	Prompt string   `json:"prompt"`
	Mode   Mode     `json:"mode"`
	Avoid  []string `json:"avoid,omitempty"`
}

// Phases, in order. Each is checkpointed when it finishes.
const (
	PhaseGenerated = "generated"
	PhaseCorrected = "corrected"
	PhaseRetaken   = "retaken"
)

// #endregion job

// #region outcome

// Outcome is the persisted result of a finished job.
type Outcome struct {
	JobID         string             `json:"job_id"`
	Mode          Mode               `json:"mode"`
	Prompt        string             `json:"prompt"`
	Text          string             `json:"text"`
	Theme         string             `json:"theme"`
	Tournament    *tournament.Result `json:"tournament,omitempty"`
	Collaboration *collab.Result     `json:"collaboration,omitempty"`
	Correction    *correction.Result `json:"correction,omitempty"`
	Retake        *retake.Result     `json:"retake,omitempty"`
	TokensUsed    int                `json:"tokens_used"`
	Resumed       bool               `json:"resumed"`
	CompletedAt   time.Time          `json:"completed_at"`
}

// jobState is the checkpoint snapshot. It grows one field per phase.
type jobState struct {
	Job           Job                `json:"job"`
	Text          string             `json:"text"`
	Tournament    *tournament.Result `json:"tournament,omitempty"`
	Collaboration *collab.Result     `json:"collaboration,omitempty"`
	Correction    *correction.Result `json:"correction,omitempty"`
	Retake        *retake.Result     `json:"retake,omitempty"`
	Tokens        int                `json:"tokens"`
}

// progress is the checkpoint metadata.
type progress struct {
	Step   int `json:"step"`
	Of     int `json:"of"`
	Tokens int `json:"tokens"`
}

// #endregion outcome

// #region stages

// Generator stages, satisfied by *tournament.Arena, *collab.Session,
// *correction.Loop and *retake.Loop.
type (
	TournamentRunner interface {
		Run(ctx context.Context, prompt string) (tournament.Result, error)
	}
	SessionRunner interface {
		Run(ctx context.Context, prompt string) (collab.Result, error)
	}
	CorrectionRunner interface {
		Run(ctx context.Context, text string, initial []correction.Violation) correction.Result
	}
	RetakeRunner interface {
		Run(ctx context.Context, text string) retake.Result
	}
)

// #endregion stages
