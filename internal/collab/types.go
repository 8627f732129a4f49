package collab

import (
	"context"
	"maps"
	"slices"
)

// #region phases

// Phase is a stage of the collaboration. Only the moderator moves it.
type Phase string

const (
	PhaseProposal   Phase = "proposal"
	PhaseDiscussion Phase = "discussion"
	PhaseDrafting   Phase = "drafting"
	PhaseReview     Phase = "review"
)

// Phases lists the phases in order.
var Phases = []Phase{PhaseProposal, PhaseDiscussion, PhaseDrafting, PhaseReview}

func (p Phase) Valid() bool { return slices.Contains(Phases, p) }

// AllowedKinds returns the action kinds participants may use in phase p.
func (p Phase) AllowedKinds() []ActionKind {
	if p == PhaseDrafting {
		return []ActionKind{KindDraft}
	}
	return AllKinds
}

// #endregion phases

// #region state

// Round is one completed round of the session.
type Round struct {
	Number           int                `json:"round_number"`
	Phase            Phase              `json:"phase"`
	Actions          []AttributedAction `json:"actions"`
	ModeratorSummary string             `json:"moderator_summary"`
	Degraded         bool               `json:"degraded,omitempty"`
}

// State accumulates everything the session has produced so far.
// CurrentDrafts only ever receives text from Draft actions.
type State struct {
	Rounds             []Round           `json:"rounds"`
	CurrentPhase       Phase             `json:"current_phase"`
	SectionAssignments map[string]string `json:"section_assignments"`
	CurrentDrafts      map[string]string `json:"current_drafts"`
	SectionOrder       []string          `json:"section_order"`
	ConsensusReached   bool              `json:"consensus_reached"`
}

func newState() *State {
	return &State{
		CurrentPhase:       PhaseProposal,
		SectionAssignments: make(map[string]string),
		CurrentDrafts:      make(map[string]string),
	}
}

// Clone returns a copy safe to hand to concurrent readers. Rounds are shared
// since they are never modified after being appended.
func (s *State) Clone() State {
	c := *s
	c.Rounds = slices.Clone(s.Rounds)
	c.SectionAssignments = maps.Clone(s.SectionAssignments)
	c.CurrentDrafts = maps.Clone(s.CurrentDrafts)
	c.SectionOrder = slices.Clone(s.SectionOrder)
	return c
}

// Drafts returns the current drafts in the order their sections were first
// drafted.
func (s *State) Drafts() []SectionDraft {
	out := make([]SectionDraft, 0, len(s.SectionOrder))
	for _, sec := range s.SectionOrder {
		out = append(out, SectionDraft{Section: sec, Text: s.CurrentDrafts[sec]})
	}
	return out
}

func (s *State) applyDraft(d Draft) {
	if _, ok := s.CurrentDrafts[d.Section]; !ok {
		s.SectionOrder = append(s.SectionOrder, d.Section)
	}
	s.CurrentDrafts[d.Section] = d.Text
}

// SectionDraft is one section's current text.
type SectionDraft struct {
	Section string `json:"section"`
	Text    string `json:"text"`
}

// #endregion state

// #region facilitation

// Facilitation is the moderator's verdict on a round.
type Facilitation struct {
	NextPhase       Phase             `json:"next_phase"`
	Assignments     map[string]string `json:"assignments"`
	Summary         string            `json:"summary"`
	ShouldTerminate bool              `json:"should_terminate"`
	ConsensusScore  float64           `json:"consensus_score"`
	ContinueRounds  int               `json:"continue_rounds"`
	Degraded        bool              `json:"degraded,omitempty"`
}

// FacilitationRequest is what the moderator sees after a round.
type FacilitationRequest struct {
	Prompt       string
	Round        int
	Phase        Phase
	Actions      []AttributedAction
	Participants []string
	State        State
}

// Turn is what a participant sees when asked to act.
type Turn struct {
	Prompt  string
	Round   int
	Phase   Phase
	Allowed []ActionKind
	State   State
}

// #endregion facilitation

// #region result

// Result is the outcome of a session.
type Result struct {
	FinalText        string   `json:"final_text"`
	Rounds           []Round  `json:"rounds"`
	Participants     []string `json:"participants"`
	TotalTokensUsed  int      `json:"total_tokens_used"`
	ConsensusScore   float64  `json:"consensus_score"`
	ConsensusReached bool     `json:"consensus_reached"`
}

// #endregion result

// #region interfaces

// Participant produces zero or more actions per round.
type Participant interface {
	ID() string
	Act(ctx context.Context, turn Turn) ([]Action, int, error)
}

// Moderator judges rounds and writes the final composition.
type Moderator interface {
	Facilitate(ctx context.Context, req FacilitationRequest) (Facilitation, int, error)
	Compose(ctx context.Context, prompt string, drafts []SectionDraft, feedback []AttributedAction) (string, int, error)
}

// #endregion interfaces

// #region config

// HardRoundCap bounds total rounds regardless of configuration or extension
// requests.
const HardRoundCap = 20

// Config tunes a session.
type Config struct {
	MaxRounds                 int     `yaml:"max_rounds"`
	EarlyTerminationThreshold float64 `yaml:"early_termination_threshold"`
	ParticipantAttempts       int     `yaml:"participant_attempts"`
}

func DefaultConfig() Config {
	return Config{
		MaxRounds:                 6,
		EarlyTerminationThreshold: 0.8,
		ParticipantAttempts:       3,
	}
}

// #endregion config
