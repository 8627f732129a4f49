package tournament

import (
	"context"
	"errors"
)

// #region errors

// ErrNoDecision is returned when the adjudicator does not name exactly one
// winner. A bracket cannot advance without a decision, so this is fatal.
var ErrNoDecision = errors.New("tournament: adjudicator named no winner")

// #endregion errors

// #region generation-attempt

// GenerationAttempt is one writer's text for the tournament prompt.
type GenerationAttempt struct {
	ParticipantID string `json:"participant_id"`
	Text          string `json:"text"`
	TokensUsed    int    `json:"tokens_used"`
}

// #endregion generation-attempt

// #region judgement

// Side labels a contestant within one match.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Axis scores are clamped into [MinScore, MaxScore].
const (
	MinScore = 0.05
	MaxScore = 0.95
)

// Judgement is the adjudicator's verdict on one match.
type Judgement struct {
	Winner          Side                        `json:"winner"`
	Reasoning       string                      `json:"reasoning"`
	Scores          map[Side]map[string]float64 `json:"scores"`
	PraisedExcerpts []string                    `json:"praised_excerpts,omitempty"`
	Weaknesses      []string                    `json:"weaknesses,omitempty"`
	Tokens          int                         `json:"-"`
}

// #endregion judgement

// #region results

// MatchResult records one adjudicated match.
type MatchResult struct {
	MatchName   string    `json:"match_name"`
	ContestantA string    `json:"contestant_a"`
	ContestantB string    `json:"contestant_b"`
	Winner      string    `json:"winner"`
	Judgement   Judgement `json:"judgement"`
}

// Result is the outcome of a full bracket. AllGenerations keeps every text,
// eliminated ones included, for later excerpt mining.
type Result struct {
	Champion        string              `json:"champion"`
	ChampionText    string              `json:"champion_text"`
	Rounds          []MatchResult       `json:"rounds"`
	AllGenerations  []GenerationAttempt `json:"all_generations"`
	TotalTokensUsed int                 `json:"total_tokens_used"`
}

// PraisedExcerpts collects every excerpt the adjudicator praised, across all
// matches, in match order.
func (r Result) PraisedExcerpts() []string {
	var out []string
	for _, m := range r.Rounds {
		out = append(out, m.Judgement.PraisedExcerpts...)
	}
	return out
}

// #endregion results

// #region interfaces

// Writer generates one contestant text.
type Writer interface {
	ID() string
	Write(ctx context.Context, prompt string) (GenerationAttempt, error)
}

// Adjudicator picks a winner between two texts written for prompt.
type Adjudicator interface {
	Judge(ctx context.Context, prompt string, a, b GenerationAttempt) (Judgement, error)
}

// #endregion interfaces
