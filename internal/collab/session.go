package collab

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// #region session

// Session runs one multi-participant negotiation.
type Session struct {
	participants []Participant
	moderator    Moderator
	cfg          Config

	// OnRound, when set, is called after each round is applied.
	OnRound func(Round, Facilitation)
}

// NewSession checks the roster and fills zero config fields with defaults.
func NewSession(participants []Participant, moderator Moderator, cfg Config) (*Session, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("collab: no participants")
	}
	if moderator == nil {
		return nil, fmt.Errorf("collab: nil moderator")
	}
	def := DefaultConfig()
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.ParticipantAttempts <= 0 {
		cfg.ParticipantAttempts = def.ParticipantAttempts
	}
	if cfg.EarlyTerminationThreshold <= 0 {
		cfg.EarlyTerminationThreshold = def.EarlyTerminationThreshold
	}
	return &Session{participants: participants, moderator: moderator, cfg: cfg}, nil
}

// Run plays rounds until consensus over a non-empty draft set, budget
// exhaustion, or HardRoundCap, then composes the final text. Individual
// participant and moderator failures degrade rather than abort; only context
// cancellation returns an error.
func (s *Session) Run(ctx context.Context, prompt string) (Result, error) {
	state := newState()
	ids := s.participantIDs()
	tokens := 0
	var last Facilitation

	remaining := s.cfg.MaxRounds
	for n := 1; remaining > 0 && n <= HardRoundCap; n++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		remaining--

		phase := state.CurrentPhase
		actions, used := s.collect(ctx, prompt, n, state)
		tokens += used

		fac, used, err := s.moderator.Facilitate(ctx, FacilitationRequest{
			Prompt:       prompt,
			Round:        n,
			Phase:        phase,
			Actions:      actions,
			Participants: ids,
			State:        state.Clone(),
		})
		tokens += used
		if err != nil {
			log.Printf("[COLLAB] round %d: facilitation failed, using default verdict: %v", n, err)
			fac = defaultFacilitation(phase, err)
		} else {
			fac = sanitize(fac, phase)
		}
		last = fac

		for sec, who := range fac.Assignments {
			state.SectionAssignments[sec] = who
		}
		for _, a := range actions {
			if d, ok := a.Action.(Draft); ok {
				state.applyDraft(d)
			}
		}
		round := Round{Number: n, Phase: phase, Actions: actions, ModeratorSummary: fac.Summary, Degraded: fac.Degraded}
		state.Rounds = append(state.Rounds, round)
		state.CurrentPhase = fac.NextPhase

		if fac.ContinueRounds > remaining {
			log.Printf("[COLLAB] round %d: budget extended %d -> %d", n, remaining, fac.ContinueRounds)
			remaining = fac.ContinueRounds
		}

		log.Printf("[COLLAB] round %d phase=%s actions=%d next=%s consensus=%.2f drafts=%d",
			n, phase, len(actions), fac.NextPhase, fac.ConsensusScore, len(state.CurrentDrafts))
		if s.OnRound != nil {
			s.OnRound(round, fac)
		}

		if fac.ShouldTerminate && fac.ConsensusScore >= s.cfg.EarlyTerminationThreshold {
			if len(state.CurrentDrafts) > 0 {
				state.ConsensusReached = true
				break
			}
			log.Printf("[COLLAB] round %d: consensus claimed with no drafts, continuing", n)
		}
	}

	final, used := s.compose(ctx, prompt, state)
	tokens += used

	return Result{
		FinalText:        final,
		Rounds:           state.Rounds,
		Participants:     ids,
		TotalTokensUsed:  tokens,
		ConsensusScore:   last.ConsensusScore,
		ConsensusReached: state.ConsensusReached,
	}, nil
}

// #endregion session

// #region participants

// collect asks every participant for its actions concurrently and returns
// them in roster order.
func (s *Session) collect(ctx context.Context, prompt string, n int, state *State) ([]AttributedAction, int) {
	turn := Turn{
		Prompt:  prompt,
		Round:   n,
		Phase:   state.CurrentPhase,
		Allowed: state.CurrentPhase.AllowedKinds(),
		State:   state.Clone(),
	}

	perParticipant := make([][]AttributedAction, len(s.participants))
	used := make([]int, len(s.participants))

	var g errgroup.Group
	for i, p := range s.participants {
		i, p := i, p
		g.Go(func() error {
			acts, tok := s.act(ctx, p, turn)
			used[i] = tok
			for _, a := range acts {
				perParticipant[i] = append(perParticipant[i], AttributedAction{ParticipantID: p.ID(), Round: n, Action: a})
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []AttributedAction
	total := 0
	for i := range s.participants {
		out = append(out, perParticipant[i]...)
		total += used[i]
	}
	return out, total
}

// act retries a participant up to the configured attempts, then falls back
// to a stub proposal. Actions outside the turn's allowed kinds are dropped.
func (s *Session) act(ctx context.Context, p Participant, turn Turn) ([]Action, int) {
	tokens := 0
	var lastErr error
	for attempt := 1; attempt <= s.cfg.ParticipantAttempts; attempt++ {
		acts, used, err := p.Act(ctx, turn)
		tokens += used
		if err == nil {
			return filterActions(p.ID(), acts, turn.Allowed), tokens
		}
		lastErr = err
		log.Printf("[COLLAB] participant %s attempt %d/%d failed: %v", p.ID(), attempt, s.cfg.ParticipantAttempts, err)
		if ctx.Err() != nil {
			break
		}
	}
	return []Action{Proposal{Content: fmt.Sprintf("(%s had no contribution this round: %v)", p.ID(), lastErr)}}, tokens
}

func filterActions(id string, acts []Action, allowed []ActionKind) []Action {
	out := acts[:0:0]
	for _, a := range acts {
		if a == nil {
			continue
		}
		if !slices.Contains(allowed, a.Kind()) {
			log.Printf("[COLLAB] participant %s: dropped %s action not allowed this phase", id, a.Kind())
			continue
		}
		out = append(out, a)
	}
	return out
}

func (s *Session) participantIDs() []string {
	ids := make([]string, len(s.participants))
	for i, p := range s.participants {
		ids[i] = p.ID()
	}
	return ids
}

// #endregion participants

// #region moderator

func defaultFacilitation(current Phase, err error) Facilitation {
	return Facilitation{
		NextPhase: current,
		Summary:   fmt.Sprintf("moderator unavailable: %v", err),
		Degraded:  true,
	}
}

// sanitize keeps an unknown next phase at the current one and pins the
// score and extension into range.
func sanitize(f Facilitation, current Phase) Facilitation {
	if !f.NextPhase.Valid() {
		f.NextPhase = current
	}
	f.ConsensusScore = min(max(f.ConsensusScore, 0), 1)
	f.ContinueRounds = max(f.ContinueRounds, 0)
	f.Degraded = false
	return f
}

func (s *Session) compose(ctx context.Context, prompt string, state *State) (string, int) {
	drafts := state.Drafts()
	var feedback []AttributedAction
	for _, r := range state.Rounds {
		for _, a := range r.Actions {
			if a.Action.Kind() == KindFeedback {
				feedback = append(feedback, a)
			}
		}
	}

	text, used, err := s.moderator.Compose(ctx, prompt, drafts, feedback)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, used
	}
	log.Printf("[COLLAB] composition failed, joining %d drafts: %v", len(drafts), err)
	parts := make([]string, len(drafts))
	for i, d := range drafts {
		parts[i] = d.Text
	}
	return strings.Join(parts, "\n\n"), used
}

// #endregion moderator
