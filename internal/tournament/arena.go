package tournament

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"
)

// #region arena

// Arena runs a bracket of writers against one prompt.
type Arena struct {
	writers []Writer
	judge   Adjudicator
	bracket Bracket
}

// NewArena validates the bracket and checks the roster matches its seeds.
func NewArena(writers []Writer, judge Adjudicator, bracket Bracket) (*Arena, error) {
	if err := bracket.Validate(); err != nil {
		return nil, err
	}
	if len(writers) != bracket.Seeds() {
		return nil, fmt.Errorf("tournament: bracket needs %d writers, got %d", bracket.Seeds(), len(writers))
	}
	if judge == nil {
		return nil, fmt.Errorf("tournament: nil adjudicator")
	}
	return &Arena{writers: writers, judge: judge, bracket: bracket}, nil
}

// Run generates every seed's text concurrently, then plays the bracket in
// order. Any generation or adjudication failure aborts the tournament.
func (a *Arena) Run(ctx context.Context, prompt string) (Result, error) {
	attempts, err := a.generate(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	res := Result{AllGenerations: attempts}
	for _, g := range attempts {
		res.TotalTokensUsed += g.TokensUsed
	}

	winners := make(map[string]int, len(a.bracket))
	resolve := func(s Slot) int {
		if s.WinnerOf != "" {
			return winners[s.WinnerOf]
		}
		return s.Seed - 1
	}

	for _, m := range a.bracket {
		ia, ib := resolve(m.A), resolve(m.B)
		ca, cb := attempts[ia], attempts[ib]

		j, err := a.judge.Judge(ctx, prompt, ca, cb)
		if err != nil {
			return Result{}, fmt.Errorf("tournament: judge %s: %w", m.Name, err)
		}
		res.TotalTokensUsed += j.Tokens

		side, ok := normalizeSide(j.Winner)
		if !ok {
			return Result{}, fmt.Errorf("%w: match %s answered %q", ErrNoDecision, m.Name, j.Winner)
		}
		j.Winner = side
		j.Scores = clampScores(j.Scores)

		win := ia
		if side == SideB {
			win = ib
		}
		winners[m.Name] = win

		log.Printf("[ARENA] %s: %s vs %s -> %s", m.Name, ca.ParticipantID, cb.ParticipantID, attempts[win].ParticipantID)
		res.Rounds = append(res.Rounds, MatchResult{
			MatchName:   m.Name,
			ContestantA: ca.ParticipantID,
			ContestantB: cb.ParticipantID,
			Winner:      attempts[win].ParticipantID,
			Judgement:   j,
		})
	}

	champ := attempts[winners[a.bracket[len(a.bracket)-1].Name]]
	res.Champion = champ.ParticipantID
	res.ChampionText = champ.Text
	log.Printf("[ARENA] champion=%s tokens=%d", res.Champion, res.TotalTokensUsed)
	return res, nil
}

func (a *Arena) generate(ctx context.Context, prompt string) ([]GenerationAttempt, error) {
	attempts := make([]GenerationAttempt, len(a.writers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range a.writers {
		i, w := i, w
		g.Go(func() error {
			at, err := w.Write(gctx, prompt)
			if err != nil {
				return fmt.Errorf("tournament: writer %s: %w", w.ID(), err)
			}
			if at.ParticipantID == "" {
				at.ParticipantID = w.ID()
			}
			attempts[i] = at
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return attempts, nil
}

// #endregion arena

// #region helpers

func normalizeSide(s Side) (Side, bool) {
	switch Side(strings.ToUpper(strings.TrimSpace(string(s)))) {
	case SideA:
		return SideA, true
	case SideB:
		return SideB, true
	}
	return "", false
}

func clampScores(in map[Side]map[string]float64) map[Side]map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[Side]map[string]float64, len(in))
	for side, axes := range in {
		m := make(map[string]float64, len(axes))
		for axis, v := range axes {
			m[axis] = clamp(v)
		}
		out[side] = m
	}
	return out
}

func clamp(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// #endregion helpers
