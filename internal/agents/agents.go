package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/danielpatrickdp/storyforge/internal/collab"
	"github.com/danielpatrickdp/storyforge/internal/completion"
	"github.com/danielpatrickdp/storyforge/internal/correction"
	"github.com/danielpatrickdp/storyforge/internal/retake"
	"github.com/danielpatrickdp/storyforge/internal/tournament"
)

// #region persona

// Persona names an agent and describes its voice.
type Persona struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
}

func nonEmpty(resp completion.Response, what string) (string, error) {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty %s", completion.ErrMalformedOutput, what)
	}
	return text, nil
}

// #endregion persona

// #region writer

// Writer is a tournament contestant backed by the completion service.
type Writer struct {
	svc     completion.Service
	persona Persona
	opts    completion.Options
}

func NewWriter(svc completion.Service, p Persona, opts completion.Options) *Writer {
	return &Writer{svc: svc, persona: p, opts: opts}
}

func (w *Writer) ID() string { return w.persona.ID }

func (w *Writer) Write(ctx context.Context, prompt string) (tournament.GenerationAttempt, error) {
	resp, err := w.svc.Generate(ctx, WriterPrompt(w.persona.Description, prompt), w.opts)
	if err != nil {
		return tournament.GenerationAttempt{}, err
	}
	text, err := nonEmpty(resp, "draft")
	if err != nil {
		return tournament.GenerationAttempt{}, err
	}
	return tournament.GenerationAttempt{ParticipantID: w.persona.ID, Text: text, TokensUsed: resp.Tokens}, nil
}

// #endregion writer

// #region adjudicator

// Adjudicator judges tournament matches with a structured verdict.
type Adjudicator struct {
	svc completion.Service
}

func NewAdjudicator(svc completion.Service) *Adjudicator { return &Adjudicator{svc: svc} }

type judgementDoc struct {
	Winner          string             `json:"winner"`
	Reasoning       string             `json:"reasoning"`
	ScoresA         map[string]float64 `json:"scores_a"`
	ScoresB         map[string]float64 `json:"scores_b"`
	PraisedExcerpts []string           `json:"praised_excerpts"`
	Weaknesses      []string           `json:"weaknesses"`
}

func (j *Adjudicator) Judge(ctx context.Context, prompt string, a, b tournament.GenerationAttempt) (tournament.Judgement, error) {
	var doc judgementDoc
	resp, err := j.svc.GenerateStructured(ctx, JudgePrompt(prompt, a, b), judgementSchema, &doc)
	if err != nil {
		return tournament.Judgement{Tokens: resp.Tokens}, err
	}
	return tournament.Judgement{
		Winner:    tournament.Side(doc.Winner),
		Reasoning: doc.Reasoning,
		Scores: map[tournament.Side]map[string]float64{
			tournament.SideA: doc.ScoresA,
			tournament.SideB: doc.ScoresB,
		},
		PraisedExcerpts: doc.PraisedExcerpts,
		Weaknesses:      doc.Weaknesses,
		Tokens:          resp.Tokens,
	}, nil
}

// #endregion adjudicator

// #region corrector

// Corrector repairs rule violations with one generation per call.
type Corrector struct {
	svc completion.Service
}

func NewCorrector(svc completion.Service) *Corrector { return &Corrector{svc: svc} }

func (c *Corrector) Correct(ctx context.Context, text string, violations []correction.Violation) (string, int, error) {
	resp, err := c.svc.Generate(ctx, CorrectionPrompt(text, violations), completion.Options{})
	if err != nil {
		return "", resp.Tokens, err
	}
	out, err := nonEmpty(resp, "revision")
	return out, resp.Tokens, err
}

// #endregion corrector

// #region critic

// Critic scores texts for the retake loop.
type Critic struct {
	svc completion.Service
}

func NewCritic(svc completion.Service) *Critic { return &Critic{svc: svc} }

func (c *Critic) Score(ctx context.Context, text string) (retake.Score, error) {
	var doc struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	resp, err := c.svc.GenerateStructured(ctx, CritiquePrompt(text), critiqueSchema, &doc)
	if err != nil {
		return retake.Score{Tokens: resp.Tokens}, err
	}
	return retake.Score{Value: min(max(doc.Score, 0), 1), Feedback: doc.Feedback, Tokens: resp.Tokens}, nil
}

// Reviser writes retakes from accumulated critique.
type Reviser struct {
	svc  completion.Service
	opts completion.Options
}

func NewReviser(svc completion.Service, opts completion.Options) *Reviser {
	return &Reviser{svc: svc, opts: opts}
}

func (r *Reviser) Retake(ctx context.Context, text string, feedback []string) (string, int, error) {
	resp, err := r.svc.Generate(ctx, RetakePrompt(text, feedback), r.opts)
	if err != nil {
		return "", resp.Tokens, err
	}
	out, err := nonEmpty(resp, "retake")
	return out, resp.Tokens, err
}

// #endregion critic

// #region participant

// Participant is a collaboration agent that picks one action per round.
type Participant struct {
	svc     completion.Service
	persona Persona
}

func NewParticipant(svc completion.Service, p Persona) *Participant {
	return &Participant{svc: svc, persona: p}
}

func (p *Participant) ID() string { return p.persona.ID }

// Act offers the turn's allowed action kinds as capabilities. A plain-text
// answer counts as a proposal when proposals are allowed.
func (p *Participant) Act(ctx context.Context, turn collab.Turn) ([]collab.Action, int, error) {
	caps := Capabilities(turn.Allowed)
	choice, err := p.svc.GenerateWithChoice(ctx, ParticipantPrompt(p.persona.Description, turn), caps, completion.ChoiceAuto)
	if err != nil {
		return nil, choice.Tokens, err
	}

	if choice.Capability == "" {
		text := strings.TrimSpace(choice.Text)
		if text == "" || !slices.Contains(turn.Allowed, collab.KindProposal) {
			return nil, choice.Tokens, fmt.Errorf("%w: %s answered without an action", completion.ErrMalformedOutput, p.persona.ID)
		}
		return []collab.Action{collab.Proposal{Content: text}}, choice.Tokens, nil
	}

	act, err := actionFromChoice(choice)
	if err != nil {
		return nil, choice.Tokens, err
	}
	return []collab.Action{act}, choice.Tokens, nil
}

// Capabilities maps action kinds to selectable capabilities.
func Capabilities(kinds []collab.ActionKind) []completion.Capability {
	caps := make([]completion.Capability, 0, len(kinds))
	for _, k := range kinds {
		c, ok := actionCapabilities[k]
		if !ok {
			continue
		}
		caps = append(caps, completion.Capability{Name: string(k), Description: c.desc, Parameters: c.params})
	}
	return caps
}

func actionFromChoice(choice completion.Choice) (collab.Action, error) {
	data, err := json.Marshal(choice.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", completion.ErrMalformedOutput, err)
	}
	act, err := collab.DecodeAction(collab.ActionKind(choice.Capability), data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", completion.ErrMalformedOutput, err)
	}
	switch v := act.(type) {
	case collab.Feedback:
		if !v.Sentiment.Valid() {
			return nil, fmt.Errorf("%w: sentiment %q", completion.ErrMalformedOutput, v.Sentiment)
		}
	case collab.Draft:
		if strings.TrimSpace(v.Section) == "" || strings.TrimSpace(v.Text) == "" {
			return nil, fmt.Errorf("%w: draft without section or text", completion.ErrMalformedOutput)
		}
	}
	return act, nil
}

// #endregion participant

// #region moderator

// Moderator facilitates rounds and composes the final text.
type Moderator struct {
	svc completion.Service
}

func NewModerator(svc completion.Service) *Moderator { return &Moderator{svc: svc} }

func (m *Moderator) Facilitate(ctx context.Context, req collab.FacilitationRequest) (collab.Facilitation, int, error) {
	var f collab.Facilitation
	resp, err := m.svc.GenerateStructured(ctx, FacilitationPrompt(req), facilitationSchema, &f)
	if err != nil {
		return collab.Facilitation{}, resp.Tokens, err
	}
	for sec, who := range f.Assignments {
		if !slices.Contains(req.Participants, who) {
			log.Printf("[COLLAB] moderator assigned %s to unknown participant %s, ignoring", sec, who)
			delete(f.Assignments, sec)
		}
	}
	return f, resp.Tokens, nil
}

func (m *Moderator) Compose(ctx context.Context, prompt string, drafts []collab.SectionDraft, feedback []collab.AttributedAction) (string, int, error) {
	resp, err := m.svc.Generate(ctx, ComposePrompt(prompt, drafts, feedback), completion.Options{})
	if err != nil {
		return "", 0, err
	}
	out, err := nonEmpty(resp, "composition")
	return out, resp.Tokens, err
}

// #endregion moderator
