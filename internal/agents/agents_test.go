package agents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/danielpatrickdp/storyforge/internal/collab"
	"github.com/danielpatrickdp/storyforge/internal/completion"
	"github.com/danielpatrickdp/storyforge/internal/correction"
	"github.com/danielpatrickdp/storyforge/internal/retake"
	"github.com/danielpatrickdp/storyforge/internal/tournament"
)

var (
	_ tournament.Writer      = (*Writer)(nil)
	_ tournament.Adjudicator = (*Adjudicator)(nil)
	_ correction.Corrector   = (*Corrector)(nil)
	_ retake.Judge           = (*Critic)(nil)
	_ retake.Writer          = (*Reviser)(nil)
	_ collab.Participant     = (*Participant)(nil)
	_ collab.Moderator       = (*Moderator)(nil)
)

// #region fake-service

// fakeService embeds the interface so unscripted methods panic.
type fakeService struct {
	completion.Service

	text       string
	structured string
	choice     completion.Choice
	err        error
	errTokens  int

	prompts []string
	schemas []map[string]any
	caps    []completion.Capability
}

func (f *fakeService) Generate(ctx context.Context, prompt string, opts completion.Options) (completion.Response, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return completion.Response{Tokens: f.errTokens}, f.err
	}
	return completion.Response{Text: f.text, Tokens: 11}, nil
}

func (f *fakeService) GenerateStructured(ctx context.Context, prompt string, schema map[string]any, out any) (completion.Response, error) {
	f.prompts = append(f.prompts, prompt)
	f.schemas = append(f.schemas, schema)
	if f.err != nil {
		return completion.Response{Tokens: 2}, f.err
	}
	if err := json.Unmarshal([]byte(f.structured), out); err != nil {
		return completion.Response{Tokens: 2}, completion.ErrMalformedOutput
	}
	return completion.Response{Tokens: 13}, nil
}

func (f *fakeService) GenerateWithChoice(ctx context.Context, prompt string, caps []completion.Capability, mode completion.ChoiceMode) (completion.Choice, error) {
	f.prompts = append(f.prompts, prompt)
	f.caps = caps
	if f.err != nil {
		return completion.Choice{}, f.err
	}
	return f.choice, nil
}

// #endregion fake-service

func TestWriter_Write(t *testing.T) {
	svc := &fakeService{text: "  the sea remembered  "}
	w := NewWriter(svc, Persona{ID: "noir", Description: "hardboiled"}, completion.Options{})

	got, err := w.Write(context.Background(), "a lighthouse")
	if err != nil {
		t.Fatal(err)
	}
	if got.ParticipantID != "noir" || got.Text != "the sea remembered" || got.TokensUsed != 11 {
		t.Errorf("attempt = %+v", got)
	}
	if !strings.Contains(svc.prompts[0], "hardboiled") || !strings.Contains(svc.prompts[0], "a lighthouse") {
		t.Errorf("prompt = %q", svc.prompts[0])
	}
}

func TestWriter_EmptyIsMalformed(t *testing.T) {
	w := NewWriter(&fakeService{text: "  "}, Persona{ID: "x"}, completion.Options{})
	if _, err := w.Write(context.Background(), "p"); !errors.Is(err, completion.ErrMalformedOutput) {
		t.Fatalf("err = %v", err)
	}
}

func TestAdjudicator_Judge(t *testing.T) {
	svc := &fakeService{structured: `{"winner":"B","reasoning":"tighter","scores_a":{"voice":0.4},"scores_b":{"voice":0.8},"praised_excerpts":["gulls"]}`}
	j := NewAdjudicator(svc)

	got, err := j.Judge(context.Background(), "brief",
		tournament.GenerationAttempt{Text: "first"}, tournament.GenerationAttempt{Text: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Winner != tournament.SideB || got.Scores[tournament.SideB]["voice"] != 0.8 || got.Tokens != 13 {
		t.Errorf("judgement = %+v", got)
	}
	if len(got.PraisedExcerpts) != 1 {
		t.Errorf("excerpts = %v", got.PraisedExcerpts)
	}
	if svc.schemas[0]["type"] != "object" {
		t.Errorf("schema = %v", svc.schemas[0])
	}
}

func TestAdjudicator_MalformedPropagates(t *testing.T) {
	j := NewAdjudicator(&fakeService{structured: "no verdict"})
	_, err := j.Judge(context.Background(), "b", tournament.GenerationAttempt{}, tournament.GenerationAttempt{})
	if !errors.Is(err, completion.ErrMalformedOutput) {
		t.Fatalf("err = %v", err)
	}
}

func TestCorrector_PromptListsViolations(t *testing.T) {
	svc := &fakeService{text: "fixed"}
	c := NewCorrector(svc)
	out, tok, err := c.Correct(context.Background(), "old", []correction.Violation{{Rule: "forbidden_word", Excerpt: "suddenly"}})
	if err != nil || out != "fixed" || tok != 11 {
		t.Fatalf("got %q %d %v", out, tok, err)
	}
	if !strings.Contains(svc.prompts[0], `forbidden_word: "suddenly"`) {
		t.Errorf("prompt = %q", svc.prompts[0])
	}
}

func TestCritic_ClampsScore(t *testing.T) {
	c := NewCritic(&fakeService{structured: `{"score":1.7,"feedback":"fine"}`})
	s, err := c.Score(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if s.Value != 1 || s.Feedback != "fine" || s.Tokens != 13 {
		t.Errorf("score = %+v", s)
	}
}

func TestReviser_IncludesAllFeedback(t *testing.T) {
	svc := &fakeService{text: "v2"}
	r := NewReviser(svc, completion.Options{})
	if _, _, err := r.Retake(context.Background(), "v1", []string{"too long", "flat ending"}); err != nil {
		t.Fatal(err)
	}
	p := svc.prompts[0]
	if !strings.Contains(p, "1. too long") || !strings.Contains(p, "2. flat ending") {
		t.Errorf("prompt = %q", p)
	}
}

func TestParticipant_DecodesChoice(t *testing.T) {
	svc := &fakeService{choice: completion.Choice{
		Capability: "feedback",
		Arguments:  map[string]any{"target_participant_id": "b", "sentiment": "challenge", "feedback": "why?"},
		Tokens:     4,
	}}
	p := NewParticipant(svc, Persona{ID: "a"})
	turn := collab.Turn{Prompt: "brief", Round: 1, Phase: collab.PhaseDiscussion, Allowed: collab.AllKinds}

	acts, tok, err := p.Act(context.Background(), turn)
	if err != nil {
		t.Fatal(err)
	}
	fb, ok := acts[0].(collab.Feedback)
	if !ok || fb.TargetParticipantID != "b" || fb.Sentiment != collab.SentimentChallenge || tok != 4 {
		t.Errorf("acts = %+v tok = %d", acts, tok)
	}
	if len(svc.caps) != 4 {
		t.Errorf("caps = %d, want 4", len(svc.caps))
	}
}

func TestParticipant_DraftingOffersOnlyDraft(t *testing.T) {
	svc := &fakeService{choice: completion.Choice{Text: "I think we should..."}}
	p := NewParticipant(svc, Persona{ID: "a"})
	turn := collab.Turn{Phase: collab.PhaseDrafting, Allowed: collab.PhaseDrafting.AllowedKinds()}

	_, _, err := p.Act(context.Background(), turn)
	if !errors.Is(err, completion.ErrMalformedOutput) {
		t.Fatalf("err = %v, want malformed for text answer in drafting", err)
	}
	if len(svc.caps) != 1 || svc.caps[0].Name != "draft" {
		t.Errorf("caps = %+v", svc.caps)
	}
}

func TestParticipant_TextBecomesProposal(t *testing.T) {
	p := NewParticipant(&fakeService{choice: completion.Choice{Text: "a ghost story"}}, Persona{ID: "a"})
	acts, _, err := p.Act(context.Background(), collab.Turn{Allowed: collab.AllKinds})
	if err != nil {
		t.Fatal(err)
	}
	if prop, ok := acts[0].(collab.Proposal); !ok || prop.Content != "a ghost story" {
		t.Errorf("acts = %+v", acts)
	}
}

func TestParticipant_InvalidSentiment(t *testing.T) {
	svc := &fakeService{choice: completion.Choice{
		Capability: "feedback",
		Arguments:  map[string]any{"target_participant_id": "b", "sentiment": "meh", "feedback": "x"},
	}}
	p := NewParticipant(svc, Persona{ID: "a"})
	if _, _, err := p.Act(context.Background(), collab.Turn{Allowed: collab.AllKinds}); !errors.Is(err, completion.ErrMalformedOutput) {
		t.Fatalf("err = %v", err)
	}
}

func TestModerator_DropsUnknownAssignees(t *testing.T) {
	svc := &fakeService{structured: `{"next_phase":"drafting","assignments":{"intro":"a","outro":"zed"},"summary":"ok","should_terminate":false,"consensus_score":0.6,"continue_rounds":2}`}
	m := NewModerator(svc)
	f, tok, err := m.Facilitate(context.Background(), collab.FacilitationRequest{Participants: []string{"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	if f.NextPhase != collab.PhaseDrafting || f.ContinueRounds != 2 || tok != 13 {
		t.Errorf("facilitation = %+v", f)
	}
	if _, ok := f.Assignments["outro"]; ok || f.Assignments["intro"] != "a" {
		t.Errorf("assignments = %v", f.Assignments)
	}
}

func TestModerator_ComposeError(t *testing.T) {
	m := NewModerator(&fakeService{err: errors.New("down")})
	if _, _, err := m.Compose(context.Background(), "p", nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestFailedCallsStillReportTokens(t *testing.T) {
	ctx := context.Background()

	judge := NewAdjudicator(&fakeService{structured: "not json"})
	j, err := judge.Judge(ctx, "p", tournament.GenerationAttempt{Text: "a"}, tournament.GenerationAttempt{Text: "b"})
	if !errors.Is(err, completion.ErrMalformedOutput) {
		t.Fatalf("judge err = %v", err)
	}
	if j.Tokens != 2 {
		t.Errorf("judge tokens = %d, want 2", j.Tokens)
	}

	failing := &fakeService{err: errors.New("truncated"), errTokens: 5}
	_, tokens, err := NewCorrector(failing).Correct(ctx, "text", []correction.Violation{{Rule: "simile", Excerpt: "like a"}})
	if err == nil || tokens != 5 {
		t.Errorf("corrector tokens=%d err=%v, want 5 and an error", tokens, err)
	}
	_, tokens, err = NewReviser(failing, completion.Options{}).Retake(ctx, "text", []string{"flat ending"})
	if err == nil || tokens != 5 {
		t.Errorf("reviser tokens=%d err=%v, want 5 and an error", tokens, err)
	}
}
