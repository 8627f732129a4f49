package agents

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/storyforge/internal/collab"
	"github.com/danielpatrickdp/storyforge/internal/correction"
	"github.com/danielpatrickdp/storyforge/internal/tournament"
)

// #region writing

// WriterPrompt frames the brief for one persona.
func WriterPrompt(persona, brief string) string {
	var b strings.Builder
	b.WriteString("[PERSONA]\n")
	b.WriteString(persona)
	b.WriteString("\n\n[BRIEF]\n")
	b.WriteString(brief)
	b.WriteString("\n\nWrite the piece. Return only the prose, no title and no commentary.\n")
	return b.String()
}

// CorrectionPrompt asks for a minimal revision that removes every listed violation.
func CorrectionPrompt(text string, violations []correction.Violation) string {
	var b strings.Builder
	b.WriteString("Revise the text below so that none of these problems remain. ")
	b.WriteString("Change as little as possible and keep the voice.\n\n[PROBLEMS]\n")
	for _, v := range violations {
		b.WriteString(fmt.Sprintf("- %s: %q", v.Rule, v.Excerpt))
		if v.Message != "" {
			b.WriteString(" (" + v.Message + ")")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n[TEXT]\n")
	b.WriteString(text)
	b.WriteString("\n\nReturn only the revised text.\n")
	return b.String()
}

// RetakePrompt asks for a rewrite informed by every critique so far, oldest first.
func RetakePrompt(text string, feedback []string) string {
	var b strings.Builder
	b.WriteString("Rewrite the text below. Earlier critiques, oldest first:\n\n")
	for i, f := range feedback {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, f))
	}
	b.WriteString("\n[TEXT]\n")
	b.WriteString(text)
	b.WriteString("\n\nAddress all critiques together. Return only the new text.\n")
	return b.String()
}

// #endregion writing

// #region judging

// JudgeAxes are the axes every judgement scores.
var JudgeAxes = []string{"voice", "imagery", "structure", "originality"}

// JudgePrompt asks for a pairwise verdict between two anonymized texts.
func JudgePrompt(brief string, a, b tournament.GenerationAttempt) string {
	var sb strings.Builder
	sb.WriteString("[BRIEF]\n")
	sb.WriteString(brief)
	sb.WriteString("\n\n[TEXT A]\n")
	sb.WriteString(a.Text)
	sb.WriteString("\n\n[TEXT B]\n")
	sb.WriteString(b.Text)
	sb.WriteString("\n\nPick exactly one winner, A or B. Score each text from 0 to 1 on ")
	sb.WriteString(strings.Join(JudgeAxes, ", "))
	sb.WriteString(". Quote any passages worth keeping from either text, winner or not.\n")
	return sb.String()
}

// CritiquePrompt asks for a single quality score and one actionable critique.
func CritiquePrompt(text string) string {
	return "Score the text below from 0 to 1 for overall quality and give one paragraph of " +
		"specific, actionable critique.\n\n[TEXT]\n" + text + "\n"
}

// #endregion judging

// #region collaboration

// ParticipantPrompt shows a participant the brief and the session so far.
func ParticipantPrompt(persona string, turn collab.Turn) string {
	var b strings.Builder
	b.WriteString("[PERSONA]\n")
	b.WriteString(persona)
	b.WriteString("\n\n[BRIEF]\n")
	b.WriteString(turn.Prompt)
	b.WriteString(fmt.Sprintf("\n\n[SESSION] round %d, phase %s\n", turn.Round, turn.Phase))

	for _, r := range turn.State.Rounds {
		b.WriteString(fmt.Sprintf("\nRound %d (%s): %s\n", r.Number, r.Phase, r.ModeratorSummary))
		for _, a := range r.Actions {
			b.WriteString("- " + a.ParticipantID + " " + describeAction(a.Action) + "\n")
		}
	}
	if len(turn.State.SectionAssignments) > 0 {
		b.WriteString("\n[ASSIGNMENTS]\n")
		for sec, who := range turn.State.SectionAssignments {
			b.WriteString(fmt.Sprintf("- %s: %s\n", sec, who))
		}
	}
	if drafts := turn.State.Drafts(); len(drafts) > 0 {
		b.WriteString("\n[DRAFTS]\n")
		for _, d := range drafts {
			b.WriteString("## " + d.Section + "\n" + d.Text + "\n")
		}
	}
	b.WriteString("\nChoose one action for this round.\n")
	return b.String()
}

// FacilitationPrompt shows the moderator one round's actions.
func FacilitationPrompt(req collab.FacilitationRequest) string {
	var b strings.Builder
	b.WriteString("You moderate a writing collaboration between: ")
	b.WriteString(strings.Join(req.Participants, ", "))
	b.WriteString("\n\n[BRIEF]\n")
	b.WriteString(req.Prompt)
	b.WriteString(fmt.Sprintf("\n\n[ROUND %d, phase %s]\n", req.Round, req.Phase))
	for _, a := range req.Actions {
		b.WriteString("- " + a.ParticipantID + " " + describeAction(a.Action) + "\n")
	}
	b.WriteString(fmt.Sprintf("\nSections drafted so far: %d.\n", len(req.State.CurrentDrafts)))
	b.WriteString("Phases in order: proposal, discussion, drafting, review. Decide the next phase, ")
	b.WriteString("assign sections to participants, estimate consensus from 0 to 1, and say whether ")
	b.WriteString("the group should stop. Ask for extra rounds only if the work needs them.\n")
	return b.String()
}

// ComposePrompt merges drafts and discussion feedback into the final piece.
func ComposePrompt(brief string, drafts []collab.SectionDraft, feedback []collab.AttributedAction) string {
	var b strings.Builder
	b.WriteString("[BRIEF]\n")
	b.WriteString(brief)
	b.WriteString("\n\n[DRAFTS]\n")
	for _, d := range drafts {
		b.WriteString("## " + d.Section + "\n" + d.Text + "\n\n")
	}
	if len(feedback) > 0 {
		b.WriteString("[FEEDBACK]\n")
		for _, f := range feedback {
			b.WriteString("- " + f.ParticipantID + " " + describeAction(f.Action) + "\n")
		}
	}
	b.WriteString("\nCombine the drafts into one continuous piece of prose, applying the feedback. ")
	b.WriteString("Return only the prose.\n")
	return b.String()
}

func describeAction(a collab.Action) string {
	switch v := a.(type) {
	case collab.Proposal:
		return "proposes: " + v.Content
	case collab.Feedback:
		s := fmt.Sprintf("%s with %s: %s", v.Sentiment, v.TargetParticipantID, v.Feedback)
		if v.CounterProposal != "" {
			s += " (counter: " + v.CounterProposal + ")"
		}
		return s
	case collab.Volunteer:
		return fmt.Sprintf("volunteers for %s: %s", v.Section, v.Reason)
	case collab.Draft:
		return fmt.Sprintf("drafts %s (%d chars)", v.Section, len(v.Text))
	}
	return "does nothing"
}

// #endregion collaboration
