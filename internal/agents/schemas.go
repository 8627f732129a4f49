package agents

import "github.com/danielpatrickdp/storyforge/internal/collab"

// Schemas are plain map/slice values so they encode into structpb as-is.

func object(props map[string]any, required ...string) map[string]any {
	req := make([]any, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]any{"type": "object", "properties": props, "required": req}
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func enum(values ...string) map[string]any {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return map[string]any{"type": "string", "enum": vs}
}

func stringList(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

func axisScores() map[string]any {
	props := make(map[string]any, len(JudgeAxes))
	for _, a := range JudgeAxes {
		props[a] = map[string]any{"type": "number", "minimum": 0, "maximum": 1}
	}
	return map[string]any{"type": "object", "properties": props}
}

var judgementSchema = object(map[string]any{
	"winner":           enum("A", "B"),
	"reasoning":        str("why the winner is better"),
	"scores_a":         axisScores(),
	"scores_b":         axisScores(),
	"praised_excerpts": stringList("verbatim passages worth keeping from either text"),
	"weaknesses":       stringList("concrete weaknesses of either text"),
}, "winner", "reasoning", "scores_a", "scores_b")

var critiqueSchema = object(map[string]any{
	"score":    map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	"feedback": str("actionable critique"),
}, "score", "feedback")

var facilitationSchema = object(map[string]any{
	"next_phase":       enum(string(collab.PhaseProposal), string(collab.PhaseDiscussion), string(collab.PhaseDrafting), string(collab.PhaseReview)),
	"assignments":      map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}, "description": "section name to participant id"},
	"summary":          str("one paragraph summary of the round"),
	"should_terminate": map[string]any{"type": "boolean"},
	"consensus_score":  map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	"continue_rounds":  map[string]any{"type": "integer", "minimum": 0},
}, "next_phase", "summary", "should_terminate", "consensus_score")

// actionCapabilities describes each action kind as a selectable capability.
var actionCapabilities = map[collab.ActionKind]struct {
	desc   string
	params map[string]any
}{
	collab.KindProposal: {
		desc:   "Propose an idea, angle or structure for the piece.",
		params: object(map[string]any{"content": str("the proposal")}, "content"),
	},
	collab.KindFeedback: {
		desc: "Respond to another participant's contribution.",
		params: object(map[string]any{
			"target_participant_id": str("who you are responding to"),
			"sentiment": enum(string(collab.SentimentAgree), string(collab.SentimentDisagree),
				string(collab.SentimentSuggestRevision), string(collab.SentimentChallenge)),
			"feedback":         str("your response"),
			"counter_proposal": str("optional alternative"),
		}, "target_participant_id", "sentiment", "feedback"),
	},
	collab.KindVolunteer: {
		desc:   "Offer to write a named section.",
		params: object(map[string]any{"section": str("section name"), "reason": str("why you")}, "section", "reason"),
	},
	collab.KindDraft: {
		desc:   "Write or rewrite the text of a section.",
		params: object(map[string]any{"section": str("section name"), "text": str("the section prose")}, "section", "text"),
	},
}
