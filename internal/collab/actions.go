package collab

import (
	"encoding/json"
	"fmt"
)

// #region kinds

// ActionKind discriminates the closed set of collaboration actions.
type ActionKind string

const (
	KindProposal  ActionKind = "proposal"
	KindFeedback  ActionKind = "feedback"
	KindVolunteer ActionKind = "volunteer"
	KindDraft     ActionKind = "draft"
)

// AllKinds lists every action kind in declaration order.
var AllKinds = []ActionKind{KindProposal, KindFeedback, KindVolunteer, KindDraft}

// Action is one of Proposal, Feedback, Volunteer or Draft. The set is sealed.
type Action interface {
	Kind() ActionKind
	sealed()
}

// #endregion kinds

// #region variants

// Proposal puts forward an idea for the piece.
type Proposal struct {
	Content string `json:"content"`
}

// Sentiment is a participant's stance on another participant's contribution.
type Sentiment string

const (
	SentimentAgree           Sentiment = "agree"
	SentimentDisagree        Sentiment = "disagree"
	SentimentSuggestRevision Sentiment = "suggest_revision"
	SentimentChallenge       Sentiment = "challenge"
)

// Valid reports whether s is one of the four known sentiments.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentAgree, SentimentDisagree, SentimentSuggestRevision, SentimentChallenge:
		return true
	}
	return false
}

// Feedback responds to another participant.
type Feedback struct {
	TargetParticipantID string    `json:"target_participant_id"`
	Sentiment           Sentiment `json:"sentiment"`
	Feedback            string    `json:"feedback"`
	CounterProposal     string    `json:"counter_proposal,omitempty"`
}

// Volunteer offers to write a section.
type Volunteer struct {
	Section string `json:"section"`
	Reason  string `json:"reason"`
}

// Draft is text for one section. A later draft of the same section replaces
// the earlier one.
type Draft struct {
	Section string `json:"section"`
	Text    string `json:"text"`
}

func (Proposal) Kind() ActionKind  { return KindProposal }
func (Feedback) Kind() ActionKind  { return KindFeedback }
func (Volunteer) Kind() ActionKind { return KindVolunteer }
func (Draft) Kind() ActionKind     { return KindDraft }

func (Proposal) sealed()  {}
func (Feedback) sealed()  {}
func (Volunteer) sealed() {}
func (Draft) sealed()     {}

// #endregion variants

// #region attributed

// AttributedAction ties an action to the participant and round that made it.
type AttributedAction struct {
	ParticipantID string
	Round         int
	Action        Action
}

type actionEnvelope struct {
	ParticipantID string          `json:"participant_id"`
	Round         int             `json:"round"`
	Type          ActionKind      `json:"type"`
	Data          json.RawMessage `json:"data"`
}

func (a AttributedAction) MarshalJSON() ([]byte, error) {
	if a.Action == nil {
		return nil, fmt.Errorf("collab: nil action from %s", a.ParticipantID)
	}
	data, err := json.Marshal(a.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionEnvelope{
		ParticipantID: a.ParticipantID,
		Round:         a.Round,
		Type:          a.Action.Kind(),
		Data:          data,
	})
}

func (a *AttributedAction) UnmarshalJSON(b []byte) error {
	var env actionEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	act, err := DecodeAction(env.Type, env.Data)
	if err != nil {
		return err
	}
	a.ParticipantID = env.ParticipantID
	a.Round = env.Round
	a.Action = act
	return nil
}

// DecodeAction builds the variant named by kind from its JSON payload.
func DecodeAction(kind ActionKind, data []byte) (Action, error) {
	var (
		act Action
		err error
	)
	switch kind {
	case KindProposal:
		var v Proposal
		err = json.Unmarshal(data, &v)
		act = v
	case KindFeedback:
		var v Feedback
		err = json.Unmarshal(data, &v)
		act = v
	case KindVolunteer:
		var v Volunteer
		err = json.Unmarshal(data, &v)
		act = v
	case KindDraft:
		var v Draft
		err = json.Unmarshal(data, &v)
		act = v
	default:
		return nil, fmt.Errorf("collab: unknown action type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("collab: decode %s: %w", kind, err)
	}
	return act, nil
}

// #endregion attributed
