// Package query decides whether an utterance is a follow-up that needs
// conversation context, rewrites follow-ups into self-contained search
// queries, and classifies conversational-meta questions.
package query

import (
	"context"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// EffectiveQuery is the outcome of reformulation for one utterance.
// Produced once per request and never persisted.
type EffectiveQuery struct {
	// Original is the user's utterance verbatim.
	Original string `json:"original"`

	// Rewritten is the self-contained rewrite, empty when the utterance
	// stood on its own or the rewrite degraded to the original.
	Rewritten string `json:"rewritten,omitempty"`

	// IsFollowUp reports that the utterance needed conversation context.
	IsFollowUp bool `json:"is_follow_up"`

	// IsConversationalMeta reports that the utterance asks about the
	// conversation itself rather than the world. Independent of
	// IsFollowUp; suppresses web citations downstream.
	IsConversationalMeta bool `json:"is_conversational_meta"`

	// NeedsClarification reports that the utterance is too ambiguous to
	// rewrite with confidence even given the context window.
	NeedsClarification bool `json:"needs_clarification"`
}

// SearchText returns the text to hand to the search collaborator.
func (q EffectiveQuery) SearchText() string {
	if q.Rewritten != "" {
		return q.Rewritten
	}
	return q.Original
}

// Completion is the tagged union of rewrite-collaborator output shapes:
// a bare string or a structured message. Exactly one side is set.
type Completion struct {
	Text    string
	Message *ai.Message
}

// PlainText normalizes either completion shape to plain text.
func (c Completion) PlainText() string {
	if c.Message == nil {
		return strings.TrimSpace(c.Text)
	}
	var b strings.Builder
	for _, part := range c.Message.Content {
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

// Generator is the text-generation collaborator used for rewrites.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (Completion, error)
}
