package chat

import (
	"fmt"
	"strings"

	"github.com/charla-ai/charla/internal/knowledge"
	"github.com/charla-ai/charla/internal/query"
	"github.com/charla-ai/charla/internal/ranker"
	"github.com/charla-ai/charla/internal/session"
)

// citationsHeading labels the source list appended to cited answers.
const citationsHeading = "Enlaces consultados:"

// answerSystemPrompt selects the system instruction for the answer
// model based on what the pipeline knows about the request.
func answerSystemPrompt(eq query.EffectiveQuery, degraded bool) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant. Answer in the same language as the user's message.\n")

	switch {
	case eq.NeedsClarification:
		b.WriteString("The user's message is ambiguous. Ask one short clarifying question instead of answering.\n")
	case eq.IsConversationalMeta:
		b.WriteString("The user is asking about this conversation itself. Answer ONLY from the conversation history provided. Do not invent content and do not cite external sources.\n")
	case degraded:
		b.WriteString("Web search is unavailable for this request. Answer from the conversation context and general knowledge, and say so briefly if the question needs current information.\n")
	default:
		b.WriteString("Base your answer on the provided sources when they are relevant. Do not fabricate facts the sources do not support.\n")
	}
	return b.String()
}

// buildAnswerPrompt renders the full answer prompt: conversation
// window, knowledge base context, ranked sources, and the user message.
func buildAnswerPrompt(message string, eq query.EffectiveQuery, history []session.Exchange, citations []ranker.ScoredSource, kb []knowledge.Entry) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, ex := range history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.User, ex.Assistant)
		}
		b.WriteString("\n")
	}

	if len(kb) > 0 {
		b.WriteString("Trusted local knowledge:\n")
		for _, e := range kb {
			fmt.Fprintf(&b, "- %s: %s\n", e.Topic, e.Content)
		}
		b.WriteString("\n")
	}

	if len(citations) > 0 {
		b.WriteString("Web sources:\n")
		for i, src := range citations {
			fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, src.Title, src.URL)
			if src.Content != "" {
				fmt.Fprintf(&b, "    %s\n", src.Content)
			} else if src.Snippet != "" {
				fmt.Fprintf(&b, "    %s\n", src.Snippet)
			}
		}
		b.WriteString("\n")
	}

	if eq.IsFollowUp && eq.Rewritten != "" {
		fmt.Fprintf(&b, "The user's message refers to earlier context; interpreted as: %s\n\n", eq.Rewritten)
	}

	fmt.Fprintf(&b, "User message: %s\n", message)
	return b.String()
}

// citationTitles extracts the titles recorded on the assistant turn as
// topic hints for later follow-up rewriting. Untitled sources fall back
// to their display link.
func citationTitles(citations []ranker.ScoredSource) []string {
	if len(citations) == 0 {
		return nil
	}
	titles := make([]string, 0, len(citations))
	for _, src := range citations {
		switch {
		case src.Title != "":
			titles = append(titles, src.Title)
		case src.DisplayLink != "":
			titles = append(titles, src.DisplayLink)
		}
	}
	if len(titles) == 0 {
		return nil
	}
	return titles
}

// appendCitations adds the consulted-links section after the answer
// text. Answers without citations pass through unchanged.
func appendCitations(text string, citations []ranker.ScoredSource) string {
	if len(citations) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(text, "\n"))
	b.WriteString("\n\n")
	b.WriteString(citationsHeading)
	for _, src := range citations {
		b.WriteString("\n- ")
		if src.Title != "" {
			b.WriteString(src.Title)
			b.WriteString(": ")
		}
		b.WriteString(src.URL)
	}
	return b.String()
}
