package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/session"
)

// rewriteSystemPrompt instructs the model to emit the structured
// analysis contract. Kept bilingual because most traffic is Spanish but
// the deployment is not language-locked.
const rewriteSystemPrompt = `You analyze the latest user message of a conversation and rewrite it as a single self-contained web search query. Resolve pronouns and implicit references using the conversation context.

Respond with ONLY a JSON object, no prose:
{
  "is_conversation_query": <true if the user asks about the conversation itself, e.g. "¿de qué hablamos antes?">,
  "needs_clarification": <true if the message is too ambiguous to rewrite even with context>,
  "reformulated_query": "<the self-contained query, in the user's language>"
}`

// Reformulator turns utterances into effective queries.
//
// Reformulation is best-effort: every collaborator failure degrades to
// the original utterance and is logged, never returned. Reformulate has
// no error result on purpose.
type Reformulator struct {
	gen        Generator
	classifier *Classifier
	window     int
	logger     log.Logger
}

// NewReformulator builds a Reformulator. window bounds how many prior
// exchanges feed the rewrite prompt.
func NewReformulator(gen Generator, classifier *Classifier, window int, logger log.Logger) *Reformulator {
	if window < 1 {
		window = 3
	}
	return &Reformulator{
		gen:        gen,
		classifier: classifier,
		window:     window,
		logger:     logger.With("component", "reformulator"),
	}
}

// Reformulate produces the EffectiveQuery for an utterance given the
// session's recent exchanges (oldest first).
//
// With no prior history the utterance always passes through verbatim:
// there is nothing to resolve references against, and a "what did we
// discuss" opener has no conversation to be meta about.
func (r *Reformulator) Reformulate(ctx context.Context, utterance string, history []session.Exchange) EffectiveQuery {
	eq := EffectiveQuery{Original: utterance}

	if len(history) == 0 {
		return eq
	}

	eq.IsConversationalMeta = r.classifier.IsConversationalMeta(utterance)

	if !r.classifier.IsFollowUpCandidate(utterance) {
		return eq
	}
	eq.IsFollowUp = true

	window := history
	if len(window) > r.window {
		window = window[len(window)-r.window:]
	}

	out, err := r.gen.Generate(ctx, rewriteSystemPrompt, buildRewritePrompt(utterance, window))
	if err != nil {
		r.logger.Warn("rewrite collaborator failed, using original utterance",
			"error", err)
		return eq
	}

	a, ok := parseAnalysis(out.PlainText())
	if !ok {
		r.logger.Warn("rewrite output unparseable, using original utterance",
			"output_length", len(out.PlainText()))
		return eq
	}

	if rewritten := strings.TrimSpace(a.ReformulatedQuery); rewritten != "" && rewritten != utterance {
		eq.Rewritten = rewritten
	}
	eq.NeedsClarification = a.NeedsClarification
	if a.IsConversationQuery {
		eq.IsConversationalMeta = true
	}
	// The rewrite may surface meta intent the original phrasing hid.
	if eq.Rewritten != "" && r.classifier.IsConversationalMeta(eq.Rewritten) {
		eq.IsConversationalMeta = true
	}

	r.logger.Debug("utterance reformulated",
		"follow_up", eq.IsFollowUp,
		"meta", eq.IsConversationalMeta,
		"rewritten", eq.Rewritten != "")
	return eq
}

// maxAssistantChars bounds assistant text in the rewrite prompt; the
// full answer adds tokens without adding referents.
const maxAssistantChars = 200

// buildRewritePrompt renders the bounded context window plus the
// utterance for the rewrite collaborator. Assistant turns are truncated
// and annotated with the topics they cited, which usually carry the
// antecedent a pronoun points at.
func buildRewritePrompt(utterance string, window []session.Exchange) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, ex := range window {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.User, truncateRunes(ex.Assistant, maxAssistantChars))
		if len(ex.Topics) > 0 {
			fmt.Fprintf(&b, "Topics: %s\n", strings.Join(ex.Topics, "; "))
		}
	}
	fmt.Fprintf(&b, "\nLatest user message: %s\n", utterance)
	return b.String()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
