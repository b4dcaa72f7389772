package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charla-ai/charla/internal/config"
	"github.com/charla-ai/charla/internal/llm"
	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/ranker"
	"github.com/charla-ai/charla/internal/search"
	"github.com/charla-ai/charla/internal/session"
)

// fakeLLM answers rewrite requests with rewriteOut and everything else
// with answerOut.
type fakeLLM struct {
	rewriteOut string
	answerOut  string
	err        error

	answerPrompts []string
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	return f.GenerateStream(ctx, req, nil)
}

func (f *fakeLLM) GenerateStream(ctx context.Context, req llm.Request, cb llm.StreamFunc) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if strings.Contains(req.System, "reformulated_query") {
		return f.rewriteOut, nil
	}
	f.answerPrompts = append(f.answerPrompts, req.Prompt)
	if cb != nil {
		for _, chunk := range strings.SplitAfter(f.answerOut, " ") {
			if err := cb(ctx, chunk); err != nil {
				return "", err
			}
		}
	}
	return f.answerOut, nil
}

type fakeSearcher struct {
	results []search.Result
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, q string, _ int) ([]search.Result, error) {
	f.queries = append(f.queries, q)
	return f.results, f.err
}

// passthroughEnricher returns sources untouched.
type passthroughEnricher struct{}

func (passthroughEnricher) Enrich(_ context.Context, s []search.Result) []search.Result {
	return s
}

func tortaSources() []search.Result {
	return []search.Result{
		{URL: "https://example.com/torta", Title: "Receta de torta de manzana", Snippet: "decoración con canela y azúcar", Rank: 0},
		{URL: "https://example.org/decorar", Title: "Cómo decorar una torta de manzana", Snippet: "qué poner arriba", Rank: 1},
	}
}

func newTestAssistant(t *testing.T, model *fakeLLM, searcher *fakeSearcher) *Assistant {
	t.Helper()

	store, err := session.NewStore(filepath.Join(t.TempDir(), "history.json"), log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	a, err := New(Config{
		LLM:      model,
		Sessions: store,
		Searcher: searcher,
		Fetcher:  passthroughEnricher{},
		Ranker: ranker.New(config.RankerConfig{
			TitleWeight:      3.0,
			SnippetWeight:    1.0,
			AuthorityBonus:   0.5,
			DuplicatePenalty: 0.25,
			MaxCitations:     5,
		}, log.NewNop()),
		Logger: log.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestChatFollowUpPipeline(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{
		rewriteOut: `{"is_conversation_query": false, "needs_clarification": false, "reformulated_query": "decoración torta de manzana qué poner arriba"}`,
		answerOut:  "Puedes ponerle crumble, canela o azúcar glas.",
	}
	searcher := &fakeSearcher{results: tortaSources()}
	a := newTestAssistant(t, model, searcher)

	// Seed the conversation so the follow-up has context.
	if err := a.sessions.AppendExchange("sess-1",
		"¿Cómo hacer una torta de manzana?",
		"Necesitas manzanas, harina, huevos y azúcar.",
		[]string{"Torta de manzana casera"}); err != nil {
		t.Fatal(err)
	}

	ans, err := a.Chat(context.Background(), "sess-1", "¿Qué le puedo poner arriba?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if !ans.Query.IsFollowUp {
		t.Error("follow-up not detected")
	}
	if len(searcher.queries) != 1 || !strings.Contains(searcher.queries[0], "torta de manzana") {
		t.Errorf("search used query %v, want the rewrite", searcher.queries)
	}
	if len(ans.Sources) == 0 {
		t.Fatal("no citations for a matching batch")
	}
	if !strings.Contains(ans.Text, "Enlaces consultados:") {
		t.Errorf("answer missing citation section: %q", ans.Text)
	}
	if !strings.Contains(ans.Text, ans.Sources[0].URL) {
		t.Errorf("answer missing cited URL: %q", ans.Text)
	}

	// The completed exchange lands in the session.
	turns := a.sessions.Snapshot("sess-1")
	if len(turns) != 4 {
		t.Fatalf("session has %d turns, want 4", len(turns))
	}
}

func TestChatMetaQuerySuppressesCitations(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{
		rewriteOut: `{"is_conversation_query": true, "needs_clarification": false, "reformulated_query": ""}`,
		answerOut:  "Hablamos sobre cómo hacer una torta de manzana.",
	}
	searcher := &fakeSearcher{results: tortaSources()}
	a := newTestAssistant(t, model, searcher)

	if err := a.sessions.AppendExchange("sess-1", "¿Cómo hacer una torta de manzana?", "Así...", nil); err != nil {
		t.Fatal(err)
	}

	ans, err := a.Chat(context.Background(), "sess-1", "¿De qué hablamos antes?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if !ans.Query.IsConversationalMeta {
		t.Error("meta query not detected")
	}
	if len(ans.Sources) != 0 {
		t.Fatalf("meta query surfaced %d citations, want 0", len(ans.Sources))
	}
	if strings.Contains(ans.Text, "Enlaces consultados:") {
		t.Errorf("meta answer has citation section: %q", ans.Text)
	}
	// History still reaches the answer prompt.
	if len(model.answerPrompts) != 1 || !strings.Contains(model.answerPrompts[0], "torta de manzana") {
		t.Error("answer prompt missing conversation history")
	}
}

func TestChatSearchFailureDegrades(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{answerOut: "Según nuestra conversación, necesitas manzanas."}
	searcher := &fakeSearcher{err: errors.New("503 service unavailable")}
	a := newTestAssistant(t, model, searcher)

	ans, err := a.Chat(context.Background(), "sess-1", "¿Cuál es la mejor variedad de manzana para hornear?")
	if err != nil {
		t.Fatalf("Chat must not fail on search outage: %v", err)
	}
	if !ans.Degraded {
		t.Error("Degraded = false after total search failure")
	}
	if len(ans.Sources) != 0 {
		t.Errorf("degraded answer has %d sources", len(ans.Sources))
	}
	if ans.Text == "" {
		t.Error("degraded answer is empty")
	}
}

func TestChatZeroResultsDegrades(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{answerOut: "No encontré fuentes, pero puedo ayudarte igualmente."}
	searcher := &fakeSearcher{results: nil}
	a := newTestAssistant(t, model, searcher)

	ans, err := a.Chat(context.Background(), "sess-1", "pregunta sin resultados posibles")
	if err != nil {
		t.Fatal(err)
	}
	if !ans.Degraded {
		t.Error("Degraded = false with zero results")
	}
}

func TestChatEmptyModelOutputGetsFallback(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{answerOut: "   "}
	searcher := &fakeSearcher{results: nil}
	a := newTestAssistant(t, model, searcher)

	ans, err := a.Chat(context.Background(), "sess-1", "hola mundo cruel")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != fallbackAnswer {
		t.Errorf("Text = %q, want fallback", ans.Text)
	}
}

func TestChatValidation(t *testing.T) {
	t.Parallel()

	a := newTestAssistant(t, &fakeLLM{answerOut: "x"}, &fakeSearcher{})

	if _, err := a.Chat(context.Background(), "", "hola"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("blank session: err = %v", err)
	}
	if _, err := a.Chat(context.Background(), "sess-1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank message: err = %v", err)
	}
}

func TestChatStreamDeliversChunks(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{answerOut: "una respuesta en varias palabras"}
	searcher := &fakeSearcher{results: nil}
	a := newTestAssistant(t, model, searcher)

	var chunks []string
	ans, err := a.ChatStream(context.Background(), "sess-1", "cuéntame algo interesante hoy",
		func(_ context.Context, text string) error {
			chunks = append(chunks, text)
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if len(chunks) < 2 {
		t.Errorf("got %d chunks, want streaming delivery", len(chunks))
	}
	if got := strings.Join(chunks, ""); strings.TrimSpace(got) != strings.TrimSpace(ans.Text) {
		t.Errorf("streamed text %q != final text %q", got, ans.Text)
	}
}

func TestChatLLMFailureSurfaces(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{err: errors.New("API key not valid")}
	searcher := &fakeSearcher{results: nil}
	a := newTestAssistant(t, model, searcher)

	_, err := a.Chat(context.Background(), "sess-1", "hola qué tal estás")
	if !errors.Is(err, ErrAnswerFailed) {
		t.Fatalf("err = %v, want ErrAnswerFailed", err)
	}
}
