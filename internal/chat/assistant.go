// Package chat orchestrates the answer pipeline: reformulate the
// utterance, retrieve and enrich candidate sources, rank them into a
// citation set, and assemble a cited answer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charla-ai/charla/internal/config"
	"github.com/charla-ai/charla/internal/fetch"
	"github.com/charla-ai/charla/internal/knowledge"
	"github.com/charla-ai/charla/internal/llm"
	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/query"
	"github.com/charla-ai/charla/internal/ranker"
	"github.com/charla-ai/charla/internal/search"
	"github.com/charla-ai/charla/internal/session"
)

// Sentinel errors for pipeline operations.
var (
	// ErrInvalidSession indicates a blank session identifier.
	ErrInvalidSession = errors.New("invalid session")

	// ErrEmptyMessage indicates a blank user message.
	ErrEmptyMessage = errors.New("empty message")

	// ErrAnswerFailed indicates answer generation failed after all
	// degradation paths.
	ErrAnswerFailed = errors.New("answer generation failed")
)

// fallbackAnswer is returned when the model produces empty output.
const fallbackAnswer = "Lo siento, no pude generar una respuesta. ¿Podrías reformular tu pregunta?"

// knowledgeLimit bounds how many knowledge base entries feed the prompt.
const knowledgeLimit = 2

// Answer is the complete result of one pipeline run.
type Answer struct {
	SessionID string                `json:"session_id"`
	Text      string                `json:"text"`
	Sources   []ranker.ScoredSource `json:"sources"`
	Query     query.EffectiveQuery  `json:"query"`

	// Degraded reports that web retrieval failed entirely and the
	// answer was produced from conversation context alone.
	Degraded bool `json:"degraded"`
}

// StreamFunc receives incremental answer text.
type StreamFunc func(ctx context.Context, text string) error

// Enricher fills page content into candidate sources. Implemented by
// fetch.Fetcher; an interface here keeps the pipeline testable without
// live pages.
type Enricher interface {
	Enrich(ctx context.Context, sources []search.Result) []search.Result
}

var _ Enricher = (*fetch.Fetcher)(nil)

// Config carries the assistant's collaborators.
type Config struct {
	LLM       llm.Client
	Sessions  *session.Store
	Searcher  search.Searcher
	Fetcher   Enricher
	Ranker    *ranker.Ranker
	Knowledge *knowledge.Base // nil = knowledge base disabled
	Logger    log.Logger

	HistoryWindow int
	ResultCount   int
	MinFollowUp   int
	Patterns      query.Patterns // zero value = defaults
}

func (cfg Config) validate() error {
	if cfg.LLM == nil {
		return errors.New("llm client is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Searcher == nil {
		return errors.New("searcher is required")
	}
	if cfg.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if cfg.Ranker == nil {
		return errors.New("ranker is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Assistant runs the retrieval-augmented answer pipeline. Stateless
// apart from its collaborators; safe for concurrent use.
type Assistant struct {
	llm          llm.Client
	sessions     *session.Store
	searcher     search.Searcher
	fetcher      Enricher
	ranker       *ranker.Ranker
	knowledge    *knowledge.Base
	reformulator *query.Reformulator
	logger       log.Logger

	historyWindow int
	resultCount   int
}

// New builds an Assistant.
func New(cfg Config) (*Assistant, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	window := cfg.HistoryWindow
	if window < 1 {
		window = config.DefaultHistoryWindow
	}
	count := cfg.ResultCount
	if count < 1 {
		count = config.DefaultResultCount
	}
	patterns := cfg.Patterns
	if len(patterns.MetaPhrases) == 0 && len(patterns.AnaphoraWords) == 0 {
		patterns = query.DefaultPatterns()
	}

	classifier := query.NewClassifier(patterns, cfg.MinFollowUp)
	reformulator := query.NewReformulator(
		&rewriteAdapter{client: cfg.LLM}, classifier, window, cfg.Logger)

	return &Assistant{
		llm:           cfg.LLM,
		sessions:      cfg.Sessions,
		searcher:      cfg.Searcher,
		fetcher:       cfg.Fetcher,
		ranker:        cfg.Ranker,
		knowledge:     cfg.Knowledge,
		reformulator:  reformulator,
		logger:        cfg.Logger.With("component", "chat"),
		historyWindow: window,
		resultCount:   count,
	}, nil
}

// rewriteAdapter exposes llm.Client as the rewrite collaborator.
type rewriteAdapter struct {
	client llm.Client
}

func (a *rewriteAdapter) Generate(ctx context.Context, system, prompt string) (query.Completion, error) {
	out, err := a.client.Generate(ctx, llm.Request{System: system, Prompt: prompt})
	if err != nil {
		return query.Completion{}, err
	}
	return query.Completion{Text: out}, nil
}

// Chat answers a message synchronously.
func (a *Assistant) Chat(ctx context.Context, sessionID, message string) (*Answer, error) {
	return a.ChatStream(ctx, sessionID, message, nil)
}

// ChatStream answers a message, delivering text incrementally through
// cb when it is non-nil. The completed exchange is appended to the
// session only after generation finishes, so a canceled stream never
// records a half answer and never holds the store lock while blocked on
// the model.
func (a *Assistant) ChatStream(ctx context.Context, sessionID, message string, cb StreamFunc) (*Answer, error) {
	if !session.ValidID(sessionID) {
		return nil, ErrInvalidSession
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	// Consistent snapshot at request start; later appends from other
	// in-flight requests do not affect this run.
	history := a.sessions.RecentWindow(sessionID, a.historyWindow)

	eq := a.reformulator.Reformulate(ctx, message, history)

	sources, degraded := a.retrieve(ctx, eq)
	citations := a.ranker.Rank(eq.SearchText(), eq.IsConversationalMeta, sources)

	if eq.IsConversationalMeta && len(sources) > 0 {
		// Audit trail for suppressed retrievals.
		a.logger.Info("citations suppressed for conversational meta query",
			"session_id", sessionID,
			"retrieved", len(sources))
	}

	text, err := a.generate(ctx, message, eq, history, citations, degraded, cb)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnswerFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		a.logger.Warn("model returned empty answer", "session_id", sessionID)
		text = fallbackAnswer
	}

	text = appendCitations(text, citations)

	if err := a.sessions.AppendExchange(sessionID, message, text, citationTitles(citations)); err != nil {
		a.logger.Warn("appending exchange to history", "error", err)
	}

	return &Answer{
		SessionID: sessionID,
		Text:      text,
		Sources:   citations,
		Query:     eq,
		Degraded:  degraded,
	}, nil
}

// retrieve runs web search and page enrichment for the effective query.
// A total search failure degrades to an empty batch; partial batches
// pass through. Clarification requests skip retrieval entirely.
func (a *Assistant) retrieve(ctx context.Context, eq query.EffectiveQuery) (results []search.Result, degraded bool) {
	if eq.NeedsClarification {
		return nil, false
	}

	results, err := a.searcher.Search(ctx, eq.SearchText(), a.resultCount)
	if err != nil {
		a.logger.Warn("search failed, answering from conversation context",
			"error", err)
		return nil, true
	}
	if len(results) == 0 {
		return nil, true
	}

	return a.fetcher.Enrich(ctx, results), false
}

// generate assembles the answer prompt and calls the model.
func (a *Assistant) generate(ctx context.Context, message string, eq query.EffectiveQuery, history []session.Exchange, citations []ranker.ScoredSource, degraded bool, cb StreamFunc) (string, error) {
	var kbEntries []knowledge.Entry
	if a.knowledge != nil {
		kbEntries = a.knowledge.Relevant(eq.SearchText(), knowledgeLimit)
	}

	req := llm.Request{
		System: answerSystemPrompt(eq, degraded),
		Prompt: buildAnswerPrompt(message, eq, history, citations, kbEntries),
	}

	if cb == nil {
		return a.llm.Generate(ctx, req)
	}
	return a.llm.GenerateStream(ctx, req, llm.StreamFunc(cb))
}
