// Package app wires the application components together: config,
// logging, session store, model client, retrieval collaborators, and
// the assistant itself. Both the CLI and the HTTP server build their
// dependency graph through Setup.
package app

import (
	"context"
	"fmt"

	"github.com/charla-ai/charla/internal/chat"
	"github.com/charla-ai/charla/internal/config"
	"github.com/charla-ai/charla/internal/fetch"
	"github.com/charla-ai/charla/internal/knowledge"
	"github.com/charla-ai/charla/internal/llm"
	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/ranker"
	"github.com/charla-ai/charla/internal/search"
	"github.com/charla-ai/charla/internal/session"
)

// App is the application container.
type App struct {
	Config    *config.Config
	Logger    log.Logger
	Sessions  *session.Store
	Knowledge *knowledge.Base
	Assistant *chat.Assistant
}

// Setup builds the full dependency graph from configuration.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	sessions, err := session.NewStore(cfg.HistoryPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("initializing session store: %w", err)
	}

	var opts []knowledge.Option
	if cfg.RedisURL != "" {
		opts = append(opts, knowledge.WithRedis(cfg.RedisURL))
	}
	kb, err := knowledge.New(ctx, cfg.KnowledgePath(), logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	client, err := llm.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing model client: %w", err)
	}

	assistant, err := chat.New(chat.Config{
		LLM:           client,
		Sessions:      sessions,
		Searcher:      search.NewClient(cfg.Search, logger),
		Fetcher:       fetch.New(cfg.Fetcher, logger),
		Ranker:        ranker.New(cfg.Ranker, logger),
		Knowledge:     kb,
		Logger:        logger,
		HistoryWindow: cfg.HistoryWindow,
		ResultCount:   cfg.Search.ResultCount,
		MinFollowUp:   cfg.MinFollowUpWords,
	})
	if err != nil {
		return nil, fmt.Errorf("building assistant: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Sessions:  sessions,
		Knowledge: kb,
		Assistant: assistant,
	}, nil
}

// Close releases resources held by the container.
func (a *App) Close() error {
	if a.Knowledge != nil {
		if err := a.Knowledge.Close(); err != nil {
			return fmt.Errorf("closing knowledge base: %w", err)
		}
	}
	return nil
}
