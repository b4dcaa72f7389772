// Package llm wraps Genkit model access behind a small client interface.
//
// The rest of the application talks to Client, which keeps the query
// rewriter and the answer pipeline testable without a live provider.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"golang.org/x/time/rate"

	"github.com/charla-ai/charla/internal/config"
	"github.com/charla-ai/charla/internal/log"
)

// Sentinel errors for model operations.
var (
	// ErrEmptyPrompt indicates the request carried no prompt text.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrGenerationFailed indicates the model call failed after retries.
	ErrGenerationFailed = errors.New("generation failed")
)

// Request is a single model invocation.
type Request struct {
	// System is the system instruction, may be empty.
	System string

	// Prompt is the user-facing prompt text. Required.
	Prompt string

	// History carries prior conversation messages, oldest first.
	History []*ai.Message
}

// StreamFunc receives partial output text as it is generated.
// Returning an error aborts the stream.
type StreamFunc func(ctx context.Context, text string) error

// Client is the model access surface used by the rest of the app.
type Client interface {
	// Generate produces the full response text for a request.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream produces the response incrementally through cb and
	// returns the complete text once generation finishes.
	GenerateStream(ctx context.Context, req Request, cb StreamFunc) (string, error)
}

// GenkitClient is the production Client backed by a Genkit instance.
//
// All configuration is captured at construction; the client is safe for
// concurrent use.
type GenkitClient struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	maxTokens   int

	retry   RetryConfig
	limiter *rate.Limiter
	logger  log.Logger
}

// New initializes Genkit with the configured provider and returns a
// client bound to the configured model.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*GenkitClient, error) {
	g, err := initGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithGenkit(g, cfg, logger), nil
}

// NewWithGenkit wraps an existing Genkit instance. Used by tests and by
// callers that manage Genkit initialization themselves.
func NewWithGenkit(g *genkit.Genkit, cfg *config.Config, logger log.Logger) *GenkitClient {
	return &GenkitClient{
		g:           g,
		modelName:   cfg.FullModelName(),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retry:       DefaultRetryConfig(),
		// 10 req/s sustained with burst of 30 stays inside every
		// provider's free tier.
		limiter: rate.NewLimiter(10, 30),
		logger:  logger.With("component", "llm"),
	}
}

// initGenkit initializes Genkit with the configured AI provider plugin.
// Supports gemini (default), ollama, and openai.
func initGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, nil

	case config.ProviderOpenAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)
		return g, nil

	default: // "gemini"
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
		return g, nil
	}
}

// Generate implements Client.
func (c *GenkitClient) Generate(ctx context.Context, req Request) (string, error) {
	return c.GenerateStream(ctx, req, nil)
}

// GenerateStream implements Client.
func (c *GenkitClient) GenerateStream(ctx context.Context, req Request, cb StreamFunc) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}

	messages := make([]*ai.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(req.Prompt)))

	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithMessages(messages...),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     float64(c.temperature),
			MaxOutputTokens: c.maxTokens,
		}),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if cb != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if chunk == nil {
				return nil
			}
			for _, part := range chunk.Content {
				if part.Text == "" {
					continue
				}
				if err := cb(ctx, part.Text); err != nil {
					return err
				}
			}
			return nil
		}))
	}

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	return strings.TrimSpace(resp.Text()), nil
}
