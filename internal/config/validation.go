package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Validate performs fail-fast validation of the configuration.
// It checks ranges and structural invariants only; secret presence is
// deferred to ValidateServe so offline commands (version, help) and
// tests can load a config without credentials.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama, openai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f (must be in [0, 2])", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 100_000 {
		return fmt.Errorf("%w: %d (must be in [1, 100000])", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.Provider == ProviderOllama {
		u, err := url.Parse(c.OllamaHost)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidOllamaHost, c.OllamaHost)
		}
	}

	if c.HistoryWindow < 1 || c.HistoryWindow > MaxHistoryWindow {
		return fmt.Errorf("%w: %d (must be in [1, %d])", ErrInvalidHistoryWindow, c.HistoryWindow, MaxHistoryWindow)
	}

	if c.Search.ResultCount < 1 || c.Search.ResultCount > MaxResultCount {
		return fmt.Errorf("%w: %d (must be in [1, %d])", ErrInvalidResultCount, c.Search.ResultCount, MaxResultCount)
	}

	if c.Ranker.MaxCitations < 1 || c.Ranker.MaxCitations > c.Search.ResultCount {
		return fmt.Errorf("%w: %d (must be in [1, %d])", ErrInvalidCitationCap, c.Ranker.MaxCitations, c.Search.ResultCount)
	}

	r := c.Ranker
	if r.TitleWeight <= 0 || r.SnippetWeight <= 0 || r.AuthorityBonus < 0 || r.DuplicatePenalty < 0 {
		return fmt.Errorf("%w: weights must be positive", ErrInvalidWeights)
	}
	if r.TitleWeight <= r.SnippetWeight || r.SnippetWeight <= r.AuthorityBonus {
		return fmt.Errorf("%w: require title > snippet > authority (got %.2f, %.2f, %.2f)",
			ErrInvalidWeights, r.TitleWeight, r.SnippetWeight, r.AuthorityBonus)
	}

	return nil
}

// ValidateServe performs the additional checks required before serving
// real traffic: external credentials must be present.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Search.APIKey == "" || c.Search.EngineID == "" {
		return fmt.Errorf("%w: set GOOGLE_API_KEY and GOOGLE_CX", ErrMissingSearchKey)
	}

	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_GENAI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY not set", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY not set", ErrMissingAPIKey)
		}
	}
	// Ollama is local; no key required.

	return nil
}
