// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.charla/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, temperature, max tokens
//   - Search: Google Custom Search credentials and request shape (see collaborators.go)
//   - Fetcher: page-content fetch limits (see collaborators.go)
//   - Ranker: relevance weights and citation cap (see collaborators.go)
//   - Store: data directory, history/knowledge file paths, Redis URL
//
// Security: sensitive values (API keys) are masked in MarshalJSON and String.
// Validation: range checks in validation.go with sentinel errors for errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrMissingSearchKey indicates the search API key or engine ID is missing.
	ErrMissingSearchKey = errors.New("missing search credentials")

	// ErrInvalidResultCount indicates the search result count is out of range.
	ErrInvalidResultCount = errors.New("invalid search result count")

	// ErrInvalidCitationCap indicates the citation cap is out of range.
	ErrInvalidCitationCap = errors.New("invalid citation cap")

	// ErrInvalidWeights indicates the ranker weights violate the required ordering.
	ErrInvalidWeights = errors.New("invalid ranker weights")

	// ErrInvalidHistoryWindow indicates the rewrite history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultHistoryWindow is the number of prior turns included in the
	// rewrite prompt. A bounded window keeps the prompt compact and stable.
	DefaultHistoryWindow = 3

	// MaxHistoryWindow is the absolute maximum rewrite window.
	MaxHistoryWindow = 20

	// DefaultResultCount is the number of web results always requested,
	// regardless of downstream filtering.
	DefaultResultCount = 5

	// MaxResultCount is the provider-imposed maximum per request.
	MaxResultCount = 10
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "gpt-4o", "llama3.3"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`
	Language    string  `mapstructure:"language" json:"language"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Query reformulation configuration
	HistoryWindow    int `mapstructure:"history_window" json:"history_window"`         // prior turns in the rewrite prompt
	MinFollowUpWords int `mapstructure:"min_followup_words" json:"min_followup_words"` // utterances shorter than this are follow-up candidates

	// Collaborator configuration (see collaborators.go for type definitions)
	Search  SearchConfig  `mapstructure:"search" json:"search"`
	Fetcher FetcherConfig `mapstructure:"fetcher" json:"fetcher"`
	Ranker  RankerConfig  `mapstructure:"ranker" json:"ranker"`

	// Storage configuration
	DataDir       string `mapstructure:"data_dir" json:"data_dir"`             // directory for JSON stores
	HistoryFile   string `mapstructure:"history_file" json:"history_file"`     // conversation history JSON file
	KnowledgeFile string `mapstructure:"knowledge_file" json:"knowledge_file"` // knowledge base JSON file
	RedisURL      string `mapstructure:"redis_url" json:"redis_url"`           // optional knowledge cache ("" = disabled)

	// Server configuration (serve mode only)
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For headers
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".charla")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Fail-fast validation
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("language", "auto")

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Reformulation defaults
	viper.SetDefault("history_window", DefaultHistoryWindow)
	viper.SetDefault("min_followup_words", 3)

	// Search defaults (Google Custom Search JSON API)
	viper.SetDefault("search.endpoint", "https://www.googleapis.com/customsearch/v1")
	viper.SetDefault("search.result_count", DefaultResultCount)
	viper.SetDefault("search.timeout_ms", 10000)
	viper.SetDefault("search.accept_encoding", "gzip")
	viper.SetDefault("search.user_agent", "charla/1.0")

	// Fetcher defaults
	viper.SetDefault("fetcher.parallelism", 5)
	viper.SetDefault("fetcher.timeout_ms", 5000)
	viper.SetDefault("fetcher.max_paragraphs", 5)
	viper.SetDefault("fetcher.max_content_chars", 1000)

	// Ranker defaults. Only the relative ordering is load-bearing:
	// title > snippet/content > authority bonus.
	viper.SetDefault("ranker.title_weight", 3.0)
	viper.SetDefault("ranker.snippet_weight", 1.0)
	viper.SetDefault("ranker.authority_bonus", 0.5)
	viper.SetDefault("ranker.duplicate_penalty", 0.25)
	viper.SetDefault("ranker.max_citations", 5)
	viper.SetDefault("ranker.authority_domains", []string{})

	// Storage defaults
	viper.SetDefault("data_dir", "data")
	viper.SetDefault("history_file", "historical_conversation.json")
	viper.SetDefault("knowledge_file", "knowledge_base.json")
	viper.SetDefault("redis_url", "")

	// CORS defaults
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})

	// Proxy trust (default: false — safe for direct exposure)
	viper.SetDefault("trust_proxy", false)
}

// bindEnvVariables binds environment variables explicitly.
// Secrets:
//   - GOOGLE_API_KEY / GOOGLE_CX — Custom Search credentials
//   - REDIS_URL — optional knowledge cache
//   - GEMINI_API_KEY / OPENAI_API_KEY — read directly by the Genkit provider
//     plugins (not via viper); presence is checked in ValidateServe()
func bindEnvVariables() {
	// Hardcoded keys can't fail to bind; a failure here is a bug, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("search.api_key", "GOOGLE_API_KEY")
	mustBind("search.engine_id", "GOOGLE_CX")
	mustBind("redis_url", "REDIS_URL")

	mustBind("provider", "CHARLA_PROVIDER")
	mustBind("model_name", "CHARLA_MODEL_NAME")
	mustBind("ollama_host", "CHARLA_OLLAMA_HOST")
	mustBind("cors_origins", "CHARLA_CORS_ORIGINS")
	mustBind("trust_proxy", "CHARLA_TRUST_PROXY")
	mustBind("data_dir", "CHARLA_DATA_DIR")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked; longer secrets keep the
// first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// Sensitive fields masked: Search.APIKey, RedisURL (may embed a password).
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.Search.APIKey = maskSecret(a.Search.APIKey)
	a.RedisURL = maskSecret(a.RedisURL)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// HistoryPath returns the absolute-ish path of the conversation history file.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, c.HistoryFile)
}

// KnowledgePath returns the path of the knowledge base file.
func (c *Config) KnowledgePath() string {
	return filepath.Join(c.DataDir, c.KnowledgeFile)
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
