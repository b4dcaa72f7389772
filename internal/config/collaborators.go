package config

// Collaborator configuration types.
//
// Each collaborator of the answer pipeline (web search, page fetch,
// relevance ranking) carries its own configuration block so the pieces
// stay independently testable.

// SearchConfig configures the Google Custom Search JSON API client.
type SearchConfig struct {
	// APIKey is the Custom Search API key. SENSITIVE: masked in logs.
	APIKey string `mapstructure:"api_key" json:"api_key"`

	// EngineID is the Programmable Search Engine ID (the "cx" parameter).
	EngineID string `mapstructure:"engine_id" json:"engine_id"`

	// Endpoint is the API base URL. Overridable for tests.
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`

	// ResultCount is the number of results requested per query.
	// Always sent as the "num" parameter; the provider caps it at 10.
	ResultCount int `mapstructure:"result_count" json:"result_count"`

	// TimeoutMs bounds a single search request.
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`

	// AcceptEncoding is sent verbatim on search requests.
	AcceptEncoding string `mapstructure:"accept_encoding" json:"accept_encoding"`

	// UserAgent identifies this client to the API.
	UserAgent string `mapstructure:"user_agent" json:"user_agent"`
}

// FetcherConfig configures page content retrieval for cited sources.
type FetcherConfig struct {
	// Parallelism bounds concurrent page fetches.
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`

	// TimeoutMs bounds a single page fetch.
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`

	// MaxParagraphs is the number of leading paragraphs kept per page.
	MaxParagraphs int `mapstructure:"max_paragraphs" json:"max_paragraphs"`

	// MaxContentChars truncates extracted content per page.
	MaxContentChars int `mapstructure:"max_content_chars" json:"max_content_chars"`

	// UserAgent identifies the fetcher to target sites.
	UserAgent string `mapstructure:"user_agent" json:"user_agent"`

	// AllowPrivateHosts disables the SSRF guard. Local testing only.
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts" json:"allow_private_hosts"`
}

// RankerConfig configures source relevance scoring.
//
// The weights are tunable but must preserve the ordering
// title > snippet > authority bonus; Validate enforces it.
type RankerConfig struct {
	// TitleWeight scores query-term overlap with the result title.
	TitleWeight float64 `mapstructure:"title_weight" json:"title_weight"`

	// SnippetWeight scores query-term overlap with the snippet or
	// fetched content.
	SnippetWeight float64 `mapstructure:"snippet_weight" json:"snippet_weight"`

	// AuthorityBonus is added once when the result host matches an
	// entry in AuthorityDomains.
	AuthorityBonus float64 `mapstructure:"authority_bonus" json:"authority_bonus"`

	// DuplicatePenalty is subtracted from near-duplicate results that
	// survive URL dedup (same host, near-identical titles).
	DuplicatePenalty float64 `mapstructure:"duplicate_penalty" json:"duplicate_penalty"`

	// MaxCitations caps the citation set size.
	MaxCitations int `mapstructure:"max_citations" json:"max_citations"`

	// AuthorityDomains lists hosts considered authoritative.
	// Matching is suffix-based: "wikipedia.org" matches "es.wikipedia.org".
	AuthorityDomains []string `mapstructure:"authority_domains" json:"authority_domains"`
}
