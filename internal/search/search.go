// Package search retrieves candidate web sources via the Google Custom
// Search JSON API.
//
// The client is best-effort: a provider error surfaces as an error, but
// partial result sets (fewer items than requested) are returned as-is
// and never treated as failures.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charla-ai/charla/internal/config"
	"github.com/charla-ai/charla/internal/log"
)

// maxResponseBytes bounds a search API response body.
const maxResponseBytes = 4 << 20

var (
	// ErrSearchUnavailable indicates the search provider could not be
	// reached or returned a non-success status.
	ErrSearchUnavailable = errors.New("search unavailable")

	// ErrEmptyQuery indicates a blank search query.
	ErrEmptyQuery = errors.New("empty search query")
)

// Result is a single candidate web source as returned by the provider.
// Rank is the provider's 0-based position and is preserved through
// ranking as the tie-break signal.
type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"display_link,omitempty"`
	Content     string `json:"content,omitempty"` // filled in by the fetch collaborator
	Rank        int    `json:"rank"`
}

// Searcher is the retrieval surface consumed by the answer pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]Result, error)
}

// Client calls the Google Custom Search JSON API.
type Client struct {
	cfg    config.SearchConfig
	http   *http.Client
	logger log.Logger
}

// NewClient builds a search client from configuration.
func NewClient(cfg config.SearchConfig, logger log.Logger) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		},
		logger: logger.With("component", "search"),
	}
}

// apiResponse mirrors the subset of the Custom Search response we use.
type apiResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		DisplayLink string `json:"displayLink"`
	} `json:"items"`
}

// Search requests up to count results for query.
// The provider may return fewer items than requested; that is not an
// error. Zero items with a success status yields an empty slice.
func (c *Client) Search(ctx context.Context, query string, count int) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if count < 1 || count > config.MaxResultCount {
		count = config.DefaultResultCount
	}

	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("cx", c.cfg.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	if c.cfg.AcceptEncoding != "" {
		req.Header.Set("Accept-Encoding", c.cfg.AcceptEncoding)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("search provider returned non-OK status",
			"status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: status %d", ErrSearchUnavailable, resp.StatusCode)
	}

	var parsed apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrSearchUnavailable, err)
	}

	results := make([]Result, 0, len(parsed.Items))
	for i, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{
			URL:         item.Link,
			Title:       item.Title,
			Snippet:     item.Snippet,
			DisplayLink: item.DisplayLink,
			Rank:        i,
		})
	}

	c.logger.Debug("search completed",
		"query_length", len(query),
		"requested", count,
		"returned", len(results))
	return results, nil
}
