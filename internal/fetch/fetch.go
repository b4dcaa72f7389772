// Package fetch retrieves and extracts readable page content for
// candidate sources.
//
// Fetching is strictly best-effort: a page that times out, 404s or
// yields no extractable text leaves its source with snippet-only data.
// The batch never fails because one page did.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"golang.org/x/sync/errgroup"

	"github.com/charla-ai/charla/internal/config"
	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/search"
	"github.com/charla-ai/charla/internal/security"
)

// ErrNoContent indicates the page produced no extractable text.
var ErrNoContent = errors.New("no extractable content")

// Fetcher extracts readable text from web pages.
type Fetcher struct {
	cfg    config.FetcherConfig
	guard  *security.Guard // nil when private hosts are allowed
	logger log.Logger
}

// New builds a Fetcher from configuration. Unless the config allows
// private hosts, every URL is checked against the SSRF guard before it
// is downloaded.
func New(cfg config.FetcherConfig, logger log.Logger) *Fetcher {
	f := &Fetcher{cfg: cfg, logger: logger.With("component", "fetch")}
	if !cfg.AllowPrivateHosts {
		f.guard = security.NewGuard()
	}
	return f
}

// Enrich fetches page content for every source concurrently, bounded by
// the configured parallelism, and returns a new slice with Content
// filled where extraction succeeded. Failed fetches keep their slot
// with empty Content.
func (f *Fetcher) Enrich(ctx context.Context, sources []search.Result) []search.Result {
	if len(sources) == 0 {
		return sources
	}

	out := make([]search.Result, len(sources))
	copy(out, sources)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.cfg.Parallelism, 1))

	for i := range out {
		g.Go(func() error {
			content, err := f.Fetch(ctx, out[i].URL)
			if err != nil {
				f.logger.Debug("page fetch failed, keeping snippet only",
					"url", out[i].URL, "error", err)
				return nil // non-fatal by contract
			}
			out[i].Content = content
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return out
}

// Fetch retrieves one page and extracts its readable text, truncated to
// the configured character budget.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("fetch canceled: %w", err)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("invalid page URL %q", pageURL)
	}
	if f.guard != nil {
		if err := f.guard.Validate(pageURL); err != nil {
			return "", err
		}
	}

	body, err := f.download(pageURL)
	if err != nil {
		return "", err
	}

	content := f.extract(body, parsed)
	if content == "" {
		return "", ErrNoContent
	}
	return content, nil
}

// download retrieves the raw page body.
func (f *Fetcher) download(pageURL string) ([]byte, error) {
	opts := []colly.CollectorOption{colly.MaxDepth(1)}
	if f.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(f.cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(time.Duration(f.cfg.TimeoutMs) * time.Millisecond)
	if f.guard != nil {
		// Re-check resolved addresses; Validate alone misses DNS rebinding.
		c.WithTransport(f.guard.SafeTransport())
	}

	var body []byte
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("visiting %s: %w", pageURL, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, fetchErr)
	}
	if len(body) == 0 {
		return nil, ErrNoContent
	}
	return body, nil
}

// extract pulls readable text from an HTML body. Article extraction is
// tried first; pages without article structure fall back to their
// leading paragraphs.
func (f *Fetcher) extract(body []byte, pageURL *url.URL) string {
	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
		if text := clean(article.TextContent); text != "" {
			return f.truncate(text)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var paragraphs []string
	doc.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if text := clean(sel.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
		return len(paragraphs) < f.cfg.MaxParagraphs
	})

	return f.truncate(strings.Join(paragraphs, " "))
}

// truncate enforces the per-page character budget on a rune boundary.
func (f *Fetcher) truncate(text string) string {
	if f.cfg.MaxContentChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= f.cfg.MaxContentChars {
		return text
	}
	return string(runes[:f.cfg.MaxContentChars])
}

// clean collapses runs of whitespace into single spaces.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
