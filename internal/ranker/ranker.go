// Package ranker scores retrieved candidate sources against the
// effective query and narrows them to a bounded, deduplicated citation
// set.
//
// Ranking is a pure function of its inputs: the same query and the same
// candidate batch always produce the same citation set.
package ranker

import (
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/charla-ai/charla/internal/config"
	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/search"
)

// ScoredSource is a candidate source annotated with its relevance score
// and the query keywords it matched. Ephemeral: exists only for the
// duration of one ranking pass.
type ScoredSource struct {
	search.Result
	Score           float64  `json:"score"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// Ranker selects the sources worth citing for a query.
type Ranker struct {
	cfg    config.RankerConfig
	logger log.Logger
}

// New builds a Ranker from configuration.
func New(cfg config.RankerConfig, logger log.Logger) *Ranker {
	return &Ranker{cfg: cfg, logger: logger.With("component", "ranker")}
}

// Rank scores sources against queryText and returns the citation set:
// deduplicated by normalized URL, sorted by descending score with ties
// broken by ascending retrieval rank, truncated to the configured cap.
//
// When conversationalMeta is true the citation set is empty
// unconditionally: meta-queries are answered from conversation history,
// never from the web. When no source shares a single content word with
// the query, the set is also empty.
func (r *Ranker) Rank(queryText string, conversationalMeta bool, sources []search.Result) []ScoredSource {
	if conversationalMeta {
		r.logger.Debug("conversational meta query, suppressing citations",
			"candidates", len(sources))
		return nil
	}
	if len(sources) == 0 {
		return nil
	}

	queryTokens := Tokenize(queryText)
	if len(queryTokens) == 0 {
		return nil
	}

	scored := make([]ScoredSource, 0, len(sources))
	for _, src := range sources {
		s := r.score(queryTokens, src)
		if s.Score <= 0 {
			continue
		}
		scored = append(scored, s)
	}
	if len(scored) == 0 {
		return nil
	}

	scored = dedupeByURL(scored)
	r.penalizeNearDuplicates(scored)

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Rank < scored[j].Rank
	})

	if len(scored) > r.cfg.MaxCitations {
		scored = scored[:r.cfg.MaxCitations]
	}
	return scored
}

// score computes the weighted relevance of one source.
// The authority bonus only applies when at least one query token
// matched, so a source with zero lexical overlap never scores positive.
func (r *Ranker) score(queryTokens []string, src search.Result) ScoredSource {
	title := tokenSet(src.Title)
	body := tokenSet(src.Snippet + " " + src.Content)

	matched := make(map[string]struct{})
	var titleHits, bodyHits int
	for _, tok := range queryTokens {
		if _, ok := title[tok]; ok {
			titleHits++
			matched[tok] = struct{}{}
		}
		if _, ok := body[tok]; ok {
			bodyHits++
			matched[tok] = struct{}{}
		}
	}

	score := float64(titleHits)*r.cfg.TitleWeight + float64(bodyHits)*r.cfg.SnippetWeight
	if score > 0 && r.isAuthoritative(src.URL) {
		score += r.cfg.AuthorityBonus
	}

	keywords := make([]string, 0, len(matched))
	for k := range matched {
		keywords = append(keywords, k)
	}
	slices.Sort(keywords)

	return ScoredSource{Result: src, Score: score, MatchedKeywords: keywords}
}

// isAuthoritative reports whether the URL's host matches the configured
// allow-list. Matching is suffix-based so "wikipedia.org" covers
// "es.wikipedia.org".
func (r *Ranker) isAuthoritative(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range r.cfg.AuthorityDomains {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// dedupeByURL keeps the highest-scoring occurrence per normalized URL.
// Equal scores keep the earlier retrieval rank.
func dedupeByURL(scored []ScoredSource) []ScoredSource {
	best := make(map[string]int, len(scored))
	out := scored[:0]
	for _, s := range scored {
		key := NormalizeURL(s.URL)
		if i, seen := best[key]; seen {
			if s.Score > out[i].Score {
				out[i] = s
			}
			continue
		}
		best[key] = len(out)
		out = append(out, s)
	}
	return out
}

// penalizeNearDuplicates subtracts the configured penalty from sources
// that share a host and an identical title token set with a
// higher-scored source. Distinct URLs on the same host with the same
// title are usually pagination or tracking variants.
func (r *Ranker) penalizeNearDuplicates(scored []ScoredSource) {
	if r.cfg.DuplicatePenalty <= 0 {
		return
	}

	type fingerprint struct{ host, title string }
	seen := make(map[fingerprint]float64, len(scored))

	ordered := make([]*ScoredSource, len(scored))
	for i := range scored {
		ordered[i] = &scored[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	for _, s := range ordered {
		u, err := url.Parse(s.URL)
		if err != nil {
			continue
		}
		fp := fingerprint{
			host:  strings.ToLower(u.Hostname()),
			title: strings.Join(Tokenize(s.Title), " "),
		}
		if fp.title == "" {
			continue
		}
		if _, dup := seen[fp]; dup {
			s.Score -= r.cfg.DuplicatePenalty
			if s.Score < 0 {
				s.Score = 0
			}
			continue
		}
		seen[fp] = s.Score
	}
}

// NormalizeURL reduces a URL to scheme + host + path for duplicate
// detection: the host is lowercased with any "www." prefix removed, and
// query string, fragment and trailing slash are dropped.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimSuffix(u.EscapedPath(), "/")

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + host + path
}
