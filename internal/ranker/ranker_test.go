package ranker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/charla-ai/charla/internal/config"
	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/search"
)

func testRankerConfig() config.RankerConfig {
	return config.RankerConfig{
		TitleWeight:      3.0,
		SnippetWeight:    1.0,
		AuthorityBonus:   0.5,
		DuplicatePenalty: 0.25,
		MaxCitations:     5,
		AuthorityDomains: []string{"wikipedia.org"},
	}
}

func newTestRanker(t *testing.T) *Ranker {
	t.Helper()
	return New(testRankerConfig(), log.NewNop())
}

func TestRankOrdersByScore(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	sources := []search.Result{
		{URL: "https://a.example.com", Title: "noticias generales", Snippet: "torta mencionada de pasada", Rank: 0},
		{URL: "https://b.example.com", Title: "torta de manzana receta", Snippet: "cómo hacer una torta de manzana", Rank: 1},
	}

	got := r.Rank("receta torta de manzana", false, sources)
	if len(got) != 2 {
		t.Fatalf("got %d citations, want 2", len(got))
	}
	if got[0].URL != "https://b.example.com" {
		t.Errorf("best source = %s, want b.example.com (title matches outrank snippet matches)", got[0].URL)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %f, %f", got[0].Score, got[1].Score)
	}
}

func TestRankConversationalMetaSuppressesCitations(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	sources := []search.Result{
		{URL: "https://a.example.com", Title: "hablamos antes", Snippet: "hablamos antes", Rank: 0},
		{URL: "https://b.example.com", Title: "hablamos antes", Snippet: "hablamos antes", Rank: 1},
	}

	if got := r.Rank("de qué hablamos antes", true, sources); len(got) != 0 {
		t.Fatalf("meta query produced %d citations, want 0", len(got))
	}
}

func TestRankNoLexicalOverlapReturnsEmpty(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	sources := []search.Result{
		{URL: "https://es.wikipedia.org/wiki/Gatos", Title: "gatos domésticos", Snippet: "felinos", Rank: 0},
	}

	// Authoritative domain alone must not create a citation.
	if got := r.Rank("recetas de pan integral", false, sources); len(got) != 0 {
		t.Fatalf("zero-overlap batch produced %d citations, want 0", len(got))
	}
}

func TestRankDeduplicatesNormalizedURLs(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	sources := []search.Result{
		{URL: "https://www.example.com/receta?utm=x", Title: "receta de pan", Snippet: "pan", Rank: 0},
		{URL: "https://example.com/receta/", Title: "receta de pan casero", Snippet: "pan casero paso a paso", Rank: 1},
	}

	got := r.Rank("receta pan casero", false, sources)
	if len(got) != 1 {
		t.Fatalf("got %d citations, want 1 after dedup", len(got))
	}
	// The second occurrence scores higher (more matches) and must win.
	if got[0].Rank != 1 {
		t.Errorf("kept rank %d, want the higher-scoring occurrence (rank 1)", got[0].Rank)
	}
}

func TestRankCapsCitations(t *testing.T) {
	t.Parallel()

	cfg := testRankerConfig()
	cfg.MaxCitations = 2
	r := New(cfg, log.NewNop())

	sources := make([]search.Result, 5)
	for i := range sources {
		sources[i] = search.Result{
			URL:     "https://example.com/" + string(rune('a'+i)),
			Title:   "receta de pan",
			Snippet: "pan",
			Rank:    i,
		}
	}

	if got := r.Rank("receta pan", false, sources); len(got) != 2 {
		t.Fatalf("got %d citations, want cap of 2", len(got))
	}
}

func TestRankTieBreaksByRetrievalRank(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	// Identical scoring text on different hosts; only Rank differs.
	sources := []search.Result{
		{URL: "https://b.example.org/pan", Title: "receta de pan", Snippet: "pan", Rank: 1},
		{URL: "https://a.example.com/pan", Title: "receta de pan", Snippet: "pan", Rank: 0},
	}

	got := r.Rank("receta pan", false, sources)
	if len(got) != 2 {
		t.Fatalf("got %d citations, want 2", len(got))
	}
	if got[0].Rank != 0 {
		t.Errorf("tie not broken by retrieval rank: first is rank %d", got[0].Rank)
	}
}

func TestRankAuthorityBonus(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	sources := []search.Result{
		{URL: "https://blog.example.com/manzanas", Title: "manzanas", Snippet: "", Rank: 0},
		{URL: "https://es.wikipedia.org/wiki/Manzana", Title: "manzanas", Snippet: "", Rank: 1},
	}

	got := r.Rank("manzanas", false, sources)
	if len(got) != 2 {
		t.Fatalf("got %d citations, want 2", len(got))
	}
	if got[0].URL != "https://es.wikipedia.org/wiki/Manzana" {
		t.Errorf("authority bonus did not promote wikipedia: first = %s", got[0].URL)
	}
}

func TestRankIdempotent(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	sources := []search.Result{
		{URL: "https://a.example.com", Title: "torta de manzana", Snippet: "receta fácil", Rank: 0},
		{URL: "https://b.example.com", Title: "decoración de tortas", Snippet: "qué ponerle arriba a una torta", Rank: 1},
		{URL: "https://c.example.com", Title: "otra cosa", Snippet: "sin relación", Rank: 2},
	}

	first := r.Rank("torta de manzana decoración arriba", false, sources)
	second := r.Rank("torta de manzana decoración arriba", false, sources)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("ranking is not idempotent (-first +second):\n%s", diff)
	}
}

func TestRankPartialBatch(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	sources := []search.Result{
		{URL: "https://a.example.com", Title: "clima madrid", Snippet: "pronóstico", Rank: 0},
		{URL: "https://b.example.com", Title: "clima en madrid hoy", Snippet: "temperatura", Rank: 1},
		{URL: "https://c.example.com", Title: "madrid turismo", Snippet: "clima templado", Rank: 2},
	}

	got := r.Rank("clima madrid hoy", false, sources)
	if len(got) == 0 || len(got) > 3 {
		t.Fatalf("got %d citations from a 3-result batch, want 1..3", len(got))
	}
}

func TestRankEmptyInputs(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	if got := r.Rank("consulta", false, nil); got != nil {
		t.Errorf("nil sources produced %v", got)
	}
	if got := r.Rank("", false, []search.Result{{URL: "https://x.example.com", Title: "x"}}); got != nil {
		t.Errorf("empty query produced %v", got)
	}
	// Stopword-only query has no content words to match.
	if got := r.Rank("de la que", false, []search.Result{{URL: "https://x.example.com", Title: "de la que"}}); got != nil {
		t.Errorf("stopword-only query produced %v", got)
	}
}

func TestNearDuplicatePenalty(t *testing.T) {
	t.Parallel()

	r := newTestRanker(t)
	sources := []search.Result{
		{URL: "https://example.com/receta", Title: "receta de pan", Snippet: "pan", Rank: 0},
		{URL: "https://example.com/receta?page=2", Title: "receta de pan", Snippet: "pan", Rank: 1},
		{URL: "https://example.com/receta-2024", Title: "receta de pan", Snippet: "pan", Rank: 2},
	}

	got := r.Rank("receta pan", false, sources)
	// First two collapse by URL normalization; the third survives dedup
	// but is penalized for sharing host and title.
	if len(got) != 2 {
		t.Fatalf("got %d citations, want 2", len(got))
	}
	if got[1].Score >= got[0].Score {
		t.Errorf("near-duplicate not penalized: %f >= %f", got[1].Score, got[0].Score)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips query string", "https://example.com/a?b=c", "https://example.com/a"},
		{"strips fragment", "https://example.com/a#section", "https://example.com/a"},
		{"strips www", "https://www.example.com/a", "https://example.com/a"},
		{"strips trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"lowercases host", "https://Example.COM/Path", "https://example.com/Path"},
		{"keeps scheme distinction", "http://example.com/a", "http://example.com/a"},
		{"bare host", "https://example.com", "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"spanish question", "¿Qué le puedo poner arriba?", []string{"puedo", "poner", "arriba"}},
		{"mixed punctuation", "torta, de manzana!", []string{"torta", "manzana"}},
		{"english stopwords", "what is the weather in Madrid", []string{"weather", "madrid"}},
		{"accents preserved", "decoración fácil", []string{"decoración", "fácil"}},
		{"empty", "", nil},
		{"only stopwords", "de la que el", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Tokenize(tt.in)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}
