package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charla-ai/charla/internal/log"
)

func testEntries() []Entry {
	return []Entry{
		{
			Topic:    "torta de manzana",
			Content:  "La torta de manzana clásica lleva manzanas, harina, huevos y azúcar. Se decora con canela.",
			Keywords: []string{"receta", "postre"},
		},
		{
			Topic:   "gazpacho",
			Content: "El gazpacho andaluz es una sopa fría de tomate, pepino y pimiento.",
		},
		{
			Topic:   "horarios de atención",
			Content: "El servicio de soporte atiende de lunes a viernes de 9 a 18 horas.",
		},
	}
}

func newTestBase(t *testing.T) *Base {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	b, err := New(context.Background(), path, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Save(context.Background(), testEntries()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return b
}

func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	b1, err := New(context.Background(), path, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := b1.Save(context.Background(), testEntries()); err != nil {
		t.Fatal(err)
	}

	b2, err := New(context.Background(), path, log.NewNop())
	if err != nil {
		t.Fatalf("reopening base: %v", err)
	}
	if got := len(b2.Entries()); got != 3 {
		t.Fatalf("reloaded %d entries, want 3", got)
	}
}

func TestMissingFileYieldsEmptyBase(t *testing.T) {
	t.Parallel()

	b, err := New(context.Background(), filepath.Join(t.TempDir(), "nope.json"), log.NewNop())
	if err != nil {
		t.Fatalf("New on missing file: %v", err)
	}
	if got := len(b.Entries()); got != 0 {
		t.Fatalf("got %d entries, want 0", got)
	}
}

func TestCorruptFileIsAnError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := New(context.Background(), path, log.NewNop())
	if !errors.Is(err, ErrCorruptFile) {
		t.Fatalf("err = %v, want ErrCorruptFile", err)
	}
}

func TestSaveRejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	b := newTestBase(t)

	err := b.Save(context.Background(), []Entry{{Topic: "", Content: "sin tema"}})
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("err = %v, want ErrInvalidEntry", err)
	}
	err = b.Save(context.Background(), []Entry{{Topic: "tema", Content: "   "}})
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("err = %v, want ErrInvalidEntry", err)
	}
}

func TestRelevant(t *testing.T) {
	t.Parallel()

	b := newTestBase(t)

	got := b.Relevant("¿cómo decorar una torta de manzana?", 2)
	if len(got) == 0 {
		t.Fatal("no relevant entries for a direct topic match")
	}
	if got[0].Topic != "torta de manzana" {
		t.Errorf("top entry = %q, want torta de manzana", got[0].Topic)
	}
}

func TestRelevantKeywordMatchesWinTies(t *testing.T) {
	t.Parallel()

	b := newTestBase(t)

	// "receta" appears only in the torta entry's curated keywords.
	got := b.Relevant("receta", 3)
	if len(got) == 0 || got[0].Topic != "torta de manzana" {
		t.Fatalf("keyword match not ranked first: %+v", got)
	}
}

func TestRelevantNoOverlap(t *testing.T) {
	t.Parallel()

	b := newTestBase(t)

	if got := b.Relevant("física cuántica avanzada", 3); len(got) != 0 {
		t.Fatalf("got %d entries for unrelated query, want 0", len(got))
	}
	if got := b.Relevant("", 3); len(got) != 0 {
		t.Fatalf("got %d entries for empty query, want 0", len(got))
	}
}

func TestRelevantRespectsLimit(t *testing.T) {
	t.Parallel()

	b := newTestBase(t)

	// "de" is a stopword; "atención servicio sopa manzanas" touches
	// multiple entries.
	got := b.Relevant("manzanas sopa servicio horarios", 1)
	if len(got) > 1 {
		t.Fatalf("got %d entries, want at most 1", len(got))
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	t.Parallel()

	b := newTestBase(t)

	entries := b.Entries()
	entries[0].Topic = "mutated"

	if b.Entries()[0].Topic == "mutated" {
		t.Error("Entries() exposed internal state")
	}
}
