package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hearthside/domo/internal/store/file"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("The quick brown fox AND a dog ran to the park")
	want := []string{"quick", "brown", "fox", "dog", "ran", "park"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokens = %v, want %v", got, want)
		}
	}
}

func TestVectorTFIDFSearch(t *testing.T) {
	idx := NewVectorIndex(context.Background(), nil, nil)
	idx.Add("the postgres database migration failed overnight", nil)
	idx.Add("booked flights to lisbon for the conference", nil)
	idx.Add("postgres connection pool tuning notes", nil)

	hits := idx.Search(context.Background(), "postgres tuning", 5)
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	// Both query tokens match the tuning note; it must rank first.
	if !strings.Contains(hits[0].Doc.Text, "tuning") {
		t.Fatalf("top hit = %q", hits[0].Doc.Text)
	}
	for _, h := range hits {
		if h.Score <= 0 {
			t.Fatalf("zero-score hit leaked: %+v", h)
		}
	}
}

func TestVectorRecencyFallback(t *testing.T) {
	idx := NewVectorIndex(context.Background(), nil, nil)
	idx.Add("first note about databases", nil)
	idx.Add("second note about travel", nil)
	idx.Add("third note about cooking", nil)

	// "a of to" tokenises to nothing → most recent docs come back.
	hits := idx.Search(context.Background(), "a of to", 2)
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if !strings.Contains(hits[0].Doc.Text, "third") {
		t.Fatalf("most recent first, got %q", hits[0].Doc.Text)
	}
}

func TestVectorCapsAndPersistence(t *testing.T) {
	dir := t.TempDir()
	vs := file.New(dir).Vectors
	ctx := context.Background()

	idx := NewVectorIndex(ctx, vs, nil)
	long := strings.Repeat("x", MaxDocLen+500)
	doc := idx.Add(long, map[string]string{"k": "v"})
	if len([]rune(doc.Text)) != MaxDocLen {
		t.Fatalf("text len = %d, want %d", len(doc.Text), MaxDocLen)
	}
	if err := idx.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	// Reload from the same file; tokens and metadata survive, embeddings
	// were never written.
	reloaded := NewVectorIndex(ctx, file.New(dir).Vectors, nil)
	if reloaded.Len() != 1 {
		t.Fatalf("reloaded %d docs", reloaded.Len())
	}
	if _, err := filepath.Glob(filepath.Join(dir, "vectors.json")); err != nil {
		t.Fatal(err)
	}
}
