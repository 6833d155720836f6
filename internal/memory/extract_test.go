package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/hearthside/domo/internal/store"
	"github.com/hearthside/domo/internal/store/file"
)

func testManager(t *testing.T, complete CompleteFunc) (*Manager, *store.Stores) {
	t.Helper()
	stores := file.New(t.TempDir())
	m := NewManager(Options{Stores: stores, Complete: complete})
	return m, stores
}

func TestExtractionGates(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		knowledge bool
		graph     bool
	}{
		{"29 chars bypasses knowledge", strings.Repeat("a", 29), false, false},
		{"30 chars triggers knowledge", strings.Repeat("a", 30), true, false},
		{"39 chars bypasses graph", strings.Repeat("a", 39), true, false},
		{"40 chars triggers graph", strings.Repeat("a", 40), true, true},
		{"trivial greeting skipped", "thanks", false, false},
		{"greeting with punctuation skipped", "Thank you!!", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldExtractKnowledge(tt.message); got != tt.knowledge {
				t.Fatalf("ShouldExtractKnowledge = %v, want %v", got, tt.knowledge)
			}
			if got := ShouldExtractGraph(tt.message); got != tt.graph {
				t.Fatalf("ShouldExtractGraph = %v, want %v", got, tt.graph)
			}
		})
	}
}

func TestExtractKnowledgeFilesPartitions(t *testing.T) {
	reply := "FACT: lives in London\nPREF: prefers short answers\nEVENT: started a new job this week\nnoise line\n"
	m, stores := testManager(t, func(ctx context.Context, system, prompt string) (string, error) {
		return reply, nil
	})
	ctx := context.Background()

	m.ExtractKnowledge(ctx, "I moved to London last month and started a new job this week")

	counts, err := stores.Knowledge.CountByType(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[store.KnowledgeSemantic] != 1 || counts[store.KnowledgeProcedural] != 1 || counts[store.KnowledgeEpisodic] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestExtractKnowledgeIdempotent(t *testing.T) {
	// Two messages yielding the same FACT must collapse to one semantic
	// entry whose updated timestamp reflects the second insertion.
	m, stores := testManager(t, func(ctx context.Context, system, prompt string) (string, error) {
		return "FACT: lives in London", nil
	})
	ctx := context.Background()

	m.ExtractKnowledge(ctx, "I live in London, down in Greenwich actually")
	first, err := stores.Knowledge.Search(ctx, "London", 10)
	if err != nil || len(first) != 1 {
		t.Fatalf("after first extraction: %v entries, err %v", len(first), err)
	}

	m.ExtractKnowledge(ctx, "yes I still live in London as I said before")
	second, err := stores.Knowledge.Search(ctx, "London", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 {
		t.Fatalf("duplicate FACT created %d entries, want 1", len(second))
	}
	if second[0].Updated.Before(first[0].Updated) {
		t.Fatal("updated timestamp did not advance on re-observation")
	}
}

func TestParseGraphLines(t *testing.T) {
	reply := `ENTITY: Ada Lovelace | person | mathematician
ENTITY: Analytical Engine | martian | early computer
REL: Ada Lovelace | works at | Analytical Engine | wrote programs for it
REL: incomplete |
junk`
	entities, rels := parseGraphLines(reply)

	if len(entities) != 2 {
		t.Fatalf("entities = %d", len(entities))
	}
	if entities[1].entityType != "unknown" {
		t.Fatalf("unknown type not normalised: %q", entities[1].entityType)
	}
	if len(rels) != 1 {
		t.Fatalf("rels = %d", len(rels))
	}
	if rels[0].relation != "works_at" {
		t.Fatalf("relation = %q", rels[0].relation)
	}
	if rels[0].context != "wrote programs for it" {
		t.Fatalf("context = %q", rels[0].context)
	}
}

func TestExtractGraphUpsertsAndStrengthens(t *testing.T) {
	m, stores := testManager(t, func(ctx context.Context, system, prompt string) (string, error) {
		return "ENTITY: Meridian | project | internal dashboard\nREL: Sam | built | Meridian | side project", nil
	})
	ctx := context.Background()
	msg := "Sam built the Meridian dashboard as a side project last spring"

	m.ExtractGraph(ctx, msg)
	m.ExtractGraph(ctx, msg)

	ent, err := stores.Entities.FindEntity(ctx, "meridian")
	if err != nil || ent == nil {
		t.Fatalf("entity not found: %v", err)
	}
	if ent.Mentions != 2 {
		t.Fatalf("mentions = %d, want 2", ent.Mentions)
	}

	// Sam was find-or-created as unknown; the edge strengthened on the
	// second observation without duplicating.
	sam, err := stores.Entities.FindEntity(ctx, "sam")
	if err != nil || sam == nil {
		t.Fatalf("sam not found: %v", err)
	}
	edges, err := stores.Entities.Outgoing(ctx, sam.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(edges))
	}
	if edges[0].Strength != 1.5 {
		t.Fatalf("strength = %v, want 1.5", edges[0].Strength)
	}
}
