package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/hearthside/domo/internal/store"
)

// Section limits for the assembled knowledge context.
const (
	contextSemanticLimit   = 30
	contextProceduralLimit = 20
	contextEpisodicLimit   = 10
)

// BuildKnowledgeContext assembles the three-section document injected into
// the system prompt. Empty partitions drop their section; an empty store
// yields "".
func (m *Manager) BuildKnowledgeContext(ctx context.Context) string {
	var b strings.Builder

	semantic, err := m.stores.Knowledge.GetByType(ctx, store.KnowledgeSemantic, contextSemanticLimit)
	if err == nil && len(semantic) > 0 {
		b.WriteString("## What I Know About You\n")
		for _, e := range semantic {
			fmt.Fprintf(&b, "- %s\n", e.Content)
		}
	}

	procedural, err := m.stores.Knowledge.GetByType(ctx, store.KnowledgeProcedural, contextProceduralLimit)
	if err == nil && len(procedural) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## Your Preferences\n")
		for _, e := range procedural {
			fmt.Fprintf(&b, "- %s\n", e.Content)
		}
	}

	episodic, err := m.stores.Knowledge.GetByType(ctx, store.KnowledgeEpisodic, contextEpisodicLimit)
	if err == nil && len(episodic) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## Recent Events\n")
		for _, e := range episodic {
			fmt.Fprintf(&b, "- %s (%s)\n", e.Content, e.Updated.Format("2006-01-02"))
		}
	}

	return b.String()
}

// SearchKnowledge is a tokenised substring search across all partitions.
func (m *Manager) SearchKnowledge(ctx context.Context, query string, limit int) ([]store.KnowledgeEntry, error) {
	return m.stores.Knowledge.Search(ctx, query, limit)
}
