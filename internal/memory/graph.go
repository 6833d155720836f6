package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/hearthside/domo/internal/store"
)

// Per-entity edge limits when formatting graph context.
const graphEdgeLimit = 5

// GraphContext formats what the local graph knows about the query as arrowed
// lines, hard-capped at maxTokens*4 characters. Returns "" when nothing in
// the graph matches.
func (m *Manager) GraphContext(ctx context.Context, query string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	tokens := store.QueryTokens(query)
	if len(tokens) == 0 {
		return ""
	}
	entities, err := m.stores.Entities.SearchEntities(ctx, tokens, 10)
	if err != nil || len(entities) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Known Connections\n")
	for _, ent := range entities {
		fmt.Fprintf(&b, "%s (%s)", ent.Name, ent.Type)
		if ent.Description != "" {
			fmt.Fprintf(&b, ": %s", ent.Description)
		}
		b.WriteString("\n")

		outgoing, _ := m.stores.Entities.Outgoing(ctx, ent.ID, graphEdgeLimit)
		for _, e := range outgoing {
			fmt.Fprintf(&b, "  %s -[%s]-> %s\n", e.SourceName, e.Relation, e.TargetName)
		}
		incoming, _ := m.stores.Entities.Incoming(ctx, ent.ID, graphEdgeLimit)
		for _, e := range incoming {
			fmt.Fprintf(&b, "  %s <-[%s]- %s\n", e.TargetName, e.Relation, e.SourceName)
		}
	}

	return store.TruncateRunes(b.String(), maxTokens*4)
}
