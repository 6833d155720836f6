package agent

import (
	"fmt"
	"strings"

	"github.com/hearthside/domo/internal/providers"
	"github.com/hearthside/domo/internal/store"
)

const (
	defaultContextCeiling   = 100_000 // chars across system + history + user turn
	defaultHistoryLimit     = 20
	historyLimitWithContext = 8
)

// contextSources are the system-prompt sections in render order. Empty
// sections are omitted.
type contextSources struct {
	soul      string
	trust     string
	knowledge string
	skills    string
	relevant  string
	graph     string
}

func systemPrompt(src contextSources) string {
	sections := []string{
		src.soul,
		src.trust,
		src.knowledge,
		src.skills,
		src.relevant,
		src.graph,
	}
	var kept []string
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, strings.TrimSpace(s))
		}
	}
	return strings.Join(kept, "\n\n")
}

// assembleMessages fits as much history as the character ceiling allows.
// History is walked newest-first so the most recent turns survive when the
// budget runs out, then restored to chronological order for the provider.
func assembleMessages(system string, history []store.Message, userText string, images []providers.ImageContent, ceiling int) []providers.Message {
	if ceiling <= 0 {
		ceiling = defaultContextCeiling
	}
	budget := ceiling - len(system) - len(userText)

	var kept []store.Message
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if len(m.Content) > budget {
			break
		}
		budget -= len(m.Content)
		kept = append(kept, m)
	}

	msgs := make([]providers.Message, 0, len(kept)+1)
	for i := len(kept) - 1; i >= 0; i-- {
		msgs = append(msgs, providers.Message{Role: kept[i].Role, Content: kept[i].Content})
	}
	msgs = append(msgs, providers.Message{Role: "user", Content: userText, Images: images})
	return msgs
}

// relevantKnowledgePrompt renders search hits for the current message.
func relevantKnowledgePrompt(entries []store.KnowledgeEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant Knowledge\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s\n", e.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
