package memory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hearthside/domo/internal/store"
)

// Extraction gates: short messages and bare greetings carry nothing worth
// learning, so they never cost a fast-model call.
const (
	MinKnowledgeExtractLen = 30
	MinGraphExtractLen     = 40
)

var trivialGreetingRe = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|yo|thanks|thank you|ok|okay|good (morning|night)|bye|goodbye)[\s.!?]*$`)

// CompleteFunc runs one fast-tier completion. The memory package takes a
// function rather than the router to stay free of upward dependencies.
type CompleteFunc func(ctx context.Context, system, prompt string) (string, error)

const knowledgeExtractSystem = `You extract durable knowledge from a user's message.
Reply with zero or more lines, nothing else:
FACT: <a stable fact about the user>
PREF: <a preference or way the user likes things done>
EVENT: <a dated or recent event in the user's life>
Only include things actually stated. No commentary.`

const graphExtractSystem = `You extract entities and relationships from a user's message.
Entity types: person, company, project, tool, concept, place, event, unknown.
Relations: works_at, uses, built, knows, manages, owns, part_of, related_to, wants, likes, dislikes.
Reply with zero or more lines, nothing else:
ENTITY: name | type | short description
REL: source name | relation | target name | context
Only include what the message supports. No commentary.`

// ShouldExtractKnowledge gates knowledge extraction on message length and
// triviality.
func ShouldExtractKnowledge(message string) bool {
	return len([]rune(message)) >= MinKnowledgeExtractLen && !trivialGreetingRe.MatchString(message)
}

// ShouldExtractGraph gates graph extraction.
func ShouldExtractGraph(message string) bool {
	return len([]rune(message)) >= MinGraphExtractLen && !trivialGreetingRe.MatchString(message)
}

// ExtractKnowledge runs one fast-model pass over the message and files
// FACT/PREF/EVENT lines into the three partitions. Callers run it detached;
// failures only log.
func (m *Manager) ExtractKnowledge(ctx context.Context, message string) {
	if m.complete == nil || !ShouldExtractKnowledge(message) {
		return
	}
	existing := store.TruncateRunes(m.BuildKnowledgeContext(ctx), 800)
	prompt := "Existing knowledge:\n" + existing + "\n\nMessage:\n" + store.TruncateRunes(message, 1000)

	reply, err := m.complete(ctx, knowledgeExtractSystem, prompt)
	if err != nil {
		slog.Warn("knowledge extraction failed", "error", err)
		return
	}
	added := 0
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		var t store.KnowledgeType
		var content string
		switch {
		case strings.HasPrefix(line, "FACT:"):
			t, content = store.KnowledgeSemantic, strings.TrimSpace(line[5:])
		case strings.HasPrefix(line, "PREF:"):
			t, content = store.KnowledgeProcedural, strings.TrimSpace(line[5:])
		case strings.HasPrefix(line, "EVENT:"):
			t, content = store.KnowledgeEpisodic, strings.TrimSpace(line[6:])
		default:
			continue
		}
		if content == "" {
			continue
		}
		if _, _, err := m.stores.Knowledge.Add(ctx, store.KnowledgeEntry{
			Type:       t,
			Content:    content,
			Confidence: 0.7,
			Source:     "extraction",
		}); err != nil {
			slog.Warn("knowledge store add failed", "error", err)
			continue
		}
		added++
	}
	if added > 0 {
		slog.Debug("knowledge extracted", "entries", added)
	}
}

// ExtractGraph runs one fast-model pass and upserts ENTITY lines first, then
// REL lines with find-or-create endpoints. Detached like ExtractKnowledge.
func (m *Manager) ExtractGraph(ctx context.Context, message string) {
	if m.complete == nil || !ShouldExtractGraph(message) {
		return
	}
	reply, err := m.complete(ctx, graphExtractSystem, store.TruncateRunes(message, 1000))
	if err != nil {
		slog.Warn("graph extraction failed", "error", err)
		return
	}

	entities, rels := parseGraphLines(reply)
	for _, e := range entities {
		if _, err := m.stores.Entities.UpsertEntity(ctx, e.name, e.entityType, e.description); err != nil {
			slog.Warn("entity upsert failed", "entity", e.name, "error", err)
		}
	}
	for _, r := range rels {
		src, err := m.findOrCreateEntity(ctx, r.source)
		if err != nil {
			continue
		}
		dst, err := m.findOrCreateEntity(ctx, r.target)
		if err != nil {
			continue
		}
		if _, err := m.stores.Entities.AddRelationship(ctx, src.ID, dst.ID, r.relation, r.context); err != nil {
			slog.Warn("relationship add failed", "relation", r.relation, "error", err)
		}
	}
}

func (m *Manager) findOrCreateEntity(ctx context.Context, name string) (store.Entity, error) {
	if ent, err := m.stores.Entities.FindEntity(ctx, name); err == nil && ent != nil {
		return *ent, nil
	}
	return m.stores.Entities.UpsertEntity(ctx, name, "unknown", "")
}

type parsedEntity struct {
	name        string
	entityType  string
	description string
}

type parsedRel struct {
	source   string
	relation string
	target   string
	context  string
}

// parseGraphLines splits ENTITY/REL lines on pipes. Unknown entity types
// fall back to "unknown"; malformed lines are skipped.
func parseGraphLines(reply string) ([]parsedEntity, []parsedRel) {
	var entities []parsedEntity
	var rels []parsedRel
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ENTITY:"):
			parts := splitPipe(line[7:], 3)
			if len(parts) < 2 || parts[0] == "" {
				continue
			}
			e := parsedEntity{name: parts[0], entityType: normaliseEntityType(parts[1])}
			if len(parts) > 2 {
				e.description = parts[2]
			}
			entities = append(entities, e)
		case strings.HasPrefix(line, "REL:"):
			parts := splitPipe(line[4:], 4)
			if len(parts) < 3 || parts[0] == "" || parts[2] == "" {
				continue
			}
			r := parsedRel{source: parts[0], relation: normaliseRelation(parts[1]), target: parts[2]}
			if len(parts) > 3 {
				r.context = parts[3]
			}
			rels = append(rels, r)
		}
	}
	return entities, rels
}

func splitPipe(s string, max int) []string {
	parts := strings.SplitN(s, "|", max)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func normaliseEntityType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	for _, known := range store.EntityTypes {
		if t == known {
			return t
		}
	}
	return "unknown"
}

func normaliseRelation(r string) string {
	r = strings.ToLower(strings.TrimSpace(r))
	r = strings.ReplaceAll(r, " ", "_")
	r = strings.ReplaceAll(r, "-", "_")
	if r == "" {
		return "related_to"
	}
	return r
}
