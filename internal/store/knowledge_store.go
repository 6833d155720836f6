package store

import (
	"context"
	"time"
)

// KnowledgeType partitions learned knowledge.
type KnowledgeType string

const (
	KnowledgeSemantic   KnowledgeType = "semantic"   // durable facts about the user
	KnowledgeEpisodic   KnowledgeType = "episodic"   // dated events
	KnowledgeProcedural KnowledgeType = "procedural" // preferences, how to do things
)

// KnowledgeCaps bounds each partition. When an insert would exceed the cap,
// the least-accessed then oldest entry is evicted.
var KnowledgeCaps = map[KnowledgeType]int{
	KnowledgeSemantic:   100,
	KnowledgeEpisodic:   200,
	KnowledgeProcedural: 50,
}

// DedupePrefixLen is how much of the content identifies a duplicate: entries
// of the same type sharing this prefix update in place rather than insert.
const DedupePrefixLen = 50

// MaxKnowledgeContentLen truncates entry content on write.
const MaxKnowledgeContentLen = 500

// KnowledgeEntry is one learned item.
type KnowledgeEntry struct {
	ID          int64         `json:"id"`
	Type        KnowledgeType `json:"type"`
	Content     string        `json:"content"`
	Confidence  float64       `json:"confidence"`
	Source      string        `json:"source,omitempty"`
	Created     time.Time     `json:"created"`
	Updated     time.Time     `json:"updated"`
	AccessCount int           `json:"access_count"`
}

// KnowledgeStore holds the three partitions.
type KnowledgeStore interface {
	// Add inserts or, when an entry of the same type shares the first
	// DedupePrefixLen characters, updates in place. Returns the stored entry
	// and whether it was newly created. Enforces KnowledgeCaps by eviction.
	Add(ctx context.Context, e KnowledgeEntry) (KnowledgeEntry, bool, error)

	// GetByType returns up to limit entries sorted by confidence then
	// recency, incrementing the access count of every returned entry.
	GetByType(ctx context.Context, t KnowledgeType, limit int) ([]KnowledgeEntry, error)

	// Search matches any lowercased query token of length > 2 against entry
	// content by substring.
	Search(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error)

	// CountByType reports partition sizes.
	CountByType(ctx context.Context) (map[KnowledgeType]int, error)
}
