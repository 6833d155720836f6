package file

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// KnowledgeStore keeps the three partitions in memory. Knowledge does not
// persist in the file backend; it is rebuilt by extraction as conversations
// happen.
type KnowledgeStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[store.KnowledgeType][]*store.KnowledgeEntry
}

func NewKnowledgeStore() *KnowledgeStore {
	return &KnowledgeStore{
		nextID:  1,
		entries: make(map[store.KnowledgeType][]*store.KnowledgeEntry),
	}
}

func (s *KnowledgeStore) Add(ctx context.Context, e store.KnowledgeEntry) (store.KnowledgeEntry, bool, error) {
	e.Content = strings.TrimSpace(store.TruncateRunes(e.Content, store.MaxKnowledgeContentLen))
	if e.Content == "" {
		return store.KnowledgeEntry{}, false, fmt.Errorf("knowledge: empty content")
	}
	if e.Confidence <= 0 || e.Confidence > 1 {
		e.Confidence = 0.7
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := store.PrefixRunes(e.Content, store.DedupePrefixLen)
	partition := s.entries[e.Type]
	for _, existing := range partition {
		if store.PrefixRunes(existing.Content, store.DedupePrefixLen) == prefix {
			existing.Content = e.Content
			existing.Confidence = e.Confidence
			if e.Source != "" {
				existing.Source = e.Source
			}
			existing.Updated = now
			return *existing, false, nil
		}
	}

	limit, ok := store.KnowledgeCaps[e.Type]
	if !ok {
		return store.KnowledgeEntry{}, false, fmt.Errorf("knowledge: unknown type %q", e.Type)
	}
	for len(partition) >= limit {
		evict := 0
		for i, candidate := range partition {
			c, best := candidate, partition[evict]
			if c.AccessCount < best.AccessCount ||
				(c.AccessCount == best.AccessCount && c.Created.Before(best.Created)) {
				evict = i
			}
		}
		partition = append(partition[:evict], partition[evict+1:]...)
	}

	e.ID = s.nextID
	s.nextID++
	e.Created = now
	e.Updated = now
	e.AccessCount = 0
	stored := e
	s.entries[e.Type] = append(partition, &stored)
	return stored, true, nil
}

func (s *KnowledgeStore) GetByType(ctx context.Context, t store.KnowledgeType, limit int) ([]store.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	partition := append([]*store.KnowledgeEntry(nil), s.entries[t]...)
	sort.SliceStable(partition, func(i, j int) bool {
		if partition[i].Confidence != partition[j].Confidence {
			return partition[i].Confidence > partition[j].Confidence
		}
		return partition[i].Updated.After(partition[j].Updated)
	})
	if len(partition) > limit {
		partition = partition[:limit]
	}
	out := make([]store.KnowledgeEntry, len(partition))
	for i, e := range partition {
		e.AccessCount++
		out[i] = *e
	}
	return out, nil
}

func (s *KnowledgeStore) Search(ctx context.Context, query string, limit int) ([]store.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	tokens := store.QueryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*store.KnowledgeEntry
	for _, partition := range s.entries {
		for _, e := range partition {
			lowered := strings.ToLower(e.Content)
			for _, tok := range tokens {
				if strings.Contains(lowered, tok) {
					matched = append(matched, e)
					break
				}
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Confidence != matched[j].Confidence {
			return matched[i].Confidence > matched[j].Confidence
		}
		return matched[i].Updated.After(matched[j].Updated)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]store.KnowledgeEntry, len(matched))
	for i, e := range matched {
		out[i] = *e
	}
	return out, nil
}

func (s *KnowledgeStore) CountByType(ctx context.Context) (map[store.KnowledgeType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[store.KnowledgeType]int, len(s.entries))
	for t, partition := range s.entries {
		if len(partition) > 0 {
			out[t] = len(partition)
		}
	}
	return out, nil
}

var _ store.KnowledgeStore = (*KnowledgeStore)(nil)
