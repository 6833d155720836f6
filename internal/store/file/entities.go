package file

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// EntityStore keeps the relationship graph in memory. Like knowledge, the
// graph does not persist in the file backend.
type EntityStore struct {
	mu         sync.Mutex
	nextID     int64
	nextRelID  int64
	entities   map[int64]*store.Entity
	byNameType map[string]int64            // lower(name)+"|"+type
	rels       map[string]*store.Relationship // src|dst|relation
}

func NewEntityStore() *EntityStore {
	return &EntityStore{
		nextID:     1,
		nextRelID:  1,
		entities:   make(map[int64]*store.Entity),
		byNameType: make(map[string]int64),
		rels:       make(map[string]*store.Relationship),
	}
}

func entityKey(nameLower, entityType string) string {
	return nameLower + "|" + entityType
}

func relKey(src, dst int64, relation string) string {
	return strconv.FormatInt(src, 10) + "|" + strconv.FormatInt(dst, 10) + "|" + relation
}

func (s *EntityStore) UpsertEntity(ctx context.Context, name, entityType, description string) (store.Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Entity{}, errors.New("entities: empty name")
	}
	entityType = normalizeEntityType(entityType)
	description = strings.TrimSpace(description)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey(strings.ToLower(name), entityType)
	if id, ok := s.byNameType[key]; ok {
		e := s.entities[id]
		e.Mentions++
		e.LastSeen = now
		if description != "" {
			e.Description = description
		}
		return *e, nil
	}

	e := &store.Entity{
		ID:          s.nextID,
		Name:        name,
		Type:        entityType,
		Description: description,
		Mentions:    1,
		FirstSeen:   now,
		LastSeen:    now,
	}
	s.nextID++
	s.entities[e.ID] = e
	s.byNameType[key] = e.ID
	return *e, nil
}

func normalizeEntityType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	for _, known := range store.EntityTypes {
		if t == known {
			return t
		}
	}
	return "unknown"
}

func (s *EntityStore) AddRelationship(ctx context.Context, sourceID, targetID int64, relation, relContext string) (store.Relationship, error) {
	relation = strings.ToLower(strings.TrimSpace(relation))
	if relation == "" {
		relation = "related_to"
	}
	relContext = strings.TrimSpace(relContext)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[sourceID]; !ok {
		return store.Relationship{}, errors.New("entities: unknown source")
	}
	if _, ok := s.entities[targetID]; !ok {
		return store.Relationship{}, errors.New("entities: unknown target")
	}

	key := relKey(sourceID, targetID, relation)
	if r, ok := s.rels[key]; ok {
		r.Strength += 0.5
		r.Updated = now
		if relContext != "" {
			r.Context = relContext
		}
		return *r, nil
	}

	r := &store.Relationship{
		ID:       s.nextRelID,
		SourceID: sourceID,
		TargetID: targetID,
		Relation: relation,
		Context:  relContext,
		Strength: 1.0,
		Created:  now,
		Updated:  now,
	}
	s.nextRelID++
	s.rels[key] = r
	return *r, nil
}

func (s *EntityStore) FindEntity(ctx context.Context, name string) (*store.Entity, error) {
	lowered := strings.ToLower(strings.TrimSpace(name))
	if lowered == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var exact, fuzzy *store.Entity
	for _, e := range s.entities {
		el := strings.ToLower(e.Name)
		if el == lowered {
			if exact == nil || e.Mentions > exact.Mentions {
				exact = e
			}
		} else if strings.Contains(el, lowered) {
			if fuzzy == nil || e.Mentions > fuzzy.Mentions {
				fuzzy = e
			}
		}
	}
	if exact != nil {
		copied := *exact
		return &copied, nil
	}
	if fuzzy != nil {
		copied := *fuzzy
		return &copied, nil
	}
	return nil, nil
}

func (s *EntityStore) SearchEntities(ctx context.Context, tokens []string, limit int) ([]store.Entity, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*store.Entity
	for _, e := range s.entities {
		haystack := strings.ToLower(e.Name) + " " + strings.ToLower(e.Description)
		for _, tok := range tokens {
			if strings.Contains(haystack, strings.ToLower(tok)) {
				matched = append(matched, e)
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Mentions != matched[j].Mentions {
			return matched[i].Mentions > matched[j].Mentions
		}
		return matched[i].LastSeen.After(matched[j].LastSeen)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]store.Entity, len(matched))
	for i, e := range matched {
		out[i] = *e
	}
	return out, nil
}

func (s *EntityStore) Outgoing(ctx context.Context, entityID int64, limit int) ([]store.RelationEdge, error) {
	return s.edges(entityID, limit, true)
}

func (s *EntityStore) Incoming(ctx context.Context, entityID int64, limit int) ([]store.RelationEdge, error) {
	return s.edges(entityID, limit, false)
}

func (s *EntityStore) edges(entityID int64, limit int, outgoing bool) ([]store.RelationEdge, error) {
	if limit <= 0 {
		limit = 5
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*store.Relationship
	for _, r := range s.rels {
		if (outgoing && r.SourceID == entityID) || (!outgoing && r.TargetID == entityID) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Strength > matched[j].Strength })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]store.RelationEdge, 0, len(matched))
	for _, r := range matched {
		src, dst := s.entities[r.SourceID], s.entities[r.TargetID]
		if src == nil || dst == nil {
			continue
		}
		out = append(out, store.RelationEdge{
			SourceName: src.Name,
			Relation:   r.Relation,
			TargetName: dst.Name,
			Context:    r.Context,
			Strength:   r.Strength,
		})
	}
	return out, nil
}

func (s *EntityStore) CountEntities(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities), nil
}

var _ store.EntityStore = (*EntityStore)(nil)
