package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// EntityStore implements store.EntityStore over SQL.
type EntityStore struct {
	db *sql.DB
}

func NewEntityStore(db *sql.DB) *EntityStore {
	return &EntityStore{db: db}
}

// normalizeEntityType maps anything outside the vocabulary to "unknown".
func normalizeEntityType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	for _, known := range store.EntityTypes {
		if t == known {
			return t
		}
	}
	return "unknown"
}

func (s *EntityStore) UpsertEntity(ctx context.Context, name, entityType, description string) (store.Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Entity{}, errors.New("entities: empty name")
	}
	entityType = normalizeEntityType(entityType)
	now := time.Now().UnixMilli()

	var e store.Entity
	var first, last int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO entities (name, name_lower, type, description, mentions, first_seen, last_seen)
		 VALUES ($1, $2, $3, $4, 1, $5, $5)
		 ON CONFLICT (name_lower, type) DO UPDATE SET
			mentions = entities.mentions + 1,
			last_seen = excluded.last_seen,
			description = CASE WHEN excluded.description <> '' THEN excluded.description ELSE entities.description END
		 RETURNING id, name, type, description, mentions, first_seen, last_seen`,
		name, strings.ToLower(name), entityType, strings.TrimSpace(description), now,
	).Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.Mentions, &first, &last)
	if err != nil {
		return store.Entity{}, fmt.Errorf("entities: upsert: %w", err)
	}
	e.FirstSeen = time.UnixMilli(first)
	e.LastSeen = time.UnixMilli(last)
	return e, nil
}

func (s *EntityStore) AddRelationship(ctx context.Context, sourceID, targetID int64, relation, relContext string) (store.Relationship, error) {
	relation = strings.ToLower(strings.TrimSpace(relation))
	if relation == "" {
		// Same spelling the extractor normalises to, so direct stores and
		// extracted triples share one conflict key.
		relation = "related_to"
	}
	now := time.Now().UnixMilli()

	var r store.Relationship
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO relationships (source_id, target_id, relation, context, strength, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 1.0, $5, $5)
		 ON CONFLICT (source_id, target_id, relation) DO UPDATE SET
			strength = relationships.strength + 0.5,
			updated_at = excluded.updated_at,
			context = CASE WHEN excluded.context <> '' THEN excluded.context ELSE relationships.context END
		 RETURNING id, source_id, target_id, relation, context, strength, created_at, updated_at`,
		sourceID, targetID, relation, strings.TrimSpace(relContext), now,
	).Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Relation, &r.Context, &r.Strength, &created, &updated)
	if err != nil {
		return store.Relationship{}, fmt.Errorf("entities: add relationship: %w", err)
	}
	r.Created = time.UnixMilli(created)
	r.Updated = time.UnixMilli(updated)
	return r, nil
}

func (s *EntityStore) FindEntity(ctx context.Context, name string) (*store.Entity, error) {
	lowered := strings.ToLower(strings.TrimSpace(name))
	if lowered == "" {
		return nil, nil
	}
	e, err := s.findOne(ctx, `SELECT id, name, type, description, mentions, first_seen, last_seen
		 FROM entities WHERE name_lower = $1 ORDER BY mentions DESC LIMIT 1`, lowered)
	if err != nil || e != nil {
		return e, err
	}
	return s.findOne(ctx, `SELECT id, name, type, description, mentions, first_seen, last_seen
		 FROM entities WHERE name_lower LIKE $1 ORDER BY mentions DESC LIMIT 1`, "%"+lowered+"%")
}

func (s *EntityStore) findOne(ctx context.Context, query string, arg any) (*store.Entity, error) {
	var e store.Entity
	var first, last int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.Mentions, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entities: find: %w", err)
	}
	e.FirstSeen = time.UnixMilli(first)
	e.LastSeen = time.UnixMilli(last)
	return &e, nil
}

func (s *EntityStore) SearchEntities(ctx context.Context, tokens []string, limit int) ([]store.Entity, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	conds := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens)+1)
	for _, tok := range tokens {
		args = append(args, "%"+strings.ToLower(tok)+"%")
		conds = append(conds, fmt.Sprintf("(name_lower LIKE $%d OR LOWER(description) LIKE $%d)", len(args), len(args)))
	}
	args = append(args, limit)
	q := fmt.Sprintf(
		`SELECT id, name, type, description, mentions, first_seen, last_seen
		 FROM entities WHERE %s ORDER BY mentions DESC, last_seen DESC LIMIT $%d`,
		strings.Join(conds, " OR "), len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("entities: search: %w", err)
	}
	defer rows.Close()

	var out []store.Entity
	for rows.Next() {
		var e store.Entity
		var first, last int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.Mentions, &first, &last); err != nil {
			return nil, fmt.Errorf("entities: scan: %w", err)
		}
		e.FirstSeen = time.UnixMilli(first)
		e.LastSeen = time.UnixMilli(last)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EntityStore) Outgoing(ctx context.Context, entityID int64, limit int) ([]store.RelationEdge, error) {
	return s.edges(ctx, `SELECT src.name, r.relation, dst.name, r.context, r.strength
		 FROM relationships r
		 JOIN entities src ON src.id = r.source_id
		 JOIN entities dst ON dst.id = r.target_id
		 WHERE r.source_id = $1 ORDER BY r.strength DESC LIMIT $2`, entityID, limit)
}

func (s *EntityStore) Incoming(ctx context.Context, entityID int64, limit int) ([]store.RelationEdge, error) {
	return s.edges(ctx, `SELECT src.name, r.relation, dst.name, r.context, r.strength
		 FROM relationships r
		 JOIN entities src ON src.id = r.source_id
		 JOIN entities dst ON dst.id = r.target_id
		 WHERE r.target_id = $1 ORDER BY r.strength DESC LIMIT $2`, entityID, limit)
}

func (s *EntityStore) edges(ctx context.Context, query string, entityID int64, limit int) ([]store.RelationEdge, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, query, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("entities: edges: %w", err)
	}
	defer rows.Close()

	var out []store.RelationEdge
	for rows.Next() {
		var e store.RelationEdge
		if err := rows.Scan(&e.SourceName, &e.Relation, &e.TargetName, &e.Context, &e.Strength); err != nil {
			return nil, fmt.Errorf("entities: scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EntityStore) CountEntities(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, err
}

var _ store.EntityStore = (*EntityStore)(nil)
