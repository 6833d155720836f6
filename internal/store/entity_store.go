package store

import (
	"context"
	"time"
)

// EntityTypes is the vocabulary the graph extractor is allowed to emit.
// Anything else is stored as "unknown".
var EntityTypes = []string{"person", "company", "project", "tool", "concept", "place", "event", "unknown"}

// Entity is a node in the relationship graph, unique on (lowercased name,
// type). Mentions counts observations.
type Entity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Mentions    int       `json:"mentions"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// Relationship is a directed edge, unique on (source, target, relation).
// Re-observation adds 0.5 to strength.
type Relationship struct {
	ID       int64     `json:"id"`
	SourceID int64     `json:"source_id"`
	TargetID int64     `json:"target_id"`
	Relation string    `json:"relation"`
	Context  string    `json:"context,omitempty"`
	Strength float64   `json:"strength"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// RelationEdge is a relationship joined with its endpoint names, ready for
// formatting.
type RelationEdge struct {
	SourceName string  `json:"source"`
	Relation   string  `json:"relation"`
	TargetName string  `json:"target"`
	Context    string  `json:"context,omitempty"`
	Strength   float64 `json:"strength"`
}

// EntityStore is the local entity-relationship graph.
type EntityStore interface {
	// UpsertEntity creates or touches the entity keyed by (lowercased name,
	// type). Existing entities get mentions+1, an updated last-seen, and the
	// new description when one is given.
	UpsertEntity(ctx context.Context, name, entityType, description string) (Entity, error)

	// AddRelationship creates or strengthens the (source, target, relation)
	// edge.
	AddRelationship(ctx context.Context, sourceID, targetID int64, relation, relContext string) (Relationship, error)

	// FindEntity looks up by exact lowercased name first, then by substring.
	// Returns nil when nothing matches.
	FindEntity(ctx context.Context, name string) (*Entity, error)

	// SearchEntities returns entities whose name or description contains any
	// of the tokens.
	SearchEntities(ctx context.Context, tokens []string, limit int) ([]Entity, error)

	// Outgoing and Incoming return up to limit edges touching the entity,
	// strongest first.
	Outgoing(ctx context.Context, entityID int64, limit int) ([]RelationEdge, error)
	Incoming(ctx context.Context, entityID int64, limit int) ([]RelationEdge, error)

	// CountEntities reports graph size for health reporting.
	CountEntities(ctx context.Context) (int, error)
}
