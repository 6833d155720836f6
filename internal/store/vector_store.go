package store

import (
	"context"
	"time"
)

// VectorDoc is one indexed document. Tokens are persisted; embeddings are
// regenerated on demand and never written to disk.
type VectorDoc struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Tokens   []string          `json:"tokens"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Created  time.Time         `json:"created"`
}

// VectorStore persists the vector index's documents. The scoring lives in
// the memory package; this is storage only.
type VectorStore interface {
	// SaveAll replaces the persisted set with docs.
	SaveAll(ctx context.Context, docs []VectorDoc) error

	// LoadAll returns every persisted document, oldest first.
	LoadAll(ctx context.Context) ([]VectorDoc, error)
}
