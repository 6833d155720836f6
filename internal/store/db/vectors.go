package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// VectorStore persists vector documents in SQL. SaveAll rewrites the whole
// set; at the 5,000-document cap that is a small transaction.
type VectorStore struct {
	db *sql.DB
}

func NewVectorStore(db *sql.DB) *VectorStore {
	return &VectorStore{db: db}
}

func (s *VectorStore) SaveAll(ctx context.Context, docs []store.VectorDoc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectors: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_docs`); err != nil {
		return fmt.Errorf("vectors: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vector_docs (id, content, tokens, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("vectors: prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		tokens, err := json.Marshal(d.Tokens)
		if err != nil {
			return fmt.Errorf("vectors: encode tokens: %w", err)
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("vectors: encode metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Text, string(tokens), string(meta), d.Created.UnixMilli()); err != nil {
			return fmt.Errorf("vectors: insert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vectors: commit: %w", err)
	}
	return nil
}

func (s *VectorStore) LoadAll(ctx context.Context) ([]store.VectorDoc, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, tokens, metadata, created_at FROM vector_docs ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("vectors: load: %w", err)
	}
	defer rows.Close()

	var out []store.VectorDoc
	for rows.Next() {
		var d store.VectorDoc
		var tokens, meta string
		var created int64
		if err := rows.Scan(&d.ID, &d.Text, &tokens, &meta, &created); err != nil {
			return nil, fmt.Errorf("vectors: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(tokens), &d.Tokens); err != nil {
			d.Tokens = nil
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			d.Metadata = nil
		}
		d.Created = time.UnixMilli(created)
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ store.VectorStore = (*VectorStore)(nil)
