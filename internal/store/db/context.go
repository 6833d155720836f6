package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// ContextStore implements store.ContextStore over SQL.
type ContextStore struct {
	db *sql.DB
}

func NewContextStore(db *sql.DB) *ContextStore {
	return &ContextStore{db: db}
}

func (s *ContextStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM context_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("context: get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *ContextStore) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO context_kv (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("context: set %q: %w", key, err)
	}
	return nil
}

var _ store.ContextStore = (*ContextStore)(nil)
