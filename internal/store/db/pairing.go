package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// PairingStore implements store.PairingStore over SQL.
type PairingStore struct {
	db *sql.DB
}

func NewPairingStore(db *sql.DB) *PairingStore {
	return &PairingStore{db: db}
}

func (s *PairingStore) Allow(ctx context.Context, u store.AllowedUser) error {
	if u.Added.IsZero() {
		u.Added = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO allowed_users (channel, user_id, username, added_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (channel, user_id) DO UPDATE SET username = excluded.username`,
		u.Channel, u.UserID, u.Username, u.Added.UnixMilli())
	if err != nil {
		return fmt.Errorf("pairing: allow: %w", err)
	}
	return nil
}

func (s *PairingStore) IsAllowed(ctx context.Context, channel, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM allowed_users WHERE channel = $1 AND user_id = $2`, channel, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pairing: lookup: %w", err)
	}
	return true, nil
}

func (s *PairingStore) Allowed(ctx context.Context, channel string) ([]store.AllowedUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, user_id, username, added_at FROM allowed_users
		 WHERE channel = $1 ORDER BY added_at DESC`, channel)
	if err != nil {
		return nil, fmt.Errorf("pairing: list: %w", err)
	}
	defer rows.Close()

	var out []store.AllowedUser
	for rows.Next() {
		var u store.AllowedUser
		var added int64
		if err := rows.Scan(&u.Channel, &u.UserID, &u.Username, &added); err != nil {
			return nil, fmt.Errorf("pairing: scan: %w", err)
		}
		u.Added = time.UnixMilli(added)
		out = append(out, u)
	}
	return out, rows.Err()
}

var _ store.PairingStore = (*PairingStore)(nil)
