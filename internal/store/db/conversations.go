package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// ConversationStore implements store.ConversationStore over SQL.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) AddMessage(ctx context.Context, m store.Message) (store.Message, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversations (agent, role, content, channel, user_id, username, tokens, model, tier, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		m.Agent, m.Role, m.Content, m.Channel, m.UserID, m.Username, m.Tokens, m.Model, m.Tier, m.Timestamp.UnixMilli(),
	).Scan(&m.ID)
	if err != nil {
		return store.Message{}, fmt.Errorf("conversations: insert: %w", err)
	}
	return m, nil
}

func (s *ConversationStore) History(ctx context.Context, agent string, limit int, f store.HistoryFilter) ([]store.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, agent, role, content, channel, user_id, username, tokens, model, tier, ts
		 FROM conversations WHERE agent = $1`
	args := []any{agent}
	if f.Channel != "" {
		args = append(args, f.Channel)
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversations: history: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Scanned newest first; callers want chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *ConversationStore) Threads(ctx context.Context, agent string) ([]store.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, user_id, MAX(username), COUNT(*), MIN(ts), MAX(ts)
		 FROM conversations WHERE agent = $1
		 GROUP BY channel, user_id
		 ORDER BY MAX(ts) DESC`, agent)
	if err != nil {
		return nil, fmt.Errorf("conversations: threads: %w", err)
	}
	defer rows.Close()

	var out []store.Thread
	for rows.Next() {
		var t store.Thread
		var first, last int64
		if err := rows.Scan(&t.Channel, &t.UserID, &t.Username, &t.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("conversations: scan thread: %w", err)
		}
		t.First = time.UnixMilli(first)
		t.Last = time.UnixMilli(last)
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanMessage(rows *sql.Rows) (store.Message, error) {
	var m store.Message
	var ts int64
	if err := rows.Scan(&m.ID, &m.Agent, &m.Role, &m.Content, &m.Channel, &m.UserID, &m.Username, &m.Tokens, &m.Model, &m.Tier, &ts); err != nil {
		return store.Message{}, fmt.Errorf("conversations: scan: %w", err)
	}
	m.Timestamp = time.UnixMilli(ts)
	return m, nil
}

var _ store.ConversationStore = (*ConversationStore)(nil)
