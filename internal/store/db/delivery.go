package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// DeliveryStore implements store.DeliveryStore over SQL.
type DeliveryStore struct {
	db *sql.DB
}

func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

func (s *DeliveryStore) Enqueue(ctx context.Context, item store.DeliveryItem) (store.DeliveryItem, error) {
	now := time.Now()
	item.Status = store.DeliveryPending
	item.Attempts = 0
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = store.DeliveryMaxAttempts
	}
	item.NextRetry = now
	item.Created = now

	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return store.DeliveryItem{}, fmt.Errorf("delivery: encode metadata: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO delivery_queue (channel, recipient, content, metadata, attempts, max_attempts, next_retry, status, last_error, created_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7, '', $8) RETURNING id`,
		item.Channel, item.Recipient, item.Content, string(meta), item.MaxAttempts,
		item.NextRetry.UnixMilli(), string(item.Status), item.Created.UnixMilli(),
	).Scan(&item.ID)
	if err != nil {
		return store.DeliveryItem{}, fmt.Errorf("delivery: enqueue: %w", err)
	}
	return item, nil
}

func (s *DeliveryStore) Due(ctx context.Context, now time.Time, limit int) ([]store.DeliveryItem, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, recipient, content, metadata, attempts, max_attempts, next_retry, status, last_error, created_at
		 FROM delivery_queue
		 WHERE status = $1 AND next_retry <= $2 AND attempts < max_attempts
		 ORDER BY id ASC LIMIT $3`,
		string(store.DeliveryPending), now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("delivery: due: %w", err)
	}
	return scanDelivery(rows)
}

func (s *DeliveryStore) MarkDelivered(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE delivery_queue SET status = $1 WHERE id = $2`,
		string(store.DeliveryDelivered), id)
	if err != nil {
		return fmt.Errorf("delivery: mark delivered: %w", err)
	}
	return nil
}

func (s *DeliveryStore) MarkFailed(ctx context.Context, id int64, lastError string, attempts int, status store.DeliveryStatus, nextRetry time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE delivery_queue SET attempts = $1, status = $2, next_retry = $3, last_error = $4 WHERE id = $5`,
		attempts, string(status), nextRetry.UnixMilli(), lastError, id)
	if err != nil {
		return fmt.Errorf("delivery: mark failed: %w", err)
	}
	return nil
}

func (s *DeliveryStore) All(ctx context.Context, limit int) ([]store.DeliveryItem, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, recipient, content, metadata, attempts, max_attempts, next_retry, status, last_error, created_at
		 FROM delivery_queue ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("delivery: list: %w", err)
	}
	return scanDelivery(rows)
}

func scanDelivery(rows *sql.Rows) ([]store.DeliveryItem, error) {
	defer rows.Close()
	var out []store.DeliveryItem
	for rows.Next() {
		var item store.DeliveryItem
		var meta, status string
		var nextRetry, created int64
		if err := rows.Scan(&item.ID, &item.Channel, &item.Recipient, &item.Content, &meta,
			&item.Attempts, &item.MaxAttempts, &nextRetry, &status, &item.LastError, &created); err != nil {
			return nil, fmt.Errorf("delivery: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &item.Metadata); err != nil {
			item.Metadata = nil
		}
		item.Status = store.DeliveryStatus(status)
		item.NextRetry = time.UnixMilli(nextRetry)
		item.Created = time.UnixMilli(created)
		out = append(out, item)
	}
	return out, rows.Err()
}

var _ store.DeliveryStore = (*DeliveryStore)(nil)
