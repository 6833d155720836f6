package store

import (
	"context"
	"time"
)

// DeliveryStatus tracks an outbound item through the queue.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryMaxAttempts is the terminal attempt count.
const DeliveryMaxAttempts = 5

// DeliveryItem is one queued outbound message.
type DeliveryItem struct {
	ID          int64             `json:"id"`
	Channel     string            `json:"channel"`
	Recipient   string            `json:"recipient,omitempty"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	NextRetry   time.Time         `json:"next_retry"`
	Status      DeliveryStatus    `json:"status"`
	LastError   string            `json:"last_error,omitempty"`
	Created     time.Time         `json:"created"`
}

// DeliveryStore persists the outbound queue. Retry policy lives in the
// delivery package; the store records what it is told.
type DeliveryStore interface {
	// Enqueue stores a new pending item with next retry now.
	Enqueue(ctx context.Context, item DeliveryItem) (DeliveryItem, error)

	// Due returns up to limit pending items whose next retry has passed and
	// whose attempts are below the maximum, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]DeliveryItem, error)

	// MarkDelivered moves the item to its terminal delivered state.
	MarkDelivered(ctx context.Context, id int64) error

	// MarkFailed records a send failure with the caller-computed attempt
	// count, status and next retry time.
	MarkFailed(ctx context.Context, id int64, lastError string, attempts int, status DeliveryStatus, nextRetry time.Time) error

	// All returns the most recent limit items regardless of status.
	All(ctx context.Context, limit int) ([]DeliveryItem, error)
}
