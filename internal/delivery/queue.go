// Package delivery is the persistent outbound retry queue. Sends that fail
// at the channel adapter land here and are retried with exponential backoff
// until delivered or terminally failed.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hearthside/domo/internal/store"
)

const (
	// tickInterval paces the background drain loop.
	tickInterval = 30 * time.Second
	// drainBatch bounds how many due items one tick processes.
	drainBatch = 20
)

// SendFunc delivers one item on its channel. An error schedules a retry.
type SendFunc func(ctx context.Context, item store.DeliveryItem) error

// Queue drains the delivery store through per-channel send functions.
type Queue struct {
	store store.DeliveryStore

	mu      sync.RWMutex
	senders map[string]SendFunc

	// onTransition, when set, broadcasts queue state changes to the
	// dashboard. Best-effort.
	onTransition func(item store.DeliveryItem)
}

func New(ds store.DeliveryStore) *Queue {
	return &Queue{
		store:   ds,
		senders: make(map[string]SendFunc),
	}
}

// RegisterSender installs the send function for a channel. Items on
// channels without a sender stay pending until one appears.
func (q *Queue) RegisterSender(channel string, fn SendFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.senders[channel] = fn
}

// OnTransition sets the dashboard broadcast hook.
func (q *Queue) OnTransition(fn func(store.DeliveryItem)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onTransition = fn
}

// Enqueue stores a pending item due immediately.
func (q *Queue) Enqueue(ctx context.Context, channel, recipient, content string, metadata map[string]string) (store.DeliveryItem, error) {
	item, err := q.store.Enqueue(ctx, store.DeliveryItem{
		Channel:   channel,
		Recipient: recipient,
		Content:   content,
		Metadata:  metadata,
	})
	if err != nil {
		return item, fmt.Errorf("delivery: enqueue: %w", err)
	}
	slog.Debug("delivery enqueued", "id", item.ID, "channel", channel)
	return item, nil
}

// Run ticks every 30 s, draining due items until the context is cancelled.
// One immediate drain clears any backlog from a previous run.
func (q *Queue) Run(ctx context.Context) {
	q.Drain(ctx)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

// Drain sends every due item once. A failure on one item never blocks the
// rest of the batch.
func (q *Queue) Drain(ctx context.Context) {
	due, err := q.store.Due(ctx, time.Now().UTC(), drainBatch)
	if err != nil {
		slog.Warn("delivery queue read failed", "error", err)
		return
	}
	for _, item := range due {
		q.attempt(ctx, item)
	}
}

func (q *Queue) attempt(ctx context.Context, item store.DeliveryItem) {
	q.mu.RLock()
	send, ok := q.senders[item.Channel]
	notify := q.onTransition
	q.mu.RUnlock()

	if !ok {
		slog.Debug("no sender for channel, leaving pending", "channel", item.Channel, "id", item.ID)
		return
	}

	if err := send(ctx, item); err != nil {
		q.recordFailure(ctx, item, err, notify)
		return
	}

	if err := q.store.MarkDelivered(ctx, item.ID); err != nil {
		slog.Warn("delivery mark failed", "id", item.ID, "error", err)
		return
	}
	item.Status = store.DeliveryDelivered
	slog.Info("delivery succeeded", "id", item.ID, "channel", item.Channel, "attempts", item.Attempts+1)
	if notify != nil {
		notify(item)
	}
}

func (q *Queue) recordFailure(ctx context.Context, item store.DeliveryItem, sendErr error, notify func(store.DeliveryItem)) {
	attempts := item.Attempts + 1
	status := store.DeliveryPending
	nextRetry := time.Now().UTC().Add(Backoff(attempts))
	if attempts >= store.DeliveryMaxAttempts {
		status = store.DeliveryFailed
		slog.Warn("delivery terminally failed", "id", item.ID, "channel", item.Channel, "attempts", attempts, "error", sendErr)
	} else {
		slog.Debug("delivery failed, retrying", "id", item.ID, "attempts", attempts, "next_retry", nextRetry, "error", sendErr)
	}

	if err := q.store.MarkFailed(ctx, item.ID, sendErr.Error(), attempts, status, nextRetry); err != nil {
		slog.Warn("delivery failure record failed", "id", item.ID, "error", err)
		return
	}
	item.Attempts = attempts
	item.Status = status
	item.NextRetry = nextRetry
	if notify != nil {
		notify(item)
	}
}

// Backoff is 2^attempts minutes: 2, 4, 8, 16 minutes after attempts 1-4.
func Backoff(attempts int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempts))) * time.Minute
}
