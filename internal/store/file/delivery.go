package file

import (
	"context"
	"time"

	"sync"

	"github.com/hearthside/domo/internal/store"
)

// deliveryJSON is the on-disk shape of delivery-queue.json.
type deliveryJSON struct {
	NextID int64                `json:"next_id"`
	Items  []store.DeliveryItem `json:"items"`
}

// DeliveryStore persists the outbound queue to delivery-queue.json.
type DeliveryStore struct {
	mu      sync.Mutex
	path    string
	persist bool
	data    deliveryJSON
}

func NewDeliveryStore(path string, persist bool) *DeliveryStore {
	s := &DeliveryStore{path: path, persist: persist}
	s.data.NextID = 1
	if err := readJSON(path, &s.data); err != nil {
		logPersistError("delivery", err)
	}
	if s.data.NextID < 1 {
		s.data.NextID = 1
	}
	for _, item := range s.data.Items {
		if item.ID >= s.data.NextID {
			s.data.NextID = item.ID + 1
		}
	}
	return s
}

func (s *DeliveryStore) save() {
	if !s.persist {
		return
	}
	logPersistError("delivery", writeJSONAtomic(s.path, &s.data))
}

func (s *DeliveryStore) Enqueue(ctx context.Context, item store.DeliveryItem) (store.DeliveryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	item.ID = s.data.NextID
	s.data.NextID++
	item.Status = store.DeliveryPending
	item.Attempts = 0
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = store.DeliveryMaxAttempts
	}
	item.NextRetry = now
	item.Created = now
	s.data.Items = append(s.data.Items, item)
	s.save()
	return item, nil
}

func (s *DeliveryStore) Due(ctx context.Context, now time.Time, limit int) ([]store.DeliveryItem, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.DeliveryItem
	for _, item := range s.data.Items {
		if item.Status != store.DeliveryPending || item.NextRetry.After(now) || item.Attempts >= item.MaxAttempts {
			continue
		}
		out = append(out, item)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *DeliveryStore) MarkDelivered(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Items {
		if s.data.Items[i].ID == id {
			s.data.Items[i].Status = store.DeliveryDelivered
			s.save()
			return nil
		}
	}
	return nil
}

func (s *DeliveryStore) MarkFailed(ctx context.Context, id int64, lastError string, attempts int, status store.DeliveryStatus, nextRetry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Items {
		if s.data.Items[i].ID == id {
			s.data.Items[i].Attempts = attempts
			s.data.Items[i].Status = status
			s.data.Items[i].NextRetry = nextRetry
			s.data.Items[i].LastError = lastError
			s.save()
			return nil
		}
	}
	return nil
}

func (s *DeliveryStore) All(ctx context.Context, limit int) ([]store.DeliveryItem, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.DeliveryItem
	for i := len(s.data.Items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.data.Items[i])
	}
	return out, nil
}

var _ store.DeliveryStore = (*DeliveryStore)(nil)
