package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hearthside/domo/internal/store"
	"github.com/hearthside/domo/internal/store/file"
)

func TestBackoffSchedule(t *testing.T) {
	want := []time.Duration{2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 16 * time.Minute}
	for i, w := range want {
		if got := Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestQueueRetriesUntilTerminal(t *testing.T) {
	ctx := context.Background()
	ds := file.New(t.TempDir()).Delivery
	q := New(ds)

	sendErr := errors.New("network down")
	calls := 0
	q.RegisterSender("tg", func(ctx context.Context, item store.DeliveryItem) error {
		calls++
		return sendErr
	})

	item, err := q.Enqueue(ctx, "tg", "U", "hello", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Each drain attempts once; rewind next_retry in between to simulate
	// the backoff windows passing.
	for attempt := 1; attempt <= store.DeliveryMaxAttempts; attempt++ {
		q.Drain(ctx)
		if calls != attempt {
			t.Fatalf("after drain %d: calls = %d", attempt, calls)
		}
		all, err := ds.All(ctx, 10)
		if err != nil || len(all) != 1 {
			t.Fatalf("all = %v err = %v", all, err)
		}
		got := all[0]
		if got.Attempts != attempt {
			t.Fatalf("attempts = %d, want %d", got.Attempts, attempt)
		}
		if attempt < store.DeliveryMaxAttempts {
			if got.Status != store.DeliveryPending {
				t.Fatalf("status = %q before terminal", got.Status)
			}
			// Not due yet: an immediate drain must not retry early.
			q.Drain(ctx)
			if calls != attempt {
				t.Fatal("retried before backoff elapsed")
			}
			rewind(t, ds, item.ID)
		} else if got.Status != store.DeliveryFailed {
			t.Fatalf("status = %q, want failed after %d attempts", got.Status, attempt)
		}
	}

	// Terminal items never retry again.
	q.Drain(ctx)
	if calls != store.DeliveryMaxAttempts {
		t.Fatalf("calls after terminal = %d", calls)
	}
}

func TestQueueDeliversAndOneFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	ds := file.New(t.TempDir()).Delivery
	q := New(ds)

	var delivered []string
	q.RegisterSender("tg", func(ctx context.Context, item store.DeliveryItem) error {
		if item.Recipient == "bad" {
			return errors.New("boom")
		}
		delivered = append(delivered, item.Recipient)
		return nil
	})

	if _, err := q.Enqueue(ctx, "tg", "bad", "x", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, "tg", "alice", "y", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, "tg", "bob", "z", nil); err != nil {
		t.Fatal(err)
	}

	q.Drain(ctx)
	if len(delivered) != 2 {
		t.Fatalf("delivered = %v", delivered)
	}

	all, err := ds.All(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	statuses := map[store.DeliveryStatus]int{}
	for _, it := range all {
		statuses[it.Status]++
	}
	if statuses[store.DeliveryDelivered] != 2 || statuses[store.DeliveryPending] != 1 {
		t.Fatalf("statuses = %v", statuses)
	}
}

// rewind forces an item due now by replaying a failure record with an
// immediate retry time.
func rewind(t *testing.T, ds store.DeliveryStore, id int64) {
	t.Helper()
	all, err := ds.All(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range all {
		if it.ID == id {
			if err := ds.MarkFailed(context.Background(), id, it.LastError, it.Attempts, it.Status, time.Now().UTC().Add(-time.Second)); err != nil {
				t.Fatal(err)
			}
			return
		}
	}
	t.Fatalf("item %d not found", id)
}
