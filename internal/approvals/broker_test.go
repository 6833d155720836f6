package approvals

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hearthside/domo/internal/audit"
	"github.com/hearthside/domo/internal/store"
	"github.com/hearthside/domo/internal/store/file"
)

// recordingTrail captures audit writes for assertions.
type recordingTrail struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingTrail) Log(ctx context.Context, agent, action, detail string, meta map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := audit.Entry{Agent: agent, Action: action, Detail: detail, Meta: meta}
	if v, ok := meta["approved"].(bool); ok {
		e.Approved = &v
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingTrail) Recent(ctx context.Context, limit int, agent string) ([]audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...), nil
}

func (r *recordingTrail) CostSummary(ctx context.Context) (audit.CostSummary, error) {
	return audit.CostSummary{}, nil
}

func (r *recordingTrail) CostsByChannel(ctx context.Context, period audit.Period) (map[string]float64, error) {
	return nil, nil
}

func newBroker(t *testing.T, timeout time.Duration) *Broker {
	t.Helper()
	return New(file.New(t.TempDir()).Approvals, timeout)
}

func TestApproveWakesAllWaiters(t *testing.T) {
	b := newBroker(t, time.Minute)
	ctx := context.Background()

	req, ch1, err := b.Request(ctx, "domo", "delete old backups", "rm -rf /backups/2023", RiskHigh)
	if err != nil {
		t.Fatal(err)
	}
	// A second waiter on the same request, as the dashboard and the tool
	// path can both park.
	b.mu.Lock()
	ch2 := make(chan Outcome, 1)
	b.waiters[req.ID] = append(b.waiters[req.ID], ch2)
	b.mu.Unlock()

	if err := b.Approve(ctx, req.ID, "owner"); err != nil {
		t.Fatal(err)
	}
	for _, ch := range []chan Outcome{nil, ch2} {
		var out Outcome
		if ch == nil {
			out = b.Wait(ctx, ch1)
		} else {
			out = b.Wait(ctx, ch)
		}
		if !out.Approved || out.By != "owner" {
			t.Fatalf("outcome = %+v", out)
		}
	}

	pending, err := b.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %d", len(pending))
	}
}

func TestDenyCarriesReason(t *testing.T) {
	b := newBroker(t, time.Minute)
	ctx := context.Background()

	req, ch, err := b.Request(ctx, "domo", "send money to vendor", "", RiskHigh)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Deny(ctx, req.ID, "owner", "not today"); err != nil {
		t.Fatal(err)
	}
	out := b.Wait(ctx, ch)
	if out.Approved || out.Reason != "not today" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestExpireAutoDenies(t *testing.T) {
	// Zero-ish timeout so the sweep catches the request immediately.
	b := newBroker(t, time.Nanosecond)
	ctx := context.Background()

	_, ch, err := b.Request(ctx, "domo", "share calendar", "", RiskMedium)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	b.expire(ctx)

	select {
	case out := <-ch:
		if out.Approved {
			t.Fatal("expired request was approved")
		}
	default:
		t.Fatal("waiter not woken by expiry")
	}
}

func TestResolutionsAreAudited(t *testing.T) {
	b := newBroker(t, time.Nanosecond)
	trail := &recordingTrail{}
	b.SetAudit(trail)
	ctx := context.Background()

	approved, ch1, err := b.Request(ctx, "domo", "delete old backups", "", RiskHigh)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Approve(ctx, approved.ID, "owner"); err != nil {
		t.Fatal(err)
	}
	<-ch1

	denied, ch2, err := b.Request(ctx, "domo", "send money to vendor", "", RiskHigh)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Deny(ctx, denied.ID, "owner", "not today"); err != nil {
		t.Fatal(err)
	}
	<-ch2

	expired, ch3, err := b.Request(ctx, "domo", "share calendar", "", RiskMedium)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	b.expire(ctx)
	<-ch3

	entries, _ := trail.Recent(ctx, 10, "")
	if len(entries) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(entries))
	}
	want := []struct {
		detail   string
		approved bool
		by       string
	}{
		{"delete old backups", true, "owner"},
		{"send money to vendor", false, "owner"},
		{"share calendar", false, "system"},
	}
	for i, w := range want {
		e := entries[i]
		if e.Action != audit.ActionApproval {
			t.Errorf("entry %d action = %q", i, e.Action)
		}
		if e.Detail != w.detail {
			t.Errorf("entry %d detail = %q, want %q", i, e.Detail, w.detail)
		}
		if e.Approved == nil || *e.Approved != w.approved {
			t.Errorf("entry %d approved = %v, want %v", i, e.Approved, w.approved)
		}
		if e.Meta["resolved_by"] != w.by {
			t.Errorf("entry %d resolved_by = %v, want %q", i, e.Meta["resolved_by"], w.by)
		}
	}
	if entries[0].Meta["request_id"] != approved.ID {
		t.Errorf("request_id = %v, want %s", entries[0].Meta["request_id"], approved.ID)
	}
	if entries[1].Meta["reason"] != "not today" {
		t.Errorf("reason = %v", entries[1].Meta["reason"])
	}
	if entries[2].Meta["request_id"] != expired.ID {
		t.Errorf("request_id = %v, want %s", entries[2].Meta["request_id"], expired.ID)
	}
}

func TestResolveNonPendingIsStable(t *testing.T) {
	b := newBroker(t, time.Minute)
	ctx := context.Background()

	req, ch, err := b.Request(ctx, "domo", "delete note", "", RiskLow)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Approve(ctx, req.ID, "owner"); err != nil {
		t.Fatal(err)
	}
	<-ch

	// A second resolution must not flip the stored status.
	_ = b.Deny(ctx, req.ID, "owner", "changed my mind")
	got, err := b.store.Get(ctx, req.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Status != store.ApprovalApproved {
		t.Fatalf("status flipped to %q", got.Status)
	}
}
