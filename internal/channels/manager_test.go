package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/delivery"
	"github.com/hearthside/domo/internal/store/file"
)

// fakeAdapter records sends and can be told to fail.
type fakeAdapter struct {
	*Base
	sent    chan bus.OutboundMessage
	sendErr error
}

func newFakeAdapter(name string, msgBus *bus.MessageBus, pairing *Pairing) *fakeAdapter {
	return &fakeAdapter{
		Base: NewBase(name, msgBus, nil, pairing, "open", "open"),
		sent: make(chan bus.OutboundMessage, 8),
	}
}

func (f *fakeAdapter) Start(_ context.Context) error { return nil }
func (f *fakeAdapter) Stop(_ context.Context) error  { return nil }
func (f *fakeAdapter) Send(_ context.Context, msg bus.OutboundMessage) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent <- msg
	return nil
}

func TestManagerRoutesOutboundToAdapter(t *testing.T) {
	msgBus := bus.NewMessageBus()
	m := NewManager(msgBus, delivery.New(file.NewDeliveryStore("", false)))
	fake := newFakeAdapter("telegram", msgBus, nil)
	m.Register(fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartAll(ctx)
	defer m.StopAll(ctx)

	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: "42", Content: "hi"})

	select {
	case got := <-fake.sent:
		if got.ChatID != "42" || got.Content != "hi" {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the adapter")
	}
}

func TestManagerParksFailedSends(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ds := file.NewDeliveryStore("", false)
	m := NewManager(msgBus, delivery.New(ds))
	fake := newFakeAdapter("telegram", msgBus, nil)
	fake.sendErr = errors.New("network down")
	m.Register(fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartAll(ctx)
	defer m.StopAll(ctx)

	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "telegram", ChatID: "42", Content: "important"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		items, err := ds.All(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) == 1 {
			if items[0].Content != "important" || items[0].Channel != "telegram" {
				t.Fatalf("parked %+v", items[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("failed send never reached the delivery queue")
}

func TestManagerApprovePairingAcrossAdapters(t *testing.T) {
	msgBus := bus.NewMessageBus()
	pairing := NewPairing(file.NewPairingStore("", false))
	m := NewManager(msgBus, nil)
	m.Register(newFakeAdapter("telegram", msgBus, pairing))
	m.Register(newFakeAdapter("discord", msgBus, pairing))

	code, _ := pairing.Issue("discord", "555", "bob")
	user, err := m.ApprovePairing(context.Background(), code)
	if err != nil {
		t.Fatal(err)
	}
	if user == nil || user.Channel != "discord" || user.UserID != "555" {
		t.Fatalf("approved %+v", user)
	}
}

func TestAllowListMatching(t *testing.T) {
	b := NewBase("telegram", bus.NewMessageBus(), []string{"123|alice", "@bob", "999"}, nil, "allowlist", "")
	tests := []struct {
		userID, username string
		want             bool
	}{
		{"123", "", true},
		{"", "alice", true},
		{"", "ALICE", true},
		{"", "bob", true},
		{"999", "", true},
		{"124", "carol", false},
	}
	for _, tt := range tests {
		if got := b.InAllowList(tt.userID, tt.username); got != tt.want {
			t.Errorf("InAllowList(%q, %q) = %v", tt.userID, tt.username, got)
		}
	}
}

func TestFloodGuard(t *testing.T) {
	f := newFloodGuard()
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	f.now = func() time.Time { return now }

	for i := 0; i < floodLimit; i++ {
		if !f.allow("u1") {
			t.Fatalf("blocked under the limit at %d", i)
		}
	}
	if f.allow("u1") {
		t.Fatal("allowed over the limit")
	}
	if !f.allow("u2") {
		t.Fatal("limit leaked across senders")
	}

	now = base.Add(floodWindow + time.Second)
	if !f.allow("u1") {
		t.Fatal("window never expired")
	}
}

func TestAdmitDMPairingFlow(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ps := file.NewPairingStore("", false)
	pairing := NewPairing(ps)
	b := NewBase("telegram", msgBus, nil, pairing, "", "")
	ctx := context.Background()

	admitted, code := b.AdmitDM(ctx, "700", "dave")
	if admitted || code == "" {
		t.Fatalf("unknown sender: admitted=%v code=%q", admitted, code)
	}

	// Second message while the code is outstanding stays silent.
	if admitted, code2 := b.AdmitDM(ctx, "700", "dave"); admitted || code2 != "" {
		t.Fatalf("repeat: admitted=%v code=%q", admitted, code2)
	}

	if _, err := pairing.Approve(ctx, code); err != nil {
		t.Fatal(err)
	}
	if admitted, _ := b.AdmitDM(ctx, "700", "dave"); !admitted {
		t.Fatal("approved sender still rejected")
	}
}
