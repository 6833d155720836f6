package bus

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(InboundMessage{Channel: "telegram", SenderID: "42", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected a message")
	}
	if msg.Channel != "telegram" || msg.SenderID != "42" || msg.Content != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestConsumeReturnsFalseOnCancel(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Fatal("ConsumeInbound should report cancellation")
	}
	if _, ok := b.ConsumeOutbound(ctx); ok {
		t.Fatal("ConsumeOutbound should report cancellation")
	}
}

func TestPublishNeverBlocksWhenFull(t *testing.T) {
	b := NewMessageBus()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < queueDepth+10; i++ {
			b.PublishOutbound(OutboundMessage{Channel: "cli", Content: fmt.Sprintf("m%d", i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishOutbound blocked on a full queue")
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewMessageBus()
	got := make(map[string]string)
	b.Subscribe("a", func(e Event) { got["a"] = e.Name })
	b.Subscribe("b", func(e Event) { got["b"] = e.Name })

	b.Broadcast(Event{Name: "tick"})
	if got["a"] != "tick" || got["b"] != "tick" {
		t.Fatalf("broadcast missed a subscriber: %v", got)
	}

	b.Unsubscribe("b")
	b.Broadcast(Event{Name: "tock"})
	if got["b"] != "tick" {
		t.Fatal("unsubscribed handler still invoked")
	}
	if got["a"] != "tock" {
		t.Fatal("remaining handler not invoked")
	}
}

func TestSubscribeReplacesHandler(t *testing.T) {
	b := NewMessageBus()
	var calls int
	b.Subscribe("dash", func(Event) { calls++ })
	b.Subscribe("dash", func(Event) { calls += 10 })

	b.Broadcast(Event{Name: "x"})
	if calls != 10 {
		t.Fatalf("calls = %d, want 10 (old handler replaced)", calls)
	}
}
