// Package bus decouples channel adapters from the agent runtime with
// buffered in-process queues plus a fan-out event stream for dashboard
// clients.
package bus

import (
	"context"
	"log/slog"
	"sync"
)

// InboundMessage is one user turn arriving from a channel adapter.
type InboundMessage struct {
	Channel  string   `json:"channel"`
	SenderID string   `json:"sender_id"`
	ChatID   string   `json:"chat_id"`
	Username string   `json:"username,omitempty"`
	Content  string   `json:"content"`
	Media    []string `json:"media,omitempty"` // local file paths
	Agent    string   `json:"agent,omitempty"`

	// WantsVoice asks for the reply as audio; set when the user sent a
	// voice note on a voice-capable channel.
	WantsVoice bool `json:"wants_voice,omitempty"`
}

// OutboundMessage is one reply heading to a channel adapter.
type OutboundMessage struct {
	Channel string            `json:"channel"`
	ChatID  string            `json:"chat_id"`
	Content string            `json:"content"`
	Media   []MediaAttachment `json:"media,omitempty"`
	AsVoice bool              `json:"as_voice,omitempty"` // attempt TTS on voice-capable channels
}

// MediaAttachment is a file to send with a message.
type MediaAttachment struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
	Caption     string `json:"caption,omitempty"`
}

// Event is a server-side notification for dashboard websocket clients.
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

// EventHandler receives broadcast events.
type EventHandler func(Event)

const queueDepth = 256

// MessageBus carries inbound and outbound messages between adapters and the
// runtime. Publishing never blocks: a full queue drops the message with a
// warning rather than stalling a channel callback.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu   sync.RWMutex
	subs map[string]EventHandler
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, queueDepth),
		outbound: make(chan OutboundMessage, queueDepth),
		subs:     make(map[string]EventHandler),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound queue full, message dropped", "channel", msg.Channel)
	}
}

// ConsumeInbound blocks until a message arrives or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		slog.Warn("outbound queue full, message dropped", "channel", msg.Channel)
	}
}

// ConsumeOutbound blocks until a message arrives or ctx is cancelled.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}

// Subscribe registers an event handler under id, replacing any previous one.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = handler
}

func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Broadcast delivers the event to every subscriber on the caller's
// goroutine. Handlers must be fast; the dashboard's handler just queues to
// per-client send buffers.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}
