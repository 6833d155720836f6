package store

import (
	"context"
	"time"
)

// Message is one turn in a conversation. Within a thread (agent, channel,
// user ID) identifiers are monotonic in timestamp.
type Message struct {
	ID        int64     `json:"id"`
	Agent     string    `json:"agent"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Channel   string    `json:"channel,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Tokens    int       `json:"tokens,omitempty"`
	Model     string    `json:"model,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryFilter narrows history to one thread. Empty fields match anything.
type HistoryFilter struct {
	Channel string
	UserID  string
}

// Thread summarises one (channel, user) conversation.
type Thread struct {
	Channel  string    `json:"channel"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Count    int       `json:"count"`
	First    time.Time `json:"first"`
	Last     time.Time `json:"last"`
}

// ConversationStore is the append-only conversation log.
type ConversationStore interface {
	// AddMessage appends one message, assigning ID and Timestamp when unset,
	// and returns the stored copy.
	AddMessage(ctx context.Context, m Message) (Message, error)

	// History returns the last limit messages for the agent, optionally
	// narrowed by filter, in chronological order.
	History(ctx context.Context, agent string, limit int, f HistoryFilter) ([]Message, error)

	// Threads aggregates the agent's messages by (channel, user), most
	// recently active first.
	Threads(ctx context.Context, agent string) ([]Thread, error)
}
