package store

import (
	"context"
	"time"
)

// AllowedUser is one approved (channel, user) identity. Pairing codes are
// ephemeral and live in the channels package; only approvals persist.
type AllowedUser struct {
	Channel  string    `json:"channel"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Added    time.Time `json:"added"`
}

// PairingStore persists the pairing allowlist.
type PairingStore interface {
	// Allow records the user; repeating is a no-op.
	Allow(ctx context.Context, u AllowedUser) error

	// IsAllowed reports whether the user has been approved on the channel.
	IsAllowed(ctx context.Context, channel, userID string) (bool, error)

	// Allowed lists approved users for the channel, newest first.
	Allowed(ctx context.Context, channel string) ([]AllowedUser, error)
}
