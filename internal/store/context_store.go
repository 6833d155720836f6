package store

import "context"

// ContextStore is a small key-value space for runtime state that must
// survive restarts: auto-learn counters, asked-question indices, dataset
// markers. In the JSON fallback it maps onto the context object inside
// memory.json.
type ContextStore interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
}
