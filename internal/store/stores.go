// Package store defines the persistence interfaces and their shared data
// types. Two backends implement them: store/db (SQLite or Postgres, the
// preferred path) and store/file (JSON files, the fallback when no database
// can be opened).
package store

import "database/sql"

// Stores is the top-level container for all storage backends.
type Stores struct {
	Conversations ConversationStore
	Knowledge     KnowledgeStore
	Entities      EntityStore
	Vectors       VectorStore
	Delivery      DeliveryStore
	Approvals     ApprovalStore
	Pairing       PairingStore
	Context       ContextStore

	// DB is the shared handle when a SQL backend is active, nil otherwise.
	// The audit trail piggybacks on it.
	DB *sql.DB

	// Driver names the active backend: "sqlite", "postgres" or "file".
	Driver string

	// Ephemeral is set when even the file backend cannot persist; state
	// then lives in memory only and is lost on restart.
	Ephemeral bool
}

// Close releases the underlying database, if any.
func (s *Stores) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
