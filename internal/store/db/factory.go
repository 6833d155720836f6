// Package db implements the store interfaces over database/sql. The SQL
// sticks to the dialect subset SQLite and Postgres share ($N placeholders,
// unix-second timestamps, ON CONFLICT upserts, RETURNING), so the same code
// serves both drivers.
package db

import (
	"database/sql"

	"github.com/hearthside/domo/internal/store"
)

// New wires every store onto one open database.
func New(sqlDB *sql.DB, driver string) *store.Stores {
	return &store.Stores{
		Conversations: NewConversationStore(sqlDB),
		Knowledge:     NewKnowledgeStore(sqlDB),
		Entities:      NewEntityStore(sqlDB),
		Vectors:       NewVectorStore(sqlDB),
		Delivery:      NewDeliveryStore(sqlDB),
		Approvals:     NewApprovalStore(sqlDB),
		Pairing:       NewPairingStore(sqlDB),
		Context:       NewContextStore(sqlDB),
		DB:            sqlDB,
		Driver:        driver,
	}
}
