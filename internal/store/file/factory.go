package file

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hearthside/domo/internal/store"
)

// New builds the JSON-file backend rooted at dir. When dir is unwritable the
// stores still work but hold state in memory only, and Ephemeral is set so
// health reporting can say so.
func New(dir string) *store.Stores {
	persist := true
	if err := os.MkdirAll(dir, 0700); err != nil {
		slog.Warn("state directory unavailable, running memory-only", "dir", dir, "error", err)
		persist = false
	} else if probe, err := os.CreateTemp(dir, ".probe-*"); err != nil {
		slog.Warn("state directory not writable, running memory-only", "dir", dir, "error", err)
		persist = false
	} else {
		probe.Close()
		os.Remove(probe.Name())
	}

	mem := NewMemoryFile(filepath.Join(dir, "memory.json"), persist)
	return &store.Stores{
		Conversations: mem,
		Context:       mem,
		Knowledge:     NewKnowledgeStore(),
		Entities:      NewEntityStore(),
		Vectors:       NewVectorStore(filepath.Join(dir, "vectors.json"), persist),
		Delivery:      NewDeliveryStore(filepath.Join(dir, "delivery-queue.json"), persist),
		Approvals:     NewApprovalStore(filepath.Join(dir, "approvals.json"), persist),
		Pairing:       NewPairingStore(filepath.Join(dir, "pairing.json"), persist),
		Driver:        store.DriverFile,
		Ephemeral:     !persist,
	}
}
