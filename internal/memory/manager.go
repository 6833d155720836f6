// Package memory layers the runtime's recall: the conversation log, the
// three-partition knowledge store, the local entity graph, the vector index,
// and the optional remote graph service. The local stores are authoritative;
// the remote holds a replica.
package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hearthside/domo/internal/store"
)

// Manager is the façade the agent and heartbeat talk to.
type Manager struct {
	stores   *store.Stores
	vector   *VectorIndex
	cognee   *CogneeClient // nil when disabled
	complete CompleteFunc  // fast-tier completion for extraction; nil disables
}

// Options wires the manager.
type Options struct {
	Stores   *store.Stores
	Vector   *VectorIndex
	Cognee   *CogneeClient
	Complete CompleteFunc
}

func NewManager(opts Options) *Manager {
	return &Manager{
		stores:   opts.Stores,
		vector:   opts.Vector,
		cognee:   opts.Cognee,
		complete: opts.Complete,
	}
}

// Vector exposes the index for the dashboard search surface.
func (m *Manager) Vector() *VectorIndex { return m.vector }

// CogneeAlive reports remote graph health for the health endpoint.
func (m *Manager) CogneeAlive() bool {
	return m.cognee != nil && m.cognee.Alive()
}

// AddMessage appends one message to the conversation log and, when the
// remote graph is live, mirrors user/assistant content to it with an async
// cognify. Vector indexing of user text rides along here too.
func (m *Manager) AddMessage(ctx context.Context, msg store.Message) (store.Message, error) {
	stored, err := m.stores.Conversations.AddMessage(ctx, msg)
	if err != nil {
		return stored, err
	}

	if msg.Role == "user" && m.vector != nil && strings.TrimSpace(msg.Content) != "" {
		m.vector.Add(msg.Content, map[string]string{
			"agent":   msg.Agent,
			"channel": msg.Channel,
			"user_id": msg.UserID,
		})
	}

	if m.cognee != nil && m.cognee.Alive() && (msg.Role == "user" || msg.Role == "assistant") {
		content := msg.Content
		go func() {
			ctx := context.Background()
			if err := m.cognee.AddText(ctx, content); err != nil {
				slog.Debug("remote graph ingest failed", "error", err)
				return
			}
			if err := m.cognee.Cognify(ctx); err != nil {
				slog.Debug("remote graph cognify failed", "error", err)
			}
		}()
	}

	return stored, nil
}

// History returns the thread's last limit messages in chronological order.
func (m *Manager) History(ctx context.Context, agent string, limit int, f store.HistoryFilter) ([]store.Message, error) {
	return m.stores.Conversations.History(ctx, agent, limit, f)
}

// Threads aggregates the agent's conversations.
func (m *Manager) Threads(ctx context.Context, agent string) ([]store.Thread, error) {
	return m.stores.Conversations.Threads(ctx, agent)
}

// GraphQuery answers a discovery query, preferring the remote graph and
// falling through remote → local graph → vector → empty.
func (m *Manager) GraphQuery(ctx context.Context, query string) string {
	if m.cognee != nil && m.cognee.Alive() {
		if answer, err := m.cognee.Search(ctx, query, "GRAPH_COMPLETION"); err == nil && strings.TrimSpace(answer) != "" {
			return answer
		} else if err != nil {
			slog.Debug("remote graph query failed, using local graph", "error", err)
		}
	}
	if local := m.GraphContext(ctx, query, 500); local != "" {
		return local
	}
	if m.vector != nil {
		hits := m.vector.Search(ctx, query, 3)
		var parts []string
		for _, h := range hits {
			parts = append(parts, h.Doc.Text)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	return ""
}

// Close flushes the vector index.
func (m *Manager) Close(ctx context.Context) error {
	if m.vector != nil {
		return m.vector.Flush(ctx)
	}
	return nil
}
