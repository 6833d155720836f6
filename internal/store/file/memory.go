package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// maxFileMessages caps memory.json; the oldest messages fall off first.
const maxFileMessages = 500

// memoryJSON is the on-disk shape of memory.json.
type memoryJSON struct {
	Conversations []store.Message   `json:"conversations"`
	Context       map[string]string `json:"context"`
}

// MemoryFile backs both the conversation log and the context key-value
// space with a single memory.json.
type MemoryFile struct {
	mu      sync.Mutex
	path    string
	persist bool
	data    memoryJSON
	nextID  int64
}

func NewMemoryFile(path string, persist bool) *MemoryFile {
	m := &MemoryFile{path: path, persist: persist, nextID: 1}
	m.data.Context = make(map[string]string)
	if err := readJSON(path, &m.data); err != nil {
		logPersistError("memory", err)
	}
	if m.data.Context == nil {
		m.data.Context = make(map[string]string)
	}
	for _, msg := range m.data.Conversations {
		if msg.ID >= m.nextID {
			m.nextID = msg.ID + 1
		}
	}
	return m
}

func (m *MemoryFile) save() {
	if !m.persist {
		return
	}
	logPersistError("memory", writeJSONAtomic(m.path, &m.data))
}

func (m *MemoryFile) AddMessage(ctx context.Context, msg store.Message) (store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.ID = m.nextID
	m.nextID++
	m.data.Conversations = append(m.data.Conversations, msg)
	if n := len(m.data.Conversations); n > maxFileMessages {
		m.data.Conversations = append([]store.Message(nil), m.data.Conversations[n-maxFileMessages:]...)
	}
	m.save()
	return msg, nil
}

func (m *MemoryFile) History(ctx context.Context, agent string, limit int, f store.HistoryFilter) ([]store.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []store.Message
	for _, msg := range m.data.Conversations {
		if msg.Agent != agent {
			continue
		}
		if f.Channel != "" && msg.Channel != f.Channel {
			continue
		}
		if f.UserID != "" && msg.UserID != f.UserID {
			continue
		}
		matched = append(matched, msg)
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]store.Message, len(matched))
	copy(out, matched)
	return out, nil
}

func (m *MemoryFile) Threads(ctx context.Context, agent string) ([]store.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey := make(map[[2]string]*store.Thread)
	for _, msg := range m.data.Conversations {
		if msg.Agent != agent {
			continue
		}
		key := [2]string{msg.Channel, msg.UserID}
		t, ok := byKey[key]
		if !ok {
			t = &store.Thread{Channel: msg.Channel, UserID: msg.UserID, First: msg.Timestamp, Last: msg.Timestamp}
			byKey[key] = t
		}
		t.Count++
		if msg.Username != "" {
			t.Username = msg.Username
		}
		if msg.Timestamp.Before(t.First) {
			t.First = msg.Timestamp
		}
		if msg.Timestamp.After(t.Last) {
			t.Last = msg.Timestamp
		}
	}
	out := make([]store.Thread, 0, len(byKey))
	for _, t := range byKey {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Last.After(out[j].Last) })
	return out, nil
}

func (m *MemoryFile) GetValue(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data.Context[key]
	return v, ok, nil
}

func (m *MemoryFile) SetValue(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Context[key] = value
	m.save()
	return nil
}

var (
	_ store.ConversationStore = (*MemoryFile)(nil)
	_ store.ContextStore      = (*MemoryFile)(nil)
)
