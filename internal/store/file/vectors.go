package file

import (
	"context"
	"sync"

	"github.com/hearthside/domo/internal/store"
)

// vectorsJSON is the on-disk shape of vectors.json.
type vectorsJSON struct {
	Documents []store.VectorDoc `json:"documents"`
}

// VectorStore persists vector documents to vectors.json.
type VectorStore struct {
	mu      sync.Mutex
	path    string
	persist bool
	docs    []store.VectorDoc
}

func NewVectorStore(path string, persist bool) *VectorStore {
	s := &VectorStore{path: path, persist: persist}
	var data vectorsJSON
	if err := readJSON(path, &data); err != nil {
		logPersistError("vectors", err)
	}
	s.docs = data.Documents
	return s
}

func (s *VectorStore) SaveAll(ctx context.Context, docs []store.VectorDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append([]store.VectorDoc(nil), docs...)
	if s.persist {
		logPersistError("vectors", writeJSONAtomic(s.path, &vectorsJSON{Documents: s.docs}))
	}
	return nil
}

func (s *VectorStore) LoadAll(ctx context.Context) ([]store.VectorDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.VectorDoc, len(s.docs))
	copy(out, s.docs)
	return out, nil
}

var _ store.VectorStore = (*VectorStore)(nil)
