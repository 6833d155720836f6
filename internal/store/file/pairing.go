package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// pairingJSON is the on-disk shape of pairing.json.
type pairingJSON struct {
	Allowed []store.AllowedUser `json:"allowed"`
}

// PairingStore persists the pairing allowlist to pairing.json.
type PairingStore struct {
	mu      sync.Mutex
	path    string
	persist bool
	allowed map[string]store.AllowedUser // channel|userID
}

func NewPairingStore(path string, persist bool) *PairingStore {
	s := &PairingStore{path: path, persist: persist, allowed: make(map[string]store.AllowedUser)}
	var data pairingJSON
	if err := readJSON(path, &data); err != nil {
		logPersistError("pairing", err)
	}
	for _, u := range data.Allowed {
		s.allowed[u.Channel+"|"+u.UserID] = u
	}
	return s
}

func (s *PairingStore) save() {
	if !s.persist {
		return
	}
	data := pairingJSON{Allowed: make([]store.AllowedUser, 0, len(s.allowed))}
	for _, u := range s.allowed {
		data.Allowed = append(data.Allowed, u)
	}
	sort.Slice(data.Allowed, func(i, j int) bool { return data.Allowed[i].Added.Before(data.Allowed[j].Added) })
	logPersistError("pairing", writeJSONAtomic(s.path, &data))
}

func (s *PairingStore) Allow(ctx context.Context, u store.AllowedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := u.Channel + "|" + u.UserID
	if existing, ok := s.allowed[key]; ok {
		existing.Username = u.Username
		s.allowed[key] = existing
	} else {
		if u.Added.IsZero() {
			u.Added = time.Now()
		}
		s.allowed[key] = u
	}
	s.save()
	return nil
}

func (s *PairingStore) IsAllowed(ctx context.Context, channel, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.allowed[channel+"|"+userID]
	return ok, nil
}

func (s *PairingStore) Allowed(ctx context.Context, channel string) ([]store.AllowedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.AllowedUser
	for _, u := range s.allowed {
		if u.Channel == channel {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Added.After(out[j].Added) })
	return out, nil
}

var _ store.PairingStore = (*PairingStore)(nil)
