package file

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// approvalsJSON is the on-disk shape of approvals.json.
type approvalsJSON struct {
	Items []store.Approval `json:"items"`
}

// ApprovalStore persists approval requests to approvals.json.
type ApprovalStore struct {
	mu      sync.Mutex
	path    string
	persist bool
	items   map[string]store.Approval
}

func NewApprovalStore(path string, persist bool) *ApprovalStore {
	s := &ApprovalStore{path: path, persist: persist, items: make(map[string]store.Approval)}
	var data approvalsJSON
	if err := readJSON(path, &data); err != nil {
		logPersistError("approvals", err)
	}
	for _, a := range data.Items {
		s.items[a.ID] = a
	}
	return s
}

func (s *ApprovalStore) save() {
	if !s.persist {
		return
	}
	data := approvalsJSON{Items: make([]store.Approval, 0, len(s.items))}
	for _, a := range s.items {
		data.Items = append(data.Items, a)
	}
	sort.Slice(data.Items, func(i, j int) bool { return data.Items[i].Requested.Before(data.Items[j].Requested) })
	logPersistError("approvals", writeJSONAtomic(s.path, &data))
}

func newApprovalID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func (s *ApprovalStore) Create(ctx context.Context, a store.Approval) (store.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = newApprovalID()
	a.Status = store.ApprovalPending
	a.Requested = time.Now()
	if a.RiskLevel == "" {
		a.RiskLevel = "medium"
	}
	s.items[a.ID] = a
	s.save()
	return a, nil
}

func (s *ApprovalStore) Get(ctx context.Context, id string) (*store.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.items[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (s *ApprovalStore) Resolve(ctx context.Context, id string, status store.ApprovalStatus, resolvedBy, reason string) (*store.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	if a.Status == store.ApprovalPending {
		a.Status = status
		a.Resolved = time.Now()
		a.ResolvedBy = resolvedBy
		a.Reason = reason
		s.items[id] = a
		s.save()
	}
	return &a, nil
}

func (s *ApprovalStore) Pending(ctx context.Context) ([]store.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Approval
	for _, a := range s.items {
		if a.Status == store.ApprovalPending {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Requested.Before(out[j].Requested) })
	return out, nil
}

func (s *ApprovalStore) ExpirePending(ctx context.Context, cutoff time.Time, reason string) ([]store.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []store.Approval
	now := time.Now()
	for id, a := range s.items {
		if a.Status != store.ApprovalPending || a.Requested.After(cutoff) {
			continue
		}
		a.Status = store.ApprovalDenied
		a.Resolved = now
		a.ResolvedBy = "system"
		a.Reason = reason
		s.items[id] = a
		expired = append(expired, a)
	}
	if len(expired) > 0 {
		s.save()
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Requested.Before(expired[j].Requested) })
	return expired, nil
}

var _ store.ApprovalStore = (*ApprovalStore)(nil)
