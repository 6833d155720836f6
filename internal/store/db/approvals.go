package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/hearthside/domo/internal/store"
)

// ApprovalStore implements store.ApprovalStore over SQL.
type ApprovalStore struct {
	db *sql.DB
}

func NewApprovalStore(db *sql.DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

// newApprovalID returns a short random hex ID, easy to quote in a chat reply.
func newApprovalID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func (s *ApprovalStore) Create(ctx context.Context, a store.Approval) (store.Approval, error) {
	a.ID = newApprovalID()
	a.Status = store.ApprovalPending
	a.Requested = time.Now()
	if a.RiskLevel == "" {
		a.RiskLevel = "medium"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (id, agent, action, detail, risk_level, status, requested_at, resolved_at, resolved_by, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, '', '')`,
		a.ID, a.Agent, a.Action, a.Detail, a.RiskLevel, string(a.Status), a.Requested.UnixMilli())
	if err != nil {
		return store.Approval{}, fmt.Errorf("approvals: create: %w", err)
	}
	return a, nil
}

func (s *ApprovalStore) Get(ctx context.Context, id string) (*store.Approval, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent, action, detail, risk_level, status, requested_at, resolved_at, resolved_by, reason
		 FROM approvals WHERE id = $1`, id)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("approvals: get: %w", err)
	}
	return &a, nil
}

func (s *ApprovalStore) Resolve(ctx context.Context, id string, status store.ApprovalStatus, resolvedBy, reason string) (*store.Approval, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET status = $1, resolved_at = $2, resolved_by = $3, reason = $4
		 WHERE id = $5 AND status = $6`,
		string(status), time.Now().UnixMilli(), resolvedBy, reason, id, string(store.ApprovalPending))
	if err != nil {
		return nil, fmt.Errorf("approvals: resolve: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *ApprovalStore) Pending(ctx context.Context) ([]store.Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent, action, detail, risk_level, status, requested_at, resolved_at, resolved_by, reason
		 FROM approvals WHERE status = $1 ORDER BY requested_at ASC`,
		string(store.ApprovalPending))
	if err != nil {
		return nil, fmt.Errorf("approvals: pending: %w", err)
	}
	defer rows.Close()

	var out []store.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("approvals: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *ApprovalStore) ExpirePending(ctx context.Context, cutoff time.Time, reason string) ([]store.Approval, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE approvals SET status = $1, resolved_at = $2, resolved_by = 'system', reason = $3
		 WHERE status = $4 AND requested_at <= $5
		 RETURNING id, agent, action, detail, risk_level, status, requested_at, resolved_at, resolved_by, reason`,
		string(store.ApprovalDenied), time.Now().UnixMilli(), reason,
		string(store.ApprovalPending), cutoff.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("approvals: expire: %w", err)
	}
	defer rows.Close()

	var out []store.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("approvals: scan expired: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (store.Approval, error) {
	var a store.Approval
	var status string
	var requested, resolved int64
	err := row.Scan(&a.ID, &a.Agent, &a.Action, &a.Detail, &a.RiskLevel, &status, &requested, &resolved, &a.ResolvedBy, &a.Reason)
	if err != nil {
		return store.Approval{}, err
	}
	a.Status = store.ApprovalStatus(status)
	a.Requested = time.UnixMilli(requested)
	if resolved > 0 {
		a.Resolved = time.UnixMilli(resolved)
	}
	return a, nil
}

var _ store.ApprovalStore = (*ApprovalStore)(nil)
