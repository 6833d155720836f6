package store

import (
	"context"
	"time"
)

// ApprovalStatus is the lifecycle of a human-in-the-loop request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
)

// Approval is one request for human sign-off.
type Approval struct {
	ID         string         `json:"id"`
	Agent      string         `json:"agent"`
	Action     string         `json:"action"`
	Detail     string         `json:"detail,omitempty"`
	RiskLevel  string         `json:"risk_level"`
	Status     ApprovalStatus `json:"status"`
	Requested  time.Time      `json:"requested"`
	Resolved   time.Time      `json:"resolved,omitempty"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// ApprovalStore persists approval requests. Waiter wake-up lives in the
// approvals package.
type ApprovalStore interface {
	// Create stores a new pending request, generating its ID.
	Create(ctx context.Context, a Approval) (Approval, error)

	// Get returns the request or nil when unknown.
	Get(ctx context.Context, id string) (*Approval, error)

	// Resolve moves a pending request to approved or denied. Resolving a
	// non-pending request is a no-op returning the current state.
	Resolve(ctx context.Context, id string, status ApprovalStatus, resolvedBy, reason string) (*Approval, error)

	// Pending lists unresolved requests, oldest first.
	Pending(ctx context.Context) ([]Approval, error)

	// ExpirePending denies every pending request older than cutoff and
	// returns the requests it denied.
	ExpirePending(ctx context.Context, cutoff time.Time, reason string) ([]Approval, error)
}
