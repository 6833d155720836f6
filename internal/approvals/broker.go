// Package approvals parks risky actions behind human sign-off. Requests
// persist so the dashboard can list them; waiters are in-process channels
// resolved by Approve/Deny or by the 10-minute auto-deny sweep.
package approvals

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthside/domo/internal/audit"
	"github.com/hearthside/domo/internal/store"
)

// DefaultTimeout is how long a request stays pending before auto-denial.
const DefaultTimeout = 10 * time.Minute

// sweepInterval paces the expiry loop.
const sweepInterval = 30 * time.Second

// Risk levels accepted on a request.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Outcome resolves a parked Request call.
type Outcome struct {
	Approved bool
	Reason   string
	By       string
}

// Broker owns the pending-approval table and its waiters.
type Broker struct {
	store   store.ApprovalStore
	timeout time.Duration

	mu      sync.Mutex
	waiters map[string][]chan Outcome

	// onChange, when set, broadcasts request lifecycle events.
	onChange func(store.Approval)

	// trail, when set, records every resolution.
	trail audit.Log
}

func New(as store.ApprovalStore, timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Broker{
		store:   as,
		timeout: timeout,
		waiters: make(map[string][]chan Outcome),
	}
}

// OnChange sets the dashboard broadcast hook.
func (b *Broker) OnChange(fn func(store.Approval)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// SetAudit attaches the audit trail. Every resolution, human or timeout,
// gets an "approval" entry with the decision.
func (b *Broker) SetAudit(trail audit.Log) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trail = trail
}

// Request files a pending approval and returns a channel that yields exactly
// one Outcome: human resolution or auto-denial at the timeout. The caller
// selects on it together with its own context.
func (b *Broker) Request(ctx context.Context, agent, action, detail, risk string) (store.Approval, <-chan Outcome, error) {
	switch risk {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		risk = RiskMedium
	}
	req, err := b.store.Create(ctx, store.Approval{
		Agent:     agent,
		Action:    action,
		Detail:    detail,
		RiskLevel: risk,
	})
	if err != nil {
		return req, nil, fmt.Errorf("approvals: create: %w", err)
	}

	ch := make(chan Outcome, 1)
	b.mu.Lock()
	b.waiters[req.ID] = append(b.waiters[req.ID], ch)
	notify := b.onChange
	b.mu.Unlock()

	slog.Info("approval requested", "id", req.ID, "agent", agent, "action", action, "risk", risk)
	if notify != nil {
		notify(req)
	}
	return req, ch, nil
}

// Wait blocks on the outcome channel until resolution, auto-denial, or the
// caller's context ends (also treated as denial).
func (b *Broker) Wait(ctx context.Context, ch <-chan Outcome) Outcome {
	select {
	case out := <-ch:
		return out
	case <-ctx.Done():
		return Outcome{Approved: false, Reason: "request cancelled"}
	}
}

// Approve resolves the request and wakes every waiter.
func (b *Broker) Approve(ctx context.Context, id, by string) error {
	return b.resolve(ctx, id, store.ApprovalApproved, by, "")
}

// Deny resolves the request negatively and wakes every waiter.
func (b *Broker) Deny(ctx context.Context, id, by, reason string) error {
	return b.resolve(ctx, id, store.ApprovalDenied, by, reason)
}

func (b *Broker) resolve(ctx context.Context, id string, status store.ApprovalStatus, by, reason string) error {
	resolved, err := b.store.Resolve(ctx, id, status, by, reason)
	if err != nil {
		return fmt.Errorf("approvals: resolve: %w", err)
	}
	if resolved == nil {
		return fmt.Errorf("approvals: unknown request %s", id)
	}
	b.wake(*resolved)
	return nil
}

func (b *Broker) wake(req store.Approval) {
	out := Outcome{
		Approved: req.Status == store.ApprovalApproved,
		Reason:   req.Reason,
		By:       req.ResolvedBy,
	}
	b.mu.Lock()
	waiters := b.waiters[req.ID]
	delete(b.waiters, req.ID)
	notify := b.onChange
	trail := b.trail
	b.mu.Unlock()

	for _, ch := range waiters {
		ch <- out
	}
	if notify != nil {
		notify(req)
	}
	if trail != nil {
		meta := map[string]any{
			"approved":    out.Approved,
			"request_id":  req.ID,
			"risk":        req.RiskLevel,
			"resolved_by": req.ResolvedBy,
		}
		if req.Reason != "" {
			meta["reason"] = req.Reason
		}
		if err := trail.Log(context.Background(), req.Agent, audit.ActionApproval, req.Action, meta); err != nil {
			slog.Warn("approval audit write failed", "id", req.ID, "error", err)
		}
	}
}

// Pending lists unresolved requests for the dashboard.
func (b *Broker) Pending(ctx context.Context) ([]store.Approval, error) {
	return b.store.Pending(ctx)
}

// Run sweeps for expired requests until the context ends. Unresolved
// requests older than the timeout are denied as timed out.
func (b *Broker) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.expire(ctx)
		}
	}
}

func (b *Broker) expire(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-b.timeout)
	expired, err := b.store.ExpirePending(ctx, cutoff, "auto-denied: no response within timeout")
	if err != nil {
		slog.Warn("approval expiry sweep failed", "error", err)
		return
	}
	for _, req := range expired {
		slog.Info("approval auto-denied", "id", req.ID, "action", req.Action)
		b.wake(req)
	}
}
