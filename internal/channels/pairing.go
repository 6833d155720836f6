package channels

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/hearthside/domo/internal/store"
)

const (
	// codeAlphabet avoids 0/O/1/I so codes survive being read aloud.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8

	codeTTL = time.Hour

	// maxOutstanding caps pending codes per channel so an unpaired sender
	// flood cannot grow the table without bound.
	maxOutstanding = 3
)

// PairedUser is the result of approving a pairing code.
type PairedUser struct {
	Channel  string `json:"channel"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// pendingCode is one issued, not-yet-approved code.
type pendingCode struct {
	code     string
	channel  string
	userID   string
	username string
	issued   time.Time
}

// Pairing issues short codes to unknown senders and persists approvals. One
// instance is shared by all adapters so the dashboard can approve any code.
type Pairing struct {
	store store.PairingStore

	mu      sync.Mutex
	pending map[string]*pendingCode // keyed by code

	now func() time.Time
}

func NewPairing(ps store.PairingStore) *Pairing {
	return &Pairing{
		store:   ps,
		pending: make(map[string]*pendingCode),
		now:     time.Now,
	}
}

// Issue creates a code for the sender, or returns the existing one. fresh is
// false when the sender already had an outstanding code or the per-channel
// cap is hit, meaning the adapter should not message the sender again.
func (p *Pairing) Issue(channel, userID, username string) (code string, fresh bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expireLocked()

	outstanding := 0
	for _, pc := range p.pending {
		if pc.channel != channel {
			continue
		}
		if pc.userID == userID {
			return pc.code, false
		}
		outstanding++
	}
	if outstanding >= maxOutstanding {
		slog.Warn("pairing code refused, too many outstanding", "channel", channel)
		return "", false
	}

	code = generateCode()
	p.pending[code] = &pendingCode{
		code:     code,
		channel:  channel,
		userID:   userID,
		username: username,
		issued:   p.now(),
	}
	slog.Info("pairing code issued", "channel", channel, "user", userID)
	return code, true
}

// Approve redeems a code, persists the allowlist entry, and returns who was
// paired. Nil result when the code is unknown or expired.
func (p *Pairing) Approve(ctx context.Context, code string) (*PairedUser, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	p.mu.Lock()
	p.expireLocked()
	pc, ok := p.pending[code]
	if ok {
		delete(p.pending, code)
	}
	p.mu.Unlock()

	if !ok {
		return nil, nil
	}
	if p.store != nil {
		err := p.store.Allow(ctx, store.AllowedUser{
			Channel:  pc.channel,
			UserID:   pc.userID,
			Username: pc.username,
			Added:    p.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("persist pairing: %w", err)
		}
	}
	slog.Info("pairing approved", "channel", pc.channel, "user", pc.userID)
	return &PairedUser{Channel: pc.channel, UserID: pc.userID, Username: pc.username}, nil
}

// IsPaired checks the persisted allowlist.
func (p *Pairing) IsPaired(ctx context.Context, channel, userID string) (bool, error) {
	if p.store == nil {
		return false, nil
	}
	return p.store.IsAllowed(ctx, channel, userID)
}

// Pending lists outstanding codes for the dashboard.
func (p *Pairing) Pending() []PairedUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expireLocked()
	out := make([]PairedUser, 0, len(p.pending))
	for _, pc := range p.pending {
		out = append(out, PairedUser{Channel: pc.channel, UserID: pc.userID, Username: pc.username})
	}
	return out
}

func (p *Pairing) expireLocked() {
	cutoff := p.now().Add(-codeTTL)
	for code, pc := range p.pending {
		if pc.issued.Before(cutoff) {
			delete(p.pending, code)
		}
	}
}

func generateCode() string {
	var b strings.Builder
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic(err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String()
}
