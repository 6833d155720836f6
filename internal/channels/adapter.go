// Package channels connects messaging platforms to the agent runtime via
// the message bus. Every adapter enforces the same access model: DMs are
// paired by default, groups need a mention, and approvals persist in the
// pairing store.
package channels

import (
	"context"
	"strings"

	"github.com/hearthside/domo/internal/bus"
)

// DMPolicy controls how direct messages from unknown senders are handled.
type DMPolicy string

const (
	DMPolicyPairing   DMPolicy = "pairing" // default: unknown senders get a pairing code
	DMPolicyAllowlist DMPolicy = "allowlist"
	DMPolicyOpen      DMPolicy = "open"
	DMPolicyDisabled  DMPolicy = "disabled"
)

// GroupPolicy controls how group messages are handled.
type GroupPolicy string

const (
	GroupPolicyOpen      GroupPolicy = "open" // default
	GroupPolicyAllowlist GroupPolicy = "allowlist"
	GroupPolicyDisabled  GroupPolicy = "disabled"
)

// Adapter is one platform connection.
type Adapter interface {
	Name() string

	// Start begins receiving. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop shuts the connection down.
	Stop(ctx context.Context) error

	// Send delivers one outbound message.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// ApprovePairing resolves an outstanding pairing code and persists the
	// approval. Nil when the code is unknown or expired.
	ApprovePairing(ctx context.Context, code string) (*PairedUser, error)
}

// Base carries the pieces every adapter shares: the bus, the static
// allowlist, the pairing service, and the inbound flood guard.
type Base struct {
	name        string
	bus         *bus.MessageBus
	allowList   []string
	pairing     *Pairing
	dmPolicy    DMPolicy
	groupPolicy GroupPolicy
	flood       *floodGuard
}

func NewBase(name string, msgBus *bus.MessageBus, allowList []string, pairing *Pairing, dm, group string) *Base {
	b := &Base{
		name:        name,
		bus:         msgBus,
		allowList:   allowList,
		pairing:     pairing,
		dmPolicy:    DMPolicy(dm),
		groupPolicy: GroupPolicy(group),
		flood:       newFloodGuard(),
	}
	if b.dmPolicy == "" {
		b.dmPolicy = DMPolicyPairing
	}
	if b.groupPolicy == "" {
		b.groupPolicy = GroupPolicyOpen
	}
	return b
}

func (b *Base) Name() string             { return b.name }
func (b *Base) Bus() *bus.MessageBus     { return b.bus }
func (b *Base) Pairing() *Pairing        { return b.pairing }
func (b *Base) DMPolicy() DMPolicy       { return b.dmPolicy }
func (b *Base) GroupPolicy() GroupPolicy { return b.groupPolicy }

// InAllowList checks the static config allowlist. Entries may be a user id,
// a username (with or without @), or the compound "id|username" form.
func (b *Base) InAllowList(userID, username string) bool {
	for _, allowed := range b.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID, allowedUser := trimmed, ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}
		if userID != "" && (userID == allowedID || userID == trimmed) {
			return true
		}
		if username != "" && (strings.EqualFold(username, trimmed) || strings.EqualFold(username, allowedUser)) {
			return true
		}
	}
	return false
}

// AdmitDM applies the DM policy. The second return is a pairing code to
// send back when admission failed because the sender is unpaired; empty
// when the message should be dropped silently.
func (b *Base) AdmitDM(ctx context.Context, userID, username string) (admitted bool, pairingCode string) {
	switch b.dmPolicy {
	case DMPolicyDisabled:
		return false, ""
	case DMPolicyOpen:
		return true, ""
	case DMPolicyAllowlist:
		return b.InAllowList(userID, username), ""
	default: // pairing
		if b.InAllowList(userID, username) {
			return true, ""
		}
		if b.pairing == nil {
			return false, ""
		}
		if paired, _ := b.pairing.IsPaired(ctx, b.name, userID); paired {
			return true, ""
		}
		code, fresh := b.pairing.Issue(b.name, userID, username)
		if !fresh {
			// Already has an outstanding code; stay quiet instead of spamming.
			return false, ""
		}
		return false, code
	}
}

// AdmitGroup applies the group policy to the sender.
func (b *Base) AdmitGroup(userID, username string) bool {
	switch b.groupPolicy {
	case GroupPolicyDisabled:
		return false
	case GroupPolicyAllowlist:
		return b.InAllowList(userID, username)
	default:
		return true
	}
}

// Publish forwards an admitted message to the runtime, dropping floods.
func (b *Base) Publish(msg bus.InboundMessage) {
	if !b.flood.allow(msg.SenderID) {
		return
	}
	msg.Channel = b.name
	b.bus.PublishInbound(msg)
}

// ApprovePairing implements the Adapter method for every embedder.
func (b *Base) ApprovePairing(ctx context.Context, code string) (*PairedUser, error) {
	if b.pairing == nil {
		return nil, nil
	}
	return b.pairing.Approve(ctx, code)
}

// Truncate shortens a string for log previews.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
