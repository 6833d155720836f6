package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/delivery"
)

// Manager owns the adapter registry, starts and stops the platforms, and
// routes outbound bus traffic to the right adapter. A send failure parks the
// message in the delivery queue instead of losing it.
type Manager struct {
	bus   *bus.MessageBus
	queue *delivery.Queue

	mu       sync.RWMutex
	adapters map[string]Adapter
	running  map[string]bool

	dispatchCancel context.CancelFunc
}

func NewManager(msgBus *bus.MessageBus, queue *delivery.Queue) *Manager {
	return &Manager{
		bus:      msgBus,
		queue:    queue,
		adapters: make(map[string]Adapter),
		running:  make(map[string]bool),
	}
}

// Register adds an adapter. Call before StartAll.
func (m *Manager) Register(a Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters[a.Name()] = a
}

// StartAll starts every registered adapter concurrently and then the
// outbound dispatcher. One platform failing to connect does not stop the
// others; the failure is logged and the adapter stays down.
func (m *Manager) StartAll(ctx context.Context) {
	dispatchCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.dispatchCancel = cancel
	adapters := make([]Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.mu.Unlock()

	go m.dispatchOutbound(dispatchCtx)

	if len(adapters) == 0 {
		slog.Warn("no channels enabled")
		return
	}

	var g errgroup.Group
	for _, a := range adapters {
		a := a
		g.Go(func() error {
			if err := a.Start(ctx); err != nil {
				slog.Error("channel failed to start", "channel", a.Name(), "error", err)
				return nil
			}
			m.mu.Lock()
			m.running[a.Name()] = true
			m.mu.Unlock()
			slog.Info("channel started", "channel", a.Name())
			return nil
		})
	}
	_ = g.Wait()
}

// StopAll stops the dispatcher and every running adapter.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	if m.dispatchCancel != nil {
		m.dispatchCancel()
		m.dispatchCancel = nil
	}
	adapters := make([]Adapter, 0, len(m.adapters))
	for name, a := range m.adapters {
		if m.running[name] {
			adapters = append(adapters, a)
		}
		m.running[name] = false
	}
	m.mu.Unlock()

	for _, a := range adapters {
		if err := a.Stop(ctx); err != nil {
			slog.Warn("channel stop failed", "channel", a.Name(), "error", err)
		}
	}
}

// dispatchOutbound consumes the outbound bus queue and hands each message to
// its adapter. Temp media files are removed after the send attempt.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}

		m.mu.RLock()
		adapter, exists := m.adapters[msg.Channel]
		up := m.running[msg.Channel]
		m.mu.RUnlock()

		if !exists {
			slog.Warn("outbound message for unknown channel", "channel", msg.Channel)
			continue
		}

		var err error
		if up {
			err = adapter.Send(ctx, msg)
		} else {
			err = fmt.Errorf("channel %s is down", msg.Channel)
		}
		if err != nil {
			slog.Warn("send failed, parking in delivery queue",
				"channel", msg.Channel, "error", err)
			m.park(ctx, msg)
		} else {
			m.bus.Broadcast(bus.Event{Name: "message.sent", Payload: map[string]string{
				"channel": msg.Channel,
				"chat_id": msg.ChatID,
			}})
		}
		cleanupMedia(msg.Media)
	}
}

// park saves an undeliverable message for later redelivery.
func (m *Manager) park(ctx context.Context, msg bus.OutboundMessage) {
	if m.queue == nil {
		return
	}
	meta := map[string]string{"chat_id": msg.ChatID}
	if _, err := m.queue.Enqueue(ctx, msg.Channel, msg.ChatID, msg.Content, meta); err != nil {
		slog.Error("message lost, delivery queue rejected it",
			"channel", msg.Channel, "error", err)
	}
}

func cleanupMedia(media []bus.MediaAttachment) {
	for _, att := range media {
		if att.Path == "" || !strings.HasPrefix(att.Path, os.TempDir()) {
			continue
		}
		if err := os.Remove(att.Path); err != nil && !os.IsNotExist(err) {
			slog.Debug("temp media not removed", "path", att.Path, "error", err)
		}
	}
}

// Send delivers directly to a named adapter, bypassing the bus. Used by the
// delivery queue flusher.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	m.mu.RLock()
	adapter, exists := m.adapters[msg.Channel]
	up := m.running[msg.Channel]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("channel %s not registered", msg.Channel)
	}
	if !up {
		return fmt.Errorf("channel %s is down", msg.Channel)
	}
	return adapter.Send(ctx, msg)
}

// ApprovePairing tries the code against every adapter. The code encodes no
// channel, so the first adapter that recognises it wins.
func (m *Manager) ApprovePairing(ctx context.Context, code string) (*PairedUser, error) {
	m.mu.RLock()
	adapters := make([]Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.mu.RUnlock()

	for _, a := range adapters {
		user, err := a.ApprovePairing(ctx, code)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	return nil, nil
}

// Status reports each adapter's running state for the health endpoint.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.adapters))
	for name := range m.adapters {
		status[name] = m.running[name]
	}
	return status
}

// Names lists registered adapters in stable order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
