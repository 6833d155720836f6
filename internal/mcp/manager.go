// Package mcp connects remote MCP tool servers (stdio or SSE transport) and
// bridges their tools into the shared registry under server__tool names.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/tools"
)

const (
	initTimeout          = 10 * time.Second
	defaultCallTimeout   = 30
	healthCheckInterval  = 30 * time.Second
	initialBackoff       = 2 * time.Second
	maxBackoff           = 60 * time.Second
	maxReconnectAttempts = 10
)

// ServerStatus reports the connection status of one server for the doctor
// command and the dashboard.
type ServerStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"tool_count"`
	Error     string `json:"error,omitempty"`
}

// serverState tracks a single server connection.
type serverState struct {
	name       string
	transport  string
	client     *mcpclient.Client
	connected  atomic.Bool
	toolNames  []string
	timeoutSec int
	cancel     context.CancelFunc

	mu             sync.Mutex
	reconnAttempts int
	lastErr        string
}

// Manager owns the MCP server connections and their registry entries.
type Manager struct {
	mu       sync.RWMutex
	servers  map[string]*serverState
	registry *tools.Registry
	configs  map[string]*config.MCPServerConfig
}

func NewManager(registry *tools.Registry, configs map[string]*config.MCPServerConfig) *Manager {
	return &Manager{
		servers:  make(map[string]*serverState),
		registry: registry,
		configs:  configs,
	}
}

// Start connects every enabled server. Connection failures are logged and
// skipped; a dead tool server never blocks startup.
func (m *Manager) Start(ctx context.Context) {
	for name, cfg := range m.configs {
		if cfg == nil || !cfg.IsEnabled() {
			slog.Info("mcp server disabled", "server", name)
			continue
		}
		if err := m.connectServer(ctx, name, cfg); err != nil {
			slog.Warn("mcp server connect failed", "server", name, "error", err)
		}
	}
}

// connectServer creates a client, runs the initialize handshake, discovers
// tools and registers them as server__tool.
func (m *Manager) connectServer(ctx context.Context, name string, cfg *config.MCPServerConfig) error {
	client, err := createClient(cfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	// SSE needs an explicit transport start; stdio auto-starts.
	if cfg.Transport != "stdio" {
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return fmt.Errorf("start transport: %w", err)
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "domo", Version: "1.0.0"}
	if _, err := client.Initialize(initCtx, initReq); err != nil {
		_ = client.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	toolsResult, err := client.ListTools(initCtx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	timeoutSec := cfg.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = defaultCallTimeout
	}

	ss := &serverState{
		name:       name,
		transport:  cfg.Transport,
		client:     client,
		timeoutSec: timeoutSec,
	}
	ss.connected.Store(true)

	var registered []string
	for _, remoteTool := range toolsResult.Tools {
		bt := newBridgeTool(name, remoteTool, client, timeoutSec, &ss.connected)
		if _, exists := m.registry.Get(bt.Name()); exists {
			slog.Warn("mcp tool name collision, skipped", "server", name, "tool", bt.Name())
			continue
		}
		m.registry.Register(bt)
		registered = append(registered, bt.Name())
	}
	ss.toolNames = registered

	hctx, hcancel := context.WithCancel(context.Background())
	ss.cancel = hcancel
	go m.healthLoop(hctx, ss)

	m.mu.Lock()
	m.servers[name] = ss
	m.mu.Unlock()

	slog.Info("mcp server connected", "server", name, "transport", cfg.Transport, "tools", len(registered))
	return nil
}

func createClient(cfg *config.MCPServerConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case "stdio":
		return mcpclient.NewStdioMCPClient(cfg.Command, mapToEnvSlice(cfg.Env), cfg.Args...)
	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(cfg.Headers))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport: %q", cfg.Transport)
	}
}

// Disconnect drops one server and removes its tools from the registry.
func (m *Manager) Disconnect(name string) {
	m.mu.Lock()
	ss, ok := m.servers[name]
	if ok {
		delete(m.servers, name)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if ss.cancel != nil {
		ss.cancel()
	}
	if ss.client != nil {
		_ = ss.client.Close()
	}
	for _, toolName := range ss.toolNames {
		m.registry.Unregister(toolName)
	}
	slog.Info("mcp server disconnected", "server", name, "tools_removed", len(ss.toolNames))
}

// Stop shuts down every connection and unregisters all bridged tools.
func (m *Manager) Stop() {
	m.mu.Lock()
	servers := m.servers
	m.servers = make(map[string]*serverState)
	m.mu.Unlock()

	for name, ss := range servers {
		if ss.cancel != nil {
			ss.cancel()
		}
		if ss.client != nil {
			if err := ss.client.Close(); err != nil {
				slog.Debug("mcp server close error", "server", name, "error", err)
			}
		}
		for _, toolName := range ss.toolNames {
			m.registry.Unregister(toolName)
		}
	}
}

// ServerStatus returns the status of every configured connection.
func (m *Manager) ServerStatus() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statuses := make([]ServerStatus, 0, len(m.servers))
	for _, ss := range m.servers {
		ss.mu.Lock()
		lastErr := ss.lastErr
		ss.mu.Unlock()
		statuses = append(statuses, ServerStatus{
			Name:      ss.name,
			Transport: ss.transport,
			Connected: ss.connected.Load(),
			ToolCount: len(ss.toolNames),
			Error:     lastErr,
		})
	}
	return statuses
}

// healthLoop pings the server periodically and reconnects on failure.
func (m *Manager) healthLoop(ctx context.Context, ss *serverState) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := ss.client.Ping(ctx)
			if err == nil {
				ss.markHealthy()
				continue
			}
			// Servers without a ping handler are still alive.
			if strings.Contains(strings.ToLower(err.Error()), "method not found") {
				ss.markHealthy()
				continue
			}
			ss.connected.Store(false)
			ss.mu.Lock()
			ss.lastErr = err.Error()
			ss.mu.Unlock()
			slog.Warn("mcp server health check failed", "server", ss.name, "error", err)
			m.tryReconnect(ctx, ss)
		}
	}
}

func (ss *serverState) markHealthy() {
	ss.connected.Store(true)
	ss.mu.Lock()
	ss.reconnAttempts = 0
	ss.lastErr = ""
	ss.mu.Unlock()
}

// tryReconnect backs off exponentially and re-pings; the transport handles
// its own reconnection underneath.
func (m *Manager) tryReconnect(ctx context.Context, ss *serverState) {
	ss.mu.Lock()
	if ss.reconnAttempts >= maxReconnectAttempts {
		ss.lastErr = fmt.Sprintf("max reconnect attempts (%d) reached", maxReconnectAttempts)
		ss.mu.Unlock()
		slog.Error("mcp server reconnect exhausted, removing its tools", "server", ss.name)
		m.Disconnect(ss.name)
		return
	}
	ss.reconnAttempts++
	attempt := ss.reconnAttempts
	ss.mu.Unlock()

	backoff := initialBackoff * time.Duration(1<<(attempt-1))
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	slog.Info("mcp server reconnecting", "server", ss.name, "attempt", attempt, "backoff", backoff)

	select {
	case <-ctx.Done():
		return
	case <-time.After(backoff):
	}

	if err := ss.client.Ping(ctx); err == nil {
		ss.markHealthy()
		slog.Info("mcp server reconnected", "server", ss.name)
	}
}

func mapToEnvSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	s := make([]string, 0, len(env))
	for k, v := range env {
		s = append(s, k+"="+v)
	}
	return s
}
