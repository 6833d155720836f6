// Package gateway serves the dashboard API: JSON endpoints plus a WebSocket
// that carries chat and live runtime events. The front-end itself is not
// bundled; anything speaking the protocol can connect.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthside/domo/internal/agent"
	"github.com/hearthside/domo/internal/approvals"
	"github.com/hearthside/domo/internal/audit"
	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/channels"
	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/memory"
)

const (
	defaultHost         = "127.0.0.1"
	defaultPort         = 3333
	defaultRateLimitRPM = 30

	// tokenBytes gives a 256-bit bearer token, over the 128-bit floor.
	tokenBytes = 32
)

// Deps wires the server to the rest of the runtime. Nil fields disable the
// endpoints that need them.
type Deps struct {
	Resolver  *agent.Resolver
	Memory    *memory.Manager
	Audit     audit.Log
	Channels  *channels.Manager
	Pairing   *channels.Pairing
	Approvals *approvals.Broker
	Bus       *bus.MessageBus

	// Health reports the current degradation level (1 = all green).
	Health func() HealthStatus
}

// HealthStatus is the unauthenticated health payload.
type HealthStatus struct {
	Status           string          `json:"status"`
	DegradationLevel int             `json:"degradationLevel"`
	Agents           []string        `json:"agents"`
	Cognee           bool            `json:"cognee"`
	Tunnel           string          `json:"tunnel,omitempty"`
	Channels         map[string]bool `json:"channels,omitempty"`
}

// Server is the dashboard HTTP/WebSocket server.
type Server struct {
	cfg   config.DashboardConfig
	deps  Deps
	token string

	limiter  *ipLimiter
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient

	httpServer *http.Server
	mux        *http.ServeMux
}

func NewServer(cfg config.DashboardConfig, deps Deps) *Server {
	token := cfg.Token
	if token == "" {
		token = newToken()
		slog.Info("dashboard token generated", "token", token)
	}
	rpm := cfg.RateLimitRPM
	if rpm == 0 {
		rpm = defaultRateLimitRPM
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		token:   token,
		limiter: newIPLimiter(rpm),
		clients: make(map[string]*wsClient),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Token returns the active bearer token for logging and the chat client.
func (s *Server) Token() string { return s.token }

func newToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// Mux builds the route table once; extra listeners (tsnet) reuse it.
func (s *Server) Mux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()

	// Health is never authenticated and never rate limited.
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.Handle("POST /api/chat", s.protect(s.handleChat))
	mux.Handle("GET /api/costs", s.protect(s.handleCosts))
	mux.Handle("GET /api/audit", s.protect(s.handleAudit))
	mux.Handle("GET /api/agents", s.protect(s.handleAgents))
	mux.Handle("GET /api/skills", s.protect(s.handleSkills))
	mux.Handle("POST /api/memory/search", s.protect(s.handleMemorySearch))
	mux.Handle("GET /api/pairing/pending", s.protect(s.handlePairingPending))
	mux.Handle("POST /api/pairing/approve", s.protect(s.handlePairingApprove))
	mux.Handle("GET /api/approvals", s.protect(s.handleApprovalsList))
	mux.Handle("POST /api/approvals/approve", s.protect(s.handleApprovalsApprove))
	mux.Handle("POST /api/approvals/deny", s.protect(s.handleApprovalsDeny))

	mux.HandleFunc("/ws", s.handleWebSocket)

	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled. The event fan-out from the bus to
// connected WebSocket clients starts here too.
func (s *Server) Start(ctx context.Context) error {
	host := s.cfg.Host
	if host == "" {
		host = defaultHost
	}
	port := s.cfg.Port
	if port == 0 {
		port = defaultPort
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	if s.deps.Bus != nil {
		s.deps.Bus.Subscribe("dashboard", s.broadcastEvent)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("dashboard listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("dashboard server: %w", err)
	}
}

// Stop closes the listener and every websocket.
func (s *Server) Stop(ctx context.Context) error {
	if s.deps.Bus != nil {
		s.deps.Bus.Unsubscribe("dashboard")
	}
	s.mu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[string]*wsClient)
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// checkOrigin allows configured origins, or same-host and non-browser
// clients when none are configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.cfg.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	slog.Warn("websocket origin rejected", "origin", origin)
	return false
}
