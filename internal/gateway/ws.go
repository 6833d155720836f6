package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hearthside/domo/internal/agent"
	"github.com/hearthside/domo/internal/audit"
	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/store"
	"github.com/hearthside/domo/pkg/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 64
)

var (
	errBadParams     = errors.New("invalid params")
	errUnavailable   = errors.New("service not available")
	errUnknownMethod = errors.New("unknown method")
	errUnknownAgent  = errors.New("unknown agent")
)

// rpcRequest is one client call over the socket.
type rpcRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// rpcResponse answers one call.
type rpcResponse struct {
	ID     int64  `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// wsEvent is a server push.
type wsEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan any
	done chan struct{}
}

func (c *wsClient) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan any, wsSendBuffer),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()
	slog.Debug("dashboard client connected", "client", client.id)

	go s.writeLoop(client)
	s.readLoop(r.Context(), client)

	s.mu.Lock()
	delete(s.clients, client.id)
	s.mu.Unlock()
	client.close()
	conn.Close()
	slog.Debug("dashboard client disconnected", "client", client.id)
}

func (s *Server) writeLoop(c *wsClient) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsClient) {
	for {
		var req rpcRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			return
		}
		result, err := s.dispatch(ctx, req)
		resp := rpcResponse{ID: req.ID, Result: result}
		if err != nil {
			resp = rpcResponse{ID: req.ID, Error: err.Error()}
		}
		select {
		case c.send <- resp:
		case <-c.done:
			return
		}
	}
}

// broadcastEvent fans one bus event out to every connected client. A slow
// client's full buffer drops the event for that client only.
func (s *Server) broadcastEvent(event bus.Event) {
	msg := wsEvent{Event: event.Name, Payload: event.Payload}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// dispatch maps socket methods onto the same operations the REST routes
// expose.
func (s *Server) dispatch(ctx context.Context, req rpcRequest) (any, error) {
	switch req.Method {
	case protocol.MethodConnect, protocol.MethodHealth, protocol.MethodStatus:
		status := HealthStatus{Status: "ok", DegradationLevel: 1}
		if s.deps.Health != nil {
			status = s.deps.Health()
		}
		return status, nil

	case protocol.MethodChatSend:
		var params chatRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, errBadParams
		}
		return s.chatSend(ctx, params)

	case protocol.MethodChatHistory:
		if s.deps.Memory == nil {
			return nil, errUnavailable
		}
		var params struct {
			Agent string `json:"agent,omitempty"`
			Limit int    `json:"limit,omitempty"`
		}
		_ = json.Unmarshal(req.Params, &params)
		if params.Agent == "" && s.deps.Resolver != nil {
			if def := s.deps.Resolver.Default(); def != nil {
				params.Agent = def.Name()
			}
		}
		if params.Limit <= 0 || params.Limit > 200 {
			params.Limit = 50
		}
		return s.deps.Memory.History(ctx, params.Agent, params.Limit, store.HistoryFilter{Channel: "dashboard"})

	case protocol.MethodAgentsList:
		if s.deps.Resolver == nil {
			return nil, errUnavailable
		}
		return s.deps.Resolver.Names(), nil

	case protocol.MethodSkillsList:
		if s.deps.Resolver == nil {
			return nil, errUnavailable
		}
		skills := map[string]string{}
		for _, name := range s.deps.Resolver.Names() {
			a, _ := s.deps.Resolver.Get(name)
			for _, sk := range a.Skills() {
				skills[sk.Name] = sk.Description
			}
		}
		return skills, nil

	case protocol.MethodCosts:
		if s.deps.Audit == nil {
			return nil, errUnavailable
		}
		return s.deps.Audit.CostSummary(ctx)

	case protocol.MethodAudit:
		if s.deps.Audit == nil {
			return nil, errUnavailable
		}
		var params struct {
			Limit int    `json:"limit,omitempty"`
			Agent string `json:"agent,omitempty"`
		}
		_ = json.Unmarshal(req.Params, &params)
		if params.Limit <= 0 || params.Limit > 1000 {
			params.Limit = 50
		}
		return s.deps.Audit.Recent(ctx, params.Limit, params.Agent)

	case protocol.MethodMemorySearch:
		if s.deps.Memory == nil {
			return nil, errUnavailable
		}
		var params struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Query == "" {
			return nil, errBadParams
		}
		return s.deps.Memory.SearchKnowledge(ctx, params.Query, 10)

	case protocol.MethodPairingPending:
		if s.deps.Pairing == nil {
			return nil, errUnavailable
		}
		return s.deps.Pairing.Pending(), nil

	case protocol.MethodPairingApprove:
		if s.deps.Channels == nil {
			return nil, errUnavailable
		}
		var params struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Code == "" {
			return nil, errBadParams
		}
		user, err := s.deps.Channels.ApprovePairing(ctx, params.Code)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, errors.New("unknown or expired code")
		}
		return user, nil

	case protocol.MethodApprovalsList:
		if s.deps.Approvals == nil {
			return nil, errUnavailable
		}
		return s.deps.Approvals.Pending(ctx)

	case protocol.MethodApprovalsApprove, protocol.MethodApprovalsDeny:
		if s.deps.Approvals == nil {
			return nil, errUnavailable
		}
		var params struct {
			ID     string `json:"id"`
			Reason string `json:"reason,omitempty"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
			return nil, errBadParams
		}
		if req.Method == protocol.MethodApprovalsApprove {
			return nil, s.deps.Approvals.Approve(ctx, params.ID, "dashboard")
		}
		return nil, s.deps.Approvals.Deny(ctx, params.ID, "dashboard", params.Reason)

	default:
		return nil, errUnknownMethod
	}
}

func (s *Server) chatSend(ctx context.Context, params chatRequest) (any, error) {
	if s.deps.Resolver == nil {
		return nil, errUnavailable
	}
	target, text := s.deps.Resolver.Resolve(params.Message)
	if params.Agent != "" {
		named, ok := s.deps.Resolver.Get(params.Agent)
		if !ok {
			return nil, errUnknownAgent
		}
		target, text = named, params.Message
	}
	reply, err := target.Process(ctx, agent.Message{
		Text:    text,
		Channel: "dashboard",
		UserID:  "dashboard",
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"reply":       reply.Content,
		"agent":       target.Name(),
		"tier":        string(reply.Tier),
		"model":       reply.Model,
		"cost_gbp":    audit.RoundGBP(reply.CostGBP),
		"duration_ms": reply.Duration.Milliseconds(),
	}, nil
}
