package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/hearthside/domo/internal/agent"
	"github.com/hearthside/domo/internal/audit"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := HealthStatus{Status: "ok", DegradationLevel: 1}
	if s.deps.Health != nil {
		status = s.deps.Health()
	}
	writeJSON(w, http.StatusOK, status)
}

type chatRequest struct {
	Message string `json:"message"`
	Agent   string `json:"agent,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "agents not available")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	target, text := s.deps.Resolver.Resolve(req.Message)
	if req.Agent != "" {
		named, ok := s.deps.Resolver.Get(req.Agent)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown agent "+req.Agent)
			return
		}
		target, text = named, req.Message
	}

	reply, err := target.Process(r.Context(), agent.Message{
		Text:    text,
		Channel: "dashboard",
		UserID:  "dashboard",
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reply":       reply.Content,
		"agent":       target.Name(),
		"tier":        string(reply.Tier),
		"model":       reply.Model,
		"cost_gbp":    audit.RoundGBP(reply.CostGBP),
		"duration_ms": reply.Duration.Milliseconds(),
	})
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not available")
		return
	}
	summary, err := s.deps.Audit.CostSummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	byChannel, err := s.deps.Audit.CostsByChannel(r.Context(), audit.PeriodToday)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":          summary,
		"today_by_channel": byChannel,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not available")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be 1-1000")
			return
		}
		limit = n
	}
	entries, err := s.deps.Audit.Recent(r.Context(), limit, r.URL.Query().Get("agent"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "agents not available")
		return
	}
	type agentInfo struct {
		Name    string `json:"name"`
		Default bool   `json:"default"`
		Skills  int    `json:"skills"`
	}
	var out []agentInfo
	def := s.deps.Resolver.Default()
	for _, name := range s.deps.Resolver.Names() {
		a, _ := s.deps.Resolver.Get(name)
		out = append(out, agentInfo{
			Name:    name,
			Default: def != nil && def.Name() == name,
			Skills:  len(a.Skills()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

func (s *Server) handleSkills(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "agents not available")
		return
	}
	type skillInfo struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Agent       string `json:"agent"`
	}
	var out []skillInfo
	for _, name := range s.deps.Resolver.Names() {
		a, _ := s.deps.Resolver.Get(name)
		for _, sk := range a.Skills() {
			out = append(out, skillInfo{Name: sk.Name, Description: sk.Description, Agent: name})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": out})
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memory == nil {
		writeError(w, http.StatusServiceUnavailable, "memory not available")
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	entries, err := s.deps.Memory.SearchKnowledge(r.Context(), req.Query, 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": entries,
		"graph":   s.deps.Memory.GraphContext(r.Context(), req.Query, 500),
	})
}

func (s *Server) handlePairingPending(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pairing == nil {
		writeError(w, http.StatusServiceUnavailable, "pairing not available")
		return
	}
	channel := r.URL.Query().Get("channel")
	var out []map[string]string
	for _, p := range s.deps.Pairing.Pending() {
		if channel != "" && p.Channel != channel {
			continue
		}
		out = append(out, map[string]string{
			"channel":  p.Channel,
			"user_id":  p.UserID,
			"username": p.Username,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": out})
}

func (s *Server) handlePairingApprove(w http.ResponseWriter, r *http.Request) {
	if s.deps.Channels == nil {
		writeError(w, http.StatusServiceUnavailable, "channels not available")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	user, err := s.deps.Channels.ApprovePairing(r.Context(), req.Code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "unknown or expired code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approved": user})
}

func (s *Server) handleApprovalsList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Approvals == nil {
		writeError(w, http.StatusServiceUnavailable, "approvals not available")
		return
	}
	pending, err := s.deps.Approvals.Pending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) handleApprovalsApprove(w http.ResponseWriter, r *http.Request) {
	s.resolveApproval(w, r, true)
}

func (s *Server) handleApprovalsDeny(w http.ResponseWriter, r *http.Request) {
	s.resolveApproval(w, r, false)
}

func (s *Server) resolveApproval(w http.ResponseWriter, r *http.Request, approve bool) {
	if s.deps.Approvals == nil {
		writeError(w, http.StatusServiceUnavailable, "approvals not available")
		return
	}
	var req struct {
		ID     string `json:"id"`
		Reason string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	var err error
	if approve {
		err = s.deps.Approvals.Approve(r.Context(), req.ID, "dashboard")
	} else {
		err = s.deps.Approvals.Deny(r.Context(), req.ID, "dashboard", req.Reason)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
