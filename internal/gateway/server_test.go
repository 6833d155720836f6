package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hearthside/domo/internal/bus"
	"github.com/hearthside/domo/internal/channels"
	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/store/file"
	"github.com/hearthside/domo/pkg/protocol"
)

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	return NewServer(config.DashboardConfig{Token: "test-token", RateLimitRPM: -1}, deps)
}

func TestHealthNeedsNoToken(t *testing.T) {
	s := newTestServer(t, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "ok" || got.DegradationLevel != 1 {
		t.Fatalf("health = %+v", got)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	s := newTestServer(t, Deps{})
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/costs"},
		{http.MethodGet, "/api/agents"},
		{http.MethodPost, "/api/chat"},
	}
	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		rec := httptest.NewRecorder()
		s.Mux().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestBearerAndQueryTokenBothWork(t *testing.T) {
	s := newTestServer(t, Deps{Pairing: channels.NewPairing(file.NewPairingStore("", false))})

	req := httptest.NewRequest(http.MethodGet, "/api/pairing/pending", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer auth = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/pairing/pending?token=test-token", nil)
	rec = httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("query auth = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/pairing/pending?token=wrong", nil)
	rec = httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", rec.Code)
	}
}

func TestRateLimitOnAPIRoutes(t *testing.T) {
	s := NewServer(config.DashboardConfig{Token: "test-token", RateLimitRPM: 2}, Deps{})

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("Authorization", "Bearer test-token")
		rec := httptest.NewRecorder()
		s.Mux().ServeHTTP(rec, req)
		return rec.Code
	}
	do()
	do()
	if code := do(); code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", code)
	}

	// Health stays exempt.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health under rate limit = %d", rec.Code)
	}
}

func TestPairingApproveOverHTTP(t *testing.T) {
	msgBus := bus.NewMessageBus()
	pairing := channels.NewPairing(file.NewPairingStore("", false))
	mgr := channels.NewManager(msgBus, nil)
	mgr.Register(newStubAdapter("telegram", msgBus, pairing))

	s := newTestServer(t, Deps{Channels: mgr, Pairing: pairing})
	code, _ := pairing.Issue("telegram", "42", "alice")

	body, _ := json.Marshal(map[string]string{"code": code})
	req := httptest.NewRequest(http.MethodPost, "/api/pairing/approve", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve = %d: %s", rec.Code, rec.Body.String())
	}

	// Spent codes are gone.
	req = httptest.NewRequest(http.MethodPost, "/api/pairing/approve", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	rec = httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("reused code = %d, want 404", rec.Code)
	}
}

func TestDispatchPairingMethods(t *testing.T) {
	msgBus := bus.NewMessageBus()
	pairing := channels.NewPairing(file.NewPairingStore("", false))
	mgr := channels.NewManager(msgBus, nil)
	mgr.Register(newStubAdapter("discord", msgBus, pairing))
	s := newTestServer(t, Deps{Channels: mgr, Pairing: pairing})

	code, _ := pairing.Issue("discord", "7", "bob")
	params, _ := json.Marshal(map[string]string{"code": code})
	result, err := s.dispatch(context.Background(), rpcRequest{
		ID:     1,
		Method: protocol.MethodPairingApprove,
		Params: params,
	})
	if err != nil {
		t.Fatal(err)
	}
	user, ok := result.(*channels.PairedUser)
	if !ok || user.UserID != "7" {
		t.Fatalf("result = %#v", result)
	}

	if _, err := s.dispatch(context.Background(), rpcRequest{ID: 2, Method: "no.such"}); err != errUnknownMethod {
		t.Fatalf("unknown method err = %v", err)
	}
}

// stubAdapter satisfies channels.Adapter for routing tests.
type stubAdapter struct {
	*channels.Base
}

func newStubAdapter(name string, msgBus *bus.MessageBus, pairing *channels.Pairing) *stubAdapter {
	return &stubAdapter{Base: channels.NewBase(name, msgBus, nil, pairing, "open", "open")}
}

func (a *stubAdapter) Start(context.Context) error                     { return nil }
func (a *stubAdapter) Stop(context.Context) error                      { return nil }
func (a *stubAdapter) Send(context.Context, bus.OutboundMessage) error { return nil }
