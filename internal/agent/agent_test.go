package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/providers"
	"github.com/hearthside/domo/internal/router"
	"github.com/hearthside/domo/internal/store"
)

func testRouter(t *testing.T) *router.Router {
	t.Helper()
	r, err := router.New(config.ModelsConfig{
		Primary: config.ModelConfig{Provider: "openai", Model: "gpt-test", APIKey: "test-key"},
	}, config.EmbeddingConfig{}, func(s string) string { return s })
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// failCompleter proves a code path never reached the provider.
type failCompleter struct{}

func (failCompleter) Complete(ctx context.Context, slot router.Slot, req providers.ChatRequest) (*router.Result, error) {
	return nil, errors.New("provider must not be called")
}

func TestReflexShortCircuit(t *testing.T) {
	a := New(Options{
		Name:     "domo",
		SoulPath: filepath.Join(t.TempDir(), "missing.md"),
		Router:   testRouter(t),
		Executor: NewExecutor(failCompleter{}, nil, nil, 0),
	})

	reply, err := a.Process(context.Background(), Message{Text: "thanks", Channel: "cli", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Tier != router.TierReflex {
		t.Fatalf("tier = %s", reply.Tier)
	}
	if reply.Content != "No problem." {
		t.Fatalf("content = %q", reply.Content)
	}
	if reply.CostGBP != 0 {
		t.Fatalf("reflex cost = %f", reply.CostGBP)
	}
}

func writeSkill(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSkillInvocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("sunny, 21C"))
	}))
	defer srv.Close()

	host := mustHostname(t, srv.URL)
	dir := t.TempDir()
	writeSkill(t, dir, "weather.md", `---
name: weather
description: current weather for a place
url: `+srv.URL+`/v1/forecast?q={args}
method: GET
endpoints:
  - ^/v1/forecast
hosts:
  - `+host+`
---

Use for weather lookups.
`)
	skills, err := LoadSkills(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(skills) != 1 {
		t.Fatalf("skills = %d", len(skills))
	}

	a := New(Options{
		Name:     "domo",
		SoulPath: filepath.Join(dir, "missing.md"),
		Skills:   skills,
		Router:   testRouter(t),
		Executor: NewExecutor(failCompleter{}, nil, nil, 0),
	})

	reply, err := a.Process(context.Background(), Message{Text: "weather: london", Channel: "cli"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Tier != TierSkill {
		t.Fatalf("tier = %s", reply.Tier)
	}
	if reply.Content != "sunny, 21C" {
		t.Fatalf("content = %q", reply.Content)
	}
}

func TestSkillHostAllowlist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("should never arrive"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeSkill(t, dir, "leak.md", `---
name: leak
description: points at one host but allowlists another
url: `+srv.URL+`/v1/data?q={args}
endpoints:
  - ^/v1/data
hosts:
  - api.example.com
---
`)
	skills, err := LoadSkills(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := skills[0].Invoke(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "not allowlisted") {
		t.Fatalf("err = %v", err)
	}
}

func TestSkillEndpointAllowlist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nope"))
	}))
	defer srv.Close()

	host := mustHostname(t, srv.URL)
	dir := t.TempDir()
	writeSkill(t, dir, "drift.md", `---
name: drift
description: calls a path outside its declared endpoints
url: `+srv.URL+`/admin/export?q={args}
endpoints:
  - ^/v1/
hosts:
  - `+host+`
---
`)
	skills, err := LoadSkills(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := skills[0].Invoke(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "no declared endpoint") {
		t.Fatalf("err = %v", err)
	}
}

func TestSkillsWithoutHostsAreSkipped(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "open.md", `---
name: open
description: no allowlist
url: https://anywhere.example/{args}
endpoints:
  - .
---
`)
	skills, err := LoadSkills(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(skills) != 0 {
		t.Fatalf("unsafe skill loaded: %+v", skills)
	}
}

func TestMatchInvocation(t *testing.T) {
	skills := []*Skill{{Name: "weather"}}
	tests := []struct {
		text     string
		wantOK   bool
		wantArgs string
	}{
		{"weather: london", true, "london"},
		{"Weather: London", true, "London"},
		{"weather london", false, ""},
		{"note to self: buy milk", false, ""},
		{"unknown: args", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, args, ok := matchInvocation(skills, tt.text)
			if ok != tt.wantOK || args != tt.wantArgs {
				t.Fatalf("got ok=%v args=%q", ok, args)
			}
		})
	}
}

func TestResolverMentions(t *testing.T) {
	domo := New(Options{Name: "domo", SoulPath: "none", Router: nil})
	scout := New(Options{Name: "scout", SoulPath: "none", Router: nil})
	r := NewResolver(domo, scout)

	tests := []struct {
		text      string
		wantAgent string
		wantText  string
	}{
		{"@scout: find the report", "scout", "find the report"},
		{"scout: find the report", "scout", "find the report"},
		{"@SCOUT: hi", "scout", "hi"},
		{"hello there", "domo", "hello there"},
		{"random: hi", "domo", "random: hi"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			agent, rest := r.Resolve(tt.text)
			if agent.Name() != tt.wantAgent || rest != tt.wantText {
				t.Fatalf("got %s %q", agent.Name(), rest)
			}
		})
	}
}

func TestAssembleMessagesBudget(t *testing.T) {
	history := []store.Message{
		{Role: "user", Content: strings.Repeat("a", 40)},
		{Role: "assistant", Content: strings.Repeat("b", 40)},
		{Role: "user", Content: strings.Repeat("c", 40)},
		{Role: "assistant", Content: strings.Repeat("d", 40)},
	}
	// Budget fits the user turn plus roughly two history entries.
	msgs := assembleMessages("sys", history, "now", nil, 100)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d", len(msgs))
	}
	// The newest history survives, in chronological order.
	if !strings.HasPrefix(msgs[0].Content, "c") || !strings.HasPrefix(msgs[1].Content, "d") {
		t.Fatalf("kept wrong turns: %q %q", msgs[0].Content, msgs[1].Content)
	}
	if msgs[2].Content != "now" || msgs[2].Role != "user" {
		t.Fatalf("last message = %+v", msgs[2])
	}
}

func TestSanitizeAssistantContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"thinking tags", "<think>secret plan</think>The answer is 4.", "The answer is 4."},
		{"final tags", "<final>Done.</final>", "Done."},
		{"duplicate blocks", "Same text.\n\nSame text.\n\nNew text.", "Same text.\n\nNew text."},
		{"clean", "Nothing to strip.", "Nothing to strip."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeAssistantContent(tt.in); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsSilentReply(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"NO_REPLY", true},
		{"NO_REPLY.", true},
		{"  NO_REPLY  ", true},
		{"Sure, NO_REPLY", true},
		{"NO_REPLYING", false},
		{"reply", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSilentReply(tt.in); got != tt.want {
			t.Errorf("IsSilentReply(%q) = %v", tt.in, got)
		}
	}
}

func mustHostname(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u.Hostname()
}
