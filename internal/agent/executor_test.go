package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hearthside/domo/internal/providers"
	"github.com/hearthside/domo/internal/router"
	"github.com/hearthside/domo/internal/tools"
	"github.com/hearthside/domo/internal/trust"
)

// scriptedCompleter returns queued results and records every request.
type scriptedCompleter struct {
	mu        sync.Mutex
	requests  []providers.ChatRequest
	responses []*router.Result
}

func (c *scriptedCompleter) Complete(ctx context.Context, slot router.Slot, req providers.ChatRequest) (*router.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return &router.Result{Content: "done"}, nil
	}
	r := c.responses[0]
	c.responses = c.responses[1:]
	return r, nil
}

type slowEchoTool struct{}

func (t *slowEchoTool) Name() string        { return "slow_echo" }
func (t *slowEchoTool) Description() string { return "echoes text after a delay" }
func (t *slowEchoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text":     map[string]interface{}{"type": "string"},
			"delay_ms": map[string]interface{}{"type": "number"},
		},
		"required": []string{"text"},
	}
}

func (t *slowEchoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if ms, ok := args["delay_ms"].(float64); ok {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
	text, _ := args["text"].(string)
	return tools.SilentResult(text)
}

func TestExecutorTimeToolRoundTrip(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.NewCurrentTimeTool())

	completer := &scriptedCompleter{responses: []*router.Result{
		{
			ToolCalls: []providers.ToolCall{{ID: "call_1", Name: "current_time", Arguments: map[string]any{}}},
			Usage:     providers.Usage{InputTokens: 10, OutputTokens: 5},
			CostGBP:   0.001,
			Model:     "test-model",
		},
		{
			Content: "It is early afternoon.",
			Usage:   providers.Usage{InputTokens: 20, OutputTokens: 7},
			CostGBP: 0.002,
			Model:   "test-model",
		},
	}}

	exec := NewExecutor(completer, reg, nil, 0)
	out, err := exec.Run(context.Background(), router.SlotPrimary, "system", []providers.Message{
		{Role: "user", Content: "What time is it?"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Cycles != 2 {
		t.Fatalf("cycles = %d, want 2", out.Cycles)
	}
	if out.Content != "It is early afternoon." {
		t.Fatalf("content = %q", out.Content)
	}
	if out.Usage.InputTokens != 30 || out.Usage.OutputTokens != 12 {
		t.Fatalf("usage not summed: %+v", out.Usage)
	}
	if out.CostGBP < 0.0029 || out.CostGBP > 0.0031 {
		t.Fatalf("cost = %f", out.CostGBP)
	}

	// The second request must carry the assistant tool call and its result.
	second := completer.requests[1]
	var sawAssistant, sawTool bool
	for _, m := range second.Messages {
		if m.Role == "assistant" && len(m.ToolCalls) == 1 && m.ToolCalls[0].Name == "current_time" {
			sawAssistant = true
		}
		if m.Role == "tool" && m.ToolCallID == "call_1" && m.Content != "" {
			sawTool = true
		}
	}
	if !sawAssistant || !sawTool {
		t.Fatalf("tool threading missing: assistant=%v tool=%v", sawAssistant, sawTool)
	}
}

func TestExecutorParallelDispatchKeepsCallOrder(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&slowEchoTool{})

	completer := &scriptedCompleter{responses: []*router.Result{
		{ToolCalls: []providers.ToolCall{
			{ID: "a", Name: "slow_echo", Arguments: map[string]any{"text": "first", "delay_ms": 60.0}},
			{ID: "b", Name: "slow_echo", Arguments: map[string]any{"text": "second", "delay_ms": 30.0}},
			{ID: "c", Name: "slow_echo", Arguments: map[string]any{"text": "third", "delay_ms": 0.0}},
		}},
		{Content: "ok"},
	}}

	exec := NewExecutor(completer, reg, nil, 0)
	if _, err := exec.Run(context.Background(), router.SlotPrimary, "", []providers.Message{{Role: "user", Content: "go"}}); err != nil {
		t.Fatal(err)
	}

	var toolContents []string
	for _, m := range completer.requests[1].Messages {
		if m.Role == "tool" {
			toolContents = append(toolContents, m.Content)
		}
	}
	want := []string{"first", "second", "third"}
	if len(toolContents) != len(want) {
		t.Fatalf("tool messages = %v", toolContents)
	}
	for i := range want {
		if toolContents[i] != want[i] {
			t.Fatalf("result order = %v, want %v", toolContents, want)
		}
	}
}

func TestExecutorTrustRejectionBecomesErrorResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "VALUES.md")
	doc := "# Constitution\n\n## Hard Rules\n- Never delete user data without asking\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	kernel := trust.Load(path)

	reg := tools.NewRegistry()
	reg.Register(&slowEchoTool{})

	completer := &scriptedCompleter{responses: []*router.Result{
		{ToolCalls: []providers.ToolCall{
			{ID: "x", Name: "slow_echo", Arguments: map[string]any{"text": "delete all backups"}},
		}},
		{Content: "ok"},
	}}

	exec := NewExecutor(completer, reg, kernel, 0)
	if _, err := exec.Run(context.Background(), router.SlotPrimary, "", []providers.Message{{Role: "user", Content: "go"}}); err != nil {
		t.Fatal(err)
	}

	var toolMsg string
	for _, m := range completer.requests[1].Messages {
		if m.Role == "tool" {
			toolMsg = m.Content
		}
	}
	if !strings.Contains(toolMsg, "blocked by trust rules") {
		t.Fatalf("tool message = %q", toolMsg)
	}
}

func TestExecutorCycleCap(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&slowEchoTool{})

	// Every response demands another tool call; the run must stop anyway.
	completer := &scriptedCompleter{}
	for i := 0; i < 5; i++ {
		completer.responses = append(completer.responses, &router.Result{
			Content:   "working",
			ToolCalls: []providers.ToolCall{{ID: "t", Name: "slow_echo", Arguments: map[string]any{"text": "x"}}},
		})
	}

	exec := NewExecutor(completer, reg, nil, 2)
	out, err := exec.Run(context.Background(), router.SlotPrimary, "", []providers.Message{{Role: "user", Content: "go"}})
	if err != nil {
		t.Fatal(err)
	}
	if !out.LimitReached || out.Cycles != 2 {
		t.Fatalf("limit=%v cycles=%d", out.LimitReached, out.Cycles)
	}
	if !strings.Contains(out.Content, "limit reached") {
		t.Fatalf("content = %q", out.Content)
	}
}
