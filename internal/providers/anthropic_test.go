package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicBuildRequestBody(t *testing.T) {
	p := NewAnthropic("anthropic", "k", "", "claude-test")

	t.Run("system messages lift to top-level field", func(t *testing.T) {
		body := p.buildRequestBody("claude-test", ChatRequest{
			System: "soul",
			Messages: []Message{
				{Role: "system", Content: "extra"},
				{Role: "user", Content: "hi"},
			},
		})
		if body["system"] != "soul\n\nextra" {
			t.Fatalf("system = %q", body["system"])
		}
		msgs := body["messages"].([]map[string]any)
		if len(msgs) != 1 || msgs[0]["role"] != "user" {
			t.Fatalf("messages = %v", msgs)
		}
	})

	t.Run("first message forced to user", func(t *testing.T) {
		body := p.buildRequestBody("claude-test", ChatRequest{
			Messages: []Message{{Role: "assistant", Content: "earlier reply"}},
		})
		msgs := body["messages"].([]map[string]any)
		if msgs[0]["role"] != "user" {
			t.Fatalf("first role = %v", msgs[0]["role"])
		}
		if msgs[0]["content"] != continuationMarker {
			t.Fatalf("marker = %v", msgs[0]["content"])
		}
	})

	t.Run("consecutive same-role messages merge", func(t *testing.T) {
		body := p.buildRequestBody("claude-test", ChatRequest{
			Messages: []Message{
				{Role: "user", Content: "one"},
				{Role: "user", Content: "two"},
				{Role: "assistant", Content: "ok"},
			},
		})
		msgs := body["messages"].([]map[string]any)
		if len(msgs) != 2 {
			t.Fatalf("want 2 merged messages, got %d", len(msgs))
		}
		if msgs[0]["content"] != "one\n\ntwo" {
			t.Fatalf("merged content = %v", msgs[0]["content"])
		}
	})

	t.Run("tool results become user tool_result blocks", func(t *testing.T) {
		body := p.buildRequestBody("claude-test", ChatRequest{
			Messages: []Message{
				{Role: "user", Content: "time?"},
				{Role: "assistant", ToolCalls: []ToolCall{{ID: "t1", Name: "current_time"}}},
				{Role: "tool", ToolCallID: "t1", Content: "09:00"},
			},
		})
		msgs := body["messages"].([]map[string]any)
		last := msgs[len(msgs)-1]
		if last["role"] != "user" {
			t.Fatalf("tool result role = %v", last["role"])
		}
		blocks := last["content"].([]map[string]any)
		if blocks[0]["type"] != "tool_result" || blocks[0]["tool_use_id"] != "t1" {
			t.Fatalf("tool_result block = %v", blocks[0])
		}
	})
}

func TestAnthropicChatParsesToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "checking"},
				{"type": "tool_use", "id": "tu_1", "name": "current_time", "input": map[string]any{}},
			},
			"stop_reason": "tool_use",
			"usage":       map[string]int{"input_tokens": 12, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	p := NewAnthropic("anthropic", "k", srv.URL, "claude-test")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "What time is it?"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.FinishReason != "tool_calls" {
		t.Fatalf("finish reason = %q", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "current_time" {
		t.Fatalf("tool calls = %v", resp.ToolCalls)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 5 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestVerifyStatusHandling(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	t.Run("401 is fatal", func(t *testing.T) {
		status = http.StatusUnauthorized
		p := NewOpenAICompatible("openai", "bad", srv.URL, "gpt-test")
		if err := p.Verify(context.Background(), "gpt-test"); err == nil {
			t.Fatal("want error on 401")
		}
	})

	t.Run("other non-2xx still verifies", func(t *testing.T) {
		status = http.StatusTooManyRequests
		p := NewOpenAICompatible("openai", "k", srv.URL, "gpt-test")
		if err := p.Verify(context.Background(), "gpt-test"); err != nil {
			t.Fatalf("429 should verify clean: %v", err)
		}
	})
}
