package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicAPIBase    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"

	// continuationMarker is prepended when a thread would otherwise start
	// with an assistant turn; the API requires the first message to be user.
	continuationMarker = "(continuing conversation)"
)

// AnthropicProvider speaks the system-separated messages API.
type AnthropicProvider struct {
	name         string
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

// NewAnthropic creates a provider for the Anthropic family. An empty baseURL
// uses the public endpoint.
func NewAnthropic(name, apiKey, baseURL, defaultModel string) *AnthropicProvider {
	if name == "" {
		name = "anthropic"
	}
	if baseURL == "" {
		baseURL = anthropicAPIBase
	}
	return &AnthropicProvider{
		name:         name,
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: CompletionTimeout},
	}
}

func (p *AnthropicProvider) Name() string         { return p.name }
func (p *AnthropicProvider) Family() string       { return FamilyAnthropic }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body := p.buildRequestBody(model, req)
	respBody, err := p.doRequest(ctx, "/messages", body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var resp anthropicResponse
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	return p.parseResponse(model, &resp), nil
}

// Verify sends a 1-token completion. 401 is fatal; other statuses prove the
// key reached the service.
func (p *AnthropicProvider) Verify(ctx context.Context, model string) error {
	if model == "" {
		model = p.defaultModel
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	body := map[string]any{
		"model":      model,
		"max_tokens": 1,
		"messages":   []map[string]any{{"role": "user", "content": "hi"}},
	}
	respBody, err := p.doRequest(ctx, "/messages", body)
	if err != nil {
		if Unauthorized(err) {
			return fmt.Errorf("%s: invalid api key: %w", p.name, err)
		}
		if _, ok := err.(*HTTPError); ok {
			return nil
		}
		return err
	}
	respBody.Close()
	return nil
}

// buildRequestBody normalises the neutral thread into the system-separated
// wire form: system messages lifted to the top-level field, first message
// forced to user role, consecutive same-role messages merged.
func (p *AnthropicProvider) buildRequestBody(model string, req ChatRequest) map[string]any {
	var systemParts []string
	if req.System != "" {
		systemParts = append(systemParts, req.System)
	}

	var messages []map[string]any
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			systemParts = append(systemParts, msg.Content)

		case "user":
			messages = append(messages, map[string]any{
				"role":    "user",
				"content": userBlocks(msg),
			})

		case "assistant":
			var blocks []map[string]any
			if msg.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": tc.Arguments,
				})
			}
			messages = append(messages, map[string]any{"role": "assistant", "content": blocks})

		case "tool":
			messages = append(messages, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": msg.ToolCallID,
					"content":     msg.Content,
				}},
			})
		}
	}

	if len(messages) == 0 || messages[0]["role"] != "user" {
		messages = append([]map[string]any{{"role": "user", "content": continuationMarker}}, messages...)
	}
	messages = mergeConsecutiveRoles(messages)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if len(systemParts) > 0 {
		body["system"] = strings.Join(systemParts, "\n\n")
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.InputSchema,
			})
		}
		body["tools"] = tools
	}
	return body
}

func userBlocks(msg Message) any {
	if len(msg.Images) == 0 {
		return msg.Content
	}
	var blocks []map[string]any
	for _, img := range msg.Images {
		blocks = append(blocks, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": img.MimeType,
				"data":       img.Data,
			},
		})
	}
	if msg.Content != "" {
		blocks = append(blocks, map[string]any{"type": "text", "text": msg.Content})
	}
	return blocks
}

// mergeConsecutiveRoles joins adjacent messages of the same role. String
// contents concatenate with a blank line; block sequences concatenate.
func mergeConsecutiveRoles(messages []map[string]any) []map[string]any {
	var out []map[string]any
	for _, msg := range messages {
		if len(out) == 0 || out[len(out)-1]["role"] != msg["role"] {
			out = append(out, msg)
			continue
		}
		prev := out[len(out)-1]
		prev["content"] = mergeContents(prev["content"], msg["content"])
	}
	return out
}

func mergeContents(a, b any) any {
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return as + "\n\n" + bs
	}
	return append(toBlocks(a), toBlocks(b)...)
}

func toBlocks(v any) []map[string]any {
	switch c := v.(type) {
	case string:
		if c == "" {
			return nil
		}
		return []map[string]any{{"type": "text", "text": c}}
	case []map[string]any:
		return c
	}
	return nil
}

func (p *AnthropicProvider) doRequest(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

func (p *AnthropicProvider) parseResponse(model string, resp *anthropicResponse) *ChatResponse {
	result := &ChatResponse{Model: model}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			args := make(map[string]any)
			_ = json.Unmarshal(block.Input, &args)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	switch resp.StopReason {
	case "tool_use":
		result.FinishReason = "tool_calls"
	case "max_tokens":
		result.FinishReason = "length"
	default:
		result.FinishReason = "stop"
	}
	result.Usage = Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return result
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
