package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIProvider speaks chat-completions. It serves OpenAI itself and every
// compatible endpoint (Groq, OpenRouter, DeepSeek, local Ollama).
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
}

// NewOpenAICompatible creates a provider for any chat-completions endpoint.
// An empty apiBase uses the public OpenAI endpoint; Ollama defaults to the
// local daemon.
func NewOpenAICompatible(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		if name == "ollama" {
			apiBase = "http://localhost:11434/v1"
		} else {
			apiBase = "https://api.openai.com/v1"
		}
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: CompletionTimeout},
	}
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) Family() string       { return FamilyOpenAI }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	// Chat-completions threads pass through unchanged; the system prompt
	// rides as the leading system message.
	msgs := make([]map[string]any, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, map[string]any{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, p.wireMessage(m))
	}

	body := map[string]any{
		"model":    model,
		"messages": msgs,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.InputSchema,
				},
			})
		}
		body["tools"] = tools
		body["tool_choice"] = "auto"
	}

	respBody, err := p.doRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var resp openAIResponse
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	return p.parseResponse(model, &resp), nil
}

func (p *OpenAIProvider) wireMessage(m Message) map[string]any {
	msg := map[string]any{"role": m.Role}

	if m.Role == "user" && len(m.Images) > 0 {
		var parts []map[string]any
		for _, img := range m.Images {
			parts = append(parts, map[string]any{
				"type": "image_url",
				"image_url": map[string]any{
					"url": fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data),
				},
			})
		}
		if m.Content != "" {
			parts = append(parts, map[string]any{"type": "text", "text": m.Content})
		}
		msg["content"] = parts
	} else if m.Content != "" || len(m.ToolCalls) == 0 {
		msg["content"] = m.Content
	}

	if len(m.ToolCalls) > 0 {
		toolCalls := make([]map[string]any, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Arguments)
			toolCalls[i] = map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": string(argsJSON),
				},
			}
		}
		msg["tool_calls"] = toolCalls
	}
	if m.ToolCallID != "" {
		msg["tool_call_id"] = m.ToolCallID
	}
	return msg
}

// Verify probes the models listing; Ollama exposes its tag list instead.
// 401 is fatal, any other status verifies clean.
func (p *OpenAIProvider) Verify(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	var err error
	if p.name == "ollama" {
		base := strings.TrimSuffix(p.apiBase, "/v1")
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/tags", nil)
		if reqErr != nil {
			return reqErr
		}
		resp, doErr := p.client.Do(req)
		if doErr != nil {
			return fmt.Errorf("%s: probe failed: %w", p.name, doErr)
		}
		resp.Body.Close()
		return nil
	}

	respBody, err := p.doRequest(ctx, http.MethodGet, "/models", nil)
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

// Embed requests embeddings; used by the vector index.
func (p *OpenAIProvider) Embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	body := map[string]any{
		"model": model,
		"input": texts,
	}
	respBody, err := p.doRequest(ctx, http.MethodPost, "/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var resp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%s: decode embeddings: %w", p.name, err)
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

func (p *OpenAIProvider) doRequest(ctx context.Context, method, path string, body any) (io.ReadCloser, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.apiBase+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

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

func (p *OpenAIProvider) parseResponse(model string, resp *openAIResponse) *ChatResponse {
	result := &ChatResponse{FinishReason: "stop", Model: model}

	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		result.Content = msg.Content
		result.FinishReason = resp.Choices[0].FinishReason
		for _, tc := range msg.ToolCalls {
			args := make(map[string]any)
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      strings.TrimSpace(tc.Function.Name),
				Arguments: args,
			})
		}
		if len(result.ToolCalls) > 0 {
			result.FinishReason = "tool_calls"
		}
	}
	if resp.Usage != nil {
		result.Usage = Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return result
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
