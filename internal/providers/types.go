package providers

import (
	"context"
	"fmt"
	"time"
)

// Provider family names. The executor threads tool calls differently per
// family, so every provider declares which wire format it speaks.
const (
	FamilyAnthropic = "anthropic" // system-separated, tool_use/tool_result blocks
	FamilyOpenAI    = "openai"    // chat-completions, tool_calls + tool messages
)

// Provider is one remote model endpoint.
type Provider interface {
	// Name is the configured provider identifier ("anthropic", "openai",
	// "groq", "openrouter", "ollama", ...).
	Name() string

	// Family selects the wire format: FamilyAnthropic or FamilyOpenAI.
	Family() string

	// DefaultModel is the model used when a request names none.
	DefaultModel() string

	// Chat sends messages and returns the complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Verify probes the endpoint with a lightweight request. A 401 means
	// the key is bad and the model is unusable; any other HTTP status
	// still proves the key reached the service and verifies clean.
	Verify(ctx context.Context, model string) error
}

// ChatRequest is the neutral input for a Chat call.
type ChatRequest struct {
	Messages  []Message        `json:"messages"`
	System    string           `json:"system,omitempty"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	Model     string           `json:"model,omitempty"`
	MaxTokens int              `json:"max_tokens,omitempty"`
}

// ChatResponse is the neutral result of a Chat call.
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"` // "stop", "tool_calls", "length"
	Usage        Usage      `json:"usage"`
	Model        string     `json:"model,omitempty"`
}

// ImageContent is a base64-encoded image for vision-capable models.
type ImageContent struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Message is one conversation turn in the neutral format. Providers
// translate it to their own wire shape.
type Message struct {
	Role       string         `json:"role"` // "system", "user", "assistant", "tool"
	Content    string         `json:"content"`
	Images     []ImageContent `json:"images,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"` // for role="tool"
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a tool offered to the model. Providers render it
// as {name, description, input_schema} (anthropic family) or
// {type:"function", function:{name, description, parameters}} (openai family).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Usage counts tokens for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates usage across executor iterations.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// HTTPError carries a provider's non-2xx response to the caller. Completions
// are never retried on it; the router surfaces it as-is.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// Unauthorized reports whether the error is a fatal 401 key rejection.
func Unauthorized(err error) bool {
	if he, ok := err.(*HTTPError); ok {
		return he.Status == 401
	}
	return false
}

// Embedder produces embedding vectors for the vector index. Optional; the
// index falls back to TF-IDF when no provider embeds.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Timeouts shared by every provider client.
const (
	CompletionTimeout = 30 * time.Second
	ProbeTimeout      = 10 * time.Second
)
