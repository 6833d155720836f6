package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the domo runtime.
type Config struct {
	Agents        AgentsConfig        `json:"agents"`
	Models        ModelsConfig        `json:"models"`
	Memory        MemoryConfig        `json:"memory"`
	Channels      ChannelsConfig      `json:"channels"`
	Dashboard     DashboardConfig     `json:"dashboard"`
	Tools         ToolsConfig         `json:"tools"`
	Skills        SkillsConfig        `json:"skills,omitempty"`
	Security      SecurityConfig      `json:"security,omitempty"`
	Heartbeat     HeartbeatConfig     `json:"heartbeat,omitempty"`
	Storage       StorageConfig       `json:"storage,omitempty"`
	Voice         VoiceConfig         `json:"voice,omitempty"`
	Observability ObservabilityConfig `json:"observability,omitempty"`

	// Dir is the resolved config directory (default ~/.domo). Never persisted.
	Dir string `json:"-"`

	mu sync.RWMutex
}

// AgentsConfig contains agent defaults and per-agent overrides.
type AgentsConfig struct {
	Defaults AgentDefaults        `json:"defaults"`
	List     map[string]AgentSpec `json:"list,omitempty"`
}

// AgentDefaults are default settings for all agents.
type AgentDefaults struct {
	Workspace           string  `json:"workspace"`
	RestrictToWorkspace bool    `json:"restrict_to_workspace"`
	MaxTokens           int     `json:"max_tokens"`
	Temperature         float64 `json:"temperature"`
	MaxToolIterations   int     `json:"max_tool_iterations"` // executor cycle bound (default 10)
	ContextCeilingChars int     `json:"context_ceiling_chars,omitempty"`
	HistoryLimit        int     `json:"history_limit,omitempty"`           // default 20; 8 when knowledge context present
	HistoryLimitWithCtx int     `json:"history_limit_with_ctx,omitempty"`
}

// AgentSpec is the per-agent configuration override.
// All fields optional; zero values mean "inherit from defaults".
type AgentSpec struct {
	DisplayName string   `json:"displayName,omitempty"`
	Soul        string   `json:"soul,omitempty"`   // path to the soul document (default souls/<id>.md)
	Skills      []string `json:"skills,omitempty"` // skill file names this agent may invoke (nil = all)
	Workspace   string   `json:"workspace,omitempty"`
	Default     bool     `json:"default,omitempty"`
}

// ModelsConfig selects the primary and fast models and the routing tables.
type ModelsConfig struct {
	Primary ModelConfig   `json:"primary"`
	Fast    ModelConfig   `json:"fast,omitempty"`
	Routing RoutingConfig `json:"routing,omitempty"`
}

// ModelConfig names one remote model endpoint.
type ModelConfig struct {
	Provider string `json:"provider"`           // "anthropic", "openai", "openrouter", "groq", "ollama", ...
	Model    string `json:"model"`
	APIKey   string `json:"api_key,omitempty"`  // or {{secrets.KEY}} template
	APIBase  string `json:"api_base,omitempty"` // custom endpoint URL
}

// Configured reports whether this model slot points at a real endpoint.
func (m ModelConfig) Configured() bool {
	return m.Provider != "" && m.Model != ""
}

// RoutingConfig enumerates the tier tables consulted by the router.
type RoutingConfig struct {
	// Greetings maps canonical lowercased text to a canned reflex reply.
	Greetings map[string]string `json:"greetings,omitempty"`
	// SimplePatterns route to the fast model when matched.
	SimplePatterns []string `json:"simple_patterns,omitempty"`
	// ComplexPatterns route to the primary model with extended context.
	ComplexPatterns []string `json:"complex_patterns,omitempty"`
}

// MemoryConfig configures the memory stack.
type MemoryConfig struct {
	Cognee    CogneeConfig    `json:"cognee,omitempty"`
	SQLite    SQLiteConfig    `json:"sqlite,omitempty"`
	Embedding EmbeddingConfig `json:"embedding,omitempty"`
}

// CogneeConfig configures the optional remote graph service.
type CogneeConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	URL      string `json:"url,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Email    string `json:"email,omitempty"`    // form login credentials
	Password string `json:"password,omitempty"` // or {{secrets.KEY}} template
	Dataset  string `json:"dataset,omitempty"`  // default "main"
}

// SQLiteConfig locates the shared conversation/knowledge/graph database.
type SQLiteConfig struct {
	Path string `json:"path,omitempty"` // default <configDir>/domo.db
}

// EmbeddingConfig selects the embedding provider for the vector index.
type EmbeddingConfig struct {
	Provider string `json:"provider,omitempty"` // "openai", "ollama", "" (none: TF-IDF only)
	Model    string `json:"model,omitempty"`    // default "text-embedding-3-small"
	APIBase  string `json:"api_base,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// DashboardConfig controls the embedded HTTP/WebSocket dashboard server.
type DashboardConfig struct {
	Enabled        bool            `json:"enabled"`
	Host           string          `json:"host,omitempty"`            // default "127.0.0.1"
	Port           int             `json:"port,omitempty"`            // default 3333
	Token          string          `json:"token,omitempty"`           // bearer token; generated at startup when empty
	AllowedOrigins []string        `json:"allowed_origins,omitempty"` // WebSocket origin whitelist (empty = same-host only)
	RateLimitRPM   int             `json:"rate_limit_rpm,omitempty"`  // per-IP requests/minute on /api (default 30, health exempt)
	Tailscale      TailscaleConfig `json:"tailscale,omitempty"`
}

// TailscaleConfig configures the optional tsnet listener.
// Auth key from env only (never persisted).
type TailscaleConfig struct {
	Enabled   bool   `json:"enabled,omitempty"`
	Hostname  string `json:"hostname,omitempty"`  // tailnet machine name (default "domo")
	StateDir  string `json:"state_dir,omitempty"` // persistent state directory (default <configDir>/tsnet)
	AuthKey   string `json:"-"`                   // from env DOMO_TSNET_AUTH_KEY only
	Ephemeral bool   `json:"ephemeral,omitempty"` // remove node on exit
}

// SkillsConfig configures the skill document store.
type SkillsConfig struct {
	Dir string `json:"dir,omitempty"` // default <configDir>/skills
}

// SecurityConfig locates the constitution and tunes the approval broker.
type SecurityConfig struct {
	ConstitutionPath   string `json:"constitution_path,omitempty"`    // default <configDir>/VALUES.md
	ApprovalTimeoutMin int    `json:"approval_timeout_min,omitempty"` // auto-deny after N minutes (default 10)
}

// HeartbeatConfig drives the proactive schedulers.
type HeartbeatConfig struct {
	Enabled        bool                 `json:"enabled,omitempty"`
	Tasks          []HeartbeatTask      `json:"tasks,omitempty"`
	Graph          GraphHeartbeatConfig `json:"graph,omitempty"`
	AutoLearn      AutoLearnConfig      `json:"auto_learn,omitempty"`
	DailyCostCap   float64              `json:"daily_cost_cap,omitempty"` // GBP across all three schedulers (default 1.0)
	DefaultChannel string               `json:"default_channel,omitempty"`
	DefaultTo      string               `json:"default_to,omitempty"`
}

// HeartbeatTask is one fixed-interval prompt.
type HeartbeatTask struct {
	Every  string `json:"every"` // "every-minute", "5-minutes", "hour", "day", or a cron expression
	Agent  string `json:"agent,omitempty"`
	Prompt string `json:"prompt"`
}

// GraphHeartbeatConfig drives graph-discovery summaries.
type GraphHeartbeatConfig struct {
	Enabled    bool     `json:"enabled,omitempty"`
	EveryHours int      `json:"every_hours,omitempty"` // default 6
	Queries    []string `json:"queries,omitempty"`
}

// AutoLearnConfig gates the proactive question scheduler.
type AutoLearnConfig struct {
	Enabled          bool `json:"enabled,omitempty"`
	MaxPerDay        int  `json:"max_per_day,omitempty"`        // default 3
	MinIntervalHours int  `json:"min_interval_hours,omitempty"` // default 4
	QuietStart       int  `json:"quiet_start,omitempty"`        // hour 0-23, inclusive (default 22)
	QuietEnd         int  `json:"quiet_end,omitempty"`          // hour 0-23, exclusive (default 8)
}

// StorageConfig selects the persistence backend.
// PostgresDSN is never read from config.json (secret); only from env DOMO_POSTGRES_DSN.
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" (default), "postgres", "json"
	PostgresDSN string `json:"-"`
}

// VoiceConfig configures speech-to-text and text-to-speech for voice-capable channels.
type VoiceConfig struct {
	STT []STTProviderConfig `json:"stt,omitempty"` // tried in order; first configured wins
	TTS TTSConfig           `json:"tts,omitempty"`
}

// STTProviderConfig is one OpenAI-compatible transcription endpoint.
type STTProviderConfig struct {
	Provider string `json:"provider"`           // "groq", "openai", ...
	APIKey   string `json:"api_key,omitempty"`
	APIBase  string `json:"api_base,omitempty"`
	Model    string `json:"model,omitempty"` // default "whisper-large-v3" (groq), "whisper-1" (openai)
}

// TTSConfig is an OpenAI-compatible speech synthesis endpoint.
type TTSConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	APIBase string `json:"api_base,omitempty"`
	Model   string `json:"model,omitempty"` // default "gpt-4o-mini-tts"
	Voice   string `json:"voice,omitempty"` // default "alloy"
}

// ObservabilityConfig configures optional telemetry export.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing,omitempty"`
}

// TracingConfig configures OpenTelemetry OTLP span export.
type TracingConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS (local dev)
	ServiceName string            `json:"service_name,omitempty"` // default "domo"
	Headers     map[string]string `json:"headers,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agents = src.Agents
	c.Models = src.Models
	c.Memory = src.Memory
	c.Channels = src.Channels
	c.Dashboard = src.Dashboard
	c.Tools = src.Tools
	c.Skills = src.Skills
	c.Security = src.Security
	c.Heartbeat = src.Heartbeat
	c.Storage = src.Storage
	c.Voice = src.Voice
	c.Observability = src.Observability
	c.Dir = src.Dir
}
