package config

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	CLI      CLIConfig      `json:"cli,omitempty"`
}

type TelegramConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"token"`
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	DMPolicy       string              `json:"dm_policy,omitempty"`       // "pairing" (default), "allowlist", "open", "disabled"
	GroupPolicy    string              `json:"group_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	RequireMention *bool               `json:"require_mention,omitempty"` // require @bot mention in groups (default true)
	MediaMaxBytes  int64               `json:"media_max_bytes,omitempty"` // max media download size (default 20MB)
	VoiceReplies   bool                `json:"voice_replies,omitempty"`   // synthesize voice replies to voice notes
}

type DiscordConfig struct {
	Enabled        bool                `json:"enabled"`
	Token          string              `json:"token"`
	AllowFrom      FlexibleStringSlice `json:"allow_from"`
	DMPolicy       string              `json:"dm_policy,omitempty"`       // "pairing" (default), "allowlist", "open", "disabled"
	GroupPolicy    string              `json:"group_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	RequireMention *bool               `json:"require_mention,omitempty"` // require @bot mention in guild channels (default true)
}

type CLIConfig struct {
	Enabled bool `json:"enabled,omitempty"` // line-oriented REPL on stdin/stdout
}

// ToolsConfig controls tool availability, the web stack, and remote servers.
type ToolsConfig struct {
	Deny       []string                    `json:"deny,omitempty"` // tool names withheld from the registry
	Web        WebToolsConfig              `json:"web"`
	Browser    BrowserToolConfig           `json:"browser"`
	Shell      ShellToolConfig             `json:"shell,omitempty"`
	HTTP       []HTTPToolServerConfig      `json:"http,omitempty"`        // declarative direct HTTP tools
	MCPServers map[string]*MCPServerConfig `json:"mcp_servers,omitempty"` // remote tool servers
}

// MCPServerConfig configures a single remote tool server connection.
type MCPServerConfig struct {
	Transport  string            `json:"transport"`             // "stdio" or "sse"
	Command    string            `json:"command,omitempty"`     // stdio: command to spawn
	Args       []string          `json:"args,omitempty"`        // stdio: command arguments
	Env        map[string]string `json:"env,omitempty"`         // stdio: extra environment variables
	URL        string            `json:"url,omitempty"`         // sse: server URL
	Headers    map[string]string `json:"headers,omitempty"`     // sse: extra HTTP headers ({{secrets.KEY}} resolved)
	Enabled    *bool             `json:"enabled,omitempty"`     // default true
	TimeoutSec int               `json:"timeout_sec,omitempty"` // per-tool-call timeout (default 30)
}

// IsEnabled returns whether this remote server is enabled (default true).
func (c *MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// HTTPToolServerConfig declares a set of tools served by one HTTP base URL.
type HTTPToolServerConfig struct {
	Name    string            `json:"name"`
	BaseURL string            `json:"base_url"`
	Headers map[string]string `json:"headers,omitempty"` // {{secrets.KEY}} templates resolved at call time
	Tools   []HTTPToolConfig  `json:"tools"`
}

// HTTPToolConfig declares one callable HTTP endpoint.
type HTTPToolConfig struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Method      string                 `json:"method,omitempty"` // default "POST"
	Path        string                 `json:"path"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// ShellToolConfig tunes the shell_exec tool.
type ShellToolConfig struct {
	DenyExtra  []string `json:"deny_extra,omitempty"`  // extra deny regexes on top of the built-in screen
	TimeoutSec int      `json:"timeout_sec,omitempty"` // default 30
}

// BrowserToolConfig controls the rendered-fetch browser tool.
type BrowserToolConfig struct {
	Enabled  bool `json:"enabled"`            // default false (requires Chrome)
	Headless bool `json:"headless,omitempty"` // run Chrome headless (default true)
}

type WebToolsConfig struct {
	Brave      BraveConfig      `json:"brave"`
	DuckDuckGo DuckDuckGoConfig `json:"duckduckgo"`
	FetchMaxKB int              `json:"fetch_max_kb,omitempty"` // web_fetch body cap (default 512)
}

type BraveConfig struct {
	Enabled    bool   `json:"enabled"`
	APIKey     string `json:"api_key"`
	MaxResults int    `json:"max_results"`
}

type DuckDuckGoConfig struct {
	Enabled    bool `json:"enabled"`
	MaxResults int  `json:"max_results"`
}
