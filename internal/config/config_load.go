package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// DefaultAgentID is the agent used when no binding or mention selects another.
const DefaultAgentID = "domo"

// NormalizeAgentID lowercases and trims an agent identifier.
func NormalizeAgentID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:           "~/.domo/workspace",
				RestrictToWorkspace: true,
				MaxTokens:           4096,
				Temperature:         0.7,
				MaxToolIterations:   10,
				ContextCeilingChars: 100000,
				HistoryLimit:        20,
				HistoryLimitWithCtx: 8,
			},
			List: map[string]AgentSpec{
				DefaultAgentID: {DisplayName: "Domo", Default: true},
			},
		},
		Models: ModelsConfig{
			Routing: RoutingConfig{
				Greetings:      DefaultGreetings(),
				SimplePatterns: DefaultSimplePatterns(),
				ComplexPatterns: DefaultComplexPatterns(),
			},
		},
		Dashboard: DashboardConfig{
			Enabled:      true,
			Host:         "127.0.0.1",
			Port:         3333,
			RateLimitRPM: 30,
		},
		Tools: ToolsConfig{
			Web: WebToolsConfig{
				DuckDuckGo: DuckDuckGoConfig{Enabled: true, MaxResults: 5},
				FetchMaxKB: 512,
			},
			Browser: BrowserToolConfig{Headless: true},
		},
		Security: SecurityConfig{
			ApprovalTimeoutMin: 10,
		},
		Heartbeat: HeartbeatConfig{
			Graph: GraphHeartbeatConfig{EveryHours: 6},
			AutoLearn: AutoLearnConfig{
				MaxPerDay:        3,
				MinIntervalHours: 4,
				QuietStart:       22,
				QuietEnd:         8,
			},
			DailyCostCap: 1.0,
		},
		Storage: StorageConfig{Driver: "sqlite"},
	}
}

// DefaultGreetings is the reflex tier's canned-reply table.
// Keys are canonical lowercased text with trailing punctuation stripped.
func DefaultGreetings() map[string]string {
	return map[string]string{
		"hi":           "Hey! What can I do for you?",
		"hello":        "Hello! What can I do for you?",
		"hey":          "Hey! What's up?",
		"yo":           "Yo. What do you need?",
		"thanks":       "No problem.",
		"thank you":    "You're welcome.",
		"ty":           "Anytime.",
		"cheers":       "Cheers!",
		"ok":           "Got it.",
		"okay":         "Got it.",
		"cool":         "Cool.",
		"good morning": "Good morning! Ready when you are.",
		"good night":   "Good night!",
		"bye":          "See you later!",
		"goodbye":      "Goodbye!",
	}
}

// DefaultSimplePatterns route to the fast model when any appears in the text.
func DefaultSimplePatterns() []string {
	return []string{
		"what time", "what's the time", "current time",
		"what date", "what day is", "today's date",
		"remind me", "my schedule", "on my calendar",
		"set a timer", "weather",
	}
}

// DefaultComplexPatterns route to the primary model with extended context.
func DefaultComplexPatterns() []string {
	return []string{
		"analyse", "analyze", "strategy", "strategic",
		"compare", "comparison", "evaluate", "trade-off", "tradeoff",
		"architect", "design a", "plan for", "research",
		"in depth", "detailed report", "step by step",
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.Dir = filepath.Dir(ExpandHome(path))

	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// DefaultConfigPath returns the standard config file location,
// honouring the DOMO_HOME override.
func DefaultConfigPath() string {
	if v := os.Getenv("DOMO_HOME"); v != "" {
		return filepath.Join(v, "config.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".domo", "config.json")
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Model endpoints. Slot-specific envs win; provider-specific envs fill
	// whichever slot names that provider and has no key yet.
	envStr("DOMO_PRIMARY_API_KEY", &c.Models.Primary.APIKey)
	envStr("DOMO_FAST_API_KEY", &c.Models.Fast.APIKey)
	fillProviderKey := func(m *ModelConfig) {
		if m.Provider == "" || m.APIKey != "" {
			return
		}
		env := "DOMO_" + strings.ToUpper(m.Provider) + "_API_KEY"
		if v := os.Getenv(env); v != "" {
			m.APIKey = v
		}
	}
	fillProviderKey(&c.Models.Primary)
	fillProviderKey(&c.Models.Fast)

	envStr("DOMO_DASHBOARD_TOKEN", &c.Dashboard.Token)
	envStr("DOMO_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("DOMO_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("DOMO_BRAVE_API_KEY", &c.Tools.Web.Brave.APIKey)
	envStr("DOMO_COGNEE_API_KEY", &c.Memory.Cognee.APIKey)
	envStr("DOMO_COGNEE_URL", &c.Memory.Cognee.URL)
	envStr("DOMO_EMBEDDING_API_KEY", &c.Memory.Embedding.APIKey)

	// Auto-enable channels if credentials are provided via env.
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	if c.Memory.Cognee.URL != "" {
		c.Memory.Cognee.Enabled = true
	}

	// Dashboard host/port.
	envStr("DOMO_HOST", &c.Dashboard.Host)
	if v := os.Getenv("DOMO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Dashboard.Port = port
		}
	}

	// Storage.
	envStr("DOMO_POSTGRES_DSN", &c.Storage.PostgresDSN)
	envStr("DOMO_STORAGE_DRIVER", &c.Storage.Driver)

	// Tracing.
	envStr("DOMO_TRACING_ENDPOINT", &c.Observability.Tracing.Endpoint)
	envStr("DOMO_TRACING_PROTOCOL", &c.Observability.Tracing.Protocol)
	if v := os.Getenv("DOMO_TRACING_ENABLED"); v != "" {
		c.Observability.Tracing.Enabled = v == "true" || v == "1"
	}

	// Tailscale (tsnet).
	envStr("DOMO_TSNET_HOSTNAME", &c.Dashboard.Tailscale.Hostname)
	envStr("DOMO_TSNET_AUTH_KEY", &c.Dashboard.Tailscale.AuthKey)
	envStr("DOMO_TSNET_DIR", &c.Dashboard.Tailscale.StateDir)
	if c.Dashboard.Tailscale.AuthKey != "" {
		c.Dashboard.Tailscale.Enabled = true
	}

	// Workspace.
	envStr("DOMO_WORKSPACE", &c.Agents.Defaults.Workspace)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
// Call after modifying config to restore runtime secrets from env vars.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config for change detection.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// WorkspacePath returns the expanded workspace path.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Agents.Defaults.Workspace)
}

// File locations under the config directory. Explicit config values win.

func (c *Config) SQLitePath() string {
	if c.Memory.SQLite.Path != "" {
		return ExpandHome(c.Memory.SQLite.Path)
	}
	return filepath.Join(c.Dir, "domo.db")
}

func (c *Config) SecretsPath() string      { return filepath.Join(c.Dir, "secrets.enc") }
func (c *Config) MemoryJSONPath() string   { return filepath.Join(c.Dir, "memory.json") }
func (c *Config) VectorsPath() string      { return filepath.Join(c.Dir, "vectors.json") }
func (c *Config) DeliveryJSONPath() string { return filepath.Join(c.Dir, "delivery-queue.json") }
func (c *Config) ApprovalsJSONPath() string { return filepath.Join(c.Dir, "approvals.json") }
func (c *Config) AuditJSONLPath() string   { return filepath.Join(c.Dir, "audit.jsonl") }
func (c *Config) SoulsDir() string         { return filepath.Join(c.Dir, "souls") }

func (c *Config) ConstitutionFile() string {
	if c.Security.ConstitutionPath != "" {
		return ExpandHome(c.Security.ConstitutionPath)
	}
	return filepath.Join(c.Dir, "VALUES.md")
}

func (c *Config) SkillsDir() string {
	if c.Skills.Dir != "" {
		return ExpandHome(c.Skills.Dir)
	}
	return filepath.Join(c.Dir, "skills")
}

func (c *Config) TailscaleStateDir() string {
	if c.Dashboard.Tailscale.StateDir != "" {
		return ExpandHome(c.Dashboard.Tailscale.StateDir)
	}
	return filepath.Join(c.Dir, "tsnet")
}

// ResolveAgent returns the effective settings for a given agent ID,
// merging defaults with per-agent overrides.
func (c *Config) ResolveAgent(agentID string) AgentDefaults {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := c.Agents.Defaults
	if spec, ok := c.Agents.List[agentID]; ok {
		if spec.Workspace != "" {
			d.Workspace = spec.Workspace
		}
	}
	return d
}

// ResolveDefaultAgentID returns the ID of the agent marked as default,
// or DefaultAgentID if none is explicitly marked.
func (c *Config) ResolveDefaultAgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, spec := range c.Agents.List {
		if spec.Default {
			return id
		}
	}
	return DefaultAgentID
}

// ResolveDisplayName returns the display name for an agent.
// Falls back to "Domo" if not configured.
func (c *Config) ResolveDisplayName(agentID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if spec, ok := c.Agents.List[agentID]; ok && spec.DisplayName != "" {
		return spec.DisplayName
	}
	return "Domo"
}

// AgentIDs returns the configured agent identifiers, default first.
func (c *Config) AgentIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.Agents.List))
	var def string
	for id, spec := range c.Agents.List {
		if spec.Default && def == "" {
			def = id
			continue
		}
		ids = append(ids, id)
	}
	if def != "" {
		ids = append([]string{def}, ids...)
	}
	if len(ids) == 0 {
		ids = []string{DefaultAgentID}
	}
	return ids
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Used by status surfaces to avoid exposing secrets to clients.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Models.Primary.APIKey)
	maskNonEmpty(&cp.Models.Fast.APIKey)
	maskNonEmpty(&cp.Dashboard.Token)
	maskNonEmpty(&cp.Channels.Telegram.Token)
	maskNonEmpty(&cp.Channels.Discord.Token)
	maskNonEmpty(&cp.Tools.Web.Brave.APIKey)
	maskNonEmpty(&cp.Memory.Cognee.APIKey)
	maskNonEmpty(&cp.Memory.Cognee.Password)
	maskNonEmpty(&cp.Memory.Embedding.APIKey)
	maskNonEmpty(&cp.Voice.TTS.APIKey)
	for i := range cp.Voice.STT {
		maskNonEmpty(&cp.Voice.STT[i].APIKey)
	}
	maskNonEmpty(&cp.Dashboard.Tailscale.AuthKey)

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
