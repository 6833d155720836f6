package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadMissingFileReturnsDefaults verifies a missing config file yields
// defaults rather than an error.
func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agents.Defaults.MaxToolIterations != 10 {
		t.Errorf("MaxToolIterations = %d, want 10", cfg.Agents.Defaults.MaxToolIterations)
	}
	if cfg.Dashboard.RateLimitRPM != 30 {
		t.Errorf("RateLimitRPM = %d, want 30", cfg.Dashboard.RateLimitRPM)
	}
	if got := cfg.Models.Routing.Greetings["thanks"]; got != "No problem." {
		t.Errorf("greeting for thanks = %q", got)
	}
}

// TestLoadJSON5 verifies the parser accepts JSON5 syntax (comments, trailing
// commas) and merges over defaults.
func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
  // primary model
  models: {
    primary: { provider: "anthropic", model: "claude-sonnet-4-5", },
  },
  channels: {
    telegram: { enabled: true, token: "123:abc", allow_from: [42, "alice"], },
  },
}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Models.Primary.Provider != "anthropic" {
		t.Errorf("primary provider = %q", cfg.Models.Primary.Provider)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("telegram should be enabled")
	}
	want := []string{"42", "alice"}
	if len(cfg.Channels.Telegram.AllowFrom) != 2 {
		t.Fatalf("allow_from = %v", cfg.Channels.Telegram.AllowFrom)
	}
	for i, w := range want {
		if cfg.Channels.Telegram.AllowFrom[i] != w {
			t.Errorf("allow_from[%d] = %q, want %q", i, cfg.Channels.Telegram.AllowFrom[i], w)
		}
	}
	// Defaults survive partial overlay.
	if cfg.Heartbeat.AutoLearn.MaxPerDay != 3 {
		t.Errorf("AutoLearn.MaxPerDay = %d, want 3", cfg.Heartbeat.AutoLearn.MaxPerDay)
	}
}

// TestEnvOverrides verifies env vars beat file values and auto-enable channels.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOMO_TELEGRAM_TOKEN", "999:env")
	t.Setenv("DOMO_PORT", "4444")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channels.Telegram.Token != "999:env" {
		t.Errorf("token = %q", cfg.Channels.Telegram.Token)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("telegram should auto-enable when token set via env")
	}
	if cfg.Dashboard.Port != 4444 {
		t.Errorf("port = %d", cfg.Dashboard.Port)
	}
}

// TestProviderKeyEnvFillsMatchingSlot verifies DOMO_<PROVIDER>_API_KEY lands
// on the slot naming that provider.
func TestProviderKeyEnvFillsMatchingSlot(t *testing.T) {
	t.Setenv("DOMO_GROQ_API_KEY", "gsk_test")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{models: {fast: {provider: "groq", model: "llama-3.3-70b"}}}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Models.Fast.APIKey != "gsk_test" {
		t.Errorf("fast api key = %q", cfg.Models.Fast.APIKey)
	}
}

// TestMaskedCopy verifies secrets are masked and originals untouched.
func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.Models.Primary.APIKey = "sk-real"
	cfg.Dashboard.Token = "deadbeef"

	cp := cfg.MaskedCopy()
	if cp.Models.Primary.APIKey != "***" {
		t.Errorf("masked key = %q", cp.Models.Primary.APIKey)
	}
	if cp.Dashboard.Token != "***" {
		t.Errorf("masked token = %q", cp.Dashboard.Token)
	}
	if cfg.Models.Primary.APIKey != "sk-real" {
		t.Error("original config mutated by MaskedCopy")
	}
}

// TestPathHelpers verifies file locations resolve under the config dir.
func TestPathHelpers(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/tmp/domo-test"

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"sqlite", cfg.SQLitePath(), "/tmp/domo-test/domo.db"},
		{"secrets", cfg.SecretsPath(), "/tmp/domo-test/secrets.enc"},
		{"constitution", cfg.ConstitutionFile(), "/tmp/domo-test/VALUES.md"},
		{"vectors", cfg.VectorsPath(), "/tmp/domo-test/vectors.json"},
		{"delivery", cfg.DeliveryJSONPath(), "/tmp/domo-test/delivery-queue.json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}
