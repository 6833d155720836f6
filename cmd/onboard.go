package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/hearthside/domo/internal/bootstrap"
	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/secrets"
)

// providerPriority orders env var auto-detection. First match wins.
var providerPriority = []string{"openrouter", "anthropic", "openai", "groq", "deepseek"}

// modelHints maps each provider to a sensible default model.
var modelHints = map[string]string{
	"anthropic":  "claude-sonnet-4-5",
	"openai":     "gpt-4o",
	"openrouter": "anthropic/claude-sonnet-4-5",
	"groq":       "llama-3.3-70b-versatile",
	"deepseek":   "deepseek-chat",
	"ollama":     "llama3.1",
}

func onboardCmd() *cobra.Command {
	var auto bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Set up domo: provider keys, models, and channels",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runOnboard(auto); err != nil {
				fmt.Fprintf(os.Stderr, "onboard failed: %v\n", err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "non-interactive setup from DOMO_*_API_KEY env vars")
	return cmd
}

func runOnboard(auto bool) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	sec, err := secrets.Open(cfg.Dir)
	if err != nil {
		return err
	}

	if auto || canAutoOnboard() {
		if err := autoOnboard(cfg, sec); err != nil {
			if auto {
				return err
			}
			// fall through to the interactive path
		} else {
			return finishOnboard(cfgPath, cfg)
		}
	}
	if err := interactiveOnboard(cfg, sec); err != nil {
		return err
	}
	return finishOnboard(cfgPath, cfg)
}

// canAutoOnboard reports whether any provider key is present in the
// environment, which signals a scripted setup (Docker, CI).
func canAutoOnboard() bool {
	for _, name := range providerPriority {
		if os.Getenv(envKeyFor(name)) != "" {
			return true
		}
	}
	return false
}

func envKeyFor(provider string) string {
	return "DOMO_" + strings.ToUpper(provider) + "_API_KEY"
}

// autoOnboard configures the primary (and, when a groq key is around, the
// fast) model slot from environment variables without prompting.
func autoOnboard(cfg *config.Config, sec *secrets.Store) error {
	provider := ""
	for _, name := range providerPriority {
		if os.Getenv(envKeyFor(name)) != "" {
			provider = name
			break
		}
	}
	if provider == "" {
		return fmt.Errorf("no provider API key found in environment (set one of DOMO_{OPENROUTER,ANTHROPIC,OPENAI,GROQ,DEEPSEEK}_API_KEY)")
	}

	if err := storeProviderKey(sec, cfg, slotPrimary, provider, os.Getenv(envKeyFor(provider))); err != nil {
		return err
	}
	fmt.Printf("  Primary: %s / %s\n", provider, cfg.Models.Primary.Model)

	if provider != "groq" {
		if groqKey := os.Getenv(envKeyFor("groq")); groqKey != "" {
			if err := storeProviderKey(sec, cfg, slotFast, "groq", groqKey); err != nil {
				return err
			}
			fmt.Printf("  Fast:    groq / %s\n", cfg.Models.Fast.Model)
		}
	}

	if tok := os.Getenv("DOMO_TELEGRAM_TOKEN"); tok != "" {
		if err := sec.Set("TELEGRAM_TOKEN", tok); err != nil {
			return err
		}
		cfg.Channels.Telegram.Enabled = true
		cfg.Channels.Telegram.Token = "{{secrets.TELEGRAM_TOKEN}}"
		fmt.Println("  Channel: telegram enabled")
	}
	if tok := os.Getenv("DOMO_DISCORD_TOKEN"); tok != "" {
		if err := sec.Set("DISCORD_TOKEN", tok); err != nil {
			return err
		}
		cfg.Channels.Discord.Enabled = true
		cfg.Channels.Discord.Token = "{{secrets.DISCORD_TOKEN}}"
		fmt.Println("  Channel: discord enabled")
	}
	return nil
}

type modelSlot int

const (
	slotPrimary modelSlot = iota
	slotFast
)

// storeProviderKey puts the raw key in the encrypted store and leaves only a
// secret reference in the config.
func storeProviderKey(sec *secrets.Store, cfg *config.Config, slot modelSlot, provider, key string) error {
	name := strings.ToUpper(provider) + "_API_KEY"
	if err := sec.Set(name, key); err != nil {
		return err
	}
	mc := config.ModelConfig{
		Provider: provider,
		Model:    modelHints[provider],
		APIKey:   "{{secrets." + name + "}}",
	}
	if slot == slotPrimary {
		cfg.Models.Primary = mc
	} else {
		cfg.Models.Fast = mc
	}
	return nil
}

func interactiveOnboard(cfg *config.Config, sec *secrets.Store) error {
	provider := "anthropic"
	apiKey := ""
	model := ""
	enableTelegram := false
	telegramToken := ""
	enableDashboard := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Primary model provider").
				Options(huh.NewOptions("anthropic", "openai", "openrouter", "groq", "deepseek", "ollama")...).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("API key").
				Description("Stored encrypted in ~/.domo/secrets.json (ollama needs none)").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Model").
				Description("Leave empty for the provider default").
				Value(&model),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Connect Telegram?").
				Value(&enableTelegram),
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather; leave empty to skip").
				EchoMode(huh.EchoModePassword).
				Value(&telegramToken),
			huh.NewConfirm().
				Title("Enable the web dashboard?").
				Value(&enableDashboard),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if apiKey != "" {
		if err := storeProviderKey(sec, cfg, slotPrimary, provider, apiKey); err != nil {
			return err
		}
	} else {
		cfg.Models.Primary = config.ModelConfig{Provider: provider, Model: modelHints[provider]}
	}
	if model != "" {
		cfg.Models.Primary.Model = model
	}

	if enableTelegram && telegramToken != "" {
		if err := sec.Set("TELEGRAM_TOKEN", telegramToken); err != nil {
			return err
		}
		cfg.Channels.Telegram.Enabled = true
		cfg.Channels.Telegram.Token = "{{secrets.TELEGRAM_TOKEN}}"
	}
	cfg.Dashboard.Enabled = enableDashboard
	return nil
}

// finishOnboard seeds the starter documents, mints a dashboard token when
// none exists, and persists the config.
func finishOnboard(cfgPath string, cfg *config.Config) error {
	if cfg.Dashboard.Enabled && cfg.Dashboard.Token == "" {
		cfg.Dashboard.Token = newToken(16)
		fmt.Printf("  Dashboard token: %s\n", cfg.Dashboard.Token)
	}
	created, err := bootstrap.Seed(cfg.Dir)
	if err != nil {
		return err
	}
	for _, rel := range created {
		fmt.Printf("  Created %s\n", rel)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Printf("  Config saved to %s\n", cfgPath)
	fmt.Println("\nDone. Start the runtime with: domo gateway")
	return nil
}

func newToken(bytes int) string {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
