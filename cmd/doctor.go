package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/router"
	"github.com/hearthside/domo/internal/secrets"
	"github.com/hearthside/domo/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, models, storage, and channel credentials",
		Run: func(cmd *cobra.Command, args []string) {
			if !runDoctor() {
				os.Exit(1)
			}
		},
	}
}

const doctorLabelWidth = 14

func doctorLine(label, verdict string, detail string) {
	fmt.Printf("%s %s", runewidth.FillRight(label, doctorLabelWidth), verdict)
	if detail != "" {
		fmt.Printf("  %s", detail)
	}
	fmt.Println()
}

// maskKey shows enough of a credential to recognise it without leaking it.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func runDoctor() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	healthy := true

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		doctorLine("config", "FAIL", err.Error())
		return false
	}
	doctorLine("config", "ok", cfgPath)

	sec, err := secrets.Open(cfg.Dir)
	if err != nil {
		doctorLine("secrets", "FAIL", err.Error())
		healthy = false
	} else {
		doctorLine("secrets", "ok", fmt.Sprintf("%d stored", len(sec.List())))
	}
	resolve := func(template string) string {
		if sec == nil {
			return template
		}
		out, _ := sec.Resolve(template)
		return out
	}

	rt, err := router.New(cfg.Models, cfg.Memory.Embedding, resolve)
	if err != nil {
		doctorLine("models", "FAIL", err.Error())
		healthy = false
	} else {
		for _, report := range rt.Verify(ctx) {
			label := fmt.Sprintf("model:%s", report.Slot)
			detail := fmt.Sprintf("%s / %s", report.Provider, report.Model)
			if report.Err != nil {
				doctorLine(label, "FAIL", fmt.Sprintf("%s: %v", detail, report.Err))
				healthy = false
			} else {
				doctorLine(label, "ok", detail)
			}
		}
	}

	healthy = checkStorage(ctx, cfg) && healthy
	healthy = checkChannel("telegram", cfg.Channels.Telegram.Enabled, resolve(cfg.Channels.Telegram.Token)) && healthy
	healthy = checkChannel("discord", cfg.Channels.Discord.Enabled, resolve(cfg.Channels.Discord.Token)) && healthy

	if _, err := os.Stat(cfg.ConstitutionFile()); err != nil {
		doctorLine("constitution", "warn", "missing; all actions will be permitted (run domo onboard)")
	} else {
		doctorLine("constitution", "ok", cfg.ConstitutionFile())
	}

	if cfg.Tools.Browser.Enabled {
		checkBinary("chromium", "google-chrome", "chromium", "chromium-browser")
	}
	return healthy
}

func checkStorage(ctx context.Context, cfg *config.Config) bool {
	if cfg.Storage.Driver == "json" {
		doctorLine("storage", "ok", "json files in "+cfg.Dir)
		return true
	}
	sqlDB, driver, err := store.OpenSQL(ctx, store.OpenOptions{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.SQLitePath(),
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		doctorLine("storage", "warn", fmt.Sprintf("%v (runtime falls back to json files)", err))
		return true
	}
	defer sqlDB.Close()
	version, dirty, err := store.MigrationVersion(sqlDB, driver)
	if err != nil {
		doctorLine("storage", "FAIL", fmt.Sprintf("%s: %v", driver, err))
		return false
	}
	if dirty {
		doctorLine("storage", "FAIL", fmt.Sprintf("%s schema dirty at version %d (run domo migrate up)", driver, version))
		return false
	}
	doctorLine("storage", "ok", fmt.Sprintf("%s, schema version %d", driver, version))
	return true
}

func checkChannel(name string, enabled bool, token string) bool {
	if !enabled {
		doctorLine("chan:"+name, "off", "")
		return true
	}
	if token == "" {
		doctorLine("chan:"+name, "FAIL", "enabled but no token configured")
		return false
	}
	doctorLine("chan:"+name, "ok", "token "+maskKey(token))
	return true
}

func checkBinary(label string, candidates ...string) {
	for _, bin := range candidates {
		if path, err := exec.LookPath(bin); err == nil {
			doctorLine("bin:"+label, "ok", path)
			return
		}
	}
	doctorLine("bin:"+label, "warn", "not found in PATH; browser tool will fail")
}
