// Package cmd holds the domo command tree.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthside/domo/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/hearthside/domo/cmd.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "domo",
	Short: "domo: a self-hosted personal agent runtime",
	Long: "domo runs a personal agent on your own hardware: messages come in over\n" +
		"Telegram, Discord, a dashboard, or the terminal; replies go through a\n" +
		"cost-aware model router with persistent memory and audited tools.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		runGateway()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.domo/config.json or $DOMO_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("domo %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("DOMO_CONFIG"); v != "" {
		return v
	}
	return config.DefaultConfigPath()
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
