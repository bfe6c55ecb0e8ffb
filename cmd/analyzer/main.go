package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sgerhart/aegisflux/analyzer/internal/config"
	"github.com/sgerhart/aegisflux/analyzer/internal/logging"
	"github.com/sgerhart/aegisflux/analyzer/internal/model"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	rulesPath string
	platform  string
	logLevel  string
}

var rootCmd = &cobra.Command{
	Use:   "analyzer",
	Short: "Classify attack surface changes by severity",
	Long: "analyzer evaluates change records (differences between two snapshots of\n" +
		"monitored system state) against a declarative rule set and assigns each\n" +
		"record a severity.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	cfg := config.Load()

	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.rulesPath, "rules", cfg.RulesPath, "Rule file or directory (empty for the built-in rules)")
	f.StringVar(&rootFlags.platform, "platform", string(cfg.Platform), "Platform used to filter rules (WINDOWS, LINUX, MACOS)")
	f.StringVar(&rootFlags.logLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.Version = version
}

// newLogger builds the logger for a subcommand. CLI commands log to stderr so
// stdout carries only results.
func newLogger(component string) *slog.Logger {
	return logging.New(os.Stderr, rootFlags.logLevel, component)
}

func selectedPlatform() (model.Platform, error) {
	platform, err := model.ParsePlatform(rootFlags.platform)
	if err != nil {
		return model.PlatformUnknown, fmt.Errorf("invalid --platform: %w", err)
	}
	return platform, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
