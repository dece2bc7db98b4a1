package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
)

var (
	// Persistent flags
	configFiles []string // Multiple --config flags supported
	envFile     string
	logLevel    string

	// Global state, set by loadConfig
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "deepstock",
	Short:         "Insider and congressional trade scanner",
	Long:          `Scans SEC Form 4 filings and congressional disclosures, scores notable trades and sends alerts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file (default ./.env when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(scanCmd, watchCmd, configCmd, versionCmd)
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error().Err(err).Msg("deepstock failed")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// loadConfig runs the startup sequence:
// 1. Load config (defaults -> file1 -> file2 -> ... -> .env -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Initialize logger
// 4. Print banner
func loadConfig(minValue float64, intervalMinutes int) error {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("deepstock.toml"); err == nil {
			configFiles = append(configFiles, "deepstock.toml")
		}
	}

	var err error
	config, err = common.Load(common.LoadOptions{Files: configFiles, EnvFile: envFile})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, minValue, intervalMinutes, logLevel)

	logger = common.InitLogger(config)

	common.PrintBanner(common.GetVersion())

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("watchlist", config.Scan.Watchlist).
		Str("ai_provider", config.ResolveAIProvider()).
		Msg("Resolved configuration (sanitized)")

	return nil
}

// requireValidConfig logs warnings and fails on blocking issues
func requireValidConfig() error {
	for _, issue := range config.Validate() {
		if issue.Severity == common.SeverityWarning {
			logger.Warn().Msg(issue.Message)
		}
	}
	return config.ConfigurationError()
}
