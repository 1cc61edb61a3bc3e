// Package main is the carebear server: the chat platform interactivity
// endpoint, the dashboard REST API and the MCP tool server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"carebear/internal/config"
	"carebear/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "carebear",
	Short: "Flag chat messages as ranked issues",
	Long: `carebear turns a chat message into a tracked issue.

A message action opens a ranking form; submitting it stores the issue and
replies in the message's thread. The stored issues are served to a
dashboard over REST and to agents over MCP.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./config.yaml or ./config/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

// setup loads configuration and builds the logger every command shares.
func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration loading failed: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("logger initialization failed: %w", err)
	}
	logger.Info("Configuration loaded",
		"config_file", configPath,
		"issue_store", cfg.Storage.Issues,
		"correlation_store", cfg.Storage.Correlation,
		"bot_token_set", cfg.Slack.BotToken != "",
	)
	return cfg, logger, nil
}
