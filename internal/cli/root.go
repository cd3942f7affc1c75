// Package cli implements the ananbot command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanutb/AnanBot/internal/config"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "ananbot",
	Short: "Conversational chat-agent core with persistent memory",
	Long: "AnanBot is a chat-agent core: karma-weighted personas, per-context\n" +
		"conversation history, an image vault, and vector-indexed long-term\n" +
		"memory behind a single HTTP chat endpoint.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (env vars apply either way)")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfigFile(configPath)
	}
	return config.LoadConfig()
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
