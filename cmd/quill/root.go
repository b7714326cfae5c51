package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quillnotes/quill/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// configPath resolves the config file: the --config flag if given,
// otherwise the XDG config location when a file exists there.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	path := filepath.Join(xdg.ConfigDir(), "quill.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// NewRootCmd creates the root command for the Quill CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill - credential service for the Quill notes platform",
		Long: `Quill issues and validates the credentials for the Quill notes
platform: password accounts with bearer tokens, emailed single-use
verification and reset links, and long-lived API keys.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAPIKeyCmd())
	cmd.AddCommand(NewCleanupCmd())

	return cmd
}
