package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped by the release build
var version = "dev"

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "autopilot",
		Short: "Autopilot - scheduled unattended agent runs",
		Long: `Autopilot fires agent sessions on a schedule. Automations are markdown
files with YAML frontmatter; each fire creates a session on the agent
server, monitors it to completion, and files the result for review.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
