package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for codescope
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codescope",
		Short: "Repository analysis orchestration",
		Long: `Codescope analyzes repositories by coordinating a set of agents
through a fixed workflow: acquire the code, build a model of it,
analyze it per language and synthesize a report.

Agents are defined in .codescope/agents/ (or --agents-dir) and reached
in-process, by spawning a command, or over HTTP. Built-in local agents
analyze checkouts on disk without any external collaborators.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .codescope/config.yaml)")
	cmd.PersistentFlags().Bool("verbose", false, "Show debug-level progress")
	cmd.PersistentFlags().String("log-dir", "", "Directory for log files")
	cmd.PersistentFlags().String("agents-dir", "", "Directory with agent definition files")

	cmd.AddCommand(NewScanCommand())
	cmd.AddCommand(NewReviewCommand())
	cmd.AddCommand(NewAgentsCommand())
	cmd.AddCommand(NewHistoryCommand())

	return cmd
}
