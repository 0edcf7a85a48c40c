package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/logger"
	"github.com/harrison/codescope/internal/models"
)

// NewAgentsCommand creates the 'codescope agents' command
func NewAgentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List known agents",
		Long: `List every agent codescope can call, with its transport, capabilities,
health and circuit state.

With --capability, only agents advertising at least one of the given tags
are shown, in the order stages would try them.

Examples:
  codescope agents
  codescope agents --capability analyze --capability lang:go`,
		Args: cobra.NoArgs,
		RunE: runAgents,
	}
	cmd.Flags().StringSlice("capability", nil, "Only show agents with this capability (repeatable)")
	return cmd
}

func runAgents(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.NewConsoleLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	rt, err := newAgentRuntime(cfg, log)
	if err != nil {
		return err
	}

	var agents []models.AgentDescriptor
	if tags, _ := cmd.Flags().GetStringSlice("capability"); len(tags) > 0 {
		agents = rt.manager.Discover(tags)
	} else {
		agents = rt.registry.List()
	}

	printAgents(cmd.OutOrStdout(), rt.manager, agents)
	return nil
}

func printAgents(w io.Writer, manager *agent.Manager, agents []models.AgentDescriptor) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	if len(agents) == 0 {
		fmt.Fprintf(w, "No agents found.\n")
		return
	}

	cyan.Fprintf(w, "Agents (%d):\n", len(agents))
	for _, desc := range agents {
		circuit, health := manager.Circuit(desc.Name)

		fmt.Fprintf(w, "\n  %s\n", desc.Name)
		if desc.Description != "" {
			fmt.Fprintf(w, "    %s\n", desc.Description)
		}
		fmt.Fprintf(w, "    Transport: %s", desc.Transport)
		if desc.Endpoint != "" {
			fmt.Fprintf(w, " (%s)", desc.Endpoint)
		}
		fmt.Fprintf(w, "\n")
		fmt.Fprintf(w, "    Capabilities: %s\n", strings.Join(desc.Capabilities, ", "))

		fmt.Fprintf(w, "    Health: ")
		switch health {
		case models.HealthUp:
			green.Fprintf(w, "%s", health)
		case models.HealthDown:
			red.Fprintf(w, "%s", health)
		default:
			yellow.Fprintf(w, "%s", health)
		}
		fmt.Fprintf(w, "  Circuit: %s (%d failures)\n", circuit.State, circuit.FailureCount)
	}
}
