package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/codescope/internal/history"
	"github.com/harrison/codescope/internal/models"
)

// NewHistoryCommand creates the 'codescope history' command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded executions",
		Long: `List finished executions from the history database, newest first.

Examples:
  codescope history
  codescope history --limit 50 --repo /src/service
  codescope history show 5f0c2a8e-...`,
		Args: cobra.NoArgs,
		RunE: runHistoryList,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of executions to show")
	cmd.Flags().String("repo", "", "Only show executions of this repository")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <execution-id>",
		Short: "Show one recorded execution with its findings",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	})
	return cmd
}

// openHistory opens the configured store. A missing database yields nil, nil.
func openHistory(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("execution history is disabled in configuration")
	}
	if _, err := os.Stat(cfg.History.DBPath); os.IsNotExist(err) {
		return nil, nil
	}
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintf(out, "No executions recorded yet.\n")
		return nil
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	repo, _ := cmd.Flags().GetString("repo")

	ctx := context.Background()
	list, err := store.List(ctx, history.ListOptions{Limit: limit, Repository: repo})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "No executions recorded yet.\n")
		return nil
	}

	totals, err := store.SeverityTotals(ctx, repo)
	if err != nil {
		return err
	}
	printHistory(out, list, totals)
	return nil
}

func printHistory(w io.Writer, list []history.ExecutionSummary, totals map[string]int) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	cyan.Fprintf(w, "Recent executions (%d):\n\n", len(list))
	for _, e := range list {
		target := e.Repository
		if e.PRIdentifier != "" {
			target += "#" + e.PRIdentifier
		}
		fmt.Fprintf(w, "  %s  ", e.CompletedAt.Local().Format("2006-01-02 15:04"))
		switch {
		case e.Success:
			green.Fprintf(w, "%-10s", e.FinalStage)
		case e.FinalStage == models.StageCancelled:
			yellow.Fprintf(w, "%-10s", e.FinalStage)
		default:
			red.Fprintf(w, "%-10s", e.FinalStage)
		}
		fmt.Fprintf(w, " %-11s %s  %d finding(s)  %s\n", e.TaskType, target, e.FindingCount, e.Duration.Round(time.Second))
		fmt.Fprintf(w, "      %s", e.ExecutionID)
		if e.ErrorKind != "" {
			fmt.Fprintf(w, "  (%s)", e.ErrorKind)
		}
		fmt.Fprintf(w, "\n")
	}

	if len(totals) > 0 {
		fmt.Fprintf(w, "\n")
		cyan.Fprintf(w, "Findings by severity:\n")
		for _, sev := range []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow, models.SeverityInfo} {
			if n := totals[sev]; n > 0 {
				fmt.Fprintf(w, "  %s: %d\n", sev, n)
			}
		}
	}
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("execution %s not found: no history recorded yet", args[0])
	}
	defer store.Close()

	result, err := store.Get(context.Background(), args[0])
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("execution %s not found", args[0])
	}
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintf(out, "=== Execution %s ===\n", result.ExecutionID)
	fmt.Fprintf(out, "Task: %s %s", result.TaskType, result.Repository)
	if result.PRID != "" {
		fmt.Fprintf(out, "#%s", result.PRID)
	}
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Final stage: %s\n", result.FinalStage)
	fmt.Fprintf(out, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	for agentName, n := range result.RetryCounts {
		fmt.Fprintf(out, "Retries (%s): %d\n", agentName, n)
	}
	if result.Error != nil {
		fmt.Fprintf(out, "Error: %s\n", result.Error.Error())
	}
	fmt.Fprintf(out, "\nFindings (%d):\n", len(result.Findings))
	for _, f := range result.Findings {
		fmt.Fprintf(out, "  %s\n", f)
	}
	return nil
}
