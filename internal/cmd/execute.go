package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/codescope/internal/orchestrator"
	"github.com/harrison/codescope/internal/workflow"
)

// addExecutionFlags adds the flags shared by scan and review.
func addExecutionFlags(cmd *cobra.Command) {
	cmd.Flags().String("timeout", "", "Maximum time per execution (e.g., 30m, 1h)")
	cmd.Flags().Int("max-concurrency", 0, "Maximum number of executions running at once (default from config)")
	cmd.Flags().String("report-dir", "", "Directory for generated reports")
}

// startFunc starts one execution per request on the orchestrator.
type startFunc func(ctx context.Context, orch *orchestrator.Orchestrator) ([]*workflow.Job, error)

// runExecutions starts executions, waits for all of them and prints where
// reports went. Interrupts cancel every running execution.
// Returns an error when any execution did not complete.
func runExecutions(cmd *cobra.Command, start startFunc) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.watchAgents(ctx)

	jobs, err := start(ctx, rt.orch)
	if err != nil {
		for _, job := range jobs {
			job.Cancel()
		}
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	var reported []string
	for _, job := range jobs {
		// Jobs end on their own once ctx is cancelled, so waiting on the
		// background context cannot hang past an interrupt.
		result, _ := job.Wait(context.Background())
		if result == nil || !result.Success {
			failed++
			continue
		}
		if rt.reports != nil && result.ReportText != "" {
			reported = append(reported, result.ExecutionID)
		}
	}

	// Recorders run after a job finishes; reports exist only once they are done.
	rt.orch.Wait()
	for _, id := range reported {
		md, _ := rt.reports.Paths(id)
		fmt.Fprintf(out, "Report written to: %s\n", md)
	}
	if rt.fileLog != nil {
		fmt.Fprintf(out, "Logs written to: %s\n", cfg.LogDir)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d execution(s) did not complete", failed, len(jobs))
	}
	return nil
}

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <repository>...",
		Short: "Scan whole repositories",
		Long: `Run a full-project scan of one or more repositories.

Each repository becomes its own execution; at most max-concurrency run at
once and the rest wait in a queue. A repository is an http(s), ssh, git or
file URL, an scp-style reference (git@host:org/repo.git) or an absolute path.

Examples:
  codescope scan /src/service
  codescope scan https://git.example.com/org/api.git --timeout 45m
  codescope scan /src/a /src/b /src/c --max-concurrency 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecutions(cmd, func(ctx context.Context, orch *orchestrator.Orchestrator) ([]*workflow.Job, error) {
				jobs := make([]*workflow.Job, 0, len(args))
				for _, repo := range args {
					job, err := orch.StartScan(ctx, repo)
					if err != nil {
						return jobs, err
					}
					jobs = append(jobs, job)
				}
				return jobs, nil
			})
		},
	}
	addExecutionFlags(cmd)
	return cmd
}

// NewReviewCommand creates the review command
func NewReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <repository> <pr>",
		Short: "Review a pull request",
		Long: `Run a pull request review. The model is built for the PR diff only.

Examples:
  codescope review https://git.example.com/org/api.git 1234
  codescope review /src/service feature-branch --verbose`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecutions(cmd, func(ctx context.Context, orch *orchestrator.Orchestrator) ([]*workflow.Job, error) {
				job, err := orch.StartPRReview(ctx, args[0], args[1])
				if err != nil {
					return nil, err
				}
				return []*workflow.Job{job}, nil
			})
		},
	}
	addExecutionFlags(cmd)
	return cmd
}
