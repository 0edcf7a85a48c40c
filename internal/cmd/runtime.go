package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/builtin"
	"github.com/harrison/codescope/internal/config"
	"github.com/harrison/codescope/internal/history"
	"github.com/harrison/codescope/internal/logger"
	"github.com/harrison/codescope/internal/models"
	"github.com/harrison/codescope/internal/orchestrator"
	"github.com/harrison/codescope/internal/report"
	"github.com/harrison/codescope/internal/workflow"
)

// loadConfig loads the config file and merges CLI flags over it.
// Relative paths are resolved against the codescope home.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	configPath, _ := flags.GetString("config")
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var maxConcurrencyPtr *int
	if flags.Lookup("max-concurrency") != nil && flags.Changed("max-concurrency") {
		n, _ := flags.GetInt("max-concurrency")
		maxConcurrencyPtr = &n
	}

	var timeoutPtr *time.Duration
	if flags.Lookup("timeout") != nil && flags.Changed("timeout") {
		s, _ := flags.GetString("timeout")
		timeout, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", s, err)
		}
		timeoutPtr = &timeout
	}

	cfg.MergeWithFlags(maxConcurrencyPtr, timeoutPtr,
		changedString(cmd, "log-dir"), changedString(cmd, "report-dir"), changedString(cmd, "agents-dir"))

	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	home, err := config.GetHome()
	if err != nil {
		return nil, err
	}
	cfg.LogDir = config.ResolvePath(home, cfg.LogDir)
	cfg.AgentsDir = config.ResolvePath(home, cfg.AgentsDir)
	cfg.ReportDir = config.ResolvePath(home, cfg.ReportDir)
	cfg.History.DBPath = config.ResolvePath(home, cfg.History.DBPath)
	return cfg, nil
}

// changedString returns the flag's value only if it was set on the command line.
func changedString(cmd *cobra.Command, name string) *string {
	flags := cmd.Flags()
	if flags.Lookup(name) == nil || !flags.Changed(name) {
		return nil
	}
	v, _ := flags.GetString(name)
	return &v
}

// agentRuntime is the agent layer: registry, in-process transport and manager.
type agentRuntime struct {
	registry *agent.Registry
	inproc   *agent.InProcessTransport
	manager  *agent.Manager
}

// newAgentRuntime loads agent definitions and registers built-in agents.
func newAgentRuntime(cfg *config.Config, log logger.Logger) (*agentRuntime, error) {
	rt := &agentRuntime{
		registry: agent.NewRegistry(cfg.AgentsDir),
		inproc:   agent.NewInProcessTransport(),
	}
	if cfg.BuiltinAgents {
		if err := builtin.Register(rt.registry, rt.inproc); err != nil {
			return nil, fmt.Errorf("register built-in agents: %w", err)
		}
	}
	count, err := rt.registry.Load(log.Warnf)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded %d agent definition(s) from %s", count, cfg.AgentsDir)

	rt.manager = agent.NewManager(rt.registry, cfg.ManagerSettings(),
		agent.WithTransport(models.TransportInProcess, rt.inproc),
		agent.WithLogger(log))
	return rt, nil
}

// runtime wires everything an execution command needs.
type runtime struct {
	cfg     *config.Config
	log     logger.Logger
	fileLog *logger.FileLogger
	agents  *agentRuntime
	engine  *workflow.Engine
	orch    *orchestrator.Orchestrator
	history *history.Store
	reports *report.Writer
}

func newRuntime(cmd *cobra.Command, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	console := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	fileLog, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: file logging disabled: %v\n", err)
		rt.log = console
	} else {
		rt.fileLog = fileLog
		rt.log = logger.NewMultiLogger(console, fileLog)
	}

	rt.agents, err = newAgentRuntime(cfg, rt.log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.engine = workflow.NewEngine(rt.agents.manager, cfg.WorkflowSettings(), rt.log)

	opts := []orchestrator.Option{orchestrator.WithLogger(rt.log)}
	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.DBPath)
		if err != nil {
			rt.log.Warnf("execution history disabled: %v", err)
		} else {
			rt.history = store
			opts = append(opts, orchestrator.WithRecorder(store))
		}
	}
	if cfg.ReportDir != "" {
		rt.reports = report.NewWriter(cfg.ReportDir)
		opts = append(opts, orchestrator.WithRecorder(rt.reports))
	}
	rt.orch = orchestrator.New(rt.engine, cfg.MaxConcurrency, opts...)
	return rt, nil
}

// watchAgents reloads agent definitions while ctx is live.
func (rt *runtime) watchAgents(ctx context.Context) {
	w := agent.NewWatcher(rt.agents.registry, rt.log, nil)
	go func() {
		if err := w.Run(ctx); err != nil {
			rt.log.Debugf("agent definitions will not be reloaded: %v", err)
		}
	}()
}

// Close waits for recorders and releases files.
func (rt *runtime) Close() error {
	if rt.orch != nil {
		rt.orch.Wait()
	}
	var errs []error
	if rt.history != nil {
		errs = append(errs, rt.history.Close())
	}
	if rt.fileLog != nil {
		errs = append(errs, rt.fileLog.Close())
	}
	return errors.Join(errs...)
}
