package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/workflow"
)

// WorkflowConfig represents workflow engine configuration
type WorkflowConfig struct {
	// ExecutionTimeout is the overall deadline of one execution (0 = none)
	ExecutionTimeout time.Duration

	// CallTimeout is the per-attempt timeout of every agent call
	CallTimeout time.Duration

	// MaxStageRetries is how often a stage is re-attempted after a transient failure
	MaxStageRetries int

	// MaxFanout bounds concurrent analyze calls per execution (0 = unbounded)
	MaxFanout int

	// OptionalLanguages lists languages whose analysis may fail without failing the run
	OptionalLanguages []string

	// StageRetryBase is the wait before the first stage re-attempt; it doubles per retry (0 = none)
	StageRetryBase time.Duration

	// StageRetryMax caps any single wait between stage re-attempts
	StageRetryMax time.Duration
}

// CommunicationConfig represents agent call retry and circuit breaker configuration
type CommunicationConfig struct {
	// MaxAttempts is the number of transport attempts per call, including the first
	MaxAttempts int

	// BackoffBase is the delay before the second attempt
	BackoffBase time.Duration

	// BackoffMultiplier is the growth factor of the delay per further attempt
	BackoffMultiplier float64

	// BackoffMax caps any single delay
	BackoffMax time.Duration

	// FailureThreshold is the number of consecutive failures that opens a circuit
	FailureThreshold int

	// Cooldown is how long an open circuit fails fast before admitting a probe
	Cooldown time.Duration
}

// HistoryConfig represents execution history configuration
type HistoryConfig struct {
	// Enabled records every finished execution
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`
}

// Config represents codescope configuration options
type Config struct {
	// MaxConcurrency is the maximum number of executions running at once
	MaxConcurrency int

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string

	// LogDir is the directory where logs will be written
	LogDir string

	// AgentsDir is the directory holding agent definition files
	AgentsDir string

	// ReportDir is the directory where reports are written (empty = no reports)
	ReportDir string

	// BuiltinAgents registers the in-process local agents alongside AgentsDir
	BuiltinAgents bool

	// Workflow contains workflow engine configuration
	Workflow WorkflowConfig

	// Communication contains agent call configuration
	Communication CommunicationConfig

	// History contains execution history configuration
	History HistoryConfig
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	wf := workflow.DefaultConfig()
	mc := agent.DefaultManagerConfig()
	return &Config{
		MaxConcurrency: 4,
		LogLevel:       "info",
		LogDir:         ".codescope/logs",
		AgentsDir:      ".codescope/agents",
		ReportDir:      ".codescope/reports",
		BuiltinAgents:  true,
		Workflow: WorkflowConfig{
			ExecutionTimeout: wf.ExecutionTimeout,
			CallTimeout:      wf.CallTimeout,
			MaxStageRetries:  wf.MaxStageRetries,
			MaxFanout:        wf.MaxFanout,
			StageRetryBase:   wf.StageRetryBackoff.Base,
			StageRetryMax:    wf.StageRetryBackoff.Max,
		},
		Communication: CommunicationConfig{
			MaxAttempts:       mc.MaxAttempts,
			BackoffBase:       mc.Backoff.Base,
			BackoffMultiplier: mc.Backoff.Multiplier,
			BackoffMax:        mc.Backoff.Max,
			FailureThreshold:  mc.FailureThreshold,
			Cooldown:          mc.Cooldown,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  ".codescope/history.db",
		},
	}
}

// yamlConfig mirrors the file layout; durations are strings like "30s"
type yamlConfig struct {
	MaxConcurrency int    `yaml:"max_concurrency"`
	LogLevel       string `yaml:"log_level"`
	LogDir         string `yaml:"log_dir"`
	AgentsDir      string `yaml:"agents_dir"`
	ReportDir      string `yaml:"report_dir"`
	BuiltinAgents  *bool  `yaml:"builtin_agents"`
	Workflow       struct {
		ExecutionTimeout  string   `yaml:"execution_timeout"`
		CallTimeout       string   `yaml:"call_timeout"`
		MaxStageRetries   *int     `yaml:"max_stage_retries"`
		MaxFanout         int      `yaml:"max_fanout"`
		OptionalLanguages []string `yaml:"optional_languages"`
		StageRetryBase    string   `yaml:"stage_retry_base"`
		StageRetryMax     string   `yaml:"stage_retry_max"`
	} `yaml:"workflow"`
	Communication struct {
		MaxAttempts       int     `yaml:"max_attempts"`
		BackoffBase       string  `yaml:"backoff_base"`
		BackoffMultiplier float64 `yaml:"backoff_multiplier"`
		BackoffMax        string  `yaml:"backoff_max"`
		FailureThreshold  int     `yaml:"failure_threshold"`
		Cooldown          string  `yaml:"cooldown"`
	} `yaml:"communication"`
	History *struct {
		Enabled *bool   `yaml:"enabled"`
		DBPath  *string `yaml:"db_path"`
	} `yaml:"history"`
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply non-zero values from file (merging with defaults)
	if y.MaxConcurrency != 0 {
		cfg.MaxConcurrency = y.MaxConcurrency
	}
	if y.LogLevel != "" {
		cfg.LogLevel = y.LogLevel
	}
	if y.LogDir != "" {
		cfg.LogDir = y.LogDir
	}
	if y.AgentsDir != "" {
		cfg.AgentsDir = y.AgentsDir
	}
	if y.ReportDir != "" {
		cfg.ReportDir = y.ReportDir
	}
	if y.BuiltinAgents != nil {
		cfg.BuiltinAgents = *y.BuiltinAgents
	}

	durations := []struct {
		key    string
		value  string
		target *time.Duration
	}{
		{"workflow.execution_timeout", y.Workflow.ExecutionTimeout, &cfg.Workflow.ExecutionTimeout},
		{"workflow.call_timeout", y.Workflow.CallTimeout, &cfg.Workflow.CallTimeout},
		{"workflow.stage_retry_base", y.Workflow.StageRetryBase, &cfg.Workflow.StageRetryBase},
		{"workflow.stage_retry_max", y.Workflow.StageRetryMax, &cfg.Workflow.StageRetryMax},
		{"communication.backoff_base", y.Communication.BackoffBase, &cfg.Communication.BackoffBase},
		{"communication.backoff_max", y.Communication.BackoffMax, &cfg.Communication.BackoffMax},
		{"communication.cooldown", y.Communication.Cooldown, &cfg.Communication.Cooldown},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s format %q: %w", d.key, d.value, err)
		}
		*d.target = parsed
	}

	// max_stage_retries: 0 is meaningful (no stage retries), so presence matters
	if y.Workflow.MaxStageRetries != nil {
		cfg.Workflow.MaxStageRetries = *y.Workflow.MaxStageRetries
	}
	if y.Workflow.MaxFanout != 0 {
		cfg.Workflow.MaxFanout = y.Workflow.MaxFanout
	}
	if y.Workflow.OptionalLanguages != nil {
		cfg.Workflow.OptionalLanguages = y.Workflow.OptionalLanguages
	}

	if y.Communication.MaxAttempts != 0 {
		cfg.Communication.MaxAttempts = y.Communication.MaxAttempts
	}
	if y.Communication.BackoffMultiplier != 0 {
		cfg.Communication.BackoffMultiplier = y.Communication.BackoffMultiplier
	}
	if y.Communication.FailureThreshold != 0 {
		cfg.Communication.FailureThreshold = y.Communication.FailureThreshold
	}

	if y.History != nil {
		if y.History.Enabled != nil {
			cfg.History.Enabled = *y.History.Enabled
		}
		if y.History.DBPath != nil {
			// Explicitly set db_path, even if empty string
			cfg.History.DBPath = *y.History.DBPath
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .codescope/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ".codescope", "config.yaml")
	return LoadConfig(configPath)
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
// This allows CLI flags to take precedence over config file settings
func (c *Config) MergeWithFlags(maxConcurrency *int, timeout *time.Duration, logDir *string, reportDir *string, agentsDir *string) {
	if maxConcurrency != nil {
		c.MaxConcurrency = *maxConcurrency
	}
	if timeout != nil {
		c.Workflow.ExecutionTimeout = *timeout
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if reportDir != nil {
		c.ReportDir = *reportDir
	}
	if agentsDir != nil {
		c.AgentsDir = *agentsDir
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be >= 1, got %d", c.MaxConcurrency)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	// Timeouts can be 0 (no deadline) or positive, negative is invalid
	if c.Workflow.ExecutionTimeout < 0 {
		return fmt.Errorf("workflow.execution_timeout must be >= 0, got %v", c.Workflow.ExecutionTimeout)
	}
	if c.Workflow.CallTimeout <= 0 {
		return fmt.Errorf("workflow.call_timeout must be > 0, got %v", c.Workflow.CallTimeout)
	}
	if c.Workflow.MaxStageRetries < 0 {
		return fmt.Errorf("workflow.max_stage_retries must be >= 0, got %d", c.Workflow.MaxStageRetries)
	}
	if c.Workflow.StageRetryBase < 0 || c.Workflow.StageRetryMax < 0 {
		return fmt.Errorf("workflow stage retry durations must be >= 0")
	}
	if c.Workflow.MaxFanout < 0 {
		return fmt.Errorf("workflow.max_fanout must be >= 0, got %d", c.Workflow.MaxFanout)
	}

	if c.Communication.MaxAttempts < 1 {
		return fmt.Errorf("communication.max_attempts must be >= 1, got %d", c.Communication.MaxAttempts)
	}
	if c.Communication.BackoffBase < 0 || c.Communication.BackoffMax < 0 {
		return fmt.Errorf("communication backoff durations must be >= 0")
	}
	if c.Communication.BackoffMultiplier < 1 {
		return fmt.Errorf("communication.backoff_multiplier must be >= 1, got %v", c.Communication.BackoffMultiplier)
	}
	if c.Communication.FailureThreshold < 1 {
		return fmt.Errorf("communication.failure_threshold must be >= 1, got %d", c.Communication.FailureThreshold)
	}
	if c.Communication.Cooldown <= 0 {
		return fmt.Errorf("communication.cooldown must be > 0, got %v", c.Communication.Cooldown)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}

	return nil
}

// WorkflowSettings converts the workflow section into engine configuration.
func (c *Config) WorkflowSettings() workflow.Config {
	return workflow.Config{
		ExecutionTimeout:  c.Workflow.ExecutionTimeout,
		CallTimeout:       c.Workflow.CallTimeout,
		MaxStageRetries:   c.Workflow.MaxStageRetries,
		MaxFanout:         c.Workflow.MaxFanout,
		OptionalLanguages: c.Workflow.OptionalLanguages,
		StageRetryBackoff: agent.Backoff{
			Base:       c.Workflow.StageRetryBase,
			Multiplier: 2,
			Max:        c.Workflow.StageRetryMax,
		},
	}
}

// ManagerSettings converts the communication section into agent manager configuration.
func (c *Config) ManagerSettings() agent.ManagerConfig {
	return agent.ManagerConfig{
		MaxAttempts: c.Communication.MaxAttempts,
		Backoff: agent.Backoff{
			Base:       c.Communication.BackoffBase,
			Multiplier: c.Communication.BackoffMultiplier,
			Max:        c.Communication.BackoffMax,
		},
		FailureThreshold: c.Communication.FailureThreshold,
		Cooldown:         c.Communication.Cooldown,
		DefaultTimeout:   c.Workflow.CallTimeout,
	}
}
