package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// AgentOutcome records the last result or error returned by one agent.
type AgentOutcome struct {
	Agent     string          `json:"agent"`
	Skill     string          `json:"skill"`
	Stage     Stage           `json:"stage"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
	Required  bool            `json:"required"`
	At        time.Time       `json:"at"`
}

// Failed reports whether the outcome carries an error.
func (o AgentOutcome) Failed() bool {
	return o.Error != ""
}

// Artifacts holds the stage outputs later stages consume.
type Artifacts struct {
	WorkspacePath string   `json:"local_workspace_path,omitempty"`
	Languages     []string `json:"detected_languages,omitempty"`
	ModelHandle   string   `json:"model_handle,omitempty"`
	NodeCount     int      `json:"node_count,omitempty"`
	ReportText    string   `json:"report_text,omitempty"`
}

// merge copies every non-zero field of other into a.
func (a *Artifacts) merge(other Artifacts) {
	if other.WorkspacePath != "" {
		a.WorkspacePath = other.WorkspacePath
	}
	if other.Languages != nil {
		a.Languages = slices.Clone(other.Languages)
	}
	if other.ModelHandle != "" {
		a.ModelHandle = other.ModelHandle
	}
	if other.NodeCount != 0 {
		a.NodeCount = other.NodeCount
	}
	if other.ReportText != "" {
		a.ReportText = other.ReportText
	}
}

// ExecutionState is the mutable record threaded through one run of the workflow.
// Exactly one instance exists per submitted task. All methods are safe for
// concurrent use so status queries can read it while the workflow writes.
type ExecutionState struct {
	mu sync.RWMutex

	executionID  string
	task         *TaskDefinition
	currentStage Stage
	stageRetries int
	outcomes     map[string]AgentOutcome
	retryCounts  map[string]int
	errorCount   int
	findings     []Finding
	artifacts    Artifacts
	lastError    *ErrorDetail
	startedAt    time.Time
	updatedAt    time.Time
	completedAt  time.Time
}

// NewExecutionState allocates an isolated state for task.
func NewExecutionState(executionID string, task *TaskDefinition) *ExecutionState {
	now := time.Now().UTC()
	return &ExecutionState{
		executionID:  executionID,
		task:         task,
		currentStage: StageInitiated,
		outcomes:     make(map[string]AgentOutcome),
		retryCounts:  make(map[string]int),
		startedAt:    now,
		updatedAt:    now,
	}
}

func (s *ExecutionState) ExecutionID() string   { return s.executionID }
func (s *ExecutionState) Task() *TaskDefinition { return s.task }

// Stage returns the current stage.
func (s *ExecutionState) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentStage
}

// StageRetries returns how many times the current stage has been re-attempted.
func (s *ExecutionState) StageRetries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stageRetries
}

// Advance moves the execution to next. Stages never move backwards and a
// terminal stage is never left. Moving to a different stage resets the stage
// retry counter; staying on the same stage keeps it.
func (s *ExecutionState) Advance(next Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentStage.IsTerminal() {
		return fmt.Errorf("execution %s already terminal in %s", s.executionID, s.currentStage)
	}
	if next < s.currentStage {
		return fmt.Errorf("execution %s cannot move back from %s to %s", s.executionID, s.currentStage, next)
	}
	if next != s.currentStage {
		s.stageRetries = 0
	}
	s.currentStage = next
	s.touch()
	if next.IsTerminal() {
		s.completedAt = s.updatedAt
	}
	return nil
}

// RecordRetry counts one stage-level retry caused by agent and returns the
// retry count of the current stage.
func (s *ExecutionState) RecordRetry(agent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stageRetries++
	if agent != "" {
		s.retryCounts[agent]++
	}
	s.touch()
	return s.stageRetries
}

// RecordOutcome stores the latest result or error for an agent.
func (s *ExecutionState) RecordOutcome(outcome AgentOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if outcome.At.IsZero() {
		outcome.At = time.Now().UTC()
	}
	s.outcomes[outcome.Agent] = outcome
	if outcome.Failed() {
		s.errorCount++
	}
	s.touch()
}

// AppendFindings appends findings in order. Existing findings are never modified.
func (s *ExecutionState) AppendFindings(findings ...Finding) {
	if len(findings) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, findings...)
	s.touch()
}

// MergeArtifacts records stage outputs.
func (s *ExecutionState) MergeArtifacts(a Artifacts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts.merge(a)
	s.touch()
}

// Artifacts returns a copy of the stage outputs gathered so far.
func (s *ExecutionState) Artifacts() Artifacts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.artifacts
	a.Languages = slices.Clone(a.Languages)
	return a
}

// SetError attaches error detail. It does not change the stage.
func (s *ExecutionState) SetError(detail *ErrorDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = detail
	s.touch()
}

func (s *ExecutionState) touch() {
	s.updatedAt = time.Now().UTC()
}

// Snapshot is a read-only copy of an execution's observable state.
type Snapshot struct {
	ExecutionID   string                  `json:"execution_id"`
	TaskID        string                  `json:"task_id"`
	TaskType      TaskType                `json:"task_type"`
	Repository    string                  `json:"repository"`
	PRID          string                  `json:"pr_identifier,omitempty"`
	CurrentStage  Stage                   `json:"current_stage"`
	StageRetries  int                     `json:"stage_retries"`
	RetryCounts   map[string]int          `json:"retry_counts"`
	ErrorCount    int                     `json:"error_count"`
	Findings      []Finding               `json:"findings"`
	Artifacts     Artifacts               `json:"artifacts"`
	AgentOutcomes map[string]AgentOutcome `json:"agent_outcomes"`
	Error         *ErrorDetail            `json:"error,omitempty"`
	StartedAt     time.Time               `json:"started_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	CompletedAt   time.Time               `json:"completed_at,omitzero"`
}

// Snapshot copies the state without blocking on anything but the state's own lock.
func (s *ExecutionState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ExecutionID:   s.executionID,
		CurrentStage:  s.currentStage,
		StageRetries:  s.stageRetries,
		RetryCounts:   maps.Clone(s.retryCounts),
		ErrorCount:    s.errorCount,
		Findings:      slices.Clone(s.findings),
		Artifacts:     s.artifacts,
		AgentOutcomes: maps.Clone(s.outcomes),
		StartedAt:     s.startedAt,
		UpdatedAt:     s.updatedAt,
		CompletedAt:   s.completedAt,
	}
	snap.Artifacts.Languages = slices.Clone(s.artifacts.Languages)
	if s.lastError != nil {
		detail := *s.lastError
		snap.Error = &detail
	}
	if s.task != nil {
		snap.TaskID = s.task.ID()
		snap.TaskType = s.task.Type()
		snap.Repository = s.task.RepositoryLocator()
		snap.PRID, _ = s.task.PRIdentifier()
	}
	return snap
}
