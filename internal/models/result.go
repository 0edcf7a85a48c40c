package models

import (
	"fmt"
	"time"
)

// ErrorKind classifies why an execution or agent call failed.
type ErrorKind string

const (
	ErrorKindValidation            ErrorKind = "ValidationError"
	ErrorKindAgentUnavailable      ErrorKind = "AgentUnavailable"
	ErrorKindAgentTimeout          ErrorKind = "AgentTimeout"
	ErrorKindAgentError            ErrorKind = "AgentError"
	ErrorKindWorkflowTimeout       ErrorKind = "WorkflowTimeout"
	ErrorKindCancellationRequested ErrorKind = "CancellationRequested"
)

// IsTransient reports whether the workflow may retry a stage that failed with this kind.
func (k ErrorKind) IsTransient() bool {
	return k == ErrorKindAgentTimeout || k == ErrorKindAgentUnavailable
}

// ErrorDetail is the structured description attached to a failed execution.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Agent   string    `json:"agent,omitempty"` // Offending agent name, when one is known
	Stage   Stage     `json:"stage"`           // Stage that was running when the failure happened
	Retries int       `json:"retries"`         // Stage-level retries attempted before giving up
}

// Error lets an ErrorDetail travel as an error value.
func (e *ErrorDetail) Error() string {
	if e.Agent != "" {
		return fmt.Sprintf("%s in %s (agent %s, %d retries): %s", e.Kind, e.Stage, e.Agent, e.Retries, e.Message)
	}
	return fmt.Sprintf("%s in %s (%d retries): %s", e.Kind, e.Stage, e.Retries, e.Message)
}

// ExecutionResult is the final, structured outcome of one execution.
// A result is only successful when the workflow reached COMPLETED.
type ExecutionResult struct {
	ExecutionID string         `json:"execution_id"`
	TaskID      string         `json:"task_id"`
	TaskType    TaskType       `json:"task_type"`
	Repository  string         `json:"repository"`
	PRID        string         `json:"pr_identifier,omitempty"`
	Success     bool           `json:"success"`
	FinalStage  Stage          `json:"final_stage"`
	Findings    []Finding      `json:"findings"`
	ReportText  string         `json:"report_text,omitempty"`
	RetryCounts map[string]int `json:"retry_counts"`
	ErrorCount  int            `json:"error_count"`
	Error       *ErrorDetail   `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Duration    time.Duration  `json:"duration"`
}

// Cancelled reports whether the execution ended because a caller cancelled it.
func (r *ExecutionResult) Cancelled() bool {
	return r.FinalStage == StageCancelled
}

// NewExecutionResult builds the final result from a terminal snapshot.
func NewExecutionResult(snap Snapshot) *ExecutionResult {
	result := &ExecutionResult{
		ExecutionID: snap.ExecutionID,
		TaskID:      snap.TaskID,
		TaskType:    snap.TaskType,
		Repository:  snap.Repository,
		PRID:        snap.PRID,
		Success:     snap.CurrentStage == StageCompleted,
		FinalStage:  snap.CurrentStage,
		Findings:    snap.Findings,
		ReportText:  snap.Artifacts.ReportText,
		RetryCounts: snap.RetryCounts,
		ErrorCount:  snap.ErrorCount,
		Error:       snap.Error,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
	}
	if !snap.CompletedAt.IsZero() {
		result.Duration = snap.CompletedAt.Sub(snap.StartedAt)
	}
	if result.Findings == nil {
		result.Findings = []Finding{}
	}
	return result
}
