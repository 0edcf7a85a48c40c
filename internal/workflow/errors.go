package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/models"
)

// ErrCancellationRequested is the cancellation cause used by Cancel.
var ErrCancellationRequested = errors.New("cancellation requested")

// ErrExecutionTimeout is the cancellation cause used when the execution deadline passes.
var ErrExecutionTimeout = errors.New("execution deadline exceeded")

// ErrUnknownExecution is returned for execution IDs the engine is not running.
var ErrUnknownExecution = errors.New("unknown execution")

// StageError describes why a stage handler could not produce its output.
type StageError struct {
	Stage   models.Stage     // Stage whose handler failed
	Kind    models.ErrorKind // Failure classification
	Agent   string           // Agent blamed for the failure (optional)
	Message string           // Human-readable error message
	Err     error            // Underlying error (optional)
}

// NewStageError creates a StageError, deriving kind and agent from err when it
// is an agent call error.
func NewStageError(stage models.Stage, agentName, msg string, err error) *StageError {
	se := &StageError{Stage: stage, Kind: models.ErrorKindAgentError, Agent: agentName, Message: msg, Err: err}
	var inner *StageError
	if errors.As(err, &inner) {
		se.Kind = inner.Kind
		if se.Agent == "" {
			se.Agent = inner.Agent
		}
		return se
	}
	var ce *agent.CallError
	if errors.As(err, &ce) {
		se.Kind = ce.Kind
		if se.Agent == "" {
			se.Agent = ce.Agent
		}
	}
	return se
}

// Error implements the error interface for StageError.
func (e *StageError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s failed", e.Stage))
	if e.Agent != "" {
		sb.WriteString(fmt.Sprintf(" (agent %s)", e.Agent))
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *StageError) Unwrap() error {
	return e.Err
}

// IsStageError checks if the error is or wraps a StageError.
func IsStageError(err error) bool {
	if err == nil {
		return false
	}
	var se *StageError
	return errors.As(err, &se)
}

// kindOf classifies a stage failure. Errors that carry no classification are AgentError.
func kindOf(err error) models.ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	if kind := agent.KindOf(err); kind != "" {
		return kind
	}
	return models.ErrorKindAgentError
}

// blame returns the agent responsible for a stage failure, if known.
func blame(err error) string {
	var se *StageError
	if errors.As(err, &se) && se.Agent != "" {
		return se.Agent
	}
	var ce *agent.CallError
	if errors.As(err, &ce) {
		return ce.Agent
	}
	return ""
}
