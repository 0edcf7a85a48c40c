package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harrison/codescope/internal/models"
)

// ErrUnavailable is wrapped by transports when the remote side cannot be reached
// (spawn failure, connection refused, overloaded). It is transient.
var ErrUnavailable = errors.New("agent unreachable")

// ErrTimeout is wrapped by transports that detect a timeout themselves rather
// than through context expiry. It is transient.
var ErrTimeout = errors.New("agent timed out")

// RemoteError is a business failure reported by the collaborator itself.
// It is never retried.
type RemoteError struct {
	Code    string // Optional machine-readable code from the collaborator
	Message string // Collaborator-supplied message, surfaced verbatim
}

// Error implements the error interface for RemoteError.
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// CallError is returned by Manager.Call for every agent-level failure.
// Kind is one of AgentUnavailable, AgentTimeout or AgentError.
type CallError struct {
	Kind     models.ErrorKind
	Agent    string
	Skill    string
	Attempts int    // Transport attempts made before giving up (0 when failing fast)
	Message  string // Human-readable reason
	Err      error  // Underlying transport error (optional)
}

// Error implements the error interface for CallError.
func (e *CallError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: agent %s skill %s", e.Kind, e.Agent, e.Skill))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Attempts > 1 {
		sb.WriteString(fmt.Sprintf(" (after %d attempts)", e.Attempts))
	}
	return sb.String()
}

// Unwrap returns the underlying transport error for error wrapping support.
func (e *CallError) Unwrap() error {
	return e.Err
}

func newCallError(kind models.ErrorKind, agent, skill, msg string, err error) *CallError {
	return &CallError{Kind: kind, Agent: agent, Skill: skill, Message: msg, Err: err}
}

// KindOf returns the ErrorKind carried by err, or "" if err is not a CallError.
func KindOf(err error) models.ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsUnavailable checks if the error is an AgentUnavailable CallError.
func IsUnavailable(err error) bool {
	return err != nil && KindOf(err) == models.ErrorKindAgentUnavailable
}

// IsTimeout checks if the error is an AgentTimeout CallError.
func IsTimeout(err error) bool {
	return err != nil && KindOf(err) == models.ErrorKindAgentTimeout
}

// IsAgentError checks if the error is a collaborator-reported AgentError.
func IsAgentError(err error) bool {
	return err != nil && KindOf(err) == models.ErrorKindAgentError
}

// classify maps a transport error onto the call error taxonomy.
// Anything that is neither a timeout nor unreachable is a non-transient AgentError.
func classify(err error) models.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return models.ErrorKindAgentTimeout
	case errors.Is(err, ErrUnavailable):
		return models.ErrorKindAgentUnavailable
	default:
		return models.ErrorKindAgentError
	}
}
