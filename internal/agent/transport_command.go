package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harrison/codescope/internal/models"
)

// commandWaitDelay bounds how long Run waits for I/O after the process is killed
const commandWaitDelay = 500 * time.Millisecond

// CommandTransport runs an agent as a subprocess per call.
//
// The endpoint is the command line to execute. The request is written to the
// process's stdin as JSON and the process replies on stdout with an envelope:
//
//	{"result": {...}}                      on success
//	{"error": "message", "code": "..."}    on a business failure
//
// A process that cannot be started is unavailable. A non-zero exit without an
// error envelope is treated as unavailable too, since the agent never produced an answer.
type CommandTransport struct {
	// Shell, when non-empty, runs the endpoint through "<Shell> -c <endpoint>".
	Shell string
}

// commandRequest is the JSON document written to the agent's stdin
type commandRequest struct {
	Skill   string          `json:"skill"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandEnvelope is the JSON document expected on the agent's stdout
type CommandEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Code   string          `json:"code"`
}

// NewCommandTransport creates a CommandTransport that executes endpoints directly.
func NewCommandTransport() *CommandTransport {
	return &CommandTransport{}
}

// BuildCommandArgs splits an endpoint into the program and its arguments.
func (t *CommandTransport) BuildCommandArgs(endpoint, skill string) (string, []string, error) {
	if t.Shell != "" {
		return t.Shell, []string{"-c", endpoint, "--", skill}, nil
	}
	fields := strings.Fields(endpoint)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty command endpoint: %w", ErrUnavailable)
	}
	args := append(fields[1:], "--skill", skill)
	return fields[0], args, nil
}

// Invoke executes the agent command with the given context.
func (t *CommandTransport) Invoke(ctx context.Context, agent models.AgentDescriptor, skill string, payload json.RawMessage) (json.RawMessage, error) {
	program, args, err := t.BuildCommandArgs(agent.Endpoint, skill)
	if err != nil {
		return nil, err
	}

	input, err := json.Marshal(commandRequest{Skill: skill, Payload: payload})
	if err != nil {
		return nil, &RemoteError{Code: "bad_request", Message: err.Error()}
	}

	// Create command with context (for timeout)
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit stdout would otherwise hold Run open past the deadline.
	cmd.WaitDelay = commandWaitDelay

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	envelope, parseErr := ParseCommandOutput(stdout.Bytes())
	if parseErr == nil && envelope.Error != "" {
		return nil, &RemoteError{Code: envelope.Code, Message: envelope.Error}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("%s exited with code %d: %s: %w", agent.Name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()), ErrUnavailable)
		}
		return nil, fmt.Errorf("start %s: %v: %w", agent.Name, runErr, ErrUnavailable)
	}

	if parseErr != nil {
		return nil, &RemoteError{Code: "bad_response", Message: parseErr.Error()}
	}
	return envelope.Result, nil
}

// ParseCommandOutput decodes the JSON envelope printed by a command agent.
func ParseCommandOutput(output []byte) (*CommandEnvelope, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return nil, errors.New("agent produced no output")
	}
	var env CommandEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("agent output is not a JSON envelope: %w", err)
	}
	return &env, nil
}
