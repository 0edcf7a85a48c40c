package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/harrison/codescope/internal/models"
)

// Transport delivers one skill invocation to an agent and returns its raw JSON result.
// Implementations wrap ErrUnavailable or ErrTimeout for transient failures and
// return *RemoteError for collaborator-reported failures.
type Transport interface {
	Invoke(ctx context.Context, agent models.AgentDescriptor, skill string, payload json.RawMessage) (json.RawMessage, error)
}

// Handler serves skills for an in-process agent.
type Handler func(ctx context.Context, skill string, payload json.RawMessage) (json.RawMessage, error)

// HandlerFunc adapts a typed function into a Handler for a single skill.
func HandlerFunc[Req, Resp any](skill string, fn func(ctx context.Context, req Req) (Resp, error)) Handler {
	return func(ctx context.Context, gotSkill string, payload json.RawMessage) (json.RawMessage, error) {
		if gotSkill != skill {
			return nil, &RemoteError{Code: "unknown_skill", Message: fmt.Sprintf("skill %q not supported", gotSkill)}
		}
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, &RemoteError{Code: "bad_request", Message: err.Error()}
			}
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}

// InProcessTransport dispatches calls to Go handlers registered by agent name.
// The handler runs in its own goroutine so an expired context always returns
// promptly even if the handler ignores it; a late result is discarded.
type InProcessTransport struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewInProcessTransport creates an empty in-process transport.
func NewInProcessTransport() *InProcessTransport {
	return &InProcessTransport{handlers: make(map[string]Handler)}
}

// Handle registers (or replaces) the handler for agent name.
func (t *InProcessTransport) Handle(name string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = h
}

// Invoke runs the registered handler for agent.Name.
func (t *InProcessTransport) Invoke(ctx context.Context, agent models.AgentDescriptor, skill string, payload json.RawMessage) (json.RawMessage, error) {
	t.mu.RLock()
	h, ok := t.handlers[agent.Name]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no in-process handler for %s: %w", agent.Name, ErrUnavailable)
	}

	type reply struct {
		out json.RawMessage
		err error
	}
	done := make(chan reply, 1)
	go func() {
		out, err := h(ctx, skill, payload)
		done <- reply{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
