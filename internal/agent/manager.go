package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/harrison/codescope/internal/models"
)

// Logger is the logging surface the Manager needs.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// Response is the raw JSON result of a successful call.
type Response json.RawMessage

// Decode unmarshals the response into v.
func (r Response) Decode(v any) error {
	if len(r) == 0 {
		return fmt.Errorf("empty response")
	}
	return json.Unmarshal(r, v)
}

// ManagerConfig tunes retry and circuit breaking.
type ManagerConfig struct {
	MaxAttempts      int           // Transport attempts per call, including the first
	Backoff          Backoff       // Delay between transient failures
	FailureThreshold int           // Consecutive failures that open a circuit
	Cooldown         time.Duration // How long an open circuit fails fast
	DefaultTimeout   time.Duration // Per-attempt timeout when a call passes 0
}

// DefaultManagerConfig returns 3 attempts, 2s/x2/10s backoff, a threshold of 5
// and a 30s cooldown.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxAttempts:      3,
		Backoff:          DefaultBackoff(),
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		DefaultTimeout:   2 * time.Minute,
	}
}

// Manager is the uniform, fault-tolerant call interface to named agents.
// Callers depend only on agent names, skill ids and JSON payloads; how an
// agent is reached is decided by its descriptor's transport.
type Manager struct {
	registry   *Registry
	transports map[models.TransportKind]Transport
	breakers   breakerSet
	cfg        ManagerConfig
	logger     Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithTransport sets the transport used for one transport kind.
func WithTransport(kind models.TransportKind, t Transport) ManagerOption {
	return func(m *Manager) { m.transports[kind] = t }
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now and the backoff sleep, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// NewManager creates a Manager over registry. Command and HTTP transports are
// installed by default; in-process agents need WithTransport(TransportInProcess, ...).
func NewManager(registry *Registry, cfg ManagerConfig, opts ...ManagerOption) *Manager {
	if registry == nil {
		panic("agent registry cannot be nil")
	}
	defaults := DefaultManagerConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaults.DefaultTimeout
	}

	m := &Manager{
		registry: registry,
		transports: map[models.TransportKind]Transport{
			models.TransportCommand: NewCommandTransport(),
			models.TransportHTTP:    NewHTTPTransport(),
		},
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the agent registry the manager calls into.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Discover returns every known agent whose capabilities intersect tags, most
// recently healthy first: UP before UNKNOWN before DOWN, then by the last time
// the agent answered, then by name. An empty result is not an error.
func (m *Manager) Discover(tags []string) []models.AgentDescriptor {
	wanted := normalizeTags(tags)
	now := m.now()

	var matches []models.AgentDescriptor
	for _, desc := range m.registry.List() {
		if !desc.HasAnyCapability(wanted) {
			continue
		}
		_, health, lastHealthy := m.breakers.get(desc.Name).snapshot(now, m.cfg.Cooldown)
		desc.Health = health
		desc.LastHealthyAt = lastHealthy
		matches = append(matches, desc)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if ra, rb := healthRank(a.Health), healthRank(b.Health); ra != rb {
			return ra < rb
		}
		if !a.LastHealthyAt.Equal(b.LastHealthyAt) {
			return a.LastHealthyAt.After(b.LastHealthyAt)
		}
		return a.Name < b.Name
	})
	return matches
}

func healthRank(h models.HealthStatus) int {
	switch h {
	case models.HealthUp:
		return 0
	case models.HealthDown:
		return 2
	default:
		return 1
	}
}

// Circuit returns the breaker state and health of an agent.
func (m *Manager) Circuit(name string) (CircuitState, models.HealthStatus) {
	cs, health, _ := m.breakers.get(name).snapshot(m.now(), m.cfg.Cooldown)
	return cs, health
}

// ResetCircuit forgets all failure history for an agent.
func (m *Manager) ResetCircuit(name string) {
	m.breakers.reset(name)
}

// Call invokes skill on the named agent with payload, allowing timeout per attempt.
//
// The agent's circuit is checked first: an open circuit within its cooldown fails
// fast with AgentUnavailable and the transport is never touched. Timeouts and
// unavailability are retried with exponential backoff up to MaxAttempts;
// AgentError is returned immediately. If ctx itself ends, its error is returned
// wrapped and the agent is not blamed.
func (m *Manager) Call(ctx context.Context, agentName, skill string, payload any, timeout time.Duration) (Response, error) {
	desc, ok := m.registry.Get(agentName)
	if !ok {
		return nil, newCallError(models.ErrorKindAgentUnavailable, agentName, skill, "unknown agent", nil)
	}
	transport, ok := m.transports[desc.Transport]
	if !ok || transport == nil {
		return nil, newCallError(models.ErrorKindAgentUnavailable, agentName, skill,
			fmt.Sprintf("no transport configured for %s", desc.Transport), nil)
	}

	body, err := encodePayload(payload)
	if err != nil {
		return nil, newCallError(models.ErrorKindAgentError, agentName, skill, "encode payload", err)
	}
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	b := m.breakers.get(agentName)
	var lastErr *CallError

	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("call %s/%s: %w", agentName, skill, err)
		}

		probe, openErr := b.allow(m.now(), m.cfg.Cooldown)
		if openErr != nil {
			if lastErr != nil {
				// The circuit opened during our own retries; report the real failure.
				return nil, lastErr
			}
			return nil, newCallError(models.ErrorKindAgentUnavailable, agentName, skill, openErr.Error(), openErr)
		}

		out, callErr := m.invoke(ctx, transport, desc, skill, body, timeout)
		if callErr == nil {
			b.success(m.now(), probe)
			return Response(out), nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			b.release(probe)
			return nil, fmt.Errorf("call %s/%s: %w", agentName, skill, ctxErr)
		}

		kind := classify(callErr)
		if kind == models.ErrorKindAgentError {
			// The agent answered; it is healthy even though the request failed.
			b.success(m.now(), probe)
			ce := newCallError(kind, agentName, skill, callErr.Error(), callErr)
			ce.Attempts = attempt
			return nil, ce
		}

		lastErr = newCallError(kind, agentName, skill, callErr.Error(), callErr)
		lastErr.Attempts = attempt
		if b.failure(m.now(), m.cfg.FailureThreshold, probe) {
			m.warnf("circuit opened for agent %s after %s", agentName, lastErr.Message)
		}

		if attempt == m.cfg.MaxAttempts {
			break
		}
		delay := m.cfg.Backoff.Delay(attempt)
		m.debugf("agent %s skill %s attempt %d/%d failed (%s), retrying in %s",
			agentName, skill, attempt, m.cfg.MaxAttempts, kind, delay)
		if err := m.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("call %s/%s: %w", agentName, skill, err)
		}
	}

	return nil, lastErr
}

// invoke runs one transport attempt bounded by timeout.
func (m *Manager) invoke(ctx context.Context, t Transport, desc models.AgentDescriptor, skill string, body json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := t.Invoke(callCtx, desc, skill, body)
	if err == nil && callCtx.Err() != nil {
		// Result arrived after the deadline; treat it as a timeout.
		err = callCtx.Err()
	}
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("no reply within %s: %w", timeout, context.DeadlineExceeded)
	}
	return out, err
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(p)
	}
}

func (m *Manager) debugf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Debugf(format, args...)
	}
}

func (m *Manager) warnf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Warnf(format, args...)
	}
}
