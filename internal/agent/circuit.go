package agent

import (
	"sync"
	"time"

	"github.com/harrison/codescope/internal/models"
)

// CircuitStatus is the state of one agent's circuit breaker.
type CircuitStatus string

const (
	CircuitClosed   CircuitStatus = "CLOSED"
	CircuitOpen     CircuitStatus = "OPEN"
	CircuitHalfOpen CircuitStatus = "HALF_OPEN"
)

// CircuitState is a read-only view of an agent's breaker.
// OPEN implies FailureCount >= threshold and less than the cooldown has elapsed since OpenedAt.
type CircuitState struct {
	FailureCount int           `json:"failure_count"`
	State        CircuitStatus `json:"state"`
	OpenedAt     time.Time     `json:"opened_at,omitzero"`
}

// errCircuitOpen is returned by allow when a call must fail fast
type errCircuitOpen struct {
	state CircuitStatus
}

func (e errCircuitOpen) Error() string {
	if e.state == CircuitHalfOpen {
		return "circuit half-open, probe already in flight"
	}
	return "circuit open"
}

// breaker tracks failures and health for one agent. Each breaker has its own
// lock, so traffic to unrelated agents never contends.
type breaker struct {
	mu            sync.Mutex
	failures      int
	state         CircuitStatus
	openedAt      time.Time
	probeInFlight bool
	health        models.HealthStatus
	lastHealthyAt time.Time
}

func newBreaker() *breaker {
	return &breaker{state: CircuitClosed, health: models.HealthUnknown}
}

// allow decides whether a call may proceed. probe is true when the caller was
// admitted as the single HALF_OPEN probe and must report back via success,
// failure or release.
func (b *breaker) allow(now time.Time, cooldown time.Duration) (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if now.Sub(b.openedAt) < cooldown {
			return false, errCircuitOpen{state: CircuitOpen}
		}
		b.state = CircuitHalfOpen
		b.probeInFlight = true
		return true, nil
	case CircuitHalfOpen:
		if b.probeInFlight {
			return false, errCircuitOpen{state: CircuitHalfOpen}
		}
		b.probeInFlight = true
		return true, nil
	default:
		return false, nil
	}
}

// success records an answered call. probe is the value allow returned for
// that call. Only the probe decides a HALF_OPEN circuit; a call admitted
// before the circuit opened cannot close it.
func (b *breaker) success(now time.Time, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != CircuitClosed && !probe {
		return
	}
	b.failures = 0
	b.state = CircuitClosed
	b.openedAt = time.Time{}
	b.probeInFlight = false
	b.health = models.HealthUp
	b.lastHealthyAt = now
}

// failure counts a transient failure. It returns true when this failure opened
// (or re-opened) the circuit. Late failures of calls admitted before the
// circuit opened only add to the count and leave an in-flight probe alone.
func (b *breaker) failure(now time.Time, threshold int, probe bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++

	switch {
	case probe:
		b.state = CircuitOpen
		b.openedAt = now
		b.probeInFlight = false
		b.health = models.HealthDown
		return true
	case b.state == CircuitClosed && b.failures >= threshold:
		b.state = CircuitOpen
		b.openedAt = now
		b.health = models.HealthDown
		return true
	}
	return false
}

// release gives up a probe slot without a verdict, e.g. when the caller was cancelled.
func (b *breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeInFlight = false
}

// snapshot reports the breaker as of now. An OPEN circuit whose cooldown has
// elapsed is reported as HALF_OPEN, since the next call will be admitted as a probe.
func (b *breaker) snapshot(now time.Time, cooldown time.Duration) (CircuitState, models.HealthStatus, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs := CircuitState{FailureCount: b.failures, State: b.state, OpenedAt: b.openedAt}
	if cs.State == CircuitOpen && now.Sub(b.openedAt) >= cooldown {
		cs.State = CircuitHalfOpen
	}
	return cs, b.health, b.lastHealthyAt
}

// breakerSet is the process-wide keyed map of breakers.
type breakerSet struct {
	m sync.Map // agent name -> *breaker
}

func (s *breakerSet) get(name string) *breaker {
	if b, ok := s.m.Load(name); ok {
		return b.(*breaker)
	}
	b, _ := s.m.LoadOrStore(name, newBreaker())
	return b.(*breaker)
}

func (s *breakerSet) reset(name string) {
	s.m.Delete(name)
}
