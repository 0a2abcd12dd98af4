package broker

import (
	"sync/atomic"
	"time"
)

// BreakerState is one of the three circuit-breaker states an Endpoint can
// be in.
type BreakerState int32

const (
	Closed BreakerState = iota
	HalfOpen
	Open
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case HalfOpen:
		return "HALF_OPEN"
	case Open:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig configures the per-endpoint breaker: trip
// threshold, half-open cooldown, and which failure classes count against
// it.
type CircuitBreakerConfig struct {
	Enabled          bool
	MaxFailures      int64
	HalfOpenTime     time.Duration
	FailureOnTimeout bool
	FailureOnReject  bool
}

// DefaultCircuitBreakerConfig matches Moleculer's own defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          false,
		MaxFailures:      5,
		HalfOpenTime:     10 * time.Second,
		FailureOnTimeout: true,
		FailureOnReject:  true,
	}
}

// Endpoint is a (nodeID, action) pair the registry can select for a call.
// It owns its own circuit-breaker state; mutual exclusion is per-endpoint
// (atomics), not a registry-wide lock.
type Endpoint struct {
	NodeID string
	Action string
	Local  bool
	Handler ActionHandler

	cfg      CircuitBreakerConfig
	state    atomic.Int32
	failures atomic.Int64
	openedAt atomic.Int64 // unix nanos
}

func newEndpoint(nodeID, action string, local bool, handler ActionHandler, cfg CircuitBreakerConfig) *Endpoint {
	return &Endpoint{NodeID: nodeID, Action: action, Local: local, Handler: handler, cfg: cfg}
}

// State returns the effective breaker state, auto-promoting OPEN to
// HALF_OPEN once halfOpenTime has elapsed since openedAt.
func (e *Endpoint) State() BreakerState {
	if !e.cfg.Enabled {
		return Closed
	}
	s := BreakerState(e.state.Load())
	if s != Open {
		return s
	}
	openedAt := time.Unix(0, e.openedAt.Load())
	if time.Since(openedAt) >= e.cfg.HalfOpenTime {
		// First reader to observe the elapsed window promotes it; a racing
		// reader that loses the CAS still sees the now-current state.
		e.state.CompareAndSwap(int32(Open), int32(HalfOpen))
		return BreakerState(e.state.Load())
	}
	return s
}

// Success closes the breaker and resets the failure counter: the first
// successful call moves a HALF_OPEN endpoint straight to CLOSED.
func (e *Endpoint) Success() {
	if !e.cfg.Enabled {
		return
	}
	e.failures.Store(0)
	e.state.Store(int32(Closed))
}

// Failure increments the failure counter and opens the breaker once
// maxFailures is reached (from CLOSED) or immediately (from HALF_OPEN).
func (e *Endpoint) Failure() {
	if !e.cfg.Enabled {
		return
	}
	cur := BreakerState(e.state.Load())
	if cur == HalfOpen {
		e.open()
		return
	}
	n := e.failures.Add(1)
	if n >= e.cfg.MaxFailures {
		e.open()
	}
}

func (e *Endpoint) open() {
	e.openedAt.Store(time.Now().UnixNano())
	e.state.Store(int32(Open))
}
