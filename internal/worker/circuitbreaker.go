package worker

import (
	"sync"
	"time"
)

// CircuitState is one of the three states of the per-worker circuit
// breaker (§4.2, §8 property 6).
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the per-worker thresholds (§4.2 defaults).
type CircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultCircuitBreakerConfig returns the documented defaults:
// failure_threshold=5, recovery_timeout_seconds=60.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second}
}

// CircuitBreaker gates calls to a single worker kind. Counters are
// process-wide and updated atomically under a mutex (§5 "Circuit-breaker
// counters per worker are process-wide and require atomic update").
type CircuitBreaker struct {
	mu sync.Mutex

	cfg CircuitBreakerConfig

	state            CircuitState
	consecutiveFails int
	openedAt         time.Time
	halfOpenInFlight bool
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultCircuitBreakerConfig().RecoveryTimeout
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed, transitioning Open -> HalfOpen
// once the recovery timeout has elapsed and admitting exactly one
// in-flight probe in the half-open state.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.RecoveryTimeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.halfOpenInFlight = true
		return true
	case StateHalfOpen:
		// Only the probe admitted at the Open->HalfOpen transition runs;
		// any call arriving while one is already in flight is rejected.
		return false
	default:
		return false
	}
}

// RecordSuccess closes the circuit (from any state) and resets counters.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.consecutiveFails = 0
	cb.halfOpenInFlight = false
}

// RecordFailure accumulates a failure, opening the circuit once the
// threshold is reached, or re-opening immediately if the half-open probe
// itself failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.openedAt = time.Now()
		cb.halfOpenInFlight = false
		return
	}

	cb.consecutiveFails++
	if cb.consecutiveFails >= cb.cfg.FailureThreshold {
		cb.state = StateOpen
		cb.openedAt = time.Now()
	}
}

// State returns the current state, for debug endpoints.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Registry owns one CircuitBreaker per worker name, created on first use.
type Registry struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty per-worker breaker registry.
func NewRegistry(cfg CircuitBreakerConfig) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// For returns (creating if needed) the breaker for a worker name.
func (r *Registry) For(workerName string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[workerName]
	if !ok {
		cb = NewCircuitBreaker(r.cfg)
		r.breakers[workerName] = cb
	}
	return cb
}

// Snapshot reports the state of every breaker touched so far, for the
// `GET /v1/workers/circuits` debug endpoint.
func (r *Registry) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State().String()
	}
	return out
}
