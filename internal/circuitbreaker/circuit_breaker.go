// Package circuitbreaker guards the upstream portal. When the portal starts
// failing consistently, the breaker opens and callers fail fast instead of
// burning the request throttle on a dead upstream; after a cooldown a few
// probe requests decide whether to close again.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/peer-digital/medla-projects/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means requests are allowed
	StateClosed State = "closed"
	// StateOpen means requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means a few probe requests test whether the upstream recovered
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned while the circuit is open
var ErrOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name string
	// Consecutive failures that open the circuit
	MaxConsecutiveFails int
	// Cooldown before probing the upstream again
	Timeout time.Duration
	// Probe requests allowed in half-open state
	HalfOpenMaxCalls int
}

// DefaultConfig returns thresholds tuned for a slow government portal: a
// handful of consecutive failures spans multiple pages with their retries,
// so tripping means the upstream is really down.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                name,
		MaxConsecutiveFails: 6,
		Timeout:             2 * time.Minute,
		HalfOpenMaxCalls:    2,
	}
}

// CircuitBreaker tracks request outcomes and gates new requests
type CircuitBreaker struct {
	name                string
	maxConsecutiveFails int
	timeout             time.Duration
	halfOpenMaxCalls    int

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenCalls    int
	halfOpenOK       int
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:                config.Name,
		maxConsecutiveFails: config.MaxConsecutiveFails,
		timeout:             config.Timeout,
		halfOpenMaxCalls:    config.HalfOpenMaxCalls,
		state:               StateClosed,
		lastStateChange:     time.Now(),
	}
}

// Allow reports whether a request may proceed
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) > cb.timeout {
			cb.setState(StateHalfOpen)
			logging.GetGlobalLogger().WithField("breaker", cb.name).Info("Circuit breaker half-open, probing upstream")
			return nil
		}
		return ErrOpen

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return ErrOpen
		}
		cb.halfOpenCalls++
		return nil

	default:
		return nil
	}
}

// RecordSuccess notes a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen {
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.halfOpenMaxCalls {
			cb.setState(StateClosed)
			logging.GetGlobalLogger().WithField("breaker", cb.name).Info("Circuit breaker closed after recovery")
		}
	}
}

// RecordFailure notes a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFails >= cb.maxConsecutiveFails {
			cb.setState(StateOpen)
			logging.GetGlobalLogger().WithFields(map[string]interface{}{
				"breaker":          cb.name,
				"consecutiveFails": cb.consecutiveFails,
			}).Warn("Circuit breaker opened")
		}

	case StateHalfOpen:
		// A failed probe reopens immediately
		cb.setState(StateOpen)
		logging.GetGlobalLogger().WithField("breaker", cb.name).Warn("Circuit breaker reopened after failed probe")
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.consecutiveFails = 0
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = time.Now()
	cb.halfOpenCalls = 0
	cb.halfOpenOK = 0
}
