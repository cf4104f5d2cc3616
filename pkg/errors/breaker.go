package errors

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig contains configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name string
	// MaxFailures consecutive failures open the circuit.
	MaxFailures int
	// ResetTimeout is how long the circuit stays open before one trial call.
	ResetTimeout  time.Duration
	OnStateChange func(name string, from, to CircuitBreakerState)
	Logger        *logrus.Logger
	// Now is the clock; tests override it.
	Now func() time.Time
}

// CircuitBreaker stops calling a failing dependency for a while. After
// ResetTimeout a single trial call is let through; success closes the
// circuit, failure opens it again.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    CircuitBreakerState
	failures int
	openedAt time.Time
	trial    bool
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn unless the circuit is open, in which case it returns
// ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.trial = true
		return true
	default:
		// one trial at a time
		if cb.trial {
			return false
		}
		cb.trial = true
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trial = false
	if err == nil {
		cb.failures = 0
		if cb.state != StateClosed {
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
		cb.openedAt = cb.cfg.Now()
		if cb.state != StateOpen {
			cb.setState(StateOpen)
		}
	}
}

// setState changes the state and notifies listeners. Callers hold mu.
func (cb *CircuitBreaker) setState(to CircuitBreakerState) {
	from := cb.state
	cb.state = to

	if cb.cfg.OnStateChange != nil {
		go cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
	if cb.cfg.Logger != nil {
		cb.cfg.Logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.cfg.Name,
			"old_state":       from.String(),
			"new_state":       to.String(),
			"failures":        cb.failures,
		}).Info("Circuit breaker state changed")
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetMetrics returns circuit breaker metrics
func (cb *CircuitBreaker) GetMetrics() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"name":          cb.cfg.Name,
		"state":         cb.state.String(),
		"failures":      cb.failures,
		"max_failures":  cb.cfg.MaxFailures,
		"opened_at":     cb.openedAt,
		"reset_timeout": cb.cfg.ResetTimeout.String(),
	}
}
