package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"learnhub-backend/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("service temporarily unavailable due to repeated failures (circuit breaker open)")

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// Gauge returns the numeric value exported for the state
func (s CircuitBreakerState) Gauge() float64 {
	switch s {
	case CircuitBreakerHalfOpen:
		return 1
	case CircuitBreakerOpen:
		return 2
	default:
		return 0
	}
}

// Settings tunes a CircuitBreaker
type Settings struct {
	// FailureThreshold opens the circuit after this many consecutive failures
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a trial call
	Cooldown time.Duration
	// Timeout bounds each call
	Timeout time.Duration
	// OnStateChange is called after every transition, outside the lock
	OnStateChange func(name string, from, to CircuitBreakerState)
	// OnResult is called once per call with "success", "failure" or "circuit_breaker_open"
	OnResult func(name, operation, status string)
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 3
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 10 * time.Second
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	return s
}

// CircuitBreaker fails fast after repeated failures of a remote dependency.
// Calls are never retried: a failure is returned to the caller as is.
type CircuitBreaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(name string, settings Settings) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		settings: settings.withDefaults(),
		now:      time.Now,
		state:    CircuitBreakerClosed,
	}
}

// Execute runs fn unless the circuit is open. In half-open state a single
// trial call is let through; its outcome closes or reopens the circuit.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		logger.Warn("Circuit breaker is OPEN - request blocked",
			zap.String("breaker", cb.name),
			zap.String("operation", operation),
		)
		cb.report(operation, "circuit_breaker_open")
		return ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.settings.Timeout)
	defer cancel()

	err := fn(callCtx)
	cb.record(operation, err)
	return err
}

// GetCircuitBreakerState returns the current circuit breaker state
func (cb *CircuitBreaker) GetCircuitBreakerState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	from := cb.state
	allowed := true

	switch cb.state {
	case CircuitBreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.settings.Cooldown {
			allowed = false
			break
		}
		cb.state = CircuitBreakerHalfOpen
		cb.trialInFlight = true
	case CircuitBreakerHalfOpen:
		if cb.trialInFlight {
			allowed = false
			break
		}
		cb.trialInFlight = true
	}

	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

func (cb *CircuitBreaker) record(operation string, err error) {
	cb.mu.Lock()
	from := cb.state
	cb.trialInFlight = false

	if err == nil {
		cb.consecutiveFailures = 0
		cb.state = CircuitBreakerClosed
	} else {
		cb.consecutiveFailures++
		if cb.state == CircuitBreakerHalfOpen || cb.consecutiveFailures >= cb.settings.FailureThreshold {
			cb.state = CircuitBreakerOpen
			cb.openedAt = cb.now()
		}
	}

	to := cb.state
	failures := cb.consecutiveFailures
	cb.mu.Unlock()

	if err != nil {
		logger.Error("Remote operation failed",
			zap.String("breaker", cb.name),
			zap.String("operation", operation),
			zap.String("error_type", classifyError(err)),
			zap.Int("consecutive_failures", failures),
			zap.Error(err),
		)
		cb.report(operation, "failure")
	} else {
		cb.report(operation, "success")
	}

	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	if from == to {
		return
	}

	switch to {
	case CircuitBreakerOpen:
		logger.Error("Circuit breaker OPEN", zap.String("breaker", cb.name))
	case CircuitBreakerHalfOpen:
		logger.Warn("Circuit breaker HALF-OPEN - allowing trial request", zap.String("breaker", cb.name))
	case CircuitBreakerClosed:
		logger.Info("Circuit breaker CLOSED - recovered", zap.String("breaker", cb.name))
	}

	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) report(operation, status string) {
	if cb.settings.OnResult != nil {
		cb.settings.OnResult(cb.name, operation, status)
	}
}

// classifyError classifies errors for logs
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "not found"):
		return "not_found"
	case strings.Contains(errMsg, "permission denied") || strings.Contains(errMsg, "unauthenticated"):
		return "permission"
	default:
		return "unknown"
	}
}
