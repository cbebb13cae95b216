// Package breaker implements a circuit breaker wrapping calls to the
// Tracker Adapter, which spec.md treats as an unreliable external
// dependency that must not be allowed to cascade into worker stalls.
// Adapted from the teacher's CircuitBreaker/CircuitBreakerManager.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker prevents a misbehaving tracker from stalling every job.
type CircuitBreaker struct {
	name         string
	maxFailures  int32
	resetTimeout time.Duration
	halfOpenMax  int32

	failures      atomic.Int32
	lastFailTime  atomic.Int64
	state         atomic.Int32
	halfOpenTests atomic.Int32

	successCount  atomic.Int64
	failureCount  atomic.Int64
	rejectedCount atomic.Int64
}

func New(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  int32(maxFailures),
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
	}
}

// Call runs fn if the circuit permits it. ctx is accepted for future
// cancellation-aware calls but is not consulted by the breaker itself.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	if !cb.canAttempt() {
		cb.rejectedCount.Add(1)
		return fmt.Errorf("circuit breaker is open for %s", cb.name)
	}

	err := fn()
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) canAttempt() bool {
	switch State(cb.state.Load()) {
	case StateClosed:
		return true
	case StateOpen:
		lastFail := cb.lastFailTime.Load()
		if time.Since(time.Unix(0, lastFail)) > cb.resetTimeout {
			if cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				cb.halfOpenTests.Store(0)
			}
			return true
		}
		return false
	case StateHalfOpen:
		tests := cb.halfOpenTests.Add(1)
		return tests <= cb.halfOpenMax
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.successCount.Add(1)
	switch State(cb.state.Load()) {
	case StateHalfOpen:
		if cb.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
			cb.failures.Store(0)
		}
	case StateClosed:
		cb.failures.Store(0)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount.Add(1)
	failures := cb.failures.Add(1)
	cb.lastFailTime.Store(time.Now().UnixNano())

	switch State(cb.state.Load()) {
	case StateClosed:
		if failures >= cb.maxFailures {
			cb.state.Store(int32(StateOpen))
		}
	case StateHalfOpen:
		cb.state.Store(int32(StateOpen))
		cb.failures.Store(cb.maxFailures)
	}
}

func (cb *CircuitBreaker) State() string {
	switch State(cb.state.Load()) {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func (cb *CircuitBreaker) Stats() map[string]interface{} {
	return map[string]interface{}{
		"name":           cb.name,
		"state":          cb.State(),
		"failures":       cb.failures.Load(),
		"success_count":  cb.successCount.Load(),
		"failure_count":  cb.failureCount.Load(),
		"rejected_count": cb.rejectedCount.Load(),
	}
}

// Manager lazily creates and retains one breaker per name, so each
// tracker instance (or each tenant's tracker, if ever split out) gets
// independent failure isolation.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mu       sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*CircuitBreaker)}
}

func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok = m.breakers[name]; ok {
		return cb
	}
	cb = New(name, 5, 30*time.Second)
	m.breakers[name] = cb
	return cb
}
