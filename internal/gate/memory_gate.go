package gate

import (
	"context"
	"sync"
)

// MemoryGate is an in-process fake implementing Gate, used in unit tests.
// It takes the current running count from an injected accessor so tests
// can drive it independently of a real jobstore.
type MemoryGate struct {
	mu      sync.Mutex
	rate    map[string]int
	running func(uid string) int
}

// NewMemoryGate takes a runningFn returning the caller's current running
// job count; pass a constant-returning func in tests that don't care.
func NewMemoryGate(runningFn func(uid string) int) *MemoryGate {
	return &MemoryGate{rate: make(map[string]int), running: runningFn}
}

func (g *MemoryGate) TryAdmit(ctx context.Context, uid string, maxConcurrency, maxRate int) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running(uid) >= maxConcurrency {
		return ConcurrencyExceeded, nil
	}

	if g.rate[uid] >= maxRate {
		return RateExceeded, nil
	}
	g.rate[uid]++
	return Admitted, nil
}

func (g *MemoryGate) DecrHourly(ctx context.Context, uid string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rate[uid]--
	return nil
}

// RateCount exposes the current hourly rate counter for a user, for
// tests asserting counter conservation (spec.md §8.1).
func (g *MemoryGate) RateCount(uid string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rate[uid]
}
