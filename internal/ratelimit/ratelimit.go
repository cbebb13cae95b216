// Package ratelimit implements ingress API throttling, independent of
// the per-user domain Gate: it protects the HTTP surface itself from a
// single caller hammering any endpoint, regardless of job semantics.
// Adapted from the teacher's RateLimiter (its per-IP limiter), dropping
// the Pi-specific upload/hash limiters that have no analogue here.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one golang.org/x/time/rate.Limiter per caller IP.
type Limiter struct {
	every time.Duration
	burst int

	mu       sync.Mutex
	perIP    map[string]*rate.Limiter
	allowed  int64
	denied   int64
}

func New(every time.Duration, burst int) *Limiter {
	return &Limiter{
		every: every,
		burst: burst,
		perIP: make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.perIP[ip]
	if ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Every(l.every), l.burst)
	l.perIP[ip] = lim
	if len(l.perIP) > 1000 {
		l.evictSome()
	}
	return lim
}

// Allow reports whether a request from ip may proceed.
func (l *Limiter) Allow(ip string) bool {
	ok := l.limiterFor(ip).Allow()
	l.mu.Lock()
	if ok {
		l.allowed++
	} else {
		l.denied++
	}
	l.mu.Unlock()
	return ok
}

// evictSome drops half the tracked IPs once the map grows unbounded.
// Caller must hold l.mu.
func (l *Limiter) evictSome() {
	n := len(l.perIP) / 2
	for ip := range l.perIP {
		delete(l.perIP, ip)
		n--
		if n <= 0 {
			break
		}
	}
}

func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]interface{}{
		"allowed":     l.allowed,
		"denied":      l.denied,
		"tracked_ips": len(l.perIP),
	}
}
