// Package gate implements the rate/concurrency gate (component D): the
// admission-time check that a user is under both their hourly submission
// rate and their concurrent-running-job limit, per spec.md §4.D.
// Grounded in original_source's RedisRateLimitAdapter, which reads the
// job-state-owned running counter and keeps its own hourly counter.
package gate

import "context"

// HourlyTTL is the expiry on the per-user hourly submission counter.
const HourlyTTL = 60 * 60 // seconds, passed straight into redis TTL args

// Gate is the component D capability interface.
type Gate interface {
	// TryAdmit atomically checks the caller's current running count
	// against maxConcurrency and checks the hourly counter against
	// maxRate, incrementing it only when the attempt is admitted. It
	// returns which limit was hit, if any.
	TryAdmit(ctx context.Context, uid string, maxConcurrency, maxRate int) (Decision, error)
	// DecrHourly rolls back the hourly counter increment made by a
	// TryAdmit call whose job was subsequently rejected for another
	// reason (spec.md §4.E rollback steps).
	DecrHourly(ctx context.Context, uid string) error
}

// Decision reports the admission outcome of a TryAdmit call.
type Decision int

const (
	Admitted Decision = iota
	RateExceeded
	ConcurrencyExceeded
)
