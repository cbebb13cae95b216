// Package jobstore implements the per-job state record and per-user
// running counter (component B), backed by Redis per SPEC_FULL.md,
// grounded in original_source's RedisJobStatusAdapter.
package jobstore

import (
	"context"
	"time"
)

// Status is one of the four lifecycle states a job passes through.
type Status string

const (
	Pending   Status = "PENDING"
	Running   Status = "RUNNING"
	Completed Status = "COMPLETED"
	Failed    Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// Record is a job's persisted state.
type Record struct {
	JobID        string
	SubmissionID string
	UserID       string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RunID        string
	Error        string
}

// TTL is the 90-day expiry on job records (spec.md §3).
const TTL = 90 * 24 * time.Hour

// RunningCounterTTL is the 24h TTL refreshed on every running-counter write.
const RunningCounterTTL = 24 * time.Hour

// Store is the component B capability interface.
type Store interface {
	Create(ctx context.Context, jid, sid, uid string) error
	// Update sets status, refreshes UpdatedAt, and merges the given
	// fields (runID/errMsg may be empty to leave them unchanged).
	Update(ctx context.Context, jid string, status Status, runID, errMsg string) error
	Get(ctx context.Context, jid string) (*Record, error)
	CountRunning(ctx context.Context, uid string) (int, error)
}
