// Package queue implements the job queue (component C): a FIFO handoff
// between the Admission Service and the Worker, backed by Redis per
// SPEC_FULL.md, grounded in original_source's RedisJobQueueAdapter.
package queue

import (
	"context"
	"time"
)

// Message is the payload enqueued for a single accepted job.
type Message struct {
	JobID        string                 `json:"job_id"`
	SubmissionID string                 `json:"submission_id"`
	UserID       string                 `json:"user_id"`
	Entrypoint   string                 `json:"entrypoint"`
	ConfigFile   string                 `json:"config_file"`
	Config       map[string]interface{} `json:"config,omitempty"`
}

// Queue is the component C capability interface.
type Queue interface {
	Enqueue(ctx context.Context, msg *Message) error
	// Dequeue blocks up to timeout waiting for a message. It returns
	// nil, nil if timeout elapses with nothing queued.
	Dequeue(ctx context.Context, timeout time.Duration) (*Message, error)
}
