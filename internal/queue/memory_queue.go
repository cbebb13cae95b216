package queue

import (
	"context"
	"time"
)

// MemoryQueue is an in-process fake backed by a buffered channel, used
// in unit tests per spec.md §9's substitutability requirement.
type MemoryQueue struct {
	ch chan *Message
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan *Message, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
