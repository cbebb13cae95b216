package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueEnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Message{JobID: "jid1", Entrypoint: "main.py"}))

	msg, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "jid1", msg.JobID)
}

func TestMemoryQueueDequeueTimeout(t *testing.T) {
	q := NewMemoryQueue(1)
	msg, err := q.Dequeue(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestMemoryQueueFIFOOrder(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Message{JobID: "first"}))
	require.NoError(t, q.Enqueue(ctx, &Message{JobID: "second"}))

	m1, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	m2, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	assert.Equal(t, "first", m1.JobID)
	assert.Equal(t, "second", m2.JobID)
}
