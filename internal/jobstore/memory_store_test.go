package jobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycleAndCounter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, "jid1", "sid1", "alice"))
	rec, err := store.Get(ctx, "jid1")
	require.NoError(t, err)
	assert.Equal(t, Pending, rec.Status)

	n, err := store.CountRunning(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, store.Update(ctx, "jid1", Running, "", ""))
	n, err = store.CountRunning(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Update(ctx, "jid1", Completed, "run-1", ""))
	n, err = store.CountRunning(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rec, err = store.Get(ctx, "jid1")
	require.NoError(t, err)
	assert.Equal(t, Completed, rec.Status)
	assert.Equal(t, "run-1", rec.RunID)
	assert.True(t, rec.Status.Terminal())
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	rec, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
