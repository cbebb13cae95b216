//go:build integration

package jobstore_test

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/anomaly-lab/jobctl/internal/jobstore"
)

// These tests exercise RedisStore against a real Redis instance,
// grounded in the teacher's integration_test/config.go container-setup
// pattern. They only run with `go test -tags=integration`, matching the
// teacher's own separation of unit tests from container-backed ones.
func newIntegrationRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(connStr)
	require.NoError(t, err)
	return redis.NewClient(opts)
}

func TestRedisStoreLifecycleAndCounterIntegration(t *testing.T) {
	rdb := newIntegrationRedis(t)
	store := jobstore.NewRedisStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "job1", "sub1", "alice"))

	rec, err := store.Get(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, jobstore.Pending, rec.Status)

	require.NoError(t, store.Update(ctx, "job1", jobstore.Running, "", ""))
	n, err := store.CountRunning(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, store.Update(ctx, "job1", jobstore.Completed, "run-123", ""))
	n, err = store.CountRunning(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	rec, err = store.Get(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, jobstore.Completed, rec.Status)
	require.Equal(t, "run-123", rec.RunID)
}
