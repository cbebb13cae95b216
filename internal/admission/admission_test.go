package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anomaly-lab/jobctl/internal/apperr"
	"github.com/anomaly-lab/jobctl/internal/bundlestore"
	"github.com/anomaly-lab/jobctl/internal/gate"
	"github.com/anomaly-lab/jobctl/internal/jobstore"
	"github.com/anomaly-lab/jobctl/internal/queue"
)

func newTestService(t *testing.T) (*Service, *bundlestore.Local, *jobstore.MemoryStore, *gate.MemoryGate) {
	t.Helper()
	root := t.TempDir()
	bundles := bundlestore.New(root+"/submissions", root+"/logs")
	jobs := jobstore.NewMemoryStore()
	q := queue.NewMemoryQueue(8)
	g := gate.NewMemoryGate(func(uid string) int {
		n, _ := jobs.CountRunning(context.Background(), uid)
		return n
	})
	svc := New(bundles, g, jobs, q, Limits{MaxConcurrentRunning: 2, MaxSubmissionsPerHour: 2})
	return svc, bundles, jobs, g
}

func TestEnqueueJobHappyPath(t *testing.T) {
	svc, bundles, jobs, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, bundles.Create("sid1", map[string][]byte{
		"main.py":     []byte("print('hi')"),
		"config.yaml": []byte("batch_size: 1"),
	}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "config.yaml"}))

	jid, err := svc.EnqueueJob(ctx, "sid1", "alice", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, jid)

	rec, err := jobs.Get(ctx, jid)
	require.NoError(t, err)
	assert.Equal(t, jobstore.Pending, rec.Status)

	msg, err := svc.Queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, jid, msg.JobID)
}

// TestEnqueueJobThreadsCallerConfigIntoQueueMessage pins down spec.md
// §6's POST /jobs body ("submission_id", "config"): the caller-supplied
// config (e.g. resource_class) must reach the queued message so the
// worker's timeout selection (§4.F step 5) is actually reachable from
// the HTTP surface, not only from submission-time metadata.
func TestEnqueueJobThreadsCallerConfigIntoQueueMessage(t *testing.T) {
	svc, bundles, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, bundles.Create("sid1", map[string][]byte{
		"main.py":     []byte("print('hi')"),
		"config.yaml": []byte("batch_size: 1"),
	}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "config.yaml"}))

	jid, err := svc.EnqueueJob(ctx, "sid1", "alice", map[string]interface{}{"resource_class": "medium"})
	require.NoError(t, err)
	assert.NotEmpty(t, jid)

	msg, err := svc.Queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "medium", msg.Config["resource_class"])
}

func TestEnqueueJobMissingSubmission(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.EnqueueJob(context.Background(), "nope", "alice", nil)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestEnqueueJobIncompleteRollsBackHourlyCounter(t *testing.T) {
	svc, bundles, _, g := newTestService(t)
	ctx := context.Background()

	require.NoError(t, bundles.Create("sid1", map[string][]byte{
		"main.py": []byte("print('hi')"),
	}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "config.yaml"}))

	_, err := svc.EnqueueJob(ctx, "sid1", "alice", nil)
	assert.Equal(t, apperr.KindIncomplete, apperr.KindOf(err))
	assert.Equal(t, 0, g.RateCount("alice"))

	// Rollback means a subsequent submission is not penalized for the
	// failed attempt's rate-counter increment.
	require.NoError(t, bundles.Create("sid2", map[string][]byte{
		"main.py":     []byte("print('hi')"),
		"config.yaml": []byte("batch_size: 1"),
	}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "config.yaml"}))

	jid, err := svc.EnqueueJob(ctx, "sid2", "alice", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, jid)
}

func TestEnqueueJobRejectsMatchingEntrypointAndConfig(t *testing.T) {
	svc, bundles, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, bundles.Create("sid1", map[string][]byte{
		"main.py": []byte("print('hi')"),
	}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "main.py"}))

	_, err := svc.EnqueueJob(ctx, "sid1", "alice", nil)
	assert.Equal(t, apperr.KindIncomplete, apperr.KindOf(err))
}

// TestEnqueueJobRateExceeded walks spec.md S2 with R=2: the third
// attempt must be rejected and must leave rate:<uid> at 2, not 3 — a
// rejected attempt must never mutate the counter (spec.md §8.1's
// counter-conservation invariant).
func TestEnqueueJobRateExceeded(t *testing.T) {
	svc, bundles, _, g := newTestService(t)
	ctx := context.Background()

	for i, sid := range []string{"sid1", "sid2", "sid3"} {
		require.NoError(t, bundles.Create(sid, map[string][]byte{
			"main.py":     []byte("print('hi')"),
			"config.yaml": []byte("batch_size: 1"),
		}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "config.yaml"}))
		_, err := svc.EnqueueJob(ctx, sid, "alice", nil)
		if i < 2 {
			require.NoError(t, err)
		} else {
			assert.Equal(t, apperr.KindRateExceeded, apperr.KindOf(err))
		}
	}
	assert.Equal(t, 2, g.RateCount("alice"))
}

func TestEnqueueJobConcurrencyExceeded(t *testing.T) {
	svc, bundles, jobs, _ := newTestService(t)
	ctx := context.Background()

	for _, sid := range []string{"sid1", "sid2"} {
		require.NoError(t, bundles.Create(sid, map[string][]byte{
			"main.py":     []byte("print('hi')"),
			"config.yaml": []byte("batch_size: 1"),
		}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "config.yaml"}))
	}

	jid1, err := svc.EnqueueJob(ctx, "sid1", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, jobs.Update(ctx, jid1, jobstore.Running, "", ""))

	svc.Limits.MaxSubmissionsPerHour = 10
	require.NoError(t, bundles.Create("sid3", map[string][]byte{
		"main.py":     []byte("print('hi')"),
		"config.yaml": []byte("batch_size: 1"),
	}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "config.yaml"}))
	jid2, err := svc.EnqueueJob(ctx, "sid3", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, jobs.Update(ctx, jid2, jobstore.Running, "", ""))

	require.NoError(t, bundles.Create("sid4", map[string][]byte{
		"main.py":     []byte("print('hi')"),
		"config.yaml": []byte("batch_size: 1"),
	}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "config.yaml"}))
	_, err = svc.EnqueueJob(ctx, "sid4", "alice", nil)
	assert.Equal(t, apperr.KindConcurrencyExceeded, apperr.KindOf(err))
}
