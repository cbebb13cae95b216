package worker

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anomaly-lab/jobctl/internal/apperr"
	"github.com/anomaly-lab/jobctl/internal/bundlestore"
	"github.com/anomaly-lab/jobctl/internal/jobstore"
	"github.com/anomaly-lab/jobctl/internal/queue"
	"github.com/anomaly-lab/jobctl/internal/tracker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testHarness struct {
	w       *Worker
	jobs    *jobstore.MemoryStore
	bundles *bundlestore.Local
	trk     *tracker.MemoryTracker
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	root := t.TempDir()
	bundles := bundlestore.New(filepath.Join(root, "submissions"), filepath.Join(root, "logs"))
	require.NoError(t, os.MkdirAll(bundles.LogsRoot, 0o755))
	jobs := jobstore.NewMemoryStore()
	trk := tracker.NewMemoryTracker()
	artifactsRoot := filepath.Join(root, "artifacts")
	require.NoError(t, os.MkdirAll(artifactsRoot, 0o755))

	w := New(nil, jobs, bundles, trk, artifactsRoot, bundles.LogsRoot, "/bin/sh", time.Second, testLogger())
	return &testHarness{w: w, jobs: jobs, bundles: bundles, trk: trk}
}

func writeEntrypoint(t *testing.T, h *testHarness, sid, script string) {
	t.Helper()
	require.NoError(t, h.bundles.Create(sid, map[string][]byte{
		"main.py":     []byte(script),
		"config.yaml": []byte("batch_size: 1"),
	}, bundlestore.Metadata{UserID: "alice", Entrypoint: "main.py", ConfigFile: "config.yaml"}))
}

func TestWorkerHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	writeEntrypoint(t, h, "sid1", `#!/bin/sh
out=""
while [ "$1" != "" ]; do
  if [ "$1" = "--output" ]; then shift; out="$1"; fi
  shift
done
echo '{"params":{"method":"test"},"metrics":{"auc":0.95}}' > "$out/metrics.json"
echo "done"
`)
	require.NoError(t, h.jobs.Create(ctx, "jid1", "sid1", "alice"))

	msg := &queue.Message{JobID: "jid1", SubmissionID: "sid1", Entrypoint: "main.py", ConfigFile: "config.yaml"}
	h.w.executeJob(ctx, msg)

	rec, err := h.jobs.Get(ctx, "jid1")
	require.NoError(t, err)
	assert.Equal(t, jobstore.Completed, rec.Status)
	assert.NotEmpty(t, rec.RunID)

	run := h.trk.Runs[rec.RunID]
	require.NotNil(t, run)
	assert.True(t, run.Ended)
	assert.False(t, run.Failed)
	assert.Equal(t, 0.95, run.Metrics["auc"])
}

func TestWorkerTimeout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	writeEntrypoint(t, h, "sid1", `#!/bin/sh
sleep 10
`)
	require.NoError(t, h.jobs.Create(ctx, "jid1", "sid1", "alice"))

	msg := &queue.Message{
		JobID: "jid1", SubmissionID: "sid1", Entrypoint: "main.py", ConfigFile: "config.yaml",
		Config: map[string]interface{}{"resource_class": "tiny"},
	}
	resourceTimeouts["tiny"] = 50 * time.Millisecond
	defer delete(resourceTimeouts, "tiny")

	h.w.executeJob(ctx, msg)

	rec, err := h.jobs.Get(ctx, "jid1")
	require.NoError(t, err)
	assert.Equal(t, jobstore.Failed, rec.Status)
	assert.Contains(t, rec.Error, "timeout")
}

func TestWorkerOOMDetection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	writeEntrypoint(t, h, "sid1", `#!/bin/sh
echo "CUDA OutOfMemory error" 1>&2
exit 1
`)
	require.NoError(t, h.jobs.Create(ctx, "jid1", "sid1", "alice"))

	msg := &queue.Message{JobID: "jid1", SubmissionID: "sid1", Entrypoint: "main.py", ConfigFile: "config.yaml"}
	h.w.executeJob(ctx, msg)

	rec, err := h.jobs.Get(ctx, "jid1")
	require.NoError(t, err)
	assert.Equal(t, jobstore.Failed, rec.Status)
	assert.Equal(t, "out of memory", rec.Error)
}

func TestWorkerTrackerFailureNotDoubleReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.trk.FailNew = true

	writeEntrypoint(t, h, "sid1", `#!/bin/sh
out=""
while [ "$1" != "" ]; do
  if [ "$1" = "--output" ]; then shift; out="$1"; fi
  shift
done
echo '{"params":{},"metrics":{}}' > "$out/metrics.json"
`)
	require.NoError(t, h.jobs.Create(ctx, "jid1", "sid1", "alice"))

	msg := &queue.Message{JobID: "jid1", SubmissionID: "sid1", Entrypoint: "main.py", ConfigFile: "config.yaml"}
	h.w.executeJob(ctx, msg)

	rec, err := h.jobs.Get(ctx, "jid1")
	require.NoError(t, err)
	assert.Equal(t, jobstore.Failed, rec.Status)
	assert.Contains(t, rec.Error, "MLflow recording failed")
}

func TestWorkerMetricsMissing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	writeEntrypoint(t, h, "sid1", `#!/bin/sh
exit 0
`)
	require.NoError(t, h.jobs.Create(ctx, "jid1", "sid1", "alice"))

	msg := &queue.Message{JobID: "jid1", SubmissionID: "sid1", Entrypoint: "main.py", ConfigFile: "config.yaml"}
	_, runErr := h.w.runJob(ctx, msg, testLogger())
	require.Error(t, runErr)
	assert.Equal(t, apperr.KindMetricsInvalid, apperr.KindOf(runErr))
}
