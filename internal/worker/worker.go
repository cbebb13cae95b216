// Package worker implements the Worker (component F): a long-lived
// queue consumer that executes one job at a time, spawning the
// submission's entrypoint as a child process and reporting its outcome
// to the Tracker Adapter. Adapted from the teacher's WorkerPool
// (dequeue loop, atomic counters, context-based shutdown) and grounded
// in original_source's JobWorker for the per-job execution contract.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/anomaly-lab/jobctl/internal/apperr"
	"github.com/anomaly-lab/jobctl/internal/bundlestore"
	"github.com/anomaly-lab/jobctl/internal/jobstore"
	"github.com/anomaly-lab/jobctl/internal/queue"
	"github.com/anomaly-lab/jobctl/internal/sysmetrics"
	"github.com/anomaly-lab/jobctl/internal/tracker"
)

// resourceTimeouts maps a queue message's resource_class to the child
// process's wall-clock budget (spec.md §4.F step 5).
var resourceTimeouts = map[string]time.Duration{
	"small":     30 * time.Minute,
	"medium":    60 * time.Minute,
	"unlimited": 0, // 0 means no deadline
}

const defaultResourceClass = "small"

// Worker consumes queue.Message values and drives one job to a terminal
// state at a time.
type Worker struct {
	Queue        queue.Queue
	Jobs         jobstore.Store
	Bundles      bundlestore.Store
	Tracker      tracker.Tracker
	ArtifactsRoot string
	LogsRoot      string
	PythonBin     string
	DequeueTimeout time.Duration
	Logger        *slog.Logger

	stop      atomic.Bool
	processed atomic.Int64
	failed    atomic.Int64
}

func New(q queue.Queue, jobs jobstore.Store, bundles bundlestore.Store, t tracker.Tracker,
	artifactsRoot, logsRoot, pythonBin string, dequeueTimeout time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		Queue: q, Jobs: jobs, Bundles: bundles, Tracker: t,
		ArtifactsRoot: artifactsRoot, LogsRoot: logsRoot, PythonBin: pythonBin,
		DequeueTimeout: dequeueTimeout, Logger: logger,
	}
}

// Stop requests a graceful shutdown: the dequeue loop exits at its next
// blocking boundary; any in-flight job runs to completion (spec.md §5).
func (w *Worker) Stop() {
	w.stop.Store(true)
}

// Run blocks, dequeuing and executing jobs until Stop is called or ctx
// is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.Logger.Info("worker started")
	defer w.Logger.Info("worker stopped")

	for !w.stop.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.Queue.Dequeue(ctx, w.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Logger.Error("dequeue failed", "error", err)
			continue
		}
		if msg == nil {
			continue
		}

		w.executeJob(ctx, msg)
	}
}

// executeJob runs spec.md §4.F's per-job state machine exactly once,
// guaranteeing the job ends up in exactly one terminal state.
func (w *Worker) executeJob(ctx context.Context, msg *queue.Message) {
	jid := msg.JobID
	logger := w.Logger.With("job_id", jid, "submission_id", msg.SubmissionID)

	if err := w.Jobs.Update(ctx, jid, jobstore.Running, "", ""); err != nil {
		logger.Error("failed to mark job running", "error", err)
		return
	}

	runID, failErr := w.runJob(ctx, msg, logger)
	if failErr != nil {
		w.failed.Add(1)
		if err := w.Jobs.Update(ctx, jid, jobstore.Failed, "", failErr.Error()); err != nil {
			logger.Error("failed to record job failure", "error", err)
		}
		return
	}

	w.processed.Add(1)
	if err := w.Jobs.Update(ctx, jid, jobstore.Completed, runID, ""); err != nil {
		logger.Error("failed to record job completion", "error", err)
	}
}

// runJob implements steps 2-9 of spec.md §4.F and returns the run_id on
// success, or an error whose message is exactly the FAILED error text.
func (w *Worker) runJob(ctx context.Context, msg *queue.Message, logger *slog.Logger) (string, error) {
	bundleDir := w.Bundles.BundleDir(msg.SubmissionID)
	outputDir := filepath.Join(w.ArtifactsRoot, msg.JobID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	if err := validateChildPath(msg.Entrypoint); err != nil {
		return "", err
	}
	if err := validateChildPath(msg.ConfigFile); err != nil {
		return "", err
	}

	logPath := filepath.Join(w.LogsRoot, msg.JobID+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	timeout := resourceTimeoutFor(msg.Config)
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, w.PythonBin,
		filepath.Join(bundleDir, msg.Entrypoint),
		"--config", filepath.Join(bundleDir, msg.ConfigFile),
		"--output", outputDir,
	)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	runErr := cmd.Run()
	logFile.Sync()

	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("timeout after %s", timeout)
	}
	if runErr != nil {
		return "", w.describeChildFailure(logPath, cmd.ProcessState.ExitCode())
	}

	metrics, err := readMetrics(outputDir)
	if err != nil {
		return "", err
	}

	return w.reportToTracker(ctx, msg.JobID, outputDir, metrics)
}

// describeChildFailure implements spec.md §4.F step 7's error
// classification on a non-zero exit: an OOM indicator in the log takes
// precedence, else the log tail, else a generic "exit <n>" message
// carrying the child's exit code.
func (w *Worker) describeChildFailure(logPath string, exitCode int) error {
	data, readErr := os.ReadFile(logPath)
	if readErr != nil || len(data) == 0 {
		return fmt.Errorf("exit %d", exitCode)
	}
	lower := strings.ToLower(string(data))
	if strings.Contains(lower, "outofmemory") || strings.Contains(lower, "oom") {
		return fmt.Errorf("out of memory")
	}
	return fmt.Errorf("%s", tail(data, 20))
}

type jobMetrics struct {
	Params      map[string]interface{} `json:"params"`
	Metrics     map[string]float64     `json:"metrics"`
	Performance map[string]float64     `json:"performance,omitempty"`
}

func readMetrics(outputDir string) (*jobMetrics, error) {
	path := filepath.Join(outputDir, "metrics.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.New(apperr.KindMetricsInvalid, "metrics.json missing")
	}
	var m jobMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperr.New(apperr.KindMetricsInvalid, "metrics.json is not valid JSON")
	}
	if m.Params == nil || m.Metrics == nil {
		return nil, apperr.New(apperr.KindMetricsInvalid, "metrics.json must contain params and metrics")
	}
	return &m, nil
}

// reportToTracker implements spec.md §4.F step 9's ordered tracker
// sequence. Any error is wrapped so its message begins with
// "MLflow recording failed: " and the job is not double-reported.
func (w *Worker) reportToTracker(ctx context.Context, jid, outputDir string, m *jobMetrics) (string, error) {
	runID, err := w.Tracker.StartRun(ctx, jid)
	if err != nil {
		return "", trackerErr(err)
	}

	if err := w.Tracker.LogParams(ctx, runID, m.Params); err != nil {
		return "", trackerErr(err)
	}
	if err := w.Tracker.LogMetrics(ctx, runID, m.Metrics); err != nil {
		return "", trackerErr(err)
	}
	performance := m.Performance
	if sample, err := sysmetrics.Sample(ctx, 100*time.Millisecond); err == nil {
		if performance == nil {
			performance = make(map[string]float64, 3)
		}
		for k, v := range sample.AsPerformanceMetrics() {
			performance[k] = v
		}
	}
	if len(performance) > 0 {
		prefixed := make(map[string]float64, len(performance))
		for k, v := range performance {
			prefixed["system/"+k] = v
		}
		if err := w.Tracker.LogMetrics(ctx, runID, prefixed); err != nil {
			return "", trackerErr(err)
		}
	}
	if err := w.Tracker.LogArtifact(ctx, runID, outputDir); err != nil {
		return "", trackerErr(err)
	}
	if err := w.Tracker.EndRun(ctx, runID, false); err != nil {
		return "", trackerErr(err)
	}
	return runID, nil
}

func trackerErr(err error) error {
	return fmt.Errorf("MLflow recording failed: %s", err.Error())
}

func resourceTimeoutFor(config map[string]interface{}) time.Duration {
	class := defaultResourceClass
	if config != nil {
		if v, ok := config["resource_class"].(string); ok && v != "" {
			class = v
		}
	}
	if d, ok := resourceTimeouts[class]; ok {
		return d
	}
	return resourceTimeouts[defaultResourceClass]
}

func validateChildPath(p string) error {
	if strings.HasPrefix(p, "/") {
		return apperr.New(apperr.KindInvalidName, fmt.Sprintf("path %q must not be absolute", p))
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return apperr.New(apperr.KindInvalidName, fmt.Sprintf("path %q must not traverse directories", p))
		}
	}
	return nil
}

func tail(data []byte, n int) string {
	lines := bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return string(bytes.Join(lines, []byte("\n")))
}
