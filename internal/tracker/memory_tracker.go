package tracker

import (
	"context"
	"sync"

	"github.com/anomaly-lab/jobctl/internal/ids"
)

// MemoryTracker is an in-process fake implementing Tracker, used in
// worker unit tests.
type MemoryTracker struct {
	mu      sync.Mutex
	Runs    map[string]*RunRecord
	FailNew bool // simulate StartRun failing, e.g. to exercise S7
}

type RunRecord struct {
	Name      string
	Params    map[string]interface{}
	Metrics   map[string]float64
	Artifacts []string
	Ended     bool
	Failed    bool
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{Runs: make(map[string]*RunRecord)}
}

func (t *MemoryTracker) StartRun(ctx context.Context, runName string) (string, error) {
	if t.FailNew {
		return "", errTrackerUnavailable
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	runID := ids.New()
	t.Runs[runID] = &RunRecord{Name: runName, Params: map[string]interface{}{}, Metrics: map[string]float64{}}
	return runID, nil
}

func (t *MemoryTracker) LogParams(ctx context.Context, runID string, params map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.Runs[runID]
	if !ok {
		return errUnknownRun
	}
	for k, v := range params {
		run.Params[k] = v
	}
	return nil
}

func (t *MemoryTracker) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.Runs[runID]
	if !ok {
		return errUnknownRun
	}
	for k, v := range metrics {
		run.Metrics[k] = v
	}
	return nil
}

func (t *MemoryTracker) LogArtifact(ctx context.Context, runID, localPath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.Runs[runID]
	if !ok {
		return errUnknownRun
	}
	run.Artifacts = append(run.Artifacts, localPath)
	return nil
}

func (t *MemoryTracker) EndRun(ctx context.Context, runID string, failed bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.Runs[runID]
	if !ok {
		return errUnknownRun
	}
	run.Ended = true
	run.Failed = failed
	return nil
}
