package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anomaly-lab/jobctl/internal/apperr"
	"github.com/anomaly-lab/jobctl/internal/breaker"
)

// MLflowTracker speaks the MLflow Tracking Server REST API directly,
// since this service has no embedded Python runtime to host the mlflow
// client the way original_source's adapter does. Every call is wrapped
// by a circuit breaker: a wedged or unreachable tracking server must
// not stall the worker pool (spec.md's "tracker is unreliable" note).
type MLflowTracker struct {
	baseURL    string
	httpClient *http.Client
	experiment string
	breaker    *breaker.CircuitBreaker
	mirror     *ArtifactMirror // optional
}

func NewMLflowTracker(baseURL, experimentID string, cb *breaker.CircuitBreaker, mirror *ArtifactMirror) *MLflowTracker {
	return &MLflowTracker{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		experiment: experimentID,
		breaker:    cb,
		mirror:     mirror,
	}
}

func (t *MLflowTracker) StartRun(ctx context.Context, runName string) (string, error) {
	var runID string
	err := t.breaker.Call(ctx, func() error {
		body := map[string]interface{}{
			"experiment_id": t.experiment,
			"start_time":    time.Now().UnixMilli(),
			"tags":          []map[string]string{{"key": "mlflow.runName", "value": runName}},
		}
		var resp struct {
			Run struct {
				Info struct {
					RunID string `json:"run_id"`
				} `json:"info"`
			} `json:"run"`
		}
		if err := t.post(ctx, "/api/2.0/mlflow/runs/create", body, &resp); err != nil {
			return err
		}
		runID = resp.Run.Info.RunID
		return nil
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindTrackerFailure, "start tracking run", err)
	}
	return runID, nil
}

func (t *MLflowTracker) LogParams(ctx context.Context, runID string, params map[string]interface{}) error {
	if len(params) == 0 {
		return nil
	}
	entries := make([]map[string]string, 0, len(params))
	for k, v := range params {
		entries = append(entries, map[string]string{"key": k, "value": fmt.Sprintf("%v", v)})
	}
	err := t.breaker.Call(ctx, func() error {
		return t.post(ctx, "/api/2.0/mlflow/runs/log-batch", map[string]interface{}{
			"run_id": runID,
			"params": entries,
		}, nil)
	})
	if err != nil {
		return apperr.Wrap(apperr.KindTrackerFailure, "log run params", err)
	}
	return nil
}

func (t *MLflowTracker) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	if len(metrics) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	entries := make([]map[string]interface{}, 0, len(metrics))
	for k, v := range metrics {
		entries = append(entries, map[string]interface{}{"key": k, "value": v, "timestamp": now, "step": 0})
	}
	err := t.breaker.Call(ctx, func() error {
		return t.post(ctx, "/api/2.0/mlflow/runs/log-batch", map[string]interface{}{
			"run_id":  runID,
			"metrics": entries,
		}, nil)
	})
	if err != nil {
		return apperr.Wrap(apperr.KindTrackerFailure, "log run metrics", err)
	}
	return nil
}

// LogArtifact uploads localPath to the optional S3-compatible mirror,
// since MLflow's REST API has no artifact-upload endpoint of its own
// (the reference Python client writes straight to the configured
// artifact store, which here is the mirror).
func (t *MLflowTracker) LogArtifact(ctx context.Context, runID, localPath string) error {
	if t.mirror == nil {
		return nil
	}
	err := t.breaker.Call(ctx, func() error {
		return t.mirror.Upload(ctx, runID, localPath)
	})
	if err != nil {
		return apperr.Wrap(apperr.KindTrackerFailure, "mirror artifact", err)
	}
	return nil
}

func (t *MLflowTracker) EndRun(ctx context.Context, runID string, failed bool) error {
	status := "FINISHED"
	if failed {
		status = "FAILED"
	}
	err := t.breaker.Call(ctx, func() error {
		return t.post(ctx, "/api/2.0/mlflow/runs/update", map[string]interface{}{
			"run_id":   runID,
			"status":   status,
			"end_time": time.Now().UnixMilli(),
		}, nil)
	})
	if err != nil {
		return apperr.Wrap(apperr.KindTrackerFailure, "end tracking run", err)
	}
	return nil
}

func (t *MLflowTracker) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("tracking server returned %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
