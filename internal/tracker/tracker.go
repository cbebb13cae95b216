// Package tracker implements the Tracker Adapter (component G): the
// bridge from a finished job's metrics.json to an experiment-tracking
// backend. Grounded in original_source's TrackingPort/
// MLflowTrackingAdapter, reimplemented as an MLflow REST client with an
// optional S3-compatible artifact mirror, since this service has no
// Python process to host the mlflow client library in-process.
package tracker

import "context"

// Tracker is the component G capability interface.
type Tracker interface {
	StartRun(ctx context.Context, runName string) (string, error)
	LogParams(ctx context.Context, runID string, params map[string]interface{}) error
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error
	LogArtifact(ctx context.Context, runID, localPath string) error
	EndRun(ctx context.Context, runID string, failed bool) error
}
