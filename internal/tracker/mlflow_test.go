package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anomaly-lab/jobctl/internal/apperr"
	"github.com/anomaly-lab/jobctl/internal/breaker"
)

func newTestServer(t *testing.T, runID string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/mlflow/runs/create":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"run": map[string]interface{}{
					"info": map[string]interface{}{"run_id": runID},
				},
			})
		default:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("{}"))
		}
	}))
}

func TestMLflowTrackerHappyPath(t *testing.T) {
	srv := newTestServer(t, "run-123")
	defer srv.Close()

	tr := NewMLflowTracker(srv.URL, "0", breaker.New("tracker", 5, time.Second), nil)
	ctx := context.Background()

	runID, err := tr.StartRun(ctx, "job-abc")
	require.NoError(t, err)
	assert.Equal(t, "run-123", runID)

	require.NoError(t, tr.LogParams(ctx, runID, map[string]interface{}{"batch_size": 32}))
	require.NoError(t, tr.LogMetrics(ctx, runID, map[string]float64{"accuracy": 0.9}))
	require.NoError(t, tr.EndRun(ctx, runID, false))
}

func TestMLflowTrackerServerErrorIsTrackerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewMLflowTracker(srv.URL, "0", breaker.New("tracker", 5, time.Second), nil)
	_, err := tr.StartRun(context.Background(), "job-abc")
	assert.Equal(t, apperr.KindTrackerFailure, apperr.KindOf(err))
}
