// Command worker runs the job execution loop (component F): it dequeues
// admitted jobs one at a time, runs the submission's entrypoint as a
// child process, and reports the outcome to the Tracker Adapter.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/anomaly-lab/jobctl/internal/breaker"
	"github.com/anomaly-lab/jobctl/internal/bundlestore"
	"github.com/anomaly-lab/jobctl/internal/config"
	"github.com/anomaly-lab/jobctl/internal/jobstore"
	"github.com/anomaly-lab/jobctl/internal/logging"
	"github.com/anomaly-lab/jobctl/internal/queue"
	"github.com/anomaly-lab/jobctl/internal/tracker"
	"github.com/anomaly-lab/jobctl/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.New()
	logger := logging.New("worker", cfg.Environment, logging.ConfigForEnvironment(cfg.Environment))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Error("redis ping failed at startup", "error", err)
	}

	bundles := bundlestore.New(cfg.SubmissionsRoot, cfg.LogsRoot)
	jobs := jobstore.NewRedisStore(rdb)
	q := queue.NewRedisQueue(rdb)

	var mirror *tracker.ArtifactMirror
	if cfg.ArtifactStoreEndpoint != "" {
		m, err := tracker.NewArtifactMirror(cfg.ArtifactStoreEndpoint, cfg.ArtifactStoreAccess,
			cfg.ArtifactStoreSecret, cfg.ArtifactStoreBucket, cfg.ArtifactStoreSecure)
		if err != nil {
			logger.Error("artifact mirror init failed, continuing without it", "error", err)
		} else {
			mirror = m
		}
	}

	breakers := breaker.NewManager()
	trk := tracker.NewMLflowTracker(cfg.TrackingURI, "0", breakers.Get("mlflow"), mirror)

	w := worker.New(q, jobs, bundles, trk, cfg.ArtifactsRoot, cfg.LogsRoot, cfg.PythonBin, cfg.DequeueTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("stop signal received, draining in-flight job")
		w.Stop()
	}()

	w.Run(ctx)
}
