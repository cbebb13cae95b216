// Command apiserver runs the control-plane's HTTP surface: submission
// intake, job admission, and status/results lookup (spec.md §6).
// Adapted from the teacher's backend/main.go wiring order: load config,
// construct services, build the Fiber app, register routes, serve with
// graceful shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/anomaly-lab/jobctl/internal/admission"
	"github.com/anomaly-lab/jobctl/internal/breaker"
	"github.com/anomaly-lab/jobctl/internal/bundlestore"
	"github.com/anomaly-lab/jobctl/internal/config"
	"github.com/anomaly-lab/jobctl/internal/gate"
	"github.com/anomaly-lab/jobctl/internal/httpapi"
	"github.com/anomaly-lab/jobctl/internal/jobstore"
	"github.com/anomaly-lab/jobctl/internal/logging"
	"github.com/anomaly-lab/jobctl/internal/queue"
	"github.com/anomaly-lab/jobctl/internal/ratelimit"
	"github.com/anomaly-lab/jobctl/internal/submission"
	"github.com/anomaly-lab/jobctl/internal/sysmetrics"
	"github.com/anomaly-lab/jobctl/internal/tracker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.New()
	logger := logging.New("apiserver", cfg.Environment, logging.ConfigForEnvironment(cfg.Environment))

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
	g := gate.NewRedisGate(rdb)

	var mirror *tracker.ArtifactMirror
	if cfg.ArtifactStoreEndpoint != "" {
		m, err := tracker.NewArtifactMirror(cfg.ArtifactStoreEndpoint, cfg.ArtifactStoreAccess,
			cfg.ArtifactStoreSecret, cfg.ArtifactStoreBucket, cfg.ArtifactStoreSecure)
		if err != nil {
			logger.Error("artifact mirror init failed, continuing without it", "error", err)
		} else {
			mirror = m
			if err := mirror.EnsureBucketExists(context.Background()); err != nil {
				logger.Error("artifact bucket setup failed", "error", err)
			}
		}
	}

	breakers := breaker.NewManager()
	trackerCB := breakers.Get("mlflow")
	trk := tracker.NewMLflowTracker(cfg.TrackingURI, "0", trackerCB, mirror)

	submissions := submission.New(bundles)
	limits := admission.Limits{
		MaxConcurrentRunning:  cfg.MaxConcurrentRunning,
		MaxSubmissionsPerHour: cfg.MaxSubmissionsPerHour,
	}
	adm := admission.New(bundles, g, jobs, q, limits)

	handlers := httpapi.New(submissions, adm, jobs, bundles, cfg.TrackingURI)

	health := sysmetrics.NewHealthChecker()
	health.RegisterCheck("redis", func() error {
		return rdb.Ping(context.Background()).Err()
	})

	limiter := ratelimit.New(5*time.Second, 20)

	app := fiber.New(fiber.Config{
		BodyLimit:    256 * 1024 * 1024,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": true, "message": err.Error()})
		},
	})

	app.Use(cors.New())
	app.Use(fiberlog.New())
	app.Use(func(c *fiber.Ctx) error {
		if !limiter.Allow(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": true, "message": "rate limit exceeded",
			})
		}
		return c.Next()
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(health.CheckHealth())
	})

	api := app.Group("/", httpapi.BearerAuth(cfg.APITokens))
	api.Post("/submissions", handlers.CreateSubmission)
	api.Post("/submissions/:sid/files", handlers.AppendFile)
	api.Get("/submissions/:sid/files", handlers.ListFiles)
	api.Post("/jobs", handlers.CreateJob)
	api.Get("/jobs/:jid/status", handlers.JobStatus)
	api.Get("/jobs/:jid/logs", handlers.JobLogs)
	api.Get("/jobs/:jid/results", handlers.JobResults)

	app.Use("/jobs/:jid/logs/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/jobs/:jid/logs/ws", websocket.New(func(c *websocket.Conn) {
		handlers.LogStream(c)
	}))

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(ctx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	logger.Info("apiserver starting", slog.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
	}
}
