// Package config loads the control-plane's configuration from the
// process environment, in the single flat struct + getEnv style the
// teacher repo uses for its own Config.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Storage roots (component A, worker artifact output).
	SubmissionsRoot string
	LogsRoot        string
	ArtifactsRoot   string

	// Redis-backed state store / queue / gate (components B, C, D).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Experiment tracker (component G).
	TrackingURI           string
	ArtifactStoreEndpoint string
	ArtifactStoreBucket   string
	ArtifactStoreAccess   string
	ArtifactStoreSecret   string
	ArtifactStoreSecure   bool

	// Admission limits (component D).
	MaxSubmissionsPerHour int
	MaxConcurrentRunning  int

	// Auth.
	APITokens []string

	// Worker behavior (component F).
	DequeueTimeout time.Duration
	PythonBin      string

	// Server.
	Port        string
	Environment string
}

func New() *Config {
	return &Config{
		SubmissionsRoot: getEnv("SUBMISSIONS_ROOT", "/var/lib/jobctl/submissions"),
		LogsRoot:        getEnv("LOGS_ROOT", "/var/lib/jobctl/logs"),
		ArtifactsRoot:   getEnv("ARTIFACTS_ROOT", "/var/lib/jobctl/artifacts"),

		RedisAddr:     getEnv("QUEUE_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TrackingURI:           getEnv("TRACKING_URI", ""),
		ArtifactStoreEndpoint: getEnv("ARTIFACT_STORE_ENDPOINT", ""),
		ArtifactStoreBucket:   getEnv("ARTIFACT_STORE_BUCKET", "jobctl-artifacts"),
		ArtifactStoreAccess:   getEnv("ARTIFACT_STORE_ACCESS_KEY", ""),
		ArtifactStoreSecret:   getEnv("ARTIFACT_STORE_SECRET_KEY", ""),
		ArtifactStoreSecure:   getEnvBool("ARTIFACT_STORE_SECURE", true),

		MaxSubmissionsPerHour: getEnvInt("MAX_SUBMISSIONS_PER_HOUR", 50),
		MaxConcurrentRunning:  getEnvInt("MAX_CONCURRENT_RUNNING", 2),

		APITokens: getEnvList("API_TOKENS"),

		DequeueTimeout: time.Duration(getEnvInt("DEQUEUE_TIMEOUT_SECONDS", 30)) * time.Second,
		PythonBin:      getEnv("PYTHON_BIN", "python3"),

		Port:        getEnv("PORT", "8000"),
		Environment: getEnv("ENV", "production"),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
