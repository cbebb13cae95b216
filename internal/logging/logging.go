// Package logging provides the structured logger used across the
// control-plane, adapted from the teacher's pkg/logging: a log/slog base
// wrapped with a context handler that injects correlation and job ids
// into every record.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	ContextKeyCorrelationID = contextKey("correlation_id")
	ContextKeyJobID         = contextKey("job_id")
	ContextKeyUserID        = contextKey("user_id")
)

// Config controls how the logger renders output.
type Config struct {
	Level        slog.Level
	OutputFormat string // "json" or "text"
	AddSource    bool
	Output       io.Writer
}

// ConfigForEnvironment returns sensible defaults for the named
// environment ("production", "development", or anything else).
func ConfigForEnvironment(env string) *Config {
	cfg := &Config{
		Level:        slog.LevelInfo,
		OutputFormat: "json",
		AddSource:    false,
		Output:       os.Stdout,
	}
	switch env {
	case "development", "dev":
		cfg.Level = slog.LevelDebug
		cfg.OutputFormat = "text"
		cfg.AddSource = true
	}
	return cfg
}

// New builds a *slog.Logger tagged with service/environment fields and a
// context handler that pulls correlation/job/user ids out of ctx.
func New(serviceName, environment string, cfg *Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.OutputFormat == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	handler = &contextHandler{next: handler}

	return slog.New(handler).With(
		slog.String("service", serviceName),
		slog.String("environment", environment),
		slog.Int("pid", os.Getpid()),
	)
}

// contextHandler copies well-known context values onto every record as
// attributes, so callers don't have to repeat them at every log site.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if v, ok := ctx.Value(ContextKeyCorrelationID).(string); ok && v != "" {
		r.AddAttrs(slog.String("correlation_id", v))
	}
	if v, ok := ctx.Value(ContextKeyJobID).(string); ok && v != "" {
		r.AddAttrs(slog.String("job_id", v))
	}
	if v, ok := ctx.Value(ContextKeyUserID).(string); ok && v != "" {
		r.AddAttrs(slog.String("user_id", v))
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}

// WithJobID returns a context carrying jid for downstream log calls.
func WithJobID(ctx context.Context, jid string) context.Context {
	return context.WithValue(ctx, ContextKeyJobID, jid)
}

// WithUserID returns a context carrying uid for downstream log calls.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, uid)
}
