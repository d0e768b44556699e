// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer EngineLogger with contextual
// helpers (session, run, component) and domain helpers for model calls,
// retrieval and pipeline runs.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger defines the minimal logging interface for DiagMesh. Users can
// provide their own implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// NoOpLogger discards all log messages. Useful for testing or when logging is
// disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// EngineLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods. It is cheap to copy via the With* methods.
type EngineLogger struct {
	logger    *slog.Logger
	component string
	sessionID string
	runID     string
}

// EngineLoggerConfig configures construction of an EngineLogger.
type EngineLoggerConfig struct {
	Level     slog.Level
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// NewEngineLogger builds an EngineLogger from a config (or JSON/info defaults
// if nil).
func NewEngineLogger(cfg *EngineLoggerConfig) *EngineLogger {
	if cfg == nil {
		cfg = &EngineLoggerConfig{Level: slog.LevelInfo, Format: "json", Output: os.Stdout}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &EngineLogger{logger: slog.New(handler), component: cfg.Component}
}

// WithComponent returns a copy scoped to the logical component (router,
// retriever, workflow, memory).
func (l *EngineLogger) WithComponent(c string) *EngineLogger {
	nl := *l
	nl.component = c
	return &nl
}

// WithRun returns a copy carrying session and run identifiers.
func (l *EngineLogger) WithRun(sessionID, runID string) *EngineLogger {
	nl := *l
	nl.sessionID = sessionID
	nl.runID = runID
	return &nl
}

func (l *EngineLogger) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	return attrs
}

func (l *EngineLogger) log(level slog.Level, msg string, args ...any) {
	attrs := l.attrs()
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level.
func (l *EngineLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *EngineLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *EngineLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *EngineLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogModelCall records latency, token usage and outcome of a generation call.
func (l *EngineLogger) LogModelCall(model string, tokens int, dur time.Duration, err error) {
	attrs := append(l.attrs(),
		slog.String("model", model),
		slog.Int("token_count", tokens),
		slog.Duration("duration", dur),
		slog.Bool("success", err == nil))
	level := slog.LevelInfo
	msg := "model call completed"
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		level = slog.LevelError
		msg = "model call failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogRetrieval records the outcome of one hybrid retrieval call.
func (l *EngineLogger) LogRetrieval(query string, chunks int, cacheHit bool, degraded []string, dur time.Duration) {
	attrs := append(l.attrs(),
		slog.String("query", query),
		slog.Int("chunk_count", chunks),
		slog.Bool("cache_hit", cacheHit),
		slog.Duration("duration", dur))
	if len(degraded) > 0 {
		attrs = append(attrs, slog.Any("degraded", degraded))
	}
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, "retrieval completed", attrs...)
}

// LogPipelineRun records aggregate run metrics after a pipeline terminal.
func (l *EngineLogger) LogPipelineRun(pipeline string, nodes int, dur time.Duration, errCount int) {
	attrs := append(l.attrs(),
		slog.String("pipeline", pipeline),
		slog.Int("node_count", nodes),
		slog.Duration("duration", dur),
		slog.Int("error_count", errCount))
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, "pipeline run completed", attrs...)
}
