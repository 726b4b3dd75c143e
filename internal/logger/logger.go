// Package logger configures the process-wide zerolog logger (§6
// LOG_LEVEL/LOG_FORMAT), matching the structured-logging stack the
// orchestrator's domain packages log through via zerolog.Ctx children.
package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Setup configures zerolog's global level and writer and returns the
// root logger. format "console" gets a human-readable writer; anything
// else (including the default) gets newline-delimited JSON.
func Setup(level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	var writer = os.Stdout
	var l zerolog.Logger
	if strings.EqualFold(format, "console") {
		l = zerolog.New(zerolog.ConsoleWriter{Out: writer}).With().Timestamp().Logger()
	} else {
		l = zerolog.New(writer).With().Timestamp().Logger()
	}
	return l
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithTrace returns a child logger carrying the presentation/session
// identifiers that tie a log line back to a workflow run, the same
// correlation the telemetry package attaches to spans and events.
func WithTrace(base zerolog.Logger, presentationID, sessionID string) zerolog.Logger {
	return base.With().
		Str("presentation_id", presentationID).
		Str("session_id", sessionID).
		Logger()
}

// FromContext returns the logger attached to ctx, or a disabled logger
// if none was attached — the same nil-safe fallback zerolog.Ctx uses.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
