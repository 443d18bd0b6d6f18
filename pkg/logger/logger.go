// Package logger provides a package-level structured logging facade backed
// by log/slog. The gateway's packages log through it rather than through
// slog directly (cmd/gateway imports slog only to build the logger it
// installs with SetOutput), keeping the redaction of sensitive fields in one
// place.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync/atomic"
)

var singleton atomic.Value // *slog.Logger

var sensitiveKey = regexp.MustCompile(`(?i)token|secret|key|authorization`)

func init() {
	singleton.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
}

// SetOutput replaces the backing slog.Logger. Intended for tests and for
// `cmd/gateway` to install the configured level/format at startup.
func SetOutput(l *slog.Logger) {
	if l == nil {
		return
	}
	singleton.Store(l)
}

func current() *slog.Logger {
	return singleton.Load().(*slog.Logger)
}

func redact(args []any) []any {
	out := make([]any, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if ok && sensitiveKey.MatchString(key) {
			out[i+1] = "REDACTED"
		}
	}
	return out
}

// Debug logs at debug level.
func Debug(msg string) { current().Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { current().Debug(fmt.Sprintf(format, args...)) }

// Debugw logs a message with structured key/value fields at debug level.
func Debugw(msg string, kv ...any) { current().Debug(msg, redact(kv)...) }

// Info logs at info level.
func Info(msg string) { current().Info(msg) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { current().Info(fmt.Sprintf(format, args...)) }

// Infow logs a message with structured key/value fields at info level.
func Infow(msg string, kv ...any) { current().Info(msg, redact(kv)...) }

// Warn logs at warn level.
func Warn(msg string) { current().Warn(msg) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { current().Warn(fmt.Sprintf(format, args...)) }

// Warnw logs a message with structured key/value fields at warn level.
func Warnw(msg string, kv ...any) { current().Warn(msg, redact(kv)...) }

// Error logs at error level.
func Error(msg string) { current().Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { current().Error(fmt.Sprintf(format, args...)) }

// Errorw logs a message with structured key/value fields at error level.
func Errorw(msg string, kv ...any) { current().Error(msg, redact(kv)...) }

// Panicf logs a formatted message at error level and then panics.
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	current().Error(msg)
	panic(msg)
}

// WithContext returns a logger that attaches any request-scoped attributes
// found in ctx (currently just the request ID, if one was attached with
// ContextWithRequestID).
func WithContext(ctx context.Context) *slog.Logger {
	l := current()
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return l.With("request_id", id)
	}
	return l
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request ID for WithContext to surface.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
