// Package logging provides the structured logger used across Clip Drop.
//
// Call sites log a message plus a field map, the same shape everywhere:
//
//	logging.Info("upload_complete", map[string]any{"submission_id": id})
//
// Output is JSON in production and logfmt-style text in development.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields is the structured payload attached to a log entry.
type Fields = map[string]any

type ctxKey string

const requestIDKey ctxKey = "request_id"

// DefaultLogger is the process-wide logger. Configure replaces it.
var DefaultLogger = newLogger(os.Stdout, "info", false)

// Options controls formatter and level selection.
type Options struct {
	Format string // "json" or "text"
	Level  string // debug, info, warn, error
	Output io.Writer
}

// Configure rebuilds DefaultLogger from opts.
func Configure(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	DefaultLogger = newLogger(out, opts.Level, strings.EqualFold(opts.Format, "json"))
}

func newLogger(out io.Writer, level string, json bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(parseLevel(level))
	if json {
		l.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "msg",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			DisableColors:    true,
			QuoteEmptyFields: true,
		})
	}
	return l
}

// parseLevel maps the configured level name, defaulting to info.
func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithRequestID stores the request id so Ctx can attach it to entries.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(requestIDKey).(string); ok {
		return s
	}
	return ""
}

// Ctx returns fields with the request id from ctx merged in.
func Ctx(ctx context.Context, fields Fields) Fields {
	out := make(Fields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	if rid := RequestID(ctx); rid != "" {
		out["request_id"] = rid
	}
	return out
}

// Debug logs a debug message
func Debug(msg string, fields Fields) {
	DefaultLogger.WithFields(logrus.Fields(fields)).Debug(msg)
}

// Info logs an info message
func Info(msg string, fields Fields) {
	DefaultLogger.WithFields(logrus.Fields(fields)).Info(msg)
}

// Warn logs a warning message
func Warn(msg string, fields Fields) {
	DefaultLogger.WithFields(logrus.Fields(fields)).Warn(msg)
}

// Error logs an error message with the error attached.
func Error(msg string, fields Fields, err error) {
	e := DefaultLogger.WithFields(logrus.Fields(fields))
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}
