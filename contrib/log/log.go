// Package log is a small structured-logging facade in front of zap, shaped
// the way the rest of this tree expects to call it: a package-level default
// logger, per-component Helpers, and context-carried loggers for request-scoped
// fields.
package log

import (
	"context"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Logger logs a levelled, alternating key-value record.
type Logger interface {
	Log(level Level, keyvals ...any) error
}

// Valuer is resolved against the calling context at log time, so fields like
// a timestamp or a trace ID can be bound once with With and evaluated per
// call instead of per-Logger-construction.
type Valuer func(ctx context.Context) any

func bindValues(ctx context.Context, keyvals []any) {
	for i := 1; i < len(keyvals); i += 2 {
		if v, ok := keyvals[i].(Valuer); ok {
			keyvals[i] = v(ctx)
		}
	}
}

// Timestamp returns a Valuer that formats the current time with layout.
func Timestamp(layout string) Valuer {
	return func(context.Context) any {
		return time.Now().Format(layout)
	}
}
