package log

import "context"

type loggerKey struct{}

// NewContext returns a context carrying l, retrievable with FromContext or Context.
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the Logger stashed in ctx, or the package default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return GetLogger()
}

// Context returns a Helper bound to ctx's logger (or the default), with its
// Valuers resolved against ctx. Used at request/read boundaries so a
// request ID bound upstream flows into every subsequent log line.
func Context(ctx context.Context) *Helper {
	return NewHelper(WithContext(ctx, FromContext(ctx)))
}
