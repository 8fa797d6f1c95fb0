package log

import "context"

// withLogger binds a fixed prefix of keyvals (which may contain Valuers) to
// every record logged through it.
type withLogger struct {
	logger Logger
	prefix []any
	ctx    context.Context
}

// With returns a Logger that always emits kv in addition to whatever is
// passed to Log. Values of type Valuer are resolved at call time.
func With(l Logger, kv ...any) Logger {
	if len(kv)%2 != 0 {
		kv = append(kv, "MISSING")
	}
	if w, ok := l.(*withLogger); ok {
		merged := make([]any, 0, len(w.prefix)+len(kv))
		merged = append(merged, w.prefix...)
		merged = append(merged, kv...)
		return &withLogger{logger: w.logger, prefix: merged, ctx: w.ctx}
	}
	return &withLogger{logger: l, prefix: kv, ctx: context.Background()}
}

// WithContext binds l's Valuers to ctx instead of context.Background.
func WithContext(ctx context.Context, l Logger) Logger {
	if w, ok := l.(*withLogger); ok {
		return &withLogger{logger: w.logger, prefix: w.prefix, ctx: ctx}
	}
	return &withLogger{logger: l, ctx: ctx}
}

func (w *withLogger) Log(level Level, keyvals ...any) error {
	bound := make([]any, len(w.prefix))
	copy(bound, w.prefix)
	bindValues(w.ctx, bound)

	kvs := make([]any, 0, len(bound)+len(keyvals))
	kvs = append(kvs, bound...)
	kvs = append(kvs, keyvals...)
	return w.logger.Log(level, kvs...)
}
