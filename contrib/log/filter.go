package log

var _ Logger = (*filterLogger)(nil)

type filterLogger struct {
	logger Logger
	level  Level
}

// FilterOption configures a filter Logger.
type FilterOption func(*filterLogger)

// FilterLevel drops any record below level.
func FilterLevel(level Level) FilterOption {
	return func(f *filterLogger) {
		f.level = level
	}
}

// NewFilter wraps l so records below the configured level are dropped
// before reaching it. Used to quiet a noisy dependency's own logger (pebble)
// down to warnings.
func NewFilter(l Logger, opts ...FilterOption) Logger {
	f := &filterLogger{logger: l, level: LevelDebug}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filterLogger) Log(level Level, keyvals ...any) error {
	if level < f.level {
		return nil
	}
	return f.logger.Log(level, keyvals...)
}
