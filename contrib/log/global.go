package log

import "sync/atomic"

var defaultLogger atomic.Value

func init() {
	defaultLogger.Store(Logger(NewZapLogger(Config{Level: "info"})))
}

// DefaultLogger is a standalone info-level logger. The package-level
// Debug/Info/Warn/Error/Fatal helpers do not use it; they log through
// GetLogger, which SetLogger replaces.
var DefaultLogger Logger = NewZapLogger(Config{Level: "info"})

// SetLogger installs l as the default logger for the package-level helpers
// and for log.Context when no logger has been stashed on the context.
func SetLogger(l Logger) {
	defaultLogger.Store(l)
}

// GetLogger returns the current default logger.
func GetLogger() Logger {
	return defaultLogger.Load().(Logger)
}

func helper() *Helper { return NewHelper(GetLogger()) }

func Debug(args ...any)         { helper().Debug(args...) }
func Debugf(f string, a ...any) { helper().Debugf(f, a...) }
func Info(args ...any)          { helper().Info(args...) }
func Infof(f string, a ...any)  { helper().Infof(f, a...) }
func Warn(args ...any)          { helper().Warn(args...) }
func Warnf(f string, a ...any)  { helper().Warnf(f, a...) }
func Error(args ...any)         { helper().Error(args...) }
func Errorf(f string, a ...any) { helper().Errorf(f, a...) }
func Fatal(args ...any)         { helper().Fatal(args...) }
func Fatalf(f string, a ...any) { helper().Fatalf(f, a...) }
