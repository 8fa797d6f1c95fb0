package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	log *zap.Logger
}

// Config controls where and how the zap sink writes.
type Config struct {
	Level      string // debug, info, warn, error
	Path       string // empty = stderr only
	Caller     bool
	MaxSize    int // megabytes
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

// NewZapLogger builds a Logger backed by zap. When cfg.Path is set, records
// are written through a lumberjack.Logger for size/age-based rotation;
// otherwise they go to stderr.
func NewZapLogger(cfg Config) Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = ""
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var writer zapcore.WriteSyncer
	if cfg.Path != "" {
		writer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    fallback(cfg.MaxSize, 100),
			MaxAge:     fallback(cfg.MaxAge, 7),
			MaxBackups: fallback(cfg.MaxBackups, 5),
			Compress:   cfg.Compress,
		})
	} else {
		writer = zapcore.Lock(zapcore.AddSync(os.Stderr))
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, zapLevel(cfg.Level))

	opts := make([]zap.Option, 0, 1)
	if cfg.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	return &zapLogger{log: zap.New(core, opts...)}
}

func (l *zapLogger) Log(level Level, keyvals ...any) error {
	if len(keyvals) == 0 {
		return nil
	}
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING")
	}

	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}

	switch level {
	case LevelDebug:
		l.log.Debug("", fields...)
	case LevelInfo:
		l.log.Info("", fields...)
	case LevelWarn:
		l.log.Warn("", fields...)
	case LevelError:
		l.log.Error("", fields...)
	case LevelFatal:
		l.log.Fatal("", fields...)
	}
	return nil
}

func zapLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fallback(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
