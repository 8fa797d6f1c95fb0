package log

import (
	"context"
	"fmt"
	"os"
)

// Helper is the everyday entry point: log.NewHelper(logger).Infof("...").
type Helper struct {
	logger Logger
	ctx    context.Context
}

// NewHelper wraps l.
func NewHelper(l Logger) *Helper {
	return &Helper{logger: l, ctx: context.Background()}
}

// WithContext returns a Helper that carries ctx. The Helper's log calls do
// not pass ctx to the logger, so Valuers are not resolved against it.
func (h *Helper) WithContext(ctx context.Context) *Helper {
	return &Helper{logger: h.logger, ctx: ctx}
}

func (h *Helper) log(level Level, msg string) {
	_ = h.logger.Log(level, "msg", msg)
}

func (h *Helper) Debug(args ...any)          { h.log(LevelDebug, fmt.Sprint(args...)) }
func (h *Helper) Debugf(f string, a ...any)  { h.log(LevelDebug, fmt.Sprintf(f, a...)) }
func (h *Helper) Info(args ...any)           { h.log(LevelInfo, fmt.Sprint(args...)) }
func (h *Helper) Infof(f string, a ...any)   { h.log(LevelInfo, fmt.Sprintf(f, a...)) }
func (h *Helper) Warn(args ...any)           { h.log(LevelWarn, fmt.Sprint(args...)) }
func (h *Helper) Warnf(f string, a ...any)   { h.log(LevelWarn, fmt.Sprintf(f, a...)) }
func (h *Helper) Error(args ...any)          { h.log(LevelError, fmt.Sprint(args...)) }
func (h *Helper) Errorf(f string, a ...any)  { h.log(LevelError, fmt.Sprintf(f, a...)) }

func (h *Helper) Fatal(args ...any) {
	h.log(LevelFatal, fmt.Sprint(args...))
	os.Exit(1)
}

func (h *Helper) Fatalf(f string, a ...any) {
	h.log(LevelFatal, fmt.Sprintf(f, a...))
	os.Exit(1)
}
