package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonoirwinrsa/image-service/contrib/log"
)

// TestWarnProxyUnhealthy_ThrottlesPerScope exercises the per-scope throttling
// spec.md §4.1 promises ("at most one emission per 2 seconds per calling
// thread"): two warnings carrying the same call scope within the window
// collapse to one recorded emission, while a second scope gets its own.
func TestWarnProxyUnhealthy_ThrottlesPerScope(t *testing.T) {
	c := &Connection{log: log.NewHelper(log.GetLogger())}

	ctxA := WithCallScope(context.Background(), "worker-a")
	c.warnProxyUnhealthy(ctxA)
	first := c.lastWarn["worker-a"]
	assert.False(t, first.IsZero())

	c.warnProxyUnhealthy(ctxA)
	assert.Equal(t, first, c.lastWarn["worker-a"], "second warning inside the window must not bump the timestamp")

	ctxB := WithCallScope(context.Background(), "worker-b")
	c.warnProxyUnhealthy(ctxB)
	assert.False(t, c.lastWarn["worker-b"].IsZero())
	assert.NotEqual(t, c.lastWarn["worker-a"], time.Time{})
}

// TestWarnProxyUnhealthy_NoScopeDoesNotPanic covers the fallback path used
// when a caller forgets to attach a call scope: it must still log, not panic
// or throttle against a shared key.
func TestWarnProxyUnhealthy_NoScopeDoesNotPanic(t *testing.T) {
	c := &Connection{log: log.NewHelper(log.GetLogger())}
	assert.NotPanics(t, func() {
		c.warnProxyUnhealthy(context.Background())
		c.warnProxyUnhealthy(context.Background())
	})
}
