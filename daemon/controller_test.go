package daemon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonoirwinrsa/image-service/cache"
	"github.com/jonoirwinrsa/image-service/daemon"
)

// Controller is a process-wide singleton (spec.md §4.5): every case below
// shares the one instance New() ever successfully builds, so they run as
// subtests of a single sequential test rather than independent Test funcs.
func TestController_Lifecycle(t *testing.T) {
	ctrl, err := daemon.New(daemon.Options{UpgradeTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, daemon.StateInit, ctrl.State())

	t.Run("second construction fails", func(t *testing.T) {
		_, err := daemon.New(daemon.Options{})
		assert.ErrorIs(t, err, daemon.ErrAlreadyConstructed)
	})

	chunkCache := cache.NewChunkCache(1 << 20)
	svc := &noopServer{}
	ctrl.Mount(svc, chunkCache, nil)

	t.Run("mount transitions to running", func(t *testing.T) {
		assert.Equal(t, daemon.StateRunning, ctrl.State())
		assert.Same(t, chunkCache, ctrl.Cache())
	})

	t.Run("ready does not error", func(t *testing.T) {
		require.NoError(t, ctrl.Ready())
	})

	t.Run("admin mux reports running and cache stats", func(t *testing.T) {
		mux := daemon.NewAdminMux(ctrl)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness-probe", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/cache-stats", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "bytes_in_use")
	})

	t.Run("shutdown drains the run loop", func(t *testing.T) {
		done := make(chan error, 1)
		go func() {
			done <- ctrl.Run(context.Background())
		}()

		time.Sleep(20 * time.Millisecond)
		ctrl.Shutdown()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after Shutdown")
		}

		assert.Equal(t, daemon.StateStopped, ctrl.State())
		assert.True(t, svc.stopped)
	})
}

type noopServer struct {
	stopped bool
}

func (s *noopServer) Start(ctx context.Context) error { return nil }
func (s *noopServer) Stop(ctx context.Context) error {
	s.stopped = true
	return nil
}
