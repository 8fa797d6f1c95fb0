package backend_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonoirwinrsa/image-service/backend"
	"github.com/jonoirwinrsa/image-service/conf"
)

func newBackendConfig() *conf.BackendConfig {
	return &conf.BackendConfig{
		Timeout:        2 * time.Second,
		ConnectTimeout: time.Second,
		RetryLimit:     1,
	}
}

func TestConnection_CallOrigin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	conn := backend.NewConnection(newBackendConfig())
	resp, err := conn.Call(context.Background(), backend.CallOptions{
		Method: http.MethodGet,
		URL:    srv.URL,
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConnection_CatchStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer srv.Close()

	conn := backend.NewConnection(newBackendConfig())
	_, err := conn.Call(context.Background(), backend.CallOptions{
		Method:      http.MethodGet,
		URL:         srv.URL,
		CatchStatus: true,
	})
	require.Error(t, err)
	assert.False(t, backend.IsRetryable(err))
}

func TestConnection_ShutdownRejectsCalls(t *testing.T) {
	conn := backend.NewConnection(newBackendConfig())
	conn.Shutdown()

	_, err := conn.Call(context.Background(), backend.CallOptions{Method: http.MethodGet, URL: "http://example.invalid"})
	require.Error(t, err)
}

func TestConnection_ProxyFallbackOnServerError(t *testing.T) {
	var originHits int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&originHits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer origin.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer proxy.Close()

	cfg := newBackendConfig()
	cfg.Proxy.URL = proxy.URL
	cfg.Proxy.Fallback = true
	conn := backend.NewConnection(cfg)

	resp, err := conn.Call(context.Background(), backend.CallOptions{
		Method:      http.MethodGet,
		URL:         origin.URL,
		CatchStatus: true,
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&originHits))
}

func TestConnection_StreamingBodyDisablesFallback(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer proxy.Close()

	cfg := newBackendConfig()
	cfg.Proxy.URL = proxy.URL
	cfg.Proxy.Fallback = true
	conn := backend.NewConnection(cfg)

	_, err := conn.Call(context.Background(), backend.CallOptions{
		Method: http.MethodPost,
		URL:    proxy.URL,
		Body: &backend.RequestBody{
			Kind:   backend.BodyStreaming,
			Reader: nil,
		},
		CatchStatus: true,
	})
	require.Error(t, err)
}

// TestConnection_ConcurrentIdenticalCallsGetIndependentBodies guards against
// reintroducing request collapsing on top of Connection.Call: two goroutines
// issuing the identical method+URL+Range must each get their own response
// body to drain, never a shared one racing on Read/Close.
func TestConnection_ConcurrentIdenticalCallsGetIndependentBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	conn := backend.NewConnection(newBackendConfig())

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := conn.Call(context.Background(), backend.CallOptions{
				Method:  http.MethodGet,
				URL:     srv.URL,
				Headers: http.Header{"Range": []string{"bytes=0-6"}},
			})
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				errs[i] = err
				return
			}
			if string(body) != "payload" {
				errs[i] = fmt.Errorf("got %q", body)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "goroutine %d", i)
	}
}

func TestRedactedHeaders_StripsAuthorization(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("X-Other", "kept")

	redacted := backend.RedactedHeaders(h)
	assert.Empty(t, redacted.Get("Authorization"))
	assert.Equal(t, "kept", redacted.Get("X-Other"))
}
