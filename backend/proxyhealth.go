package backend

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jonoirwinrsa/image-service/contrib/log"
)

// ProxyHealth tracks whether the proxy sidecar is currently reachable,
// grounded on the teacher's proxy/proxy.go health-ping goroutine: a single
// atomic bool flipped by a periodic GET against PingURL, with an
// edge-triggered log line so flapping doesn't spam.
type ProxyHealth struct {
	pingURL  string
	interval time.Duration
	client   *http.Client

	healthy atomic.Bool
	log     *log.Helper
}

// NewProxyHealth builds a ProxyHealth starting in the healthy state, so a
// proxy is trusted until its first failed ping.
func NewProxyHealth(pingURL string, interval, timeout time.Duration) *ProxyHealth {
	h := &ProxyHealth{
		pingURL:  pingURL,
		interval: fallbackDuration(interval, 10*time.Second),
		client:   &http.Client{Timeout: fallbackDuration(timeout, 5*time.Second)},
		log:      log.NewHelper(log.GetLogger()),
	}
	h.healthy.Store(true)
	return h
}

// OK reports the last-observed health state.
func (h *ProxyHealth) OK() bool {
	return h.healthy.Load()
}

// Run polls PingURL until stopped() reports true. NewConnection starts it as
// one goroutine per Connection; Connection.Shutdown only sets the flag that
// stopped() reads, so the goroutine exits after its next tick and nothing
// waits for it to return.
func (h *ProxyHealth) Run(stopped func() bool) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for !stopped() {
		<-ticker.C
		if stopped() {
			return
		}
		h.ping()
	}
}

func (h *ProxyHealth) ping() {
	ctx, cancel := context.WithTimeout(context.Background(), h.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.pingURL, nil)
	if err != nil {
		h.transition(false)
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.transition(false)
		return
	}
	_ = resp.Body.Close()
	h.transition(resp.StatusCode >= 200 && resp.StatusCode < 300)
}

func (h *ProxyHealth) transition(ok bool) {
	was := h.healthy.Swap(ok)
	if was == ok {
		return
	}
	if ok {
		h.log.Info("proxy recovered")
	} else {
		h.log.Warn("proxy marked unhealthy")
	}
}
