package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonoirwinrsa/image-service/conf"
	"github.com/jonoirwinrsa/image-service/contrib/log"
	"github.com/jonoirwinrsa/image-service/metrics"
	xhttp "github.com/jonoirwinrsa/image-service/pkg/x/http"
)

// BodyKind tags the three request body shapes Connection.Call accepts.
// A Streaming body disables proxy→origin fallback, since a stream cannot be
// safely replayed (spec.md §4.1).
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyInMemory
	BodyStreaming
	BodyForm
)

// RequestBody is the tagged union of body shapes spec.md §4.1 describes.
type RequestBody struct {
	Kind BodyKind

	// BodyInMemory
	Bytes []byte

	// BodyStreaming
	Reader      io.Reader
	KnownLength int64
	OnProgress  func(sent int64)

	// BodyForm
	Form map[string]string
}

func (b *RequestBody) reader() (io.Reader, int64, error) {
	if b == nil {
		return nil, 0, nil
	}
	switch b.Kind {
	case BodyInMemory:
		return bytes.NewReader(b.Bytes), int64(len(b.Bytes)), nil
	case BodyStreaming:
		return b.progressReader(), b.KnownLength, nil
	case BodyForm:
		v := url.Values{}
		for k, val := range b.Form {
			v.Set(k, val)
		}
		encoded := v.Encode()
		return bytes.NewReader([]byte(encoded)), int64(len(encoded)), nil
	default:
		return nil, 0, nil
	}
}

func (b *RequestBody) progressReader() io.Reader {
	if b.OnProgress == nil {
		return b.Reader
	}
	return &progressReader{r: b.Reader, onProgress: b.OnProgress}
}

type progressReader struct {
	r          io.Reader
	sent       int64
	onProgress func(sent int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		p.onProgress(p.sent)
	}
	return n, err
}

// CallOptions are the per-Call inputs from spec.md §4.1's `call` signature.
type CallOptions struct {
	Method      string
	URL         string
	Query       url.Values
	Body        *RequestBody
	Headers     http.Header
	CatchStatus bool

	// FirstByte, if non-nil, is stamped with the time the response's first
	// byte arrives, independent of how long the body then takes to drain.
	FirstByte *time.Time
}

// Proxy is the optional sidecar Connection routes requests through before
// falling back to origin (spec.md §3's Proxy entity).
type Proxy struct {
	client   *http.Client
	health   *ProxyHealth
	fallback bool
}

// Connection is a thread-safe HTTP client pool with an optional proxy
// sidecar: retry, timeout, proxy health-checking, and proxy→origin fallback
// (spec.md §4.1).
type Connection struct {
	origin *http.Client
	proxy  *Proxy

	shutdown atomic.Bool

	log *log.Helper

	lastWarnMu sync.Mutex
	lastWarn   map[string]time.Time
}

// NewConnection builds a Connection from BackendConfig. If cfg.Proxy.URL is
// empty, proxy is nil and every call goes straight to origin.
func NewConnection(cfg *conf.BackendConfig) *Connection {
	c := &Connection{
		origin: newClient(cfg.ConnectTimeout, cfg.Timeout, cfg.SkipVerify),
		log:    log.NewHelper(log.GetLogger()),
	}

	if cfg.Proxy.URL != "" {
		proxyClient := newClient(cfg.ConnectTimeout, cfg.Timeout, cfg.SkipVerify)
		if proxyURL, err := url.Parse(cfg.Proxy.URL); err == nil {
			proxyClient.Transport.(*http.Transport).Proxy = http.ProxyURL(proxyURL)
		}
		p := &Proxy{
			client:   proxyClient,
			fallback: cfg.Proxy.Fallback,
			health:   NewProxyHealth(cfg.Proxy.PingURL, cfg.Proxy.CheckInterval, cfg.ConnectTimeout),
		}
		c.proxy = p
		if cfg.Proxy.PingURL != "" {
			go p.health.Run(c.shutdownSignal())
		}
	}

	return c
}

func newClient(connectTimeout, totalTimeout time.Duration, skipVerify bool) *http.Client {
	dialer := &net.Dialer{Timeout: fallbackDuration(connectTimeout, 10*time.Second)}
	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: skipVerify,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: fallbackDuration(connectTimeout, 10*time.Second),
	}

	return &http.Client{
		Transport: transport,
		Timeout:   totalTimeout,
	}
}

func fallbackDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Shutdown marks the Connection as closed: every subsequent Call fails
// immediately with Disconnected without touching the network, and the proxy
// health thread exits at the top of its next loop.
func (c *Connection) Shutdown() {
	c.shutdown.Store(true)
}

func (c *Connection) shutdownSignal() func() bool {
	return func() bool { return c.shutdown.Load() }
}

// Call issues an HTTP request, applying proxy routing, fallback, and status
// catching as described by spec.md §4.1.
func (c *Connection) Call(ctx context.Context, opts CallOptions) (*http.Response, error) {
	if c.shutdown.Load() {
		return nil, newDisconnected()
	}

	req, err := c.buildRequest(ctx, opts)
	if err != nil {
		return nil, newFormat(err)
	}

	if c.proxy != nil && c.proxy.health.OK() {
		resp, err := c.doOnce(c.proxy.client, req, opts.CatchStatus)
		if err == nil {
			return resp, nil
		}

		fallbackable := c.proxy.fallback && opts.Body.isFallbackSafe() && isFallbackableFailure(resp, err)
		if !fallbackable {
			return resp, err
		}

		c.log.Warnf("proxy request failed, falling back to origin: %v", err)
		metrics.ProxyFallbackTotal.Inc()

		req2, err2 := c.buildRequest(ctx, opts)
		if err2 != nil {
			return nil, newFormat(err2)
		}
		return c.doOnce(c.origin, req2, opts.CatchStatus)
	}

	if c.proxy != nil {
		c.warnProxyUnhealthy(ctx)
	}

	return c.doOnce(c.origin, req, opts.CatchStatus)
}

func (b *RequestBody) isFallbackSafe() bool {
	return b == nil || b.Kind != BodyStreaming
}

func isFallbackableFailure(resp *http.Response, err error) bool {
	if be, ok := err.(*Error); ok && be.Kind == ErrStatus {
		return be.Status >= 500
	}
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode >= 500
}

func (c *Connection) buildRequest(ctx context.Context, opts CallOptions) (*http.Request, error) {
	body, length, err := opts.Body.reader()
	if err != nil {
		return nil, err
	}

	u := opts.URL
	if len(opts.Query) > 0 {
		parsed, err := url.Parse(u)
		if err != nil {
			return nil, err
		}
		q := parsed.Query()
		for k, vs := range opts.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, u, body)
	if err != nil {
		return nil, err
	}
	if opts.Headers != nil {
		req.Header = opts.Headers.Clone()
	}
	if length > 0 {
		req.ContentLength = length
	}
	if opts.FirstByte != nil {
		req = xhttp.WithTracer(req, opts.FirstByte)
	}
	return req, nil
}

// doOnce performs a single non-retried attempt. The teacher's ReverseProxy.Do
// collapses concurrent identical requests through a singleflight group, but
// that only pays off when callers can share a response; here the caller
// drains resp.Body directly into its own buffer (backend/reader.go's
// attempt), and a shared *http.Response means two goroutines racing on one
// Read and double-closing one Body. ChunkCache already gives the real
// at-most-one-fetch guarantee at the digest level (spec.md §4.3), so
// collapsing again here could only add that race, never remove work: every
// call goes straight to the transport.
func (c *Connection) doOnce(client *http.Client, req *http.Request, catchStatus bool) (*http.Response, error) {
	route := "origin"
	if c.proxy != nil && client == c.proxy.client {
		route = "proxy"
	}

	resp, err := client.Do(req)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(route, "transport_error").Inc()
		return nil, newTransport(err)
	}

	if catchStatus && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		metrics.BackendRequestsTotal.WithLabelValues(route, "status_error").Inc()
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return resp, newStatus(resp.StatusCode, string(buf))
	}
	metrics.BackendRequestsTotal.WithLabelValues(route, "ok").Inc()
	return resp, nil
}

func (c *Connection) warnProxyUnhealthy(ctx context.Context) {
	scope := callScopeFromContext(ctx)
	if scope == nil {
		c.log.Warn("proxy unhealthy, using origin")
		return
	}

	c.lastWarnMu.Lock()
	if c.lastWarn == nil {
		c.lastWarn = make(map[string]time.Time)
	}
	last, seen := c.lastWarn[scope.id]
	now := time.Now()
	if seen && now.Sub(last) < 2*time.Second {
		c.lastWarnMu.Unlock()
		return
	}
	c.lastWarn[scope.id] = now
	c.lastWarnMu.Unlock()

	c.log.Warn("proxy unhealthy, using origin")
}

// RedactedHeaders returns h with Authorization stripped, for passing to a
// log call (spec.md §4.1: "The Authorization header is redacted from any
// log emission.").
func RedactedHeaders(h http.Header) http.Header {
	return xhttp.Redacted(h)
}
