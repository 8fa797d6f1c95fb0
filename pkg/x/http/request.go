package http

import (
	"net/http"
	"net/http/httptrace"
	"time"
)

// WithTracer attaches an httptrace.ClientTrace to req that records when the
// first response byte arrives, so callers can compute a request's latency
// independent of how long the body takes to drain.
func WithTracer(req *http.Request, firstByte *time.Time) *http.Request {
	tracer := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			*firstByte = time.Now()
		},
	}
	return req.WithContext(httptrace.WithClientTrace(req.Context(), tracer))
}
