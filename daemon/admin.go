package daemon

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonoirwinrsa/image-service/pkg/x/runtime"
)

// requestID stamps every admin request with an opaque correlation id
// (grounded on the teacher-wide use of google/uuid for request-scoped
// identifiers), echoed back on X-Request-Id so an operator can match a
// curl against the corresponding log line.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// NewAdminMux builds the observability-only HTTP surface: version, metrics,
// and health probes. It is not the administration API spec.md's Non-goals
// place out of scope — it never accepts configuration or filesystem
// operations, only reports process state (grounded on the teacher's
// server/server.go newServeMux, trimmed to the subset that has a home here).
func NewAdminMux(ctrl *Controller) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/version", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := json.Marshal(runtime.BuildInfo)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))

	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	mux.Handle("/healthz/liveness-probe", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	mux.Handle("/healthz/readiness-probe", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctrl.State() != StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	mux.Handle("/healthz/cache-stats", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := ctrl.Cache()
		if c == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		payload, _ := json.Marshal(struct {
			BytesInUse int64 `json:"bytes_in_use"`
		}{BytesInUse: c.BytesInUse()})
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}))

	return requestID(mux)
}
