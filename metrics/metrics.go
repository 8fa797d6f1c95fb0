// Package metrics defines the process-wide Prometheus metric vectors the
// core exposes on the admin surface's /metrics endpoint, grounded on the
// teacher's server/middleware/registry.go (a package-scoped CounterVec
// registered from init) and server/server.go (promhttp.HandlerFor wiring).
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "rafsd"

var (
	// BackendRequestsTotal counts every HTTP attempt a Connection makes,
	// labelled by route (proxy/origin) and outcome (ok, status_error,
	// transport_error).
	BackendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "requests_total",
	}, []string{"route", "outcome"})

	// ProxyFallbackTotal counts every request that fell back from the proxy
	// sidecar to origin.
	ProxyFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "proxy_fallback_total",
	})

	// CacheLookupsTotal counts every ChunkCache.GetOrFetch call, labelled
	// hit, coalesced, disk_hit or miss.
	CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
	}, []string{"result"})

	// CacheBytesInUse tracks the current sum of Ready entry sizes.
	CacheBytesInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "bytes_in_use",
	})

	// CacheEvictionsTotal counts entries evicted to stay under capacity.
	CacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
	})

	// PrefetchQueueDepth tracks the number of chunks queued but not yet
	// claimed by a prefetch worker.
	PrefetchQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "prefetch",
		Name:      "queue_depth",
	})

	// PrefetchChunksTotal counts chunks the prefetcher has finished fetching,
	// labelled by outcome.
	PrefetchChunksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "prefetch",
		Name:      "chunks_total",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		BackendRequestsTotal,
		ProxyFallbackTotal,
		CacheLookupsTotal,
		CacheBytesInUse,
		CacheEvictionsTotal,
		PrefetchQueueDepth,
		PrefetchChunksTotal,
	)
}
