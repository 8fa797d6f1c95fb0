// Package prefetch implements the bounded worker pool that primes the
// chunk cache from a manifest at mount time (spec.md §4.4), grounded on the
// teacher's storage/bucket/disk package's evict()/loadLRU() goroutine
// lifecycle style: an owned stop channel, every worker joined before Run
// returns, no detached threads.
package prefetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonoirwinrsa/image-service/backend"
	"github.com/jonoirwinrsa/image-service/contrib/log"
	"github.com/jonoirwinrsa/image-service/metadata"
	"github.com/jonoirwinrsa/image-service/metrics"
)

// FetchFunc is how the Prefetcher satisfies a miss; in production this is
// ChunkCache.GetOrFetch bound to a concrete BlobReader.
type FetchFunc func(ctx context.Context, desc *metadata.ChunkDescriptor) ([]byte, error)

// Job is the flattened, deduplicated chunk queue built from one manifest
// resolution pass (spec.md §3's PrefetchJob). ID is opaque to the
// Prefetcher itself; it exists so a single manifest resolution pass can be
// correlated across its own log lines.
type Job struct {
	ID     uuid.UUID
	chunks []*metadata.ChunkDescriptor
}

// BuildJob resolves each path in paths via provider, enumerates its chunks,
// and deduplicates by digest across the whole manifest. Unresolved paths
// are logged and skipped, never fatal (spec.md §4.4 step 1).
func BuildJob(ctx context.Context, provider metadata.Provider, paths []string) *Job {
	l := log.NewHelper(log.GetLogger())
	dedup := newDedupSet()
	job := &Job{ID: uuid.New()}

	for _, path := range paths {
		ino, err := provider.Resolve(ctx, path)
		if err != nil {
			l.Warnf("prefetch: cannot resolve %s: %v", path, err)
			continue
		}
		chunks, err := provider.Chunks(ctx, ino)
		if err != nil {
			l.Warnf("prefetch: cannot enumerate chunks for %s: %v", path, err)
			continue
		}
		for _, desc := range chunks {
			if dedup.addIfNew(desc.Digest) {
				job.chunks = append(job.chunks, desc)
			}
		}
	}

	return job
}

// Prefetcher drains a Job's chunk queue with a fixed pool of workers, each
// calling fetch to prime the cache. It never blocks foreground reads: a
// foreground miss on a digest the Prefetcher already has Pending simply
// joins that same fetch inside ChunkCache.
type Prefetcher struct {
	workers int
	fetch   FetchFunc

	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}

	log *log.Helper
}

// NewPrefetcher builds a Prefetcher with the given worker count (spec.md
// §4.4: "A fixed pool of N workers (configured; default 4)").
func NewPrefetcher(workers int, fetch FetchFunc) *Prefetcher {
	if workers <= 0 {
		workers = 4
	}
	return &Prefetcher{
		workers: workers,
		fetch:   fetch,
		done:    make(chan struct{}),
		log:     log.NewHelper(log.GetLogger()),
	}
}

// Run dispatches job's chunks across the worker pool and blocks until every
// chunk has been claimed (not necessarily successfully fetched — failures
// are logged and counted, never fatal to the pool) or ctx is cancelled.
// Run owns its workers: it returns only after every one has joined.
func (p *Prefetcher) Run(ctx context.Context, job *Job) {
	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	if p.cancelled {
		cancel()
	}
	p.mu.Unlock()
	defer close(p.done)

	queue := make(chan *metadata.ChunkDescriptor)
	var g errgroup.Group

	for i := 0; i < p.workers; i++ {
		id := i
		g.Go(func() error {
			p.worker(id, runCtx, queue)
			return nil
		})
	}

	p.log.Infof("prefetch job %s: dispatching %d chunks across %d workers", job.ID, len(job.chunks), p.workers)
	metrics.PrefetchQueueDepth.Set(float64(len(job.chunks)))
dispatch:
	for _, desc := range job.chunks {
		select {
		case queue <- desc:
			metrics.PrefetchQueueDepth.Dec()
		case <-runCtx.Done():
			break dispatch
		}
	}
	close(queue)

	_ = g.Wait()
}

// worker is the Connection layer's "calling thread": every fetch it issues
// shares one call scope, so backend.Connection can throttle proxy-health
// warnings per worker instead of once per chunk (spec.md §4.1). worker
// never returns an error; failures are logged and counted in place so one
// bad chunk never aborts the rest of the pool.
func (p *Prefetcher) worker(id int, ctx context.Context, queue <-chan *metadata.ChunkDescriptor) {
	ctx = backend.WithCallScope(ctx, fmt.Sprintf("prefetch-worker-%d", id))

	for {
		select {
		case desc, ok := <-queue:
			if !ok {
				return
			}
			// A cancellation observed between dequeues stops future work,
			// but a fetch already claimed is allowed to finish
			// (spec.md §4.4 step 4).
			if _, err := p.fetch(context.WithoutCancel(ctx), desc); err != nil {
				p.log.Warnf("prefetch: fetch failed for chunk %x: %v", desc.Digest, err)
				metrics.PrefetchChunksTotal.WithLabelValues("error").Inc()
				continue
			}
			metrics.PrefetchChunksTotal.WithLabelValues("ok").Inc()
		case <-ctx.Done():
			return
		}
	}
}

// Cancel requests that worker draining stop at the next dispatch or
// dequeue boundary. Safe to call before Run returns; it does not itself
// block.
func (p *Prefetcher) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait blocks until Run has returned and every worker has joined.
func (p *Prefetcher) Wait() {
	<-p.done
}
