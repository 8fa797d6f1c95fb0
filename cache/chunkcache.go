// Package cache implements the content-addressed, coalescing, LRU-evicting
// chunk cache: the heart of the core. It is grounded on the teacher's
// storage/bucket/disk package's use of pkg/algorithm/lru for eviction and on
// proxy/proxy.go's singleflight-style collapsing, generalised here into an
// explicit Pending/Ready/Failed state machine since a chunk fetch — unlike
// an HTTP round trip — must be digest-verified before it can be shared.
package cache

import (
	"context"
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonoirwinrsa/image-service/contrib/log"
	"github.com/jonoirwinrsa/image-service/metadata"
	"github.com/jonoirwinrsa/image-service/metrics"
	"github.com/jonoirwinrsa/image-service/pkg/lru"
)

// Digest is a chunk's content hash, doubling as its cache key.
type Digest = [32]byte

// failedEntryGrace is how long a Failed entry stays in the index before
// removal, so a burst of near-simultaneous callers all observe the same
// failure rather than each re-triggering fetch_fn.
const failedEntryGrace = 200 * time.Millisecond

type entryState int32

const (
	statePending entryState = iota
	stateReady
	stateFailed
)

type cacheEntry struct {
	digest Digest
	size   int64

	state atomic.Int32
	buf   []byte
	err   error
	done  chan struct{}

	waiters atomic.Int32
}

func (e *cacheEntry) getState() entryState {
	return entryState(e.state.Load())
}

// FetchFunc retrieves and decompresses the bytes for desc. It is supplied
// by the caller (BlobReader-backed for foreground reads and prefetch,
// something else entirely for tests).
type FetchFunc func(ctx context.Context, desc *metadata.ChunkDescriptor) ([]byte, error)

// ChunkCache maps chunk digest to cached, decompressed bytes (spec.md §4.3).
type ChunkCache struct {
	mu       sync.Mutex
	index    map[Digest]*cacheEntry
	lru      *lru.Cache[Digest, *cacheEntry]
	current  int64
	capacity int64

	// overflow, if set, receives entries evicted from memory instead of
	// losing them outright, and is consulted on a miss before fn runs.
	overflow *DiskOverflow

	log *log.Helper
}

// NewChunkCache builds an empty ChunkCache bounded by capacityBytes.
func NewChunkCache(capacityBytes int64) *ChunkCache {
	c := &ChunkCache{
		index:    make(map[Digest]*cacheEntry),
		capacity: capacityBytes,
		log:      log.NewHelper(log.GetLogger()),
	}
	c.lru = lru.New[Digest, *cacheEntry](capacityBytes, func(e *cacheEntry) int64 { return e.size })
	return c
}

// WithDiskOverflow attaches a DiskOverflow backing store, per
// device.cache.config.work_dir. Must be called before the cache is used
// concurrently.
func (c *ChunkCache) WithDiskOverflow(o *DiskOverflow) *ChunkCache {
	c.overflow = o
	return c
}

// GetOrFetch returns the shared buffer for desc.Digest, fetching it via fn
// if absent, coalescing concurrent callers for the same digest into one
// underlying fetch (spec.md §4.3's coalescing protocol).
func (c *ChunkCache) GetOrFetch(ctx context.Context, desc *metadata.ChunkDescriptor, fn FetchFunc) ([]byte, error) {
	c.mu.Lock()
	if e, ok := c.index[desc.Digest]; ok {
		switch e.getState() {
		case stateReady:
			c.lru.Get(desc.Digest)
			c.mu.Unlock()
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return e.buf, nil
		case statePending:
			e.waiters.Add(1)
			c.mu.Unlock()
			metrics.CacheLookupsTotal.WithLabelValues("coalesced").Inc()
			return c.awaitEntry(ctx, e)
		default: // stateFailed, still draining its grace window
			c.mu.Unlock()
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
			return nil, e.err
		}
	}

	e := &cacheEntry{digest: desc.Digest, done: make(chan struct{})}
	c.index[desc.Digest] = e
	c.mu.Unlock()

	if c.overflow != nil {
		if buf, ok := c.overflow.Get(desc.Digest); ok && verifyDigest(desc.Digest, buf) {
			metrics.CacheLookupsTotal.WithLabelValues("disk_hit").Inc()
			c.commitReady(desc.Digest, e, buf)
			return buf, nil
		}
	}

	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	return c.fetchAndCommit(ctx, desc, fn, e)
}

func (c *ChunkCache) awaitEntry(ctx context.Context, e *cacheEntry) ([]byte, error) {
	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.getState() == stateReady {
		return e.buf, nil
	}
	return nil, e.err
}

// fetchAndCommit runs fn, verifying and retrying once on digest mismatch per
// spec.md §4.3's consistency note, then commits the terminal state and wakes
// waiters exactly once.
func (c *ChunkCache) fetchAndCommit(ctx context.Context, desc *metadata.ChunkDescriptor, fn FetchFunc, e *cacheEntry) ([]byte, error) {
	buf, err := fn(ctx, desc)
	if err == nil && !verifyDigest(desc.Digest, buf) {
		c.log.Warnf("digest mismatch for chunk %x, retrying fetch once", desc.Digest)
		buf, err = fn(ctx, desc)
		if err == nil && !verifyDigest(desc.Digest, buf) {
			err = newDigestMismatch()
		}
	}

	if err != nil {
		c.fail(desc.Digest, e, newFetchErrorIfPlain(err))
		return nil, err
	}

	c.commitReady(desc.Digest, e, buf)
	return buf, nil
}

func newFetchErrorIfPlain(err error) error {
	if _, ok := err.(*Error); ok {
		return err
	}
	return newFetchError(err)
}

func verifyDigest(want Digest, buf []byte) bool {
	return sha256.Sum256(buf) == want
}

// commitReady installs e as the Ready entry for digest and evicts down to
// capacity. If e itself doesn't survive eviction (its buffer alone exceeds
// capacity, with nothing else left to evict), it is dropped from the index
// too: the cache is a best-effort accelerator, never a correctness gate
// (spec.md §4.3), so the caller still gets its buffer back from fn, just
// without a cached copy.
func (c *ChunkCache) commitReady(digest Digest, e *cacheEntry, buf []byte) {
	c.mu.Lock()
	e.buf = buf
	e.size = int64(len(buf))
	e.state.Store(int32(stateReady))
	evicted := c.lru.Add(digest, e)
	c.current += e.size
	for _, ev := range evicted {
		c.current -= ev.Value.size
		metrics.CacheEvictionsTotal.Inc()
		delete(c.index, ev.Key)
		c.spillToOverflow(ev.Key, ev.Value)
	}
	metrics.CacheBytesInUse.Set(float64(c.current))
	c.mu.Unlock()
	close(e.done)
}

func (c *ChunkCache) fail(digest Digest, e *cacheEntry, err error) {
	c.mu.Lock()
	e.err = err
	e.state.Store(int32(stateFailed))
	c.mu.Unlock()
	close(e.done)

	time.AfterFunc(failedEntryGrace, func() {
		c.mu.Lock()
		if cur, ok := c.index[digest]; ok && cur == e {
			delete(c.index, digest)
		}
		c.mu.Unlock()
	})
}

// InsertHint idempotently pre-populates the cache with an already-fetched,
// already-verified buffer (spec.md §4.3). The Prefetcher does not call it;
// it primes the cache through GetOrFetch.
func (c *ChunkCache) InsertHint(desc *metadata.ChunkDescriptor, buf []byte) {
	c.mu.Lock()
	if _, ok := c.index[desc.Digest]; ok {
		c.mu.Unlock()
		return
	}
	e := &cacheEntry{digest: desc.Digest, done: make(chan struct{}), buf: buf, size: int64(len(buf))}
	e.state.Store(int32(stateReady))
	close(e.done)
	c.index[desc.Digest] = e
	evicted := c.lru.Add(desc.Digest, e)
	c.current += e.size
	for _, ev := range evicted {
		c.current -= ev.Value.size
		metrics.CacheEvictionsTotal.Inc()
		delete(c.index, ev.Key)
		c.spillToOverflow(ev.Key, ev.Value)
	}
	metrics.CacheBytesInUse.Set(float64(c.current))
	c.mu.Unlock()
}

// EvictUntil evicts Ready, non-waited entries in LRU order until current
// usage is at or below targetBytes, returning bytes freed.
func (c *ChunkCache) EvictUntil(targetBytes int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var freed int64
	for c.current > targetBytes {
		ev, ok := c.lru.RemoveOldestMatching(func(_ Digest, e *cacheEntry) bool {
			return e.getState() == stateReady && e.waiters.Load() == 0
		})
		if !ok {
			break
		}
		delete(c.index, ev.Key)
		c.current -= ev.Value.size
		freed += ev.Value.size
		metrics.CacheEvictionsTotal.Inc()
		c.spillToOverflow(ev.Key, ev.Value)
	}
	metrics.CacheBytesInUse.Set(float64(c.current))
	return freed
}

// spillToOverflow persists an entry evicted from memory to disk, best
// effort: a failed write just means the next request for digest re-fetches
// from the backend, same as if no overflow were configured at all.
func (c *ChunkCache) spillToOverflow(digest Digest, e *cacheEntry) {
	if c.overflow == nil || e == nil || e.getState() != stateReady {
		return
	}
	if err := c.overflow.Set(digest, e.buf); err != nil {
		c.log.Warnf("disk overflow write failed for chunk %x: %v", digest, err)
	}
}

// Invalidate forcibly removes digest from the index, even if Ready. Pending
// waiters already registered against it are unaffected: the entry object
// they hold a reference to still completes normally (spec.md §4.3).
func (c *ChunkCache) Invalidate(digest Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index[digest]
	if !ok {
		return
	}
	delete(c.index, digest)
	if e.getState() == stateReady {
		c.lru.Remove(digest)
		c.current -= e.size
		metrics.CacheBytesInUse.Set(float64(c.current))
	}
}

// BytesInUse reports the current sum of Ready entry sizes.
func (c *ChunkCache) BytesInUse() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
