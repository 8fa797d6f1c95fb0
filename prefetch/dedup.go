package prefetch

import (
	"hash/fnv"
	"sync"

	"github.com/kelindar/bitmap"
)

// dedupSet deduplicates chunk digests enumerated for one PrefetchJob so the
// same chunk is queued once, per spec.md §4.4 step 2.
//
// Grounded on the teacher's pkg/iobuf/blockfile.go, which uses
// kelindar/bitmap as a compact membership set over small integer block
// indices. A chunk digest isn't a small integer, so membership here is
// two-layered: a bitmap over a 32-bit hash of the digest as a cheap
// pre-filter, backed by the actual digest map for exactness on a bitmap hit
// (hash collisions between distinct digests are rare but must never cause a
// chunk to be silently dropped from the prefetch set).
type dedupSet struct {
	mu   sync.Mutex
	seen map[[32]byte]struct{}
	bm   bitmap.Bitmap
}

func newDedupSet() *dedupSet {
	return &dedupSet{seen: make(map[[32]byte]struct{})}
}

// addIfNew reports whether digest had not been seen before, recording it as
// seen either way.
func (d *dedupSet) addIfNew(digest [32]byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := hash32(digest)
	if d.bm.Contains(h) {
		if _, ok := d.seen[digest]; ok {
			return false
		}
	}
	d.bm.Set(h)
	d.seen[digest] = struct{}{}
	return true
}

func hash32(digest [32]byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(digest[:])
	return h.Sum32()
}
