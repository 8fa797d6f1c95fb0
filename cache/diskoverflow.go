package cache

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble/v2"
	"github.com/fxamacker/cbor/v2"

	"github.com/jonoirwinrsa/image-service/contrib/log"
)

// overflowRecord is the envelope persisted per digest. Wrapping the raw
// bytes in a small CBOR record (rather than writing them bare) lets Get
// reject a record whose stored digest no longer matches its key without a
// second hash pass over the payload — cheap corruption detection for
// entries that outlive a process restart.
type overflowRecord struct {
	Digest [32]byte
	Bytes  []byte
}

// DiskOverflow is an optional on-disk extension of ChunkCache backed by
// pebble, used when device.cache.config.work_dir is set. It is additive:
// disabling it degrades to ChunkCache's pure in-memory behaviour, so
// nothing in the coalescing protocol depends on it existing.
//
// Grounded on the teacher's storage/indexdb/pebble package (pebble.Open with
// a filtered Logger, Get/Set/Delete against a single keyspace); generalised
// here from an object-metadata store to a flat digest-to-bytes store.
type DiskOverflow struct {
	db *pebble.DB
}

// OpenDiskOverflow opens (creating if absent) a pebble store rooted at dir.
// Pebble's own internal logging is routed through a warn-and-above filter,
// matching the teacher's rationale for quieting pebble's default logger.
func OpenDiskOverflow(dir string) (*DiskOverflow, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		Logger: log.NewHelper(log.NewFilter(log.GetLogger(), log.FilterLevel(log.LevelWarn))),
	})
	if err != nil {
		return nil, fmt.Errorf("cache: open disk overflow at %s: %w", dir, err)
	}
	return &DiskOverflow{db: db}, nil
}

// Get returns the bytes stored under digest, or (nil, false) if absent or
// if the stored record's own digest no longer matches the key it was
// fetched under.
func (d *DiskOverflow) Get(digest Digest) ([]byte, bool) {
	raw, closer, err := d.db.Get(digest[:])
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false
		}
		return nil, false
	}
	defer closer.Close()

	var rec overflowRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	if rec.Digest != digest {
		return nil, false
	}

	out := make([]byte, len(rec.Bytes))
	copy(out, rec.Bytes)
	return out, true
}

// Set persists buf under digest. Writes use pebble.NoSync: an overflow entry
// lost on crash just falls back to a re-fetch, the same guarantee the
// in-memory cache already gives.
func (d *DiskOverflow) Set(digest Digest, buf []byte) error {
	raw, err := cbor.Marshal(overflowRecord{Digest: digest, Bytes: buf})
	if err != nil {
		return fmt.Errorf("cache: encode disk overflow record: %w", err)
	}
	return d.db.Set(digest[:], raw, pebble.NoSync)
}

// Delete removes digest's overflow entry, if any.
func (d *DiskOverflow) Delete(digest Digest) error {
	return d.db.Delete(digest[:], pebble.NoSync)
}

// Close releases the underlying pebble handle.
func (d *DiskOverflow) Close() error {
	return d.db.Close()
}
