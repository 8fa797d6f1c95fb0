// Package metadata describes the interface the core consumes from the RAFS
// superblock/inode parser, which lives outside this module's scope
// (spec.md §1). Only the shapes needed to drive a read are defined here.
package metadata

import "context"

// ChunkDescriptor is one independently-compressed, digest-addressed byte
// range within a blob. Immutable once produced by Provider.
type ChunkDescriptor struct {
	Digest           [32]byte
	BlobID           string
	CompressedOffset uint64
	CompressedSize   uint32
	UncompressedSize uint32
	Compressed       bool
	Encrypted        bool
	// CompressionAlgo names the codec covering this chunk's bytes when
	// Compressed is true ("zstd", "brotli", "gzip"; the daemon's fetch path
	// decodes "" as zstd). Denormalised from BlobInfo onto
	// each chunk so a BlobReader fetch closure can decompress without a
	// second provider round trip.
	CompressionAlgo string
}

// BlobInfo is materialised once per blob at mount time and never mutated
// after.
type BlobInfo struct {
	BlobID              string
	UncompressedSize    uint64
	CompressionAlgo     string
	CipherAlgo          string
	Chunks              []*ChunkDescriptor
}

// Inode is an opaque handle returned by Resolve; the core never inspects
// its fields, only passes it back into Chunks.
type Inode uint64

// Provider is the read-only surface the RAFS metadata tree exposes to the
// core. The actual v5/v6 superblock parser and inode tree are out of scope
// here (spec.md §1) — this is the seam.
type Provider interface {
	// Resolve maps an absolute path to its inode, as used by the
	// Prefetcher to turn a manifest line into a chunk source.
	Resolve(ctx context.Context, path string) (Inode, error)
	// Chunks enumerates, in file order, the chunk references covering an
	// inode's full content.
	Chunks(ctx context.Context, ino Inode) ([]*ChunkDescriptor, error)
	// Lookup resolves a kernel-transport read request's inode to the blob
	// chunk references covering [offset, offset+length).
	Lookup(ctx context.Context, ino Inode, offset, length uint64) ([]*ChunkDescriptor, error)
}
