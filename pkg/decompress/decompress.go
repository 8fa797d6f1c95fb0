// Package decompress expands a fetched chunk's on-the-wire bytes into the
// uncompressed form its digest is computed over (spec.md §4's data flow:
// "the response is decompressed and digest-verified, then inserted").
//
// A chunk's ChunkDescriptor.Compressed flag describes the blob's own at-rest
// codec. backend.Connection does no Content-Encoding decoding of its own;
// any transparent gzip handling is Go's http.Transport default.
package decompress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
	"github.com/andybalholm/brotli"
)

// Algo names a chunk's at-rest compression codec.
type Algo string

const (
	AlgoNone   Algo = ""
	AlgoZstd   Algo = "zstd"
	AlgoBrotli Algo = "brotli"
	AlgoGzip   Algo = "gzip"
)

// Decompress expands compressed into a buffer of exactly uncompressedSize
// bytes per algo. AlgoNone returns compressed unchanged (sized check still
// applies, matching an uncompressed chunk's own descriptor).
func Decompress(algo Algo, compressed []byte, uncompressedSize int) ([]byte, error) {
	switch algo {
	case AlgoNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("decompress: uncompressed chunk size mismatch: got %d want %d", len(compressed), uncompressedSize)
		}
		return compressed, nil
	case AlgoZstd:
		out, err := zstd.Decompress(make([]byte, 0, uncompressedSize), compressed)
		if err != nil {
			return nil, fmt.Errorf("decompress: zstd: %w", err)
		}
		if len(out) != uncompressedSize {
			return nil, fmt.Errorf("decompress: zstd: size mismatch: got %d want %d", len(out), uncompressedSize)
		}
		return out, nil
	case AlgoBrotli:
		return readAllExact(brotli.NewReader(bytes.NewReader(compressed)), uncompressedSize)
	case AlgoGzip:
		r, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("decompress: gzip: %w", err)
		}
		defer r.Close()
		return readAllExact(r, uncompressedSize)
	default:
		return nil, fmt.Errorf("decompress: unknown algo %q", algo)
	}
}

func readAllExact(r io.Reader, uncompressedSize int) ([]byte, error) {
	buf := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("decompress: want %d bytes: %w", uncompressedSize, err)
	}
	return buf, nil
}
