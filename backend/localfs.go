package backend

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jonoirwinrsa/image-service/pkg/iobuf"
)

// LocalFsReader reads blobs that are already unpacked onto local disk
// beneath root, addressed as root/<blobID>. It bypasses Connection
// entirely: there is no network, proxy, or retry policy to apply, only the
// host filesystem's own error semantics.
//
// It still satisfies BlobReader's tagged-variant contract (blobID, offset,
// length, dst) so ChunkCache and Prefetcher can treat it identically to
// RegistryReader and OssReader.
type LocalFsReader struct {
	root string

	requestCount atomic.Int64
	errorCount   atomic.Int64
	lastLatency  atomic.Int64
}

// NewLocalFsReader builds a LocalFsReader rooted at root.
func NewLocalFsReader(root string) *LocalFsReader {
	return &LocalFsReader{root: root}
}

func (r *LocalFsReader) ReadRange(_ context.Context, blobID string, offset, length int64, dst []byte, onProgress func(n int64)) (int, error) {
	start := time.Now()
	n, err := r.readRange(blobID, offset, length, dst, onProgress)
	r.requestCount.Add(1)
	r.lastLatency.Store(int64(time.Since(start)))
	if err != nil {
		r.errorCount.Add(1)
	}
	return n, err
}

func (r *LocalFsReader) readRange(blobID string, offset, length int64, dst []byte, onProgress func(n int64)) (int, error) {
	if int64(len(dst)) < length {
		return 0, newFormat(io.ErrShortBuffer)
	}

	f, err := os.Open(filepath.Join(r.root, blobID))
	if err != nil {
		return 0, newTransport(err)
	}

	seeked := iobuf.SeekReadCloser(f, offset)
	limited := iobuf.LimitReadCloser(seeked, length)
	defer limited.Close()

	var written int64
	buf := dst[:length]
	for written < length {
		n, err := limited.Read(buf[written:])
		if n > 0 {
			written += int64(n)
			if onProgress != nil {
				onProgress(written)
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, newTransport(err)
		}
	}

	if written != length {
		return 0, newShortRead(int(length), int(written))
	}
	return int(written), nil
}

func (r *LocalFsReader) Metrics() ReaderMetrics {
	return ReaderMetrics{
		RequestCount: r.requestCount.Load(),
		ErrorCount:   r.errorCount.Load(),
		LastLatency:  time.Duration(r.lastLatency.Load()),
	}
}

var _ BlobReader = (*LocalFsReader)(nil)
