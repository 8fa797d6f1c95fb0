package backend

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/paulbellamy/ratecounter"

	"github.com/jonoirwinrsa/image-service/contrib/log"
	xhttp "github.com/jonoirwinrsa/image-service/pkg/x/http"
)

const (
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

// BlobReader is a per-blob random-access read adapter (spec.md §4.2).
// Variants are dispatched by tag, not inheritance: RegistryReader and
// OssReader sit above a Connection and construct their request differently
// in buildRangeRequest; LocalFsReader reads the local filesystem directly.
type BlobReader interface {
	// ReadRange issues a range read [offset, offset+length) for blobID into
	// dst, retrying transient transport failures. onProgress, if non-nil, is
	// invoked as response bytes arrive.
	ReadRange(ctx context.Context, blobID string, offset, length int64, dst []byte, onProgress func(n int64)) (int, error)
	// Metrics reports this reader's lifetime request count, error count, and
	// most recent observed latency.
	Metrics() ReaderMetrics
}

// ReaderMetrics is the snapshot spec.md §4.2's `metrics()` operation returns.
type ReaderMetrics struct {
	RequestCount  int64
	ErrorCount    int64
	LastLatency   time.Duration
	FirstByteLast time.Duration
}

// readerCore implements retry, backoff, and metrics bookkeeping shared by
// every BlobReader variant; each variant embeds it and supplies only
// buildRangeRequest.
type readerCore struct {
	conn       *Connection
	retryLimit int

	requestCount  atomic.Int64
	errorCount    atomic.Int64
	lastLatency   atomic.Int64 // nanoseconds
	firstByteLast atomic.Int64 // nanoseconds since attempt start, 0 if untraced

	rate *ratecounter.RateCounter
	log  *log.Helper
}

func newReaderCore(conn *Connection, retryLimit int) readerCore {
	return readerCore{
		conn:       conn,
		retryLimit: retryLimit,
		rate:       ratecounter.NewRateCounter(1 * time.Second),
		log:        log.NewHelper(log.GetLogger()),
	}
}

func (r *readerCore) Metrics() ReaderMetrics {
	return ReaderMetrics{
		RequestCount:  r.requestCount.Load(),
		ErrorCount:    r.errorCount.Load(),
		LastLatency:   time.Duration(r.lastLatency.Load()),
		FirstByteLast: time.Duration(r.firstByteLast.Load()),
	}
}

// rangeRequestBuilder is supplied by each BlobReader variant: it produces
// the CallOptions for one attempt at reading [offset, offset+length) of
// blobID.
type rangeRequestBuilder func(blobID string, offset, length int64) CallOptions

func (r *readerCore) readRange(ctx context.Context, blobID string, offset, length int64, dst []byte, onProgress func(n int64), build rangeRequestBuilder) (int, error) {
	if int64(len(dst)) < length {
		return 0, newFormat(fmt.Errorf("dst too small: have %d, need %d", len(dst), length))
	}

	var lastErr error
	for attempt := 0; attempt <= r.retryLimit; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return 0, err
			}
		}

		start := time.Now()
		n, err := r.attempt(ctx, blobID, offset, length, dst, onProgress, build)
		r.requestCount.Add(1)
		r.rate.Incr(1)
		r.lastLatency.Store(int64(time.Since(start)))

		if err == nil {
			return n, nil
		}
		lastErr = err
		r.errorCount.Add(1)

		if !IsRetryable(err) {
			return 0, err
		}
	}

	return 0, lastErr
}

func (r *readerCore) attempt(ctx context.Context, blobID string, offset, length int64, dst []byte, onProgress func(n int64), build rangeRequestBuilder) (int, error) {
	opts := build(blobID, offset, length)
	opts.CatchStatus = true

	start := time.Now()
	var firstByte time.Time
	opts.FirstByte = &firstByte

	resp, err := r.conn.Call(ctx, opts)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if !firstByte.IsZero() {
		r.firstByteLast.Store(int64(firstByte.Sub(start)))
	}

	// A backend that ignores Range and serves the whole object 200-OK would
	// otherwise silently hand back the wrong bytes for this offset; a 206 is
	// checked against what was actually asked for. ContentRange.Length here
	// is the end-of-range byte offset (the second number in
	// "bytes start-end/total"), not a byte count.
	if resp.StatusCode == http.StatusPartialContent {
		if cr, err := xhttp.ParseContentRange(resp.Header); err == nil {
			wantEnd := offset + length - 1
			if cr.Start != offset || cr.Length != wantEnd {
				return 0, newFormat(fmt.Errorf("range mismatch: asked bytes %d-%d, got bytes %d-%d", offset, wantEnd, cr.Start, cr.Length))
			}
		}
	}

	var written int64
	var readErr error
	buf := dst[:length]
	for written < length {
		n, err := resp.Body.Read(buf[written:])
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
			readErr = err
			break
		}
	}

	if readErr != nil {
		return 0, newTransport(readErr)
	}
	if written != length {
		return 0, newShortRead(int(length), int(written))
	}
	return int(written), nil
}

func sleepBackoff(ctx context.Context, attempt int) error {
	delay := retryBaseDelay << uint(attempt-1)
	if delay > retryMaxDelay || delay <= 0 {
		delay = retryMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4 + 1))
	delay += jitter

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return newDisconnected()
	}
}

func rangeHeader(offset, length int64) string {
	return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
}

func newRangeHeaders(extra http.Header, offset, length int64) http.Header {
	h := http.Header{}
	if extra != nil {
		h = extra.Clone()
	}
	h.Set("Range", rangeHeader(offset, length))
	return h
}
