package backend

import (
	"context"
	"net/http"
)

// OssReader reads blobs from an object-storage bucket where blobID is the
// object key, addressed beneath endpoint/bucket.
type OssReader struct {
	readerCore
	endpoint string
	bucket   string
	headers  http.Header
}

// NewOssReader builds an OssReader. Signing headers (if the bucket requires
// them) are the caller's responsibility to populate in headers ahead of
// time; this type does not implement a signing scheme itself.
func NewOssReader(conn *Connection, endpoint, bucket string, headers http.Header, retryLimit int) *OssReader {
	return &OssReader{
		readerCore: newReaderCore(conn, retryLimit),
		endpoint:   endpoint,
		bucket:     bucket,
		headers:    headers,
	}
}

func (r *OssReader) ReadRange(ctx context.Context, blobID string, offset, length int64, dst []byte, onProgress func(n int64)) (int, error) {
	return r.readerCore.readRange(ctx, blobID, offset, length, dst, onProgress, r.buildRangeRequest)
}

func (r *OssReader) buildRangeRequest(blobID string, offset, length int64) CallOptions {
	url := r.endpoint + "/" + r.bucket + "/" + blobID
	return CallOptions{
		Method:  http.MethodGet,
		URL:     url,
		Headers: newRangeHeaders(r.headers, offset, length),
	}
}

var _ BlobReader = (*OssReader)(nil)
