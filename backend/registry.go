package backend

import (
	"context"
	"net/http"
)

// RegistryReader reads blobs from an OCI-distribution-style registry, where
// blobID is addressed as /v2/<repo>/blobs/<digest> beneath a base URL.
type RegistryReader struct {
	readerCore
	baseURL string
	repo    string
	headers http.Header
}

// NewRegistryReader builds a RegistryReader. headers, if non-nil, is sent
// with every range request (e.g. a bearer token) and is redacted before any
// log emission via RedactedHeaders.
func NewRegistryReader(conn *Connection, baseURL, repo string, headers http.Header, retryLimit int) *RegistryReader {
	return &RegistryReader{
		readerCore: newReaderCore(conn, retryLimit),
		baseURL:    baseURL,
		repo:       repo,
		headers:    headers,
	}
}

func (r *RegistryReader) ReadRange(ctx context.Context, blobID string, offset, length int64, dst []byte, onProgress func(n int64)) (int, error) {
	return r.readerCore.readRange(ctx, blobID, offset, length, dst, onProgress, r.buildRangeRequest)
}

func (r *RegistryReader) buildRangeRequest(blobID string, offset, length int64) CallOptions {
	url := r.baseURL + "/v2/" + r.repo + "/blobs/" + blobID
	return CallOptions{
		Method:  http.MethodGet,
		URL:     url,
		Headers: newRangeHeaders(r.headers, offset, length),
	}
}

var _ BlobReader = (*RegistryReader)(nil)
