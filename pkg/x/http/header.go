package http

import (
	"net/http"
	"net/textproto"
	"slices"
	"strings"
)

// CopyHeader copies all headers from the source http.Header to the destination http.Header.
// It iterates over each header key-value pair in the source and adds them to the destination.
func CopyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = make([]string, 0, len(vv))
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// CopyHeadersWithout copies all headers from the source http.Header to the destination http.Header,
// excluding the headers specified in excludeKeys.
//
// Used to redact the Authorization header before a request/response is handed to the logger.
func CopyHeadersWithout(dst, src http.Header, excludeKeys ...string) {
	excludeMap := make(map[string]struct{}, len(excludeKeys))
	for _, key := range excludeKeys {
		excludeMap[textproto.CanonicalMIMEHeaderKey(key)] = struct{}{}
	}

	for k, vv := range src {
		if _, excluded := excludeMap[textproto.CanonicalMIMEHeaderKey(k)]; excluded {
			continue
		}
		dst[k] = make([]string, 0, len(vv))
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// CopyTrailer copies all headers from the source http.Header to the destination http.Header,
// prefixing each header key with the http.TrailerPrefix.
//
// see https://pkg.go.dev/net/http#example-ResponseWriter-Trailers
func CopyTrailer(dst, src http.Header) {
	for k, v := range src {
		dst[http.TrailerPrefix+k] = slices.Clone(v)
	}
}

// Hop-by-hop headers. As of RFC 7230, hop-by-hop headers are required to
// appear in the Connection header field. These are the headers defined by
// the obsoleted RFC 2616 (section 13.5.1) and are kept for backward
// compatibility.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopByHopHeaders removes hop-by-hop headers.
func RemoveHopByHopHeaders(h http.Header) {
	for _, f := range h["Connection"] {
		for _, sf := range strings.Split(f, ",") {
			if sf = textproto.TrimString(sf); sf != "" {
				h.Del(sf)
			}
		}
	}
	for _, f := range hopHeaders {
		h.Del(f)
	}
}

// IsChunked checks if the Transfer-Encoding header is chunked.
//
// see https://www.rfc-editor.org/rfc/rfc9112.html#name-chunked-transfer-coding
func IsChunked(h http.Header) bool {
	return h.Get("Transfer-Encoding") == "chunked" || h.Get("Content-Length") == ""
}

// RedactedHeaders is the set of header names stripped before a request or
// response is handed to the logger.
var RedactedHeaders = []string{"Authorization"}

// Redacted returns a copy of h with RedactedHeaders removed, safe to pass to
// a log call.
func Redacted(h http.Header) http.Header {
	dst := make(http.Header, len(h))
	CopyHeadersWithout(dst, h, RedactedHeaders...)
	return dst
}
