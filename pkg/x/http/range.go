package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Hypertext Transfer Protocol (HTTP/1.1): Range Requests
// https://www.rfc-editor.org/rfc/rfc7233.html

var (
	ErrContentRangeInvalidFormat     = errors.New("Content-Range invalid format")
	ErrContentRangeInvalidStartValue = errors.New("Content-Range invalid start value")
	ErrContentRangeInvalidEndValue   = errors.New("Content-Range invalid end value")
	ErrContentRangeInvalidTotalValue = errors.New("Content-Range invalid total value")
)

// ContentRange is a parsed HTTP Content-Range response header. Length is the
// end-of-range byte offset (the second number in "bytes start-end/total"),
// not a byte count.
type ContentRange struct {
	Start   int64
	Length  int64
	ObjSize uint64
}

// ParseContentRange parses the Content-Range header from an HTTP response,
// used by backend.BlobReader to confirm a 206 response actually covers the
// bytes that were requested. A response with no Content-Range (a backend
// that answered 200 instead of 206) falls back to Content-Length as the
// object size.
func ParseContentRange(header http.Header) (ContentRange, error) {
	cr := ContentRange{}

	contentRange := header.Get("Content-Range")

	if contentRange == "" {
		cl, err := strconv.ParseUint(header.Get("Content-Length"), 10, 64)
		if err != nil {
			return cr, ErrContentRangeInvalidTotalValue
		}
		cr.ObjSize = cl
		return cr, nil
	}

	// e.g. Content-Range: "bytes 200-1000/67589"
	parts := strings.Split(contentRange, " ")
	if len(parts) != 2 {
		return cr, ErrContentRangeInvalidFormat
	}

	rangeParts := strings.Split(parts[1], "/")
	if len(rangeParts) != 2 {
		return cr, ErrContentRangeInvalidFormat
	}

	rangeValues := strings.Split(rangeParts[0], "-")
	if len(rangeValues) != 2 {
		return cr, ErrContentRangeInvalidFormat
	}

	_, err := fmt.Sscanf(rangeValues[0], "%d", &cr.Start)
	if err != nil {
		return cr, ErrContentRangeInvalidStartValue
	}

	_, err = fmt.Sscanf(rangeValues[1], "%d", &cr.Length)
	if err != nil {
		return cr, ErrContentRangeInvalidEndValue
	}

	_, err = fmt.Sscanf(rangeParts[1], "%d", &cr.ObjSize)
	if err != nil {
		cl, err1 := strconv.ParseUint(header.Get("Content-Length"), 10, 64)
		if err1 != nil {
			return cr, ErrContentRangeInvalidTotalValue
		}
		cr.ObjSize = cl
		return cr, nil
	}

	return cr, nil
}
