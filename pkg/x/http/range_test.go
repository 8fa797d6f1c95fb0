package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentRange_PartialContent(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Range", "bytes 200-1000/67589")

	cr, err := ParseContentRange(h)
	require.NoError(t, err)
	assert.Equal(t, int64(200), cr.Start)
	assert.Equal(t, int64(1000), cr.Length)
	assert.Equal(t, uint64(67589), cr.ObjSize)
}

func TestParseContentRange_FallsBackToContentLength(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Length", "42")

	cr, err := ParseContentRange(h)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cr.ObjSize)
}

func TestParseContentRange_NoHeadersIsInvalid(t *testing.T) {
	_, err := ParseContentRange(http.Header{})
	assert.ErrorIs(t, err, ErrContentRangeInvalidTotalValue)
}

func TestParseContentRange_MalformedIsRejected(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Range", "not-a-range")

	_, err := ParseContentRange(h)
	assert.ErrorIs(t, err, ErrContentRangeInvalidFormat)
}
