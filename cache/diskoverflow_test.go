package cache_test

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonoirwinrsa/image-service/cache"
	"github.com/jonoirwinrsa/image-service/metadata"
)

func TestDiskOverflow_SetGetDelete(t *testing.T) {
	overflow, err := cache.OpenDiskOverflow(t.TempDir())
	require.NoError(t, err)
	defer overflow.Close()

	payload := []byte("overflow bytes")
	digest := sha256.Sum256(payload)

	_, ok := overflow.Get(digest)
	assert.False(t, ok)

	require.NoError(t, overflow.Set(digest, payload))
	got, ok := overflow.Get(digest)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	require.NoError(t, overflow.Delete(digest))
	_, ok = overflow.Get(digest)
	assert.False(t, ok)
}

func TestChunkCache_SpillsToOverflowOnEviction(t *testing.T) {
	overflow, err := cache.OpenDiskOverflow(t.TempDir())
	require.NoError(t, err)
	defer overflow.Close()

	a := []byte("aaaaaaaaaa")
	b := []byte("bbbbbbbbbb")
	descA := descFor(a)
	descB := descFor(b)

	c := cache.NewChunkCache(int64(len(a)) + 1).WithDiskOverflow(overflow)

	_, err = c.GetOrFetch(context.Background(), descA, func(ctx context.Context, d *metadata.ChunkDescriptor) ([]byte, error) {
		return a, nil
	})
	require.NoError(t, err)

	_, err = c.GetOrFetch(context.Background(), descB, func(ctx context.Context, d *metadata.ChunkDescriptor) ([]byte, error) {
		return b, nil
	})
	require.NoError(t, err)

	buf, ok := overflow.Get(descA.Digest)
	require.True(t, ok)
	assert.Equal(t, a, buf)

	var fetched bool
	out, err := c.GetOrFetch(context.Background(), descA, func(ctx context.Context, d *metadata.ChunkDescriptor) ([]byte, error) {
		fetched = true
		return a, nil
	})
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Equal(t, a, out)
}
