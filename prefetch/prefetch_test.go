package prefetch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonoirwinrsa/image-service/metadata"
	"github.com/jonoirwinrsa/image-service/prefetch"
)

func TestReadManifest_SkipsBlankAndCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.txt")
	content := "# a comment\n/usr/bin/app\n\n  \n/etc/config\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	paths, err := prefetch.ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/bin/app", "/etc/config"}, paths)
}

func TestReadManifest_MissingFile(t *testing.T) {
	_, err := prefetch.ReadManifest("/nonexistent/manifest.txt")
	assert.Error(t, err)
}

type fakeProvider struct {
	inodes map[string]metadata.Inode
	chunks map[metadata.Inode][]*metadata.ChunkDescriptor
}

func (f *fakeProvider) Resolve(ctx context.Context, path string) (metadata.Inode, error) {
	ino, ok := f.inodes[path]
	if !ok {
		return 0, metadata.ErrNoProvider
	}
	return ino, nil
}

func (f *fakeProvider) Chunks(ctx context.Context, ino metadata.Inode) ([]*metadata.ChunkDescriptor, error) {
	return f.chunks[ino], nil
}

func (f *fakeProvider) Lookup(ctx context.Context, ino metadata.Inode, offset, length uint64) ([]*metadata.ChunkDescriptor, error) {
	return f.chunks[ino], nil
}

func TestBuildJob_ResolvesAndDedupes(t *testing.T) {
	shared := &metadata.ChunkDescriptor{Digest: [32]byte{1}}
	onlyA := &metadata.ChunkDescriptor{Digest: [32]byte{2}}

	provider := &fakeProvider{
		inodes: map[string]metadata.Inode{
			"/a": 1,
			"/b": 2,
		},
		chunks: map[metadata.Inode][]*metadata.ChunkDescriptor{
			1: {shared, onlyA},
			2: {shared},
		},
	}

	job := prefetch.BuildJob(context.Background(), provider, []string{"/a", "/b", "/missing"})
	require.NotNil(t, job)

	var fetched []*metadata.ChunkDescriptor
	p := prefetch.NewPrefetcher(2, func(ctx context.Context, desc *metadata.ChunkDescriptor) ([]byte, error) {
		fetched = append(fetched, desc)
		return []byte("ok"), nil
	})
	p.Run(context.Background(), job)

	assert.Len(t, fetched, 2)
}

func TestPrefetcher_RunCompletesAllChunks(t *testing.T) {
	chunks := make([]*metadata.ChunkDescriptor, 0, 20)
	for i := 0; i < 20; i++ {
		d := [32]byte{}
		d[0] = byte(i)
		chunks = append(chunks, &metadata.ChunkDescriptor{Digest: d})
	}

	var count int32
	p := prefetch.NewPrefetcher(4, func(ctx context.Context, desc *metadata.ChunkDescriptor) ([]byte, error) {
		atomic.AddInt32(&count, 1)
		return nil, nil
	})

	job := prefetch.BuildJob(context.Background(), &fakeProvider{
		inodes: map[string]metadata.Inode{"/x": 1},
		chunks: map[metadata.Inode][]*metadata.ChunkDescriptor{1: chunks},
	}, []string{"/x"})

	p.Run(context.Background(), job)
	assert.Equal(t, int32(20), atomic.LoadInt32(&count))
}

func TestPrefetcher_CancelStopsDispatch(t *testing.T) {
	chunks := make([]*metadata.ChunkDescriptor, 0, 100)
	for i := 0; i < 100; i++ {
		d := [32]byte{}
		d[0] = byte(i)
		d[1] = byte(i >> 8)
		chunks = append(chunks, &metadata.ChunkDescriptor{Digest: d})
	}

	block := make(chan struct{})
	var count int32
	p := prefetch.NewPrefetcher(1, func(ctx context.Context, desc *metadata.ChunkDescriptor) ([]byte, error) {
		atomic.AddInt32(&count, 1)
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})

	job := prefetch.BuildJob(context.Background(), &fakeProvider{
		inodes: map[string]metadata.Inode{"/x": 1},
		chunks: map[metadata.Inode][]*metadata.ChunkDescriptor{1: chunks},
	}, []string{"/x"})

	go p.Run(context.Background(), job)
	p.Cancel()
	close(block)
	p.Wait()

	assert.Less(t, atomic.LoadInt32(&count), int32(100))
}
