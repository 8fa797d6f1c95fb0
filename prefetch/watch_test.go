package prefetch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonoirwinrsa/image-service/metadata"
	"github.com/jonoirwinrsa/image-service/prefetch"
)

func TestManifestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.txt")
	require.NoError(t, os.WriteFile(path, []byte("/a\n"), 0o644))

	provider := &fakeProvider{
		inodes: map[string]metadata.Inode{"/a": 1, "/b": 2},
		chunks: map[metadata.Inode][]*metadata.ChunkDescriptor{
			1: {{Digest: [32]byte{1}}},
			2: {{Digest: [32]byte{2}}},
		},
	}

	var mu sync.Mutex
	var reloads int
	w, err := prefetch.NewManifestWatcher(path, provider, func(job *prefetch.Job) {
		mu.Lock()
		reloads++
		mu.Unlock()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return os.WriteFile(path, []byte("/a\n/b\n"), 0o644) == nil
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloads > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
