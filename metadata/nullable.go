package metadata

import (
	"context"
	"errors"
)

// ErrNoProvider is returned by a Nullable slot that was never bound. It is a
// ProviderError (spec.md §7): fatal to the read that triggered it, never to
// the daemon.
var ErrNoProvider = errors.New("metadata: no provider bound")

// Nullable holds a Provider that may legitimately be absent — e.g. a code
// path wired up before mount completes, or a backend variant (localfs) that
// has no RAFS superblock at all and only ever serves passthrough reads.
//
// The teacher's equivalent (storage/bucket/empty) is a stub whose every
// method panics; Design Notes §9 flags that as a footgun for any caller that
// doesn't know to avoid it. Nullable resolves that open question the other
// way: every operation fails with ErrNoProvider instead of aborting the
// process, so a caller that does exercise an unbound slot gets a normal
// Go error to handle or propagate.
type Nullable struct {
	provider Provider
}

// Bind installs p as the active provider. Safe to call once at mount time;
// not safe to call concurrently with Resolve/Chunks/Lookup.
func (n *Nullable) Bind(p Provider) {
	n.provider = p
}

// Bound reports whether a Provider has been installed.
func (n *Nullable) Bound() bool {
	return n.provider != nil
}

func (n *Nullable) Resolve(ctx context.Context, path string) (Inode, error) {
	if n.provider == nil {
		return 0, ErrNoProvider
	}
	return n.provider.Resolve(ctx, path)
}

func (n *Nullable) Chunks(ctx context.Context, ino Inode) ([]*ChunkDescriptor, error) {
	if n.provider == nil {
		return nil, ErrNoProvider
	}
	return n.provider.Chunks(ctx, ino)
}

func (n *Nullable) Lookup(ctx context.Context, ino Inode, offset, length uint64) ([]*ChunkDescriptor, error) {
	if n.provider == nil {
		return nil, ErrNoProvider
	}
	return n.provider.Lookup(ctx, ino, offset, length)
}

var _ Provider = (*Nullable)(nil)
