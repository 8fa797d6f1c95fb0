// Package daemon implements the process-wide lifecycle singleton: the
// active service handle, the cache manager handle, the shutdown event
// source, and the run-loop that blocks until a signal or administrative
// stop arrives (spec.md §4.5). Grounded on the teacher's server/server.go
// (tableflip.Upgrader wiring, the observability mux) and its absent
// contrib/kratos app runner, whose Start/Stop-over-transport.Server
// lifecycle is reconstructed here as Controller.Run.
package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"

	"github.com/jonoirwinrsa/image-service/cache"
	"github.com/jonoirwinrsa/image-service/contrib/log"
	"github.com/jonoirwinrsa/image-service/contrib/transport"
	"github.com/jonoirwinrsa/image-service/prefetch"
)

// ErrAlreadyConstructed guards the "constructed exactly once" invariant
// spec.md §4.5 states for DaemonController.
var ErrAlreadyConstructed = errors.New("daemon: controller already constructed")

var (
	constructOnce sync.Once
	constructErr  = ErrAlreadyConstructed
)

// Controller is the process-wide singleton described by spec.md §4.5.
// Design Notes §9 resolves its construction as explicit-and-passed rather
// than a package-level accessor: New is guarded so a second call fails,
// but the resulting *Controller is threaded through the caller's own
// wiring (main.go) instead of being fetched back out of a global.
type Controller struct {
	state atomic.Int32 // State

	active        atomic.Bool
	singletonMode atomic.Bool

	flip *tableflip.Upgrader

	mu         sync.Mutex
	service    transport.Server
	cache      *cache.ChunkCache
	prefetcher *prefetch.Prefetcher

	wake chan wakeReason

	log *log.Helper
}

// Options configures a Controller at construction.
type Options struct {
	PIDFile        string
	UpgradeTimeout time.Duration
	SingletonMode  bool
}

// New constructs the process's one Controller. A second call returns
// ErrAlreadyConstructed.
func New(opts Options) (*Controller, error) {
	var c *Controller
	var err error

	constructOnce.Do(func() {
		flip, ferr := tableflip.New(tableflip.Options{
			PIDFile:        opts.PIDFile,
			UpgradeTimeout: opts.UpgradeTimeout,
		})
		if ferr != nil {
			err = ferr
			return
		}

		c = &Controller{
			flip: flip,
			wake: make(chan wakeReason, 1),
			log:  log.NewHelper(log.GetLogger()),
		}
		c.state.Store(int32(StateInit))
		c.singletonMode.Store(opts.SingletonMode)
		constructErr = nil
	})

	if c == nil {
		if err != nil {
			return nil, err
		}
		return nil, constructErr
	}
	return c, nil
}

// Mount publishes the service handle and cache manager, and transitions
// Init → Running.
func (c *Controller) Mount(service transport.Server, cacheMgr *cache.ChunkCache, prefetcher *prefetch.Prefetcher) {
	c.mu.Lock()
	c.service = service
	c.cache = cacheMgr
	c.prefetcher = prefetcher
	c.mu.Unlock()

	c.active.Store(true)
	c.state.Store(int32(StateRunning))
}

// State reports the controller's current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Cache returns the mounted cache manager handle, or nil before Mount.
func (c *Controller) Cache() *cache.ChunkCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

// Shutdown is async-signal-safe per spec.md §4.5: it only flips the active
// flag, clears singleton_mode, stores StateStopping, and pushes a wake.
func (c *Controller) Shutdown() {
	c.active.Store(false)
	c.singletonMode.Store(false)
	c.state.Store(int32(StateStopping))
	c.pushWake(wakeAdministrativeStop)
}

// Upgrade transitions Running → Upgrading and asks tableflip to fork a
// successor, handing off listening sockets without dropping connections.
// tableflip.Upgrader.Upgrade blocks until the child signals Ready (or the
// upgrade times out); once it returns successfully this process's listeners
// are no longer needed and the run loop is woken to exit.
func (c *Controller) Upgrade() error {
	c.state.Store(int32(StateUpgrading))
	if err := c.flip.Upgrade(); err != nil {
		c.state.Store(int32(StateRunning))
		return err
	}
	c.pushWake(wakeUpgradeHandoffComplete)
	return nil
}

// Ready signals tableflip that this process's listeners are up, allowing
// its parent (if any) to exit. Call once Mount has completed.
func (c *Controller) Ready() error {
	return c.flip.Ready()
}

// Listen returns a listener for addr, taking over an inherited fd from a
// predecessor process if this is a post-upgrade child (tableflip's
// mechanism for handoff without dropping connections).
func (c *Controller) Listen(network, addr string) (net.Listener, error) {
	return c.flip.Listen(network, addr)
}

func (c *Controller) pushWake(reason wakeReason) {
	select {
	case c.wake <- reason:
	default:
		// a wake is already pending; draining it first would race the
		// loop's own receive, so drop — the pending wake will still cause
		// the loop to re-evaluate active/singletonMode and notice the new
		// condition itself.
	}
}

// Run blocks until a signal or administrative stop arrives, then drains and
// returns the mounted service's Stop error (nil if there is none). It owns the signal-handling goroutine and the tableflip
// exit-notification goroutine, joining both before returning (spec.md §5:
// "no detached threads").
func (c *Controller) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	// loopCtx releases both goroutines below once the loop decides to exit,
	// so wg.Wait never blocks on a signal or exit notification that will
	// not come.
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		select {
		case sig := <-sigCh:
			c.log.Infof("received signal %s, shutting down", sig)
			if sig == syscall.SIGHUP {
				if err := c.Upgrade(); err != nil {
					c.log.Errorf("upgrade failed: %v", err)
				}
				return
			}
			c.Shutdown()
		case <-loopCtx.Done():
		}
	}()
	go func() {
		defer wg.Done()
		select {
		case <-c.flip.Exit():
			// Either we are the predecessor process whose successor just
			// confirmed readiness, or Stop was called directly.
			c.pushWake(wakeUpgradeHandoffComplete)
		case <-loopCtx.Done():
		}
	}()

	for {
		select {
		case reason := <-c.wake:
			if c.loopShouldExit(reason) {
				stopLoop()
				wg.Wait()
				return c.drain(ctx)
			}
		case <-ctx.Done():
			c.Shutdown()
			wg.Wait()
			return c.drain(ctx)
		}
	}
}

// loopShouldExit implements spec.md §4.5's run-loop predicate: "on wake, it
// returns iff the active flag is false AND singleton_mode is false, OR iff
// an external stop was requested." The two wakeReason values that can
// satisfy "external stop" are wakeAdministrativeStop and
// wakeUpgradeHandoffComplete; a bare wakeNoop never exits the loop on its
// own, which is exactly the distinction Design Notes §9's open question
// asks for.
func (c *Controller) loopShouldExit(reason wakeReason) bool {
	switch reason {
	case wakeAdministrativeStop, wakeUpgradeHandoffComplete:
		return true
	default:
		return !c.active.Load() && !c.singletonMode.Load()
	}
}

func (c *Controller) drain(ctx context.Context) error {
	c.mu.Lock()
	service := c.service
	prefetcher := c.prefetcher
	c.mu.Unlock()

	if prefetcher != nil {
		prefetcher.Cancel()
		prefetcher.Wait()
	}

	var err error
	if service != nil {
		err = service.Stop(ctx)
	}
	c.flip.Stop()

	c.state.Store(int32(StateStopped))
	return err
}
