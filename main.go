package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonoirwinrsa/image-service/backend"
	"github.com/jonoirwinrsa/image-service/cache"
	"github.com/jonoirwinrsa/image-service/conf"
	"github.com/jonoirwinrsa/image-service/contrib/config"
	"github.com/jonoirwinrsa/image-service/contrib/config/provider/file"
	"github.com/jonoirwinrsa/image-service/contrib/log"
	"github.com/jonoirwinrsa/image-service/daemon"
	"github.com/jonoirwinrsa/image-service/metadata"
	"github.com/jonoirwinrsa/image-service/pkg/decompress"
	"github.com/jonoirwinrsa/image-service/pkg/mapstruct"
	"github.com/jonoirwinrsa/image-service/prefetch"
)

var (
	// flagConf is the config flag.
	flagConf string = "config.yaml"
	// flagVerbose is the verbose flag.
	flagVerbose bool

	// Version is set by the release build via -ldflags.
	Version string = "no-set"
)

func init() {
	flag.StringVar(&flagConf, "c", "config.yaml", "config file path")
	flag.BoolVar(&flagVerbose, "v", false, "enable verbose log")

	prometheus.Unregister(collectors.NewGoCollector())
	registerer := prometheus.WrapRegistererWithPrefix("rafsd_", prometheus.DefaultRegisterer)
	registerer.MustRegister(collectors.NewGoCollector(collectors.WithGoCollectorMemStatsMetricsDisabled()))
}

func main() {
	flag.Parse()

	c := config.New[conf.Bootstrap](config.WithSource(file.NewSource(flagConf)))
	defer c.Close()

	bc := &conf.Bootstrap{}
	if err := c.Scan(bc); err != nil {
		log.Fatal(err)
	}

	logCfg := bc.Logger
	if logCfg == nil {
		logCfg = &conf.Logger{Level: "info"}
	}
	log.SetLogger(log.With(log.NewZapLogger(log.Config{
		Level:      logCfg.Level,
		Path:       logCfg.Path,
		Caller:     logCfg.Caller,
		MaxSize:    logCfg.MaxSize,
		MaxAge:     logCfg.MaxAge,
		MaxBackups: logCfg.MaxBackups,
		Compress:   logCfg.Compress,
	}), "ts", log.Timestamp(time.RFC3339), "pid", os.Getpid()))

	if err := run(bc); err != nil {
		log.Fatal(err)
	}
}

func run(bc *conf.Bootstrap) error {
	ctrl, err := daemon.New(daemon.Options{
		PIDFile:        bc.PidFile,
		UpgradeTimeout: 120 * time.Second,
		SingletonMode:  false,
	})
	if err != nil {
		return fmt.Errorf("construct daemon controller: %w", err)
	}

	chunkCache, err := buildChunkCache(bc)
	if err != nil {
		return fmt.Errorf("build chunk cache: %w", err)
	}

	reader, err := buildBlobReader(bc)
	if err != nil {
		return fmt.Errorf("build blob reader: %w", err)
	}

	// The RAFS metadata tree parser is out of scope (spec.md §1): provider
	// stays unbound until a real parser is wired in by the transport that
	// owns inode resolution. Every operation against it correctly fails
	// with metadata.ErrNoProvider until then.
	provider := &metadata.Nullable{}

	fetchFn := func(ctx context.Context, desc *metadata.ChunkDescriptor) ([]byte, error) {
		wireSize := desc.CompressedSize
		if !desc.Compressed {
			wireSize = desc.UncompressedSize
		}
		buf := make([]byte, wireSize)
		n, err := reader.ReadRange(ctx, desc.BlobID, int64(desc.CompressedOffset), int64(wireSize), buf, nil)
		if err != nil {
			return nil, err
		}
		buf = buf[:n]

		if !desc.Compressed {
			return buf, nil
		}
		algo := decompress.Algo(desc.CompressionAlgo)
		if algo == decompress.AlgoNone {
			algo = decompress.AlgoZstd
		}
		return decompress.Decompress(algo, buf, int(desc.UncompressedSize))
	}

	// With device.cache.type: none, chunkCache is nil (spec.md §6): every
	// chunk is re-fetched from the backend directly, and prefetching has
	// nothing to prime, so it is disabled outright rather than primed into
	// a cache that does not exist.
	var prefetcher *prefetch.Prefetcher
	if chunkCache != nil && bc.Prefetch != nil && bc.Prefetch.Enabled && bc.Prefetch.ManifestFile != "" {
		prefetcher = prefetch.NewPrefetcher(bc.Prefetch.Workers, func(ctx context.Context, desc *metadata.ChunkDescriptor) ([]byte, error) {
			return chunkCache.GetOrFetch(ctx, desc, fetchFn)
		})
	}

	adminAddr := ":9090"
	if bc.Admin != nil && bc.Admin.Addr != "" {
		adminAddr = bc.Admin.Addr
	}
	adminServer := daemon.NewAdminServer(ctrl, adminAddr)

	ctrl.Mount(adminServer, chunkCache, prefetcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := adminServer.Start(ctx); err != nil {
			log.Errorf("admin server exited: %v", err)
		}
	}()

	// reloadPrefetch spins up a fresh, transient Prefetcher for a
	// manifest-reload job: Prefetcher.Run closes its done channel on
	// return, so a drained Prefetcher cannot be re-run — each reload gets
	// its own worker pool rather than reusing the startup one.
	reloadPrefetch := func(job *prefetch.Job) {
		reloaded := prefetch.NewPrefetcher(bc.Prefetch.Workers, func(ctx context.Context, desc *metadata.ChunkDescriptor) ([]byte, error) {
			return chunkCache.GetOrFetch(ctx, desc, fetchFn)
		})
		reloaded.Run(ctx, job)
	}

	var watcher *prefetch.ManifestWatcher
	if prefetcher != nil {
		var werr error
		watcher, werr = prefetch.NewManifestWatcher(bc.Prefetch.ManifestFile, provider, reloadPrefetch)
		if werr != nil {
			log.Warnf("failed to start prefetch manifest watcher: %v", werr)
			watcher = nil
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil {
					log.Warnf("prefetch manifest watcher exited: %v", err)
				}
			}()
		}
	}

	if err := ctrl.Ready(); err != nil {
		return fmt.Errorf("signal readiness: %w", err)
	}

	// A mounted prefetcher is always run, with an empty job when there is
	// no bound provider or no readable manifest, because ctrl.Run's drain
	// waits for it to finish.
	if prefetcher != nil {
		var paths []string
		if provider.Bound() {
			var err error
			paths, err = prefetch.ReadManifest(bc.Prefetch.ManifestFile)
			if err != nil {
				log.Warnf("failed to read prefetch manifest: %v", err)
				paths = nil
			}
		}
		job := prefetch.BuildJob(ctx, provider, paths)
		go prefetcher.Run(ctx, job)
	}

	runErr := ctrl.Run(ctx)
	// ctrl.Run returning means shutdown has already been decided; cancel
	// explicitly here (idempotent alongside the deferred cancel above) so
	// watcher.Wait below does not block on a context that is not yet done.
	cancel()
	if watcher != nil {
		watcher.Wait()
	}
	return runErr
}

// buildChunkCache constructs the ChunkCache described by device.cache, or
// returns (nil, nil) when device.cache.type is "none" (spec.md §6: "Enable/
// disable ChunkCache"). A nil cache is a valid, fully-supported value
// upstream: run() falls back to fetching every chunk straight from the
// backend and disables prefetching.
func buildChunkCache(bc *conf.Bootstrap) (*cache.ChunkCache, error) {
	if bc.Device != nil && bc.Device.Cache != nil && bc.Device.Cache.Type == "none" {
		return nil, nil
	}

	var capacityBytes int64 = 1 << 30 // 1 GiB default
	var workDir string

	if bc.Device != nil && bc.Device.Cache != nil {
		if bc.Device.Cache.Config.CapacityMB > 0 {
			capacityBytes = bc.Device.Cache.Config.CapacityMB * 1024 * 1024
		}
		workDir = bc.Device.Cache.Config.WorkDir
	}

	chunkCache := cache.NewChunkCache(capacityBytes)

	if workDir != "" {
		overflow, err := cache.OpenDiskOverflow(workDir)
		if err != nil {
			return nil, err
		}
		chunkCache = chunkCache.WithDiskOverflow(overflow)
	}

	return chunkCache, nil
}

func buildBlobReader(bc *conf.Bootstrap) (backend.BlobReader, error) {
	if bc.Device == nil || bc.Device.Backend == nil {
		return nil, fmt.Errorf("device.backend not configured")
	}

	backendCfg := bc.Device.Backend.Config
	if backendCfg == nil {
		return nil, fmt.Errorf("device.backend.config not configured")
	}

	headers, err := resolveBackendHeaders(bc)
	if err != nil {
		return nil, fmt.Errorf("resolve backend options: %w", err)
	}

	switch bc.Device.Backend.Type {
	case "localfs":
		return backend.NewLocalFsReader(backendCfg.LocalFsRoot), nil
	case "oss":
		conn := backend.NewConnection(backendCfg)
		return backend.NewOssReader(conn, backendCfg.OssEndpoint, backendCfg.OssBucket, headers, backendCfg.RetryLimit), nil
	case "registry", "":
		conn := backend.NewConnection(backendCfg)
		return backend.NewRegistryReader(conn, backendCfg.RegistryURL, backendCfg.RegistryRepo, headers, backendCfg.RetryLimit), nil
	default:
		return nil, fmt.Errorf("unknown device.backend.type %q", bc.Device.Backend.Type)
	}
}

// backendOptions is the typed shape resolveBackendHeaders decodes
// device.backend.options into, after merging in bc.BackendDefaults.
type backendOptions struct {
	Headers map[string]string `json:"headers"`
}

// resolveBackendHeaders merges Bootstrap.BackendDefaults with
// device.backend.options (backend-specific values win) and decodes the
// result into the request headers sent with every range read.
func resolveBackendHeaders(bc *conf.Bootstrap) (http.Header, error) {
	merged, err := conf.MergeOptions(bc.BackendDefaults, bc.Device.Backend.Options)
	if err != nil {
		return nil, err
	}
	if len(merged) == 0 {
		return nil, nil
	}

	var opts backendOptions
	if err := mapstruct.Decode(merged, &opts); err != nil {
		return nil, err
	}
	if len(opts.Headers) == 0 {
		return nil, nil
	}

	h := http.Header{}
	for k, v := range opts.Headers {
		h.Set(k, v)
	}
	return h, nil
}
