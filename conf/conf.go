package conf

import (
	"time"

	"dario.cat/mergo"
)

// Bootstrap is the top-level configuration, decoded from a YAML file (or a
// remote JSON blob) by contrib/config. Nothing in this package performs I/O;
// it is a pure data shape.
type Bootstrap struct {
	Hostname       string  `json:"hostname" yaml:"hostname"`
	PidFile        string  `json:"pidfile" yaml:"pidfile"`
	Mode           string  `json:"mode" yaml:"mode"` // direct, cached
	DigestValidate bool    `json:"digest_validate" yaml:"digest_validate"`
	Logger         *Logger `json:"logger" yaml:"logger"`
	Admin          *Admin  `json:"admin" yaml:"admin"`

	Device   *Device   `json:"device" yaml:"device"`
	Prefetch *Prefetch `json:"prefetch" yaml:"prefetch"`

	// BackendDefaults holds option values shared across every configured
	// backend (e.g. a default User-Agent or set of signing headers),
	// merged into Backend.Options with backend-specific values taking
	// precedence.
	BackendDefaults map[string]any `json:"backend_defaults" yaml:"backend_defaults"`
}

// Logger controls the contrib/log zap sink.
type Logger struct {
	Level      string `json:"level" yaml:"level"`
	Path       string `json:"path" yaml:"path"`
	Caller     bool   `json:"caller" yaml:"caller"`
	MaxSize    int    `json:"max_size" yaml:"max_size"`
	MaxAge     int    `json:"max_age" yaml:"max_age"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// Admin is the observability-only HTTP surface (healthz, metrics, version).
// It is not the administration API spec.md places out of scope — it never
// accepts configuration or filesystem operations.
type Admin struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Device groups the two external collaborators spec.md §6 names under
// `device.*`: the remote blob backend and the chunk cache.
type Device struct {
	Backend *Backend `json:"backend" yaml:"backend"`
	Cache   *Cache   `json:"cache" yaml:"cache"`
}

// Backend is `device.backend.*`.
type Backend struct {
	Type   string         `json:"type" yaml:"type"` // registry, oss, localfs
	Config *BackendConfig `json:"config" yaml:"config"`

	// Options carries free-form per-backend values (e.g. request headers
	// to attach to every range read) not promoted to a typed field on
	// BackendConfig. Resolved against Bootstrap.BackendDefaults via
	// MergeOptions before use.
	Options map[string]any `json:"options" yaml:"options"`
}

// MergeOptions overlays local on top of global, local values winning on
// key collision (grounded on the teacher's server/server.go, which merges
// global middleware options into each middleware's own options the same
// way via mergo.Map(&conf.Options, global, mergo.WithOverride)).
func MergeOptions(global, local map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(global)+len(local))
	for k, v := range global {
		merged[k] = v
	}
	if err := mergo.Map(&merged, local, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}

// BackendConfig is the immutable-after-construction configuration consumed
// by backend.Connection (spec.md §3's BackendConfig entity).
type BackendConfig struct {
	Proxy struct {
		URL           string        `json:"url" yaml:"url"`
		PingURL       string        `json:"ping_url" yaml:"ping_url"`
		CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`
		Fallback      bool          `json:"fallback" yaml:"fallback"`
	} `json:"proxy" yaml:"proxy"`

	SkipVerify     bool          `json:"skip_verify" yaml:"skip_verify"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	RetryLimit     int           `json:"retry_limit" yaml:"retry_limit"`

	// LocalFsRoot is only consulted when Backend.Type == "localfs".
	LocalFsRoot string `json:"localfs_root" yaml:"localfs_root"`
	// OssBucket/OssEndpoint are only consulted when Backend.Type == "oss".
	OssBucket   string `json:"oss_bucket" yaml:"oss_bucket"`
	OssEndpoint string `json:"oss_endpoint" yaml:"oss_endpoint"`
	// RegistryURL/RegistryRepo are only consulted when Backend.Type == "registry".
	RegistryURL  string `json:"registry_url" yaml:"registry_url"`
	RegistryRepo string `json:"registry_repo" yaml:"registry_repo"`
}

// Cache is `device.cache.*`.
type Cache struct {
	Type   string `json:"type" yaml:"type"` // blobcache, none
	Config struct {
		WorkDir      string `json:"work_dir" yaml:"work_dir"`
		Compressed   bool   `json:"compressed" yaml:"compressed"`
		CapacityMB   int64  `json:"capacity_mb" yaml:"capacity_mb"`
	} `json:"config" yaml:"config"`
}

// Prefetch configures the background chunk-priming worker pool.
type Prefetch struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ManifestFile string `json:"manifest_file" yaml:"manifest_file"`
	Workers      int    `json:"workers" yaml:"workers"`
}
