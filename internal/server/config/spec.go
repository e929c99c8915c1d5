package config

import "time"

// ServerConfig is the root configuration for rmap-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server" yaml:"server"`
	Storage StorageSection `koanf:"storage" yaml:"storage"`
	Log     LogSection     `koanf:"log" yaml:"log"`
}

// ServerSection configures network endpoints.
type ServerSection struct {
	Redis           RedisConfig   `koanf:"redis" yaml:"redis"`
	Metrics         MetricsConfig `koanf:"metrics" yaml:"metrics"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// RedisConfig configures the RESP endpoint.
type RedisConfig struct {
	Address      string        `koanf:"address" yaml:"address"`
	Password     string        `koanf:"password" yaml:"password"`
	// PasswordHash is an Argon2id hash checked instead of Password.
	PasswordHash string        `koanf:"password_hash" yaml:"password_hash"`
	TLSCertFile  string        `koanf:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile   string        `koanf:"tls_key_file" yaml:"tls_key_file"`
	ReadTimeout  time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" yaml:"idle_timeout"`
	// RateLimit is commands per second per client IP; 0 disables it.
	RateLimit int `koanf:"rate_limit" yaml:"rate_limit"`
}

// TLSEnabled reports whether a certificate is configured.
func (c RedisConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" || c.TLSKeyFile != ""
}

// MetricsConfig configures the Prometheus endpoint. An empty address
// disables it.
type MetricsConfig struct {
	Address string `koanf:"address" yaml:"address"`
}

// Storage backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// StorageSection selects and tunes the hash store.
type StorageSection struct {
	Backend string        `koanf:"backend" yaml:"backend"`
	Memory  MemoryConfig  `koanf:"memory" yaml:"memory"`
	Badger  BadgerSection `koanf:"badger" yaml:"badger"`
}

// MemoryConfig tunes the in-memory store.
type MemoryConfig struct {
	Shards int `koanf:"shards" yaml:"shards"`
}

// BadgerSection tunes the persistent store.
type BadgerSection struct {
	Dir              string        `koanf:"dir" yaml:"dir"`
	SyncWrites       bool          `koanf:"sync_writes" yaml:"sync_writes"`
	GCInterval       time.Duration `koanf:"gc_interval" yaml:"gc_interval"`
	GCThreshold      float64       `koanf:"gc_threshold" yaml:"gc_threshold"`
	CacheSizeMB      int64         `koanf:"cache_size_mb" yaml:"cache_size_mb"`
	ValueLogFileSize int64         `koanf:"value_log_file_size" yaml:"value_log_file_size"`
}

// LogSection configures logging.
type LogSection struct {
	Level     string `koanf:"level" yaml:"level"`
	Format    string `koanf:"format" yaml:"format"`
	AddSource bool   `koanf:"add_source" yaml:"add_source"`
}
