package config

import "time"

// Default configuration values.
const (
	DefaultRedisAddr       = "127.0.0.1:6379"
	DefaultMetricsAddr     = "127.0.0.1:9121"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 5 * time.Minute
	DefaultShutdownTimeout = 15 * time.Second

	DefaultBackend      = BackendMemory
	DefaultMemoryShards = 32
	DefaultBadgerDir    = "/var/lib/rmap-server/data"
	DefaultGCInterval   = 10 * time.Minute
	DefaultGCThreshold  = 0.5
	DefaultCacheSizeMB  = 64

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Redis: RedisConfig{
				Address:      DefaultRedisAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				IdleTimeout:  DefaultIdleTimeout,
			},
			Metrics: MetricsConfig{
				Address: DefaultMetricsAddr,
			},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageSection{
			Backend: DefaultBackend,
			Memory: MemoryConfig{
				Shards: DefaultMemoryShards,
			},
			Badger: BadgerSection{
				Dir:         DefaultBadgerDir,
				GCInterval:  DefaultGCInterval,
				GCThreshold: DefaultGCThreshold,
				CacheSizeMB: DefaultCacheSizeMB,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
