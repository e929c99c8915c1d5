package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/rmap-go/internal/infra/buildinfo"
	"github.com/yndnr/rmap-go/internal/infra/confloader"
	"github.com/yndnr/rmap-go/internal/infra/shutdown"
	"github.com/yndnr/rmap-go/internal/infra/tlsroots"
	"github.com/yndnr/rmap-go/internal/server/config"
	"github.com/yndnr/rmap-go/internal/server/redisserver"
	"github.com/yndnr/rmap-go/internal/storage"
	"github.com/yndnr/rmap-go/internal/storage/memory"
	"github.com/yndnr/rmap-go/internal/telemetry/logger"
	"github.com/yndnr/rmap-go/internal/telemetry/metric"
)

func run(c *cli.Context) error {
	configFile := c.String("config")
	flagOverrides := overrides(c)

	cfg, err := loadConfig(configFile, flagOverrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting rmap-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	reg := metric.NewRegistry(info)
	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, log)

	// Hooks run in reverse registration order: listeners stop before the
	// store closes.
	store, err := initStore(cfg, log, reg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		log.Info("closing storage", "backend", cfg.Storage.Backend)
		return store.Close()
	})

	redisCfg := redisConfig(cfg)
	var keyPair *tlsroots.KeyPair
	if cfg.Server.Redis.TLSEnabled() {
		keyPair, err = tlsroots.LoadKeyPair(cfg.Server.Redis.TLSCertFile, cfg.Server.Redis.TLSKeyFile, log)
		if err != nil {
			_ = shutdownHandler.Shutdown()
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		redisCfg.TLSConfig = keyPair.ServerConfig()
	}
	srv, err := redisserver.New(redisCfg, store, log)
	if err != nil {
		_ = shutdownHandler.Shutdown()
		return fmt.Errorf("init redis server: %w", err)
	}
	srv.RegisterMetrics(reg)

	ctx := c.Context
	if err := srv.Start(ctx); err != nil {
		_ = shutdownHandler.Shutdown()
		return fmt.Errorf("start redis server: %w", err)
	}
	shutdownHandler.OnShutdown("redis", func(ctx context.Context) error {
		log.Info("shutting down redis server")
		return srv.Shutdown(ctx)
	})
	log.Info("redis server listening", "addr", srv.Addr().String(), "tls", cfg.Server.Redis.TLSEnabled())

	if addr := cfg.Server.Metrics.Address; addr != "" {
		ms := metric.NewServer(addr, reg, log)
		if err := ms.Start(); err != nil {
			_ = shutdownHandler.Shutdown()
			return fmt.Errorf("start metrics server: %w", err)
		}
		shutdownHandler.OnShutdown("metrics", ms.Shutdown)
		log.Info("metrics server listening", "addr", ms.Addr().String())
	}

	reload := func() {
		if err := reloadConfig(configFile, flagOverrides, log); err != nil {
			log.Error("config reload failed", "error", err)
		}
	}
	reloadCert := func() {
		if err := keyPair.Reload(); err != nil {
			log.Error("certificate reload failed", "error", err)
		}
	}
	shutdownHandler.OnReload(reload)

	if configFile != "" {
		if err := watchFiles(shutdownHandler, log, "config-watcher", reload, configFile); err != nil {
			_ = shutdownHandler.Shutdown()
			return err
		}
	}
	if keyPair != nil {
		shutdownHandler.OnReload(reloadCert)
		if err := watchFiles(shutdownHandler, log, "cert-watcher", reloadCert, keyPair.Files()...); err != nil {
			_ = shutdownHandler.Shutdown()
			return err
		}
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads defaults, the optional file, RMAP_* environment
// variables and flag overrides, in that order, then verifies the result.
func loadConfig(configFile string, flagOverrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithOverrides(flagOverrides)}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// reloadConfig re-reads the configuration and applies what can change at
// runtime. Only the log level does; other changes need a restart.
func reloadConfig(configFile string, flagOverrides map[string]any, log *slog.Logger) error {
	cfg, err := loadConfig(configFile, flagOverrides)
	if err != nil {
		return err
	}
	previous := logger.GetLevel()
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return err
	}
	log.Info("configuration reloaded", "log_level", cfg.Log.Level, "previous_log_level", previous)
	return nil
}

// initLogger initializes the structured logger.
func initLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    os.Stdout,
		AddSource: cfg.Log.AddSource,
	})
}

// initStore opens the configured backend.
func initStore(cfg *config.ServerConfig, log *slog.Logger, reg prometheus.Registerer) (storage.HashStore, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case config.BackendMemory:
		log.Info("using memory storage", "shards", cfg.Storage.Memory.Shards)
		return memory.New(cfg.Storage.Memory.Shards), nil
	case config.BackendBadger:
		b := cfg.Storage.Badger
		bc := storage.DefaultBadgerConfig(b.Dir)
		bc.SyncWrites = b.SyncWrites
		if b.GCInterval > 0 {
			bc.GCInterval = b.GCInterval
		}
		if b.GCThreshold > 0 {
			bc.GCThreshold = b.GCThreshold
		}
		if b.CacheSizeMB > 0 {
			bc.CacheSize = b.CacheSizeMB << 20
		}
		if b.ValueLogFileSize > 0 {
			bc.ValueLogFileSize = b.ValueLogFileSize
		}
		store, err := storage.NewBadgerStore(bc, log)
		if err != nil {
			return nil, err
		}
		log.Info("using badger storage", "dir", b.Dir, "sync_writes", b.SyncWrites)
		return store.RegisterMetrics(reg), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// redisConfig builds the RESP server configuration. TLS is set up by the
// caller.
func redisConfig(cfg *config.ServerConfig) *redisserver.Config {
	r := cfg.Server.Redis
	return &redisserver.Config{
		Address:      r.Address,
		Password:     r.Password,
		PasswordHash: r.PasswordHash,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
		IdleTimeout:  r.IdleTimeout,
		RateLimit:    r.RateLimit,
	}
}

// watchFiles calls fn whenever one of paths is written, until shutdown.
func watchFiles(h *shutdown.Handler, log *slog.Logger, name string, fn func(), paths ...string) error {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for _, p := range paths {
		if err := watcher.Watch(p); err != nil {
			_ = watcher.Stop()
			return fmt.Errorf("%s: watch %s: %w", name, p, err)
		}
	}
	watcher.OnChange(func(string) { fn() })
	watcher.Start()
	h.OnShutdown(name, func(context.Context) error {
		return watcher.Stop()
	})
	return nil
}
