package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/rmap-go/internal/telemetry/logger"
	"github.com/yndnr/rmap-go/pkg/passwd"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	var errs []error
	errs = append(errs, verifyServer(&cfg.Server)...)
	errs = append(errs, verifyStorage(&cfg.Storage)...)
	errs = append(errs, verifyLog(&cfg.Log)...)
	return errors.Join(errs...)
}

func verifyServer(cfg *ServerSection) []error {
	var errs []error
	r := cfg.Redis

	if err := verifyAddr(r.Address); err != nil {
		errs = append(errs, fmt.Errorf("server.redis.address: %w", err))
	}
	if cfg.Metrics.Address != "" {
		if err := verifyAddr(cfg.Metrics.Address); err != nil {
			errs = append(errs, fmt.Errorf("server.metrics.address: %w", err))
		} else if cfg.Metrics.Address == r.Address {
			errs = append(errs, errors.New("server.metrics.address: conflicts with server.redis.address"))
		}
	}

	if r.PasswordHash != "" {
		if _, err := passwd.Parse(r.PasswordHash); err != nil {
			errs = append(errs, fmt.Errorf("server.redis.password_hash: %w", err))
		}
	}

	if r.TLSEnabled() {
		if r.TLSCertFile == "" || r.TLSKeyFile == "" {
			errs = append(errs, errors.New("server.redis: tls_cert_file and tls_key_file must be set together"))
		} else {
			for _, f := range []string{r.TLSCertFile, r.TLSKeyFile} {
				if _, err := os.Stat(f); err != nil {
					errs = append(errs, fmt.Errorf("server.redis: %w", err))
				}
			}
		}
	}

	if r.ReadTimeout < 0 || r.WriteTimeout < 0 || r.IdleTimeout < 0 {
		errs = append(errs, errors.New("server.redis: timeouts must not be negative"))
	}
	if r.RateLimit < 0 {
		errs = append(errs, errors.New("server.redis.rate_limit must not be negative"))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	return errs
}

func verifyAddr(addr string) error {
	if addr == "" {
		return errors.New("is required")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if port == "" {
		return errors.New("port is required")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) []error {
	var errs []error
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		if cfg.Memory.Shards < 0 {
			errs = append(errs, errors.New("storage.memory.shards must not be negative"))
		}
	case BackendBadger:
		b := cfg.Badger
		if b.Dir == "" {
			errs = append(errs, errors.New("storage.badger.dir is required"))
		}
		if b.GCThreshold <= 0 || b.GCThreshold >= 1 {
			errs = append(errs, errors.New("storage.badger.gc_threshold must be between 0 and 1"))
		}
		if b.GCInterval < 0 {
			errs = append(errs, errors.New("storage.badger.gc_interval must not be negative"))
		}
		if b.CacheSizeMB < 0 || b.ValueLogFileSize < 0 {
			errs = append(errs, errors.New("storage.badger: sizes must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", cfg.Backend))
	}
	return errs
}

func verifyLog(cfg *LogSection) []error {
	var errs []error
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", cfg.Format))
	}
	return errs
}
