package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/rmap-go/internal/infra/shutdown"
	"github.com/yndnr/rmap-go/internal/server/config"
	"github.com/yndnr/rmap-go/internal/telemetry/logger"
	"github.com/yndnr/rmap-go/pkg/passwd"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestOverrides(t *testing.T) {
	var got map[string]any
	app := &cli.App{
		Flags: serverFlags(),
		Action: func(c *cli.Context) error {
			got = overrides(c)
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"rmap-server", "--address", "0.0.0.0:7000", "--log-level", "debug", "--metrics-address", ""}))

	assert.Equal(t, map[string]any{
		"server.redis.address":   "0.0.0.0:7000",
		"log.level":              "debug",
		"server.metrics.address": "",
	}, got)
}

func TestHashPasswordCommand(t *testing.T) {
	runHash := func(t *testing.T, stdin string, args ...string) (string, error) {
		t.Helper()
		var out bytes.Buffer
		app := &cli.App{
			Name:     "rmap-server",
			Reader:   strings.NewReader(stdin),
			Writer:   &out,
			Commands: []*cli.Command{hashPasswordCommand()},
		}
		err := app.Run(append([]string{"rmap-server", "hash-password"}, args...))
		return strings.TrimSpace(out.String()), err
	}

	t.Run("argument", func(t *testing.T) {
		hash, err := runHash(t, "", "s3cret")
		require.NoError(t, err)
		assert.True(t, passwd.Verify("s3cret", hash))
	})

	t.Run("stdin", func(t *testing.T) {
		hash, err := runHash(t, "from-stdin\n")
		require.NoError(t, err)
		assert.True(t, passwd.Verify("from-stdin", hash))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := runHash(t, "")
		assert.Error(t, err)
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRedisAddr, cfg.Server.Redis.Address)
	assert.Equal(t, config.BackendMemory, cfg.Storage.Backend)
}

func TestLoadConfig_FileThenOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  redis:
    address: 127.0.0.1:7001
    read_timeout: 2s
  metrics:
    address: ""
storage:
  backend: badger
  badger:
    dir: /tmp/rmap-test
log:
  level: warn
`)

	cfg, err := loadConfig(path, map[string]any{"log.level": "debug"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", cfg.Server.Redis.Address)
	assert.Equal(t, 2*time.Second, cfg.Server.Redis.ReadTimeout)
	assert.Equal(t, config.DefaultWriteTimeout, cfg.Server.Redis.WriteTimeout)
	assert.Empty(t, cfg.Server.Metrics.Address)
	assert.Equal(t, config.BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig("", map[string]any{"storage.backend": "cassandra"})
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestReloadConfig_AppliesLogLevel(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")
	_, err := logger.New(logger.Config{Level: "info", Output: io.Discard})
	require.NoError(t, err)

	require.NoError(t, reloadConfig(path, nil, discardLogger))
	assert.Equal(t, "warn", logger.GetLevel())

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: nope\n"), 0o600))
	assert.Error(t, reloadConfig(path, nil, discardLogger))
	assert.Equal(t, "warn", logger.GetLevel())
}

func TestInitStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default()
		store, err := initStore(cfg, discardLogger, prometheus.NewRegistry())
		require.NoError(t, err)
		defer store.Close()

		n, err := store.HSetNX(ctx, "h", []byte("f"), []byte("v"))
		require.NoError(t, err)
		assert.True(t, n)
	})

	t.Run("badger", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Backend = config.BackendBadger
		cfg.Storage.Badger.Dir = t.TempDir()
		cfg.Storage.Badger.CacheSizeMB = 8

		store, err := initStore(cfg, discardLogger, prometheus.NewRegistry())
		require.NoError(t, err)
		defer store.Close()

		ok, err := store.HSetNX(ctx, "h", []byte("f"), []byte("v"))
		require.NoError(t, err)
		assert.True(t, ok)
		v, err := store.HGet(ctx, "h", []byte("f"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), v)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Backend = "nope"
		_, err := initStore(cfg, discardLogger, prometheus.NewRegistry())
		assert.Error(t, err)
	})
}

func TestRedisConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Redis.Password = "pw"
	cfg.Server.Redis.RateLimit = 10

	rc := redisConfig(cfg)
	assert.Equal(t, config.DefaultRedisAddr, rc.Address)
	assert.Equal(t, "pw", rc.Password)
	assert.Empty(t, rc.PasswordHash)
	assert.Equal(t, 10, rc.RateLimit)
	assert.Equal(t, config.DefaultIdleTimeout, rc.IdleTimeout)
	assert.Nil(t, rc.TLSConfig)
}

func TestWatchFiles(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	h := shutdown.NewHandler(time.Second, discardLogger)

	changed := make(chan struct{}, 8)
	require.NoError(t, watchFiles(h, discardLogger, "test-watcher", func() { changed <- struct{}{} }, path))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("change not reported")
	}

	require.NoError(t, h.Shutdown())
}
