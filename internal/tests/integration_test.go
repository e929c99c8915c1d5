package tests

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/rmap-go/internal/server/redisserver"
	"github.com/yndnr/rmap-go/internal/storage"
	"github.com/yndnr/rmap-go/internal/storage/memory"
	"github.com/yndnr/rmap-go/pkg/redisconn"
	"github.com/yndnr/rmap-go/pkg/rmap"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

type backend struct {
	name string
	open func(t *testing.T, dir string) storage.HashStore
}

var backends = []backend{
	{"memory", func(*testing.T, string) storage.HashStore { return memory.New(16) }},
	{"badger", func(t *testing.T, dir string) storage.HashStore {
		cfg := storage.DefaultBadgerConfig(dir)
		cfg.CacheSize = 8 << 20
		s, err := storage.NewBadgerStore(cfg, logger)
		require.NoError(t, err)
		return s
	}},
}

// node is a running server plus a client connected to it.
type node struct {
	store  storage.HashStore
	server *redisserver.Server
	pool   *redisconn.Pool
	client *rmap.Client
}

func startNode(t *testing.T, store storage.HashStore) *node {
	t.Helper()
	cfg := redisserver.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	srv, err := redisserver.New(cfg, store, logger)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))

	opts := redisconn.DefaultOptions(srv.Addr().String())
	opts.MaxIdle = 16
	opts.Logger = logger
	pool, err := redisconn.NewPool(opts)
	require.NoError(t, err)

	client, err := rmap.New(rmap.PoolOf(pool), rmap.WithLogger(logger))
	require.NoError(t, err)

	n := &node{store: store, server: srv, pool: pool, client: client}
	t.Cleanup(n.stop)
	return n
}

func (n *node) stop() {
	if n.server == nil {
		return
	}
	_ = n.client.Close()
	_ = n.pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = n.server.Shutdown(ctx)
	_ = n.store.Close()
	n.server = nil
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) { fn(t, b) })
	}
}

func TestIntegration_ConcurrentCounters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		n := startNode(t, b.open(t, t.TempDir()))
		m := rmap.Open(n.client, "counters", rmap.StringCodec{}, rmap.IntCodec{})
		ctx := context.Background()

		const workers, increments = 6, 20
		_, _, err := m.Put(ctx, "hits", 0)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < increments; i++ {
					for {
						cur, ok, err := m.Get(ctx, "hits")
						if !assert.NoError(t, err) || !assert.True(t, ok) {
							return
						}
						swapped, err := m.ReplaceIf(ctx, "hits", cur, cur+1)
						if !assert.NoError(t, err) {
							return
						}
						if swapped {
							break
						}
					}
				}
			}()
		}
		wg.Wait()

		got, ok, err := m.Get(ctx, "hits")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(workers*increments), got)
	})
}

func TestIntegration_PutIfAbsentSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		n := startNode(t, b.open(t, t.TempDir()))
		h := n.client.Hash("leases")
		ctx := context.Background()

		const contenders = 8
		winners := make(chan string, contenders)
		var wg sync.WaitGroup
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				existing, err := h.PutIfAbsent(ctx, []byte("job-1"), []byte(id))
				if assert.NoError(t, err) && existing == nil {
					winners <- id
				}
			}(fmt.Sprintf("worker-%d", i))
		}
		wg.Wait()
		close(winners)

		var won []string
		for id := range winners {
			won = append(won, id)
		}
		require.Len(t, won, 1)

		v, err := h.Get(ctx, []byte("job-1"))
		require.NoError(t, err)
		assert.Equal(t, won[0], string(v))
	})
}

func TestIntegration_ConditionalLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		n := startNode(t, b.open(t, t.TempDir()))
		h := n.client.Hash("orders")
		ctx := context.Background()

		prev, err := h.Replace(ctx, []byte("o1"), []byte("paid"))
		require.NoError(t, err)
		assert.Nil(t, prev)

		require.NoError(t, h.PutAll(ctx, []rmap.Entry{
			{Field: []byte("o1"), Value: []byte("new")},
			{Field: []byte("o2"), Value: []byte("new")},
		}))

		ok, err := h.ReplaceIf(ctx, []byte("o1"), []byte("new"), []byte("paid"))
		require.NoError(t, err)
		assert.True(t, ok)

		prev, err = h.Replace(ctx, []byte("o2"), []byte("cancelled"))
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), prev)

		ok, err = h.RemoveIf(ctx, []byte("o2"), []byte("new"))
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = h.RemoveIf(ctx, []byte("o2"), []byte("cancelled"))
		require.NoError(t, err)
		assert.True(t, ok)

		entries, err := h.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "o1", string(entries[0].Field))
		assert.Equal(t, "paid", string(entries[0].Value))

		require.NoError(t, h.Clear(ctx))
		empty, err := h.IsEmpty(ctx)
		require.NoError(t, err)
		assert.True(t, empty)
	})
}

func TestIntegration_BadgerRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dir := t.TempDir()
	open := backends[1].open
	ctx := context.Background()

	first := startNode(t, open(t, dir))
	h := first.client.Hash("config")
	require.NoError(t, h.PutAll(ctx, []rmap.Entry{{Field: []byte("mode"), Value: []byte("active")}}))
	first.stop()

	second := startNode(t, open(t, dir))
	h = second.client.Hash("config")
	ok, err := h.ReplaceIf(ctx, []byte("mode"), []byte("active"), []byte("standby"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := h.Get(ctx, []byte("mode"))
	require.NoError(t, err)
	assert.Equal(t, []byte("standby"), v)
}
