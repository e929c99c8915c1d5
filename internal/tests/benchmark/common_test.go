package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rmap-go/internal/server/redisserver"
	"github.com/yndnr/rmap-go/internal/storage"
	"github.com/yndnr/rmap-go/internal/storage/memory"
	"github.com/yndnr/rmap-go/pkg/redisconn"
	"github.com/yndnr/rmap-go/pkg/rmap"
)

// FieldCounts defines hash sizes for benchmarking.
var FieldCounts = []int{100, 1000, 10000}

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newField returns a unique field name.
func newField() []byte {
	return []byte("f-" + strings.ToLower(ulid.Make().String()))
}

type storeFactory struct {
	name string
	open func(b *testing.B) storage.HashStore
}

var stores = []storeFactory{
	{"memory", func(*testing.B) storage.HashStore { return memory.New(32) }},
	{"badger", func(b *testing.B) storage.HashStore {
		s, err := storage.NewBadgerStore(storage.DefaultBadgerConfig(b.TempDir()), logger)
		if err != nil {
			b.Fatalf("open badger: %v", err)
		}
		return s
	}},
}

// startClient runs a server over store and returns a client connected to
// it. Everything is torn down when b finishes.
func startClient(b *testing.B, store storage.HashStore) *rmap.Client {
	b.Helper()
	cfg := redisserver.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	srv, err := redisserver.New(cfg, store, logger)
	if err != nil {
		b.Fatalf("new server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		b.Fatalf("start server: %v", err)
	}

	opts := redisconn.DefaultOptions(srv.Addr().String())
	opts.MaxIdle = runtime.GOMAXPROCS(0) * 2
	opts.Logger = logger
	pool, err := redisconn.NewPool(opts)
	if err != nil {
		b.Fatalf("new pool: %v", err)
	}
	client, err := rmap.New(rmap.PoolOf(pool), rmap.WithLogger(logger))
	if err != nil {
		b.Fatalf("new client: %v", err)
	}

	b.Cleanup(func() {
		_ = client.Close()
		_ = pool.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = store.Close()
	})
	return client
}

// prefill stores count fields and returns their names.
func prefill(b *testing.B, h *rmap.Hash, count int) [][]byte {
	b.Helper()
	fields := make([][]byte, count)
	entries := make([]rmap.Entry, count)
	for i := range fields {
		fields[i] = newField()
		entries[i] = rmap.Entry{Field: fields[i], Value: []byte(fmt.Sprintf("v%d", i))}
	}
	if err := h.PutAll(context.Background(), entries); err != nil {
		b.Fatalf("prefill: %v", err)
	}
	return fields
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
}

// runWithStores runs fn once per storage backend.
func runWithStores(b *testing.B, fn func(b *testing.B, client *rmap.Client)) {
	for _, s := range stores {
		b.Run(s.name, func(b *testing.B) {
			fn(b, startClient(b, s.open(b)))
		})
	}
}
